package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/agentflow/agentflow/internal/app/dto"
	"github.com/agentflow/agentflow/pkg/agentflow"
)

// Palette
var (
	colorIdle       = lipgloss.Color("#5c6370")
	colorProcessing = lipgloss.Color("#FFC107")
	colorCompleted  = lipgloss.Color("#8BC34A")
	colorAccent     = lipgloss.Color("#2196F3")
	colorError      = lipgloss.Color("#e53935")
)

type tuiStyles struct {
	title  lipgloss.Style
	status lipgloss.Style
	help   lipgloss.Style
	err    lipgloss.Style
	result lipgloss.Style
	card   map[dto.NodeStatus]lipgloss.Style
}

func newTUIStyles() tuiStyles {
	card := func(c lipgloss.Color) lipgloss.Style {
		return lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(c).
			Foreground(c).
			Padding(0, 1).
			Width(24)
	}
	return tuiStyles{
		title:  lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
		status: lipgloss.NewStyle().Faint(true),
		help:   lipgloss.NewStyle().Faint(true).Italic(true),
		err:    lipgloss.NewStyle().Foreground(colorError).Bold(true),
		result: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(colorCompleted).Padding(0, 1),
		card: map[dto.NodeStatus]lipgloss.Style{
			dto.NodeIdle:       card(colorIdle),
			dto.NodeProcessing: card(colorProcessing).Bold(true),
			dto.NodeCompleted:  card(colorCompleted),
		},
	}
}

type tickMsg time.Time

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// tuiModel polls the runtime for a frame on every tick and draws the
// pipeline as columns of cards.
type tuiModel struct {
	rt           *agentflow.Runtime
	name         string
	interval     time.Duration
	fileSelected bool
	showResult   bool
	width        int
	height       int
	canvasW      float64
	canvasH      float64
	frame        *dto.Frame
	progress     progress.Model
	styles       tuiStyles
	err          error
}

func newTUIModel(rt *agentflow.Runtime, name string, canvasW, canvasH float64) tuiModel {
	m := tuiModel{
		rt:       rt,
		name:     name,
		interval: 100 * time.Millisecond,
		width:    120,
		height:   40,
		canvasW:  canvasW,
		canvasH:  canvasH,
		progress: progress.New(progress.WithDefaultGradient()),
		styles:   newTUIStyles(),
	}
	m.progress.Width = 60
	m.frame = rt.Frame(canvasW, canvasH)
	return m
}

func (m tuiModel) Init() tea.Cmd {
	return tick(m.interval)
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.progress.Width = clamp(msg.Width-20, 10, 80)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "s", "enter", " ":
			_, m.err = m.rt.Start(agentflow.StartRunRequest{FileSelected: m.fileSelected})
			m.showResult = false
		case "f":
			m.fileSelected = !m.fileSelected
		case "r":
			m.showResult = !m.showResult
		}
		m.frame = m.rt.Frame(m.canvasW, m.canvasH)
		return m, nil
	case tickMsg:
		m.frame = m.rt.Frame(m.canvasW, m.canvasH)
		return m, tick(m.interval)
	}
	return m, nil
}

func (m tuiModel) View() string {
	f := m.frame
	var b strings.Builder

	b.WriteString(m.styles.title.Render("agentflow · " + m.name))
	b.WriteString("\n")
	file := "no file"
	if m.fileSelected {
		file = "file selected"
	}
	b.WriteString(m.styles.status.Render(fmt.Sprintf("phase %s  elapsed %s  in flight %d  documents %d  %s",
		f.Phase, f.ElapsedText, f.Stats.InFlight, f.Stats.DocumentsProcessed, file)))
	b.WriteString("\n\n")

	b.WriteString(m.renderColumns(f.Nodes))
	b.WriteString("\n\n")

	ratio := 0.0
	if f.Stats.TotalNodes > 0 {
		ratio = float64(f.Stats.CompletedNodes) / float64(f.Stats.TotalNodes)
	}
	b.WriteString(m.progress.ViewAs(ratio))
	b.WriteString(fmt.Sprintf("  %d/%d stages", f.Stats.CompletedNodes, f.Stats.TotalNodes))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString("\n" + m.styles.err.Render(m.err.Error()) + "\n")
	}
	if f.ResultReady {
		if m.showResult {
			b.WriteString("\n" + m.styles.result.Render(renderResult(f.Result)) + "\n")
		} else {
			b.WriteString("\n" + m.styles.title.Render("Result ready. Press r to view.") + "\n")
		}
	}
	b.WriteString("\n" + m.styles.help.Render("s start/restart · f toggle file · r result · q quit"))
	return b.String()
}

// renderColumns lays cards out column by column, top to bottom by canvas Y.
func (m tuiModel) renderColumns(nodes []dto.NodeView) string {
	if len(nodes) == 0 {
		return m.styles.status.Render("(canvas not ready)")
	}
	byCol := make(map[int][]dto.NodeView)
	var cols []int
	for _, n := range nodes {
		if _, ok := byCol[n.Column]; !ok {
			cols = append(cols, n.Column)
		}
		byCol[n.Column] = append(byCol[n.Column], n)
	}
	sort.Ints(cols)

	rendered := make([]string, 0, len(cols))
	for _, c := range cols {
		col := byCol[c]
		sort.SliceStable(col, func(i, j int) bool { return col[i].Y < col[j].Y })
		cards := make([]string, 0, len(col))
		for _, n := range col {
			style, ok := m.styles.card[n.Status]
			if !ok {
				style = m.styles.card[dto.NodeIdle]
			}
			cards = append(cards, style.Render(n.Label+"\n"+string(n.Status)))
		}
		rendered = append(rendered, lipgloss.JoinVertical(lipgloss.Left, cards...))
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, rendered...)
}

func renderResult(result any) string {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(data)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func newTUICmd(global *globalOptions) *cobra.Command {
	var autoStart bool
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Watch a pipeline animate in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, name, p, err := global.resolve(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			opts := []agentflow.Option{agentflow.WithPipeline(name, p)}
			if cfg.Pipeline.Seed != nil {
				opts = append(opts, agentflow.WithSeed(*cfg.Pipeline.Seed))
			}
			rt, err := agentflow.New(opts...)
			if err != nil {
				return err
			}
			defer rt.Close()

			model := newTUIModel(rt, name, cfg.Canvas.Width, cfg.Canvas.Height)
			if autoStart && !rt.RequiresFile() {
				if _, err := rt.Start(agentflow.StartRunRequest{}); err != nil {
					return err
				}
			}
			_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
	cmd.Flags().BoolVar(&autoStart, "start", true, "start a run immediately when no file is needed")
	return cmd
}
