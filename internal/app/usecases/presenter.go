package usecases

import (
	"github.com/agentflow/agentflow/internal/app/dto"
	"github.com/agentflow/agentflow/internal/core/graph"
	"github.com/agentflow/agentflow/internal/core/layout"
	"github.com/agentflow/agentflow/internal/core/sequencer"
)

// Presenter projects the current run onto a canvas.
type Presenter struct {
	run   RunSource
	graph *graph.Graph
	memo  *layout.Memo
	fanIn int
}

// NewPresenter returns a presenter drawing run with engine
func NewPresenter(run RunSource, engine *layout.Engine) *Presenter {
	g := run.Graph()
	return &Presenter{
		run:   run,
		graph: g,
		memo:  layout.NewMemo(engine),
		fanIn: g.IncomingCounts()[g.Terminal],
	}
}

// Frame composes the layout for width x height with a snapshot of the run.
// A canvas that is not ready yields a frame without geometry. Elapsed time
// only advances while the run is running; a halted run keeps its transfers
// where they stood.
func (p *Presenter) Frame(width, height float64) *dto.Frame {
	st := p.run.Snapshot()
	f := &dto.Frame{
		PipelineID: p.graph.ID,
		RunID:      st.RunID,
		Generation: st.Generation,
		Phase:      st.Phase.String(),
		Width:      width,
		Height:     height,
		Nodes:      []dto.NodeView{},
		Edges:      []dto.EdgeView{},
		Transfers:  []dto.TransferView{},
		Stats: dto.Stats{
			DocumentsProcessed: st.ProcessedCount,
			CompletedNodes:     len(st.Completed()),
			TotalNodes:         len(p.graph.Nodes),
			InFlight:           len(st.InFlight),
			ActiveColumn:       st.ActiveColumn,
			TerminalArrivals:   st.TerminalArrivals,
			TerminalFanIn:      p.fanIn,
		},
	}

	now := p.run.Now()
	elapsed := st.Elapsed
	if st.Phase == sequencer.PhaseRunning {
		elapsed = now.Sub(st.StartedAt)
	}
	f.Elapsed = elapsed
	f.ElapsedText = sequencer.FormatElapsed(elapsed)
	if result, ok := p.run.Result(); ok {
		f.ResultReady = true
		f.Result = result
	}

	positions := p.memo.Positions(width, height)
	if len(positions) == 0 {
		return f
	}
	f.Nodes = p.nodes(positions, st)
	f.Edges = p.edges(positions, st)

	engine := p.memo.Engine()
	offset := now.Sub(st.StartedAt)
	if st.Phase == sequencer.PhaseHalted {
		offset = st.Elapsed
	}
	for _, tr := range st.Transfers() {
		path := engine.CurvePath(positions[tr.From], positions[tr.To])
		progress := tr.Progress(offset)
		at := path.PointAt(progress)
		f.Transfers = append(f.Transfers, dto.TransferView{
			ID:       tr.ID,
			From:     tr.From,
			To:       tr.To,
			Progress: progress,
			X:        at.X,
			Y:        at.Y,
		})
	}
	return f
}

// Layout returns the static placement with every edge inactive.
func (p *Presenter) Layout(width, height float64) *dto.Layout {
	positions := p.memo.Positions(width, height)
	l := &dto.Layout{
		PipelineID: p.graph.ID,
		Width:      width,
		Height:     height,
		Nodes:      []dto.NodeView{},
		Edges:      []dto.EdgeView{},
	}
	if len(positions) == 0 {
		return l
	}
	l.Nodes = p.nodes(positions, nil)
	l.Edges = p.edges(positions, nil)
	return l
}

func (p *Presenter) nodes(positions map[string]layout.Point, st *sequencer.RunState) []dto.NodeView {
	cfg := p.memo.Engine().Config()
	out := make([]dto.NodeView, 0, len(p.graph.Nodes))
	for _, n := range p.graph.Nodes {
		pos := positions[n.ID]
		out = append(out, dto.NodeView{
			ID:       n.ID,
			Label:    n.Label,
			Category: string(n.Category),
			Column:   p.column(n.ID),
			X:        pos.X,
			Y:        pos.Y,
			Width:    cfg.NodeWidth,
			Height:   cfg.NodeHeight,
			Status:   Status(st, n.ID),
		})
	}
	return out
}

func (p *Presenter) edges(positions map[string]layout.Point, st *sequencer.RunState) []dto.EdgeView {
	engine := p.memo.Engine()
	out := make([]dto.EdgeView, 0, len(p.graph.Edges))
	for _, e := range p.graph.Edges {
		path := engine.CurvePath(positions[e.From], positions[e.To])
		var view layout.RunView
		if st != nil {
			view = st
		}
		out = append(out, dto.EdgeView{
			ID:    e.ID,
			From:  e.From,
			To:    e.To,
			Path:  path.SVG(),
			State: layout.EdgeVisual(e.From, e.To, view),
		})
	}
	return out
}

func (p *Presenter) column(id string) int {
	for i, col := range p.memo.Engine().Columns() {
		for _, member := range col {
			if member == id {
				return i
			}
		}
	}
	return 0
}

// Status derives the display state of node id. Completion wins over
// processing; a nil state means no run.
func Status(st *sequencer.RunState, id string) dto.NodeStatus {
	switch {
	case st == nil:
		return dto.NodeIdle
	case st.IsCompleted(id):
		return dto.NodeCompleted
	case st.IsActive(id):
		return dto.NodeProcessing
	default:
		return dto.NodeIdle
	}
}
