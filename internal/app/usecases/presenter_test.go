package usecases

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflow/agentflow/internal/adapters/repository/memory"
	"github.com/agentflow/agentflow/internal/app/dto"
	"github.com/agentflow/agentflow/internal/core/checkpoint"
	"github.com/agentflow/agentflow/internal/core/graph"
	"github.com/agentflow/agentflow/internal/core/layout"
	"github.com/agentflow/agentflow/internal/core/sequencer"
	"github.com/agentflow/agentflow/internal/core/timer"
)

var epoch = time.Date(2025, 10, 12, 9, 0, 0, 0, time.UTC)

// fixedTiming makes every offset exact: transfers depart every 100ms from
// 100ms and travel for one second.
func fixedTiming() sequencer.Timing {
	return sequencer.Timing{
		InitialOffset: 100 * time.Millisecond,
		StaggerMin:    100 * time.Millisecond,
		StaggerMax:    100 * time.Millisecond,
		TravelMin:     time.Second,
		TravelMax:     time.Second,
		SettleDelay:   200 * time.Millisecond,
		TickInterval:  100 * time.Millisecond,
	}
}

func diamond(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New("diamond", "Diamond")
	require.NoError(t, g.AddNode(graph.NewNode("in", "In", graph.CategoryInput)))
	require.NoError(t, g.AddNode(graph.NewNode("a", "A", graph.CategoryExtractor)))
	require.NoError(t, g.AddNode(graph.NewNode("b", "B", graph.CategoryExtractor)))
	require.NoError(t, g.AddNode(graph.NewNode("out", "Out", graph.CategoryTerminal)))
	require.NoError(t, g.Connect("in", "a"))
	require.NoError(t, g.Connect("in", "b"))
	require.NoError(t, g.Connect("a", "out"))
	require.NoError(t, g.Connect("b", "out"))
	g.Start = []string{"in"}
	g.Terminal = "out"
	return g
}

func setup(t *testing.T) (*Presenter, *sequencer.Sequencer, *timer.Virtual) {
	t.Helper()
	clock := timer.NewVirtual(epoch)
	seq, err := sequencer.New(diamond(t), clock,
		sequencer.WithTiming(fixedTiming()),
		sequencer.WithSeed(1),
		sequencer.WithResult(map[string]string{"status": "SUCCESS"}),
	)
	require.NoError(t, err)
	engine, err := layout.NewEngine(seq.Graph(), layout.DefaultConfig())
	require.NoError(t, err)
	return NewPresenter(seq, engine), seq, clock
}

func statuses(f *dto.Frame) map[string]dto.NodeStatus {
	out := make(map[string]dto.NodeStatus, len(f.Nodes))
	for _, n := range f.Nodes {
		out[n.ID] = n.Status
	}
	return out
}

func edgeStates(f *dto.Frame) map[string]layout.EdgeState {
	out := make(map[string]layout.EdgeState, len(f.Edges))
	for _, e := range f.Edges {
		out[e.ID] = e.State
	}
	return out
}

func TestPresenter_IdleFrame(t *testing.T) {
	p, _, _ := setup(t)
	f := p.Frame(800, 400)

	assert.Equal(t, "idle", f.Phase)
	assert.Equal(t, "0:00", f.ElapsedText)
	require.Len(t, f.Nodes, 4)
	for _, n := range f.Nodes {
		assert.Equal(t, dto.NodeIdle, n.Status, n.ID)
	}
	for _, e := range f.Edges {
		assert.Equal(t, layout.EdgeInactive, e.State, e.ID)
		assert.Contains(t, e.Path, "M ")
	}
	assert.Equal(t, 2, f.Stats.TerminalFanIn)
	assert.Equal(t, 4, f.Stats.TotalNodes)
}

func TestPresenter_CanvasNotReady(t *testing.T) {
	p, seq, _ := setup(t)
	seq.StartRun()
	f := p.Frame(0, 400)

	assert.Equal(t, "running", f.Phase)
	assert.Empty(t, f.Nodes)
	assert.Empty(t, f.Edges)
	assert.Empty(t, f.Transfers)
	assert.Equal(t, 1, f.Stats.CompletedNodes)
}

func TestPresenter_RunningFrame(t *testing.T) {
	p, seq, clock := setup(t)
	seq.StartRun()
	clock.Advance(600 * time.Millisecond)

	f := p.Frame(800, 400)
	assert.Equal(t, "running", f.Phase)
	assert.Equal(t, 600*time.Millisecond, f.Elapsed)
	assert.Equal(t, map[string]dto.NodeStatus{
		"in":  dto.NodeCompleted,
		"a":   dto.NodeProcessing,
		"b":   dto.NodeProcessing,
		"out": dto.NodeProcessing,
	}, statuses(f))
	assert.Equal(t, layout.EdgeAnimating, edgeStates(f)["in->a"])

	require.Len(t, f.Transfers, 4)
	first := f.Transfers[0]
	assert.Equal(t, "in", first.From)
	assert.InDelta(t, 0.5, first.Progress, 1e-9)
	for _, tr := range f.Transfers {
		assert.GreaterOrEqual(t, tr.Progress, 0.0)
		assert.LessOrEqual(t, tr.Progress, 1.0)
		assert.Greater(t, tr.X, 0.0)
	}

	clock.Advance(550 * time.Millisecond)
	f = p.Frame(800, 400)
	assert.Equal(t, dto.NodeCompleted, statuses(f)["a"])
	assert.Equal(t, layout.EdgeActive, edgeStates(f)["in->a"])
	assert.Equal(t, layout.EdgeAnimating, edgeStates(f)["a->out"])
	assert.Equal(t, layout.EdgeAnimating, edgeStates(f)["in->b"])
	assert.Equal(t, dto.NodeProcessing, statuses(f)["b"])
}

func TestPresenter_FinishedFrame(t *testing.T) {
	p, seq, clock := setup(t)
	seq.StartRun()
	clock.Advance(1400 * time.Millisecond)

	f := p.Frame(800, 400)
	assert.Equal(t, "finished", f.Phase)
	assert.Equal(t, "0:01", f.ElapsedText)
	assert.False(t, f.ResultReady)
	assert.Empty(t, f.Transfers)
	for id, st := range statuses(f) {
		assert.Equal(t, dto.NodeCompleted, st, id)
	}
	for id, st := range edgeStates(f) {
		assert.Equal(t, layout.EdgeActive, st, id)
	}
	assert.Equal(t, 2, f.Stats.TerminalArrivals)
	assert.Equal(t, 4, f.Stats.DocumentsProcessed)

	// elapsed is frozen once finished
	clock.Advance(200 * time.Millisecond)
	f = p.Frame(800, 400)
	assert.True(t, f.ResultReady)
	assert.Equal(t, map[string]string{"status": "SUCCESS"}, f.Result)
	assert.Equal(t, 1400*time.Millisecond, f.Elapsed)
}

// parsePath reads the anchors back out of an SVG cubic path.
func parsePath(t *testing.T, svg string) layout.Path {
	t.Helper()
	var p layout.Path
	_, err := fmt.Sscanf(svg, "M %g %g C %g %g, %g %g, %g %g",
		&p.Start.X, &p.Start.Y, &p.C1.X, &p.C1.Y, &p.C2.X, &p.C2.Y, &p.End.X, &p.End.Y)
	require.NoError(t, err, svg)
	return p
}

func TestPresenter_EdgesJoinCardSides(t *testing.T) {
	p, seq, clock := setup(t)
	seq.StartRun()
	clock.Advance(600 * time.Millisecond)
	f := p.Frame(800, 400)

	cards := make(map[string]dto.NodeView, len(f.Nodes))
	for _, n := range f.Nodes {
		cards[n.ID] = n
	}
	require.Len(t, f.Edges, 4)
	for _, e := range f.Edges {
		from, to := cards[e.From], cards[e.To]
		path := parsePath(t, e.Path)
		assert.InDelta(t, from.X+from.Width, path.Start.X, 0.01, e.ID)
		assert.InDelta(t, from.Y+from.Height/2, path.Start.Y, 0.01, e.ID)
		assert.InDelta(t, to.X, path.End.X, 0.01, e.ID)
		assert.InDelta(t, to.Y+to.Height/2, path.End.Y, 0.01, e.ID)
		assert.Less(t, path.Start.X, path.End.X, e.ID)
	}

	engine := p.memo.Engine()
	require.NotEmpty(t, f.Transfers)
	for _, tr := range f.Transfers {
		from, to := cards[tr.From], cards[tr.To]
		want := engine.CurvePath(
			layout.Point{X: from.X, Y: from.Y},
			layout.Point{X: to.X, Y: to.Y},
		).PointAt(tr.Progress)
		assert.InDelta(t, want.X, tr.X, 1e-9, tr.ID)
		assert.InDelta(t, want.Y, tr.Y, 1e-9, tr.ID)
		assert.GreaterOrEqual(t, tr.X, from.X+from.Width, tr.ID)
		assert.LessOrEqual(t, tr.X, to.X, tr.ID)
	}
}

func TestPresenter_HaltedFrameStandsStill(t *testing.T) {
	p, seq, clock := setup(t)
	seq.StartRun()
	clock.Advance(300 * time.Millisecond)
	seq.Halt()
	before := p.Frame(800, 400)

	clock.Advance(10 * time.Minute)
	f := p.Frame(800, 400)
	assert.Equal(t, "halted", f.Phase)
	assert.Equal(t, 300*time.Millisecond, f.Elapsed)
	assert.Equal(t, "0:00", f.ElapsedText)
	require.NotEmpty(t, f.Transfers)
	assert.Equal(t, before.Transfers, f.Transfers)
}

func TestPresenter_Layout(t *testing.T) {
	p, _, _ := setup(t)
	l := p.Layout(800, 400)
	require.Len(t, l.Nodes, 4)
	assert.Equal(t, 0, l.Nodes[0].Column)
	assert.Equal(t, 2, l.Nodes[3].Column)
	assert.Equal(t, 160.0, l.Nodes[0].Width)
	assert.Len(t, l.Edges, 4)

	assert.Empty(t, p.Layout(800, -1).Nodes)
}

func TestCheckStart(t *testing.T) {
	g := diamond(t)
	assert.NoError(t, CheckStart(g, dto.StartRunRequest{}))
	assert.Error(t, CheckStart(g, dto.StartRunRequest{Pipeline: "Not Valid"}))

	picker := graph.New("picker", "Picker")
	require.NoError(t, picker.AddNode(graph.NewNode("file", "File", graph.CategoryFileInput)))
	require.NoError(t, picker.AddNode(graph.NewNode("out", "Out", graph.CategoryTerminal)))
	require.NoError(t, picker.Connect("file", "out"))
	picker.Start = []string{"file"}
	picker.Terminal = "out"

	assert.ErrorIs(t, CheckStart(picker, dto.StartRunRequest{}), dto.ErrFileNotSelected)
	assert.NoError(t, CheckStart(picker, dto.StartRunRequest{FileSelected: true}))
}

func TestListJournal(t *testing.T) {
	ctx := context.Background()
	saver := memory.NewInMemorySaver(memory.InMemoryConfig{CleanupInterval: -1})
	defer saver.Close()

	require.NoError(t, saver.Save(ctx, &checkpoint.Checkpoint{
		ID: "c1", PipelineID: "diamond", RunID: "r1", Phase: "running",
		State:     map[string]interface{}{},
		Metadata:  checkpoint.Metadata{Step: 1, Source: "run_started"},
		Timestamp: epoch,
	}))
	views, err := ListJournal(ctx, saver, checkpoint.Filter{RunID: "r1"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "run_started", views[0].Source)
	assert.Equal(t, 1, views[0].Step)
}
