package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflow/agentflow/internal/adapters/repository/memory"
	"github.com/agentflow/agentflow/internal/core/checkpoint"
	"github.com/agentflow/agentflow/internal/core/graph"
	"github.com/agentflow/agentflow/internal/core/sequencer"
	"github.com/agentflow/agentflow/internal/core/timer"
)

var epoch = time.Date(2025, 10, 12, 9, 0, 0, 0, time.UTC)

func line(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New("line", "Line")
	require.NoError(t, g.AddNode(graph.NewNode("in", "In", graph.CategoryInput)))
	require.NoError(t, g.AddNode(graph.NewNode("a", "A", graph.CategoryExtractor)))
	require.NoError(t, g.AddNode(graph.NewNode("out", "Out", graph.CategoryTerminal)))
	require.NoError(t, g.Connect("in", "a"))
	require.NoError(t, g.Connect("a", "out"))
	g.Start = []string{"in"}
	g.Terminal = "out"
	return g
}

func runRecorded(t *testing.T, saver checkpoint.Saver, opts ...RecorderOption) (*Recorder, *sequencer.Sequencer) {
	t.Helper()
	clock := timer.NewVirtual(epoch)
	var rec *Recorder
	seq, err := sequencer.New(line(t), clock,
		sequencer.WithSeed(7),
		sequencer.WithListener(func(ev sequencer.Event) { rec.Listen(ev) }),
	)
	require.NoError(t, err)
	rec = NewRecorder(saver, "line", seq.Snapshot, opts...)
	seq.StartRun()
	clock.RunUntilIdle(1000)
	return rec, seq
}

func TestRecorder_JournalsRun(t *testing.T) {
	ctx := context.Background()
	saver := memory.NewInMemorySaver(memory.InMemoryConfig{CleanupInterval: -1})
	defer saver.Close()

	rec, seq := runRecorded(t, saver, WithBackend("memory"))
	require.NoError(t, rec.Close())
	runID := seq.Snapshot().RunID

	list, err := saver.List(ctx, checkpoint.Filter{RunID: runID})
	require.NoError(t, err)
	require.Len(t, list, 4, "start, a, out, finish")

	sources := make([]string, len(list))
	for i, cp := range list {
		sources[i] = cp.Metadata.Source
		assert.Equal(t, "line", cp.PipelineID)
		assert.Equal(t, uint64(1), cp.Generation)
	}
	assert.Equal(t, []string{"run_finished", "node_completed", "node_completed", "run_started"}, sources)

	final := list[0]
	assert.Equal(t, 4, final.Metadata.Step)
	assert.Equal(t, "finished", final.Phase)
	assert.True(t, final.HasTags([]string{TagFinal}))
	assert.EqualValues(t, 1, final.State["terminal_arrivals"])
	assert.Len(t, final.State["completed"], 3)

	started := list[3]
	assert.Equal(t, "running", started.Phase)
	assert.Equal(t, 1, started.Metadata.Step)
}

func TestRecorder_CloseIsIdempotent(t *testing.T) {
	saver := memory.NewInMemorySaver(memory.InMemoryConfig{CleanupInterval: -1})
	defer saver.Close()
	rec := NewRecorder(saver, "line", func() *sequencer.RunState { return &sequencer.RunState{} })
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())

	// events after close are ignored
	rec.Listen(sequencer.Event{Type: sequencer.EventRunStarted})
	assert.Equal(t, 0, saver.GetStats().Count)
}

// blockingSaver holds every Save until released.
type blockingSaver struct {
	checkpoint.Saver
	release chan struct{}
	mu      sync.Mutex
	saved   int
}

func (b *blockingSaver) Save(ctx context.Context, _ *checkpoint.Checkpoint) error {
	<-b.release
	b.mu.Lock()
	b.saved++
	b.mu.Unlock()
	return nil
}

func TestRecorder_DropsWhenQueueFull(t *testing.T) {
	saver := &blockingSaver{release: make(chan struct{})}
	st := &sequencer.RunState{Generation: 1, RunID: "r"}
	rec := NewRecorder(saver, "line", func() *sequencer.RunState { return st }, WithQueueSize(1))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			rec.Listen(sequencer.Event{Type: sequencer.EventNodeCompleted, Generation: 1, RunID: "r", At: epoch})
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Listen blocked on a slow saver")
	}

	close(saver.release)
	require.NoError(t, rec.Close())
	assert.LessOrEqual(t, saver.saved, 2, "one in the worker, one queued")
}

func TestRecorder_SkipsSupersededEvents(t *testing.T) {
	saver := memory.NewInMemorySaver(memory.InMemoryConfig{CleanupInterval: -1})
	defer saver.Close()
	st := &sequencer.RunState{Generation: 2, RunID: "new"}
	rec := NewRecorder(saver, "line", func() *sequencer.RunState { return st })

	rec.Listen(sequencer.Event{Type: sequencer.EventRunStarted, Generation: 1, RunID: "old", At: epoch})
	rec.Listen(sequencer.Event{Type: sequencer.EventTick, Generation: 2, RunID: "new", At: epoch})
	require.NoError(t, rec.Close())
	assert.Equal(t, 0, saver.GetStats().Count)
}

func TestStateFromSnapshot(t *testing.T) {
	st := &sequencer.RunState{
		RunID:          "r",
		Generation:     3,
		Phase:          sequencer.PhaseRunning,
		CompletedNodes: map[string]bool{"b": true, "a": true},
		ActiveNodes:    map[string]bool{"c": true},
		Arrivals:       map[string]int{"b": 1},
		Elapsed:        65 * time.Second,
		ProcessedCount: 2,
	}
	state := StateFromSnapshot(st)
	assert.Equal(t, []string{"a", "b"}, state["completed"])
	assert.Equal(t, []string{"c"}, state["active"])
	assert.Equal(t, "1:05", state["elapsed"])
	assert.Equal(t, int64(65000), state["elapsed_ms"])
	assert.Equal(t, "running", state["phase"])
}
