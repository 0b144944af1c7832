package sequencer

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflow/agentflow/internal/core/graph"
	"github.com/agentflow/agentflow/internal/core/timer"
)

var epoch = time.Date(2025, 10, 12, 9, 0, 0, 0, time.UTC)

// fanGraph is 1 start -> 5 extractors -> 2 utilities -> 1 analysis -> terminal,
// with the terminal fed by the analysis node and the second utility.
func fanGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New("fan", "Fan pipeline")
	add := func(id string, c graph.Category) {
		require.NoError(t, g.AddNode(graph.NewNode(id, id, c)))
	}
	add("s", graph.CategoryInput)
	for i := 1; i <= 5; i++ {
		add(fmt.Sprintf("e%d", i), graph.CategoryExtractor)
	}
	add("u1", graph.CategoryUtility)
	add("u2", graph.CategoryUtility)
	add("a", graph.CategoryAnalysis)
	add("t", graph.CategoryTerminal)

	for i := 1; i <= 5; i++ {
		require.NoError(t, g.Connect("s", fmt.Sprintf("e%d", i)))
	}
	require.NoError(t, g.Connect("e1", "u1"))
	require.NoError(t, g.Connect("e2", "u1"))
	require.NoError(t, g.Connect("e3", "u2"))
	require.NoError(t, g.Connect("e4", "u2"))
	require.NoError(t, g.Connect("e5", "u2"))
	require.NoError(t, g.Connect("u1", "a"))
	require.NoError(t, g.Connect("a", "t"))
	require.NoError(t, g.Connect("u2", "t"))
	g.Start = []string{"s"}
	g.Terminal = "t"
	return g
}

type recorder struct {
	events []Event
}

func (r *recorder) listen(ev Event) {
	if ev.Type != EventTick {
		r.events = append(r.events, ev)
	}
}

func (r *recorder) ofType(t EventType) []Event {
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func runIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("run-%d", n)
	}
}

func newTestSequencer(t *testing.T, opts ...Option) (*Sequencer, *timer.Virtual, *recorder) {
	t.Helper()
	v := timer.NewVirtual(epoch)
	rec := &recorder{}
	base := []Option{WithSeed(42), WithListener(rec.listen), WithRunIDs(runIDs()), WithResult("done")}
	s, err := New(fanGraph(t), v, append(base, opts...)...)
	require.NoError(t, err)
	return s, v, rec
}

func TestNew_RejectsBrokenPipelines(t *testing.T) {
	v := timer.NewVirtual(epoch)

	_, err := New(nil, v)
	assert.ErrorIs(t, err, ErrNilGraph)

	_, err = New(fanGraph(t), nil)
	assert.ErrorIs(t, err, ErrNilScheduler)

	g := fanGraph(t)
	g.Edges = g.Edges[:len(g.Edges)-2] // terminal loses its inputs
	_, err = New(g, v)
	assert.ErrorIs(t, err, graph.ErrTerminalStarved)

	bad := DefaultTiming()
	bad.TravelMax = bad.TravelMin - time.Millisecond
	_, err = New(fanGraph(t), v, WithTiming(bad))
	assert.ErrorIs(t, err, ErrInvalidTiming)
}

func TestSequencer_StartsIdle(t *testing.T) {
	s, _, _ := newTestSequencer(t)
	snap := s.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.False(t, snap.HasStarted())
	assert.Empty(t, snap.CompletedNodes)
	_, ok := s.Result()
	assert.False(t, ok)
}

func TestSequencer_StartRunResetsToStartSet(t *testing.T) {
	s, v, _ := newTestSequencer(t)

	st := s.StartRun()
	assert.Equal(t, PhaseRunning, st.Phase)
	assert.Equal(t, uint64(1), st.Generation)
	assert.Equal(t, "run-1", st.RunID)
	assert.Equal(t, []string{"s"}, st.Completed())
	assert.Empty(t, st.ActiveNodes)
	assert.Empty(t, st.InFlight)
	assert.Equal(t, epoch, st.StartedAt)
	assert.Len(t, st.Plan, 13)

	// Let the run progress, then restart from the middle of it.
	v.Advance(4 * time.Second)
	require.NotEqual(t, []string{"s"}, s.Snapshot().Completed())

	st = s.StartRun()
	assert.Equal(t, PhaseRunning, st.Phase)
	assert.Equal(t, []string{"s"}, st.Completed())
	assert.Zero(t, st.TerminalArrivals)
	assert.Equal(t, epoch.Add(4*time.Second), st.StartedAt)
}

func TestSequencer_ArriveFollowsDepart(t *testing.T) {
	s, v, rec := newTestSequencer(t)
	st := s.StartRun()
	v.RunUntilIdle(0)

	departed := make(map[string]time.Time)
	for _, ev := range rec.ofType(EventTransferDeparted) {
		departed[ev.Transfer.ID] = ev.At
	}
	arrived := make(map[string]time.Time)
	for _, ev := range rec.ofType(EventTransferArrived) {
		arrived[ev.Transfer.ID] = ev.At
	}
	require.Len(t, departed, len(st.Plan))
	require.Len(t, arrived, len(st.Plan))

	for _, tr := range st.Plan {
		d, a := departed[tr.ID], arrived[tr.ID]
		assert.Equal(t, st.StartedAt.Add(tr.StartOffset), d, tr.ID)
		assert.True(t, a.After(d), "%s arrived before it departed", tr.ID)
		assert.True(t, a.After(st.StartedAt.Add(tr.StartOffset)), tr.ID)
	}
}

func TestSequencer_FinishesOnceAfterAllTerminalArrivals(t *testing.T) {
	s, v, rec := newTestSequencer(t)
	st := s.StartRun()

	var lastTerminal time.Duration
	for _, tr := range st.Plan {
		if tr.To == "t" && tr.ArrivalOffset() > lastTerminal {
			lastTerminal = tr.ArrivalOffset()
		}
	}

	v.AdvanceTo(st.StartedAt.Add(lastTerminal - time.Millisecond))
	snap := s.Snapshot()
	assert.Equal(t, PhaseRunning, snap.Phase)
	assert.Less(t, snap.TerminalArrivals, 2)
	assert.False(t, snap.IsCompleted("t"))
	assert.Empty(t, rec.ofType(EventRunFinished))

	v.AdvanceTo(st.StartedAt.Add(lastTerminal))
	snap = s.Snapshot()
	assert.Equal(t, PhaseFinished, snap.Phase)
	assert.Equal(t, 2, snap.TerminalArrivals)
	assert.Equal(t, lastTerminal, snap.Elapsed)

	v.RunUntilIdle(0)
	assert.Len(t, rec.ofType(EventRunFinished), 1)
	assert.Equal(t, 2, s.Snapshot().TerminalArrivals)
}

func TestSequencer_EndToEnd(t *testing.T) {
	s, v, rec := newTestSequencer(t)
	s.StartRun()
	v.RunUntilIdle(0)

	snap := s.Snapshot()
	assert.Equal(t, PhaseFinished, snap.Phase)
	assert.Len(t, snap.CompletedNodes, 10)
	for _, n := range s.Graph().Nodes {
		assert.True(t, snap.IsCompleted(n.ID), n.ID)
	}
	assert.Equal(t, 2, snap.TerminalArrivals)
	assert.Empty(t, snap.InFlight)
	assert.Empty(t, snap.ActiveNodes)
	assert.True(t, snap.ResultReady)
	// 5 extractor arrivals + terminal arrivals; utility and analysis nodes do not count
	assert.Equal(t, 7, snap.ProcessedCount)

	result, ok := s.Result()
	require.True(t, ok)
	assert.Equal(t, "done", result)

	ready := rec.ofType(EventResultReady)
	require.Len(t, ready, 1)
	finished := rec.ofType(EventRunFinished)[0]
	assert.Equal(t, s.Timing().SettleDelay, ready[0].At.Sub(finished.At))
	assert.Equal(t, "done", ready[0].Result)
}

func TestSequencer_LayeredCompletesColumnByColumn(t *testing.T) {
	layered := Timing{
		InitialOffset: time.Second,
		TravelMin:     2500 * time.Millisecond,
		TravelMax:     2500 * time.Millisecond,
		LayerGap:      1200 * time.Millisecond,
		SettleDelay:   time.Second,
		TickInterval:  100 * time.Millisecond,
		Layered:       true,
	}
	s, v, rec := newTestSequencer(t, WithTiming(layered))
	st := s.StartRun()
	v.RunUntilIdle(0)
	require.Equal(t, PhaseFinished, s.Snapshot().Phase)

	columns := make(map[string]int)
	for _, n := range s.Graph().Nodes {
		columns[n.ID] = n.Column
	}
	completedAt := make(map[int][]time.Duration)
	for _, ev := range rec.ofType(EventNodeCompleted) {
		c := columns[ev.Node]
		completedAt[c] = append(completedAt[c], ev.At.Sub(st.StartedAt))
	}
	// s -> e* -> u* -> a -> t, one 3.7s wave per column
	for c := 1; c <= 4; c++ {
		want := time.Second + time.Duration(c-1)*3700*time.Millisecond + 2500*time.Millisecond
		require.NotEmpty(t, completedAt[c], "column %d", c)
		for _, at := range completedAt[c] {
			assert.Equal(t, want, at, "column %d", c)
		}
	}
	assert.Len(t, completedAt[1], 5)
}

func TestSequencer_NodeCompletesAfterAllInputs(t *testing.T) {
	s, v, rec := newTestSequencer(t)
	s.StartRun()
	v.RunUntilIdle(0)

	var u2Arrivals []time.Time
	for _, ev := range rec.ofType(EventTransferArrived) {
		if ev.Node == "u2" {
			u2Arrivals = append(u2Arrivals, ev.At)
		}
	}
	require.Len(t, u2Arrivals, 3)
	sort.Slice(u2Arrivals, func(i, j int) bool { return u2Arrivals[i].Before(u2Arrivals[j]) })

	var completions []Event
	for _, ev := range rec.ofType(EventNodeCompleted) {
		if ev.Node == "u2" {
			completions = append(completions, ev)
		}
	}
	require.Len(t, completions, 1, "a node completes exactly once")
	assert.Equal(t, u2Arrivals[2], completions[0].At)
}

func TestSequencer_CompletedNodesOnlyGrow(t *testing.T) {
	s, v, _ := newTestSequencer(t)
	s.StartRun()

	prev := map[string]bool{}
	for v.Pending() > 0 {
		v.RunUntilIdle(1)
		cur := s.Snapshot().CompletedNodes
		for id := range prev {
			assert.True(t, cur[id], "%s left the completed set", id)
		}
		prev = cur
	}
}

// leakyScheduler ignores cancellation so superseded callbacks still fire.
type leakyScheduler struct {
	*timer.Virtual
}

type noCancel struct{}

func (noCancel) Cancel() bool { return false }

func (l leakyScheduler) After(d time.Duration, fn func()) timer.Handle {
	l.Virtual.After(d, fn)
	return noCancel{}
}

func TestSequencer_RestartIgnoresStaleCallbacks(t *testing.T) {
	v := timer.NewVirtual(epoch)
	rec := &recorder{}
	s, err := New(fanGraph(t), leakyScheduler{v}, WithSeed(7), WithListener(rec.listen), WithRunIDs(runIDs()))
	require.NoError(t, err)

	a := s.StartRun()
	v.Advance(2500 * time.Millisecond)
	b := s.StartRun()
	require.Equal(t, uint64(2), b.Generation)

	// Run A's callbacks keep firing in the first 400ms of run B, before any of
	// B's own transfers depart.
	v.Advance(400 * time.Millisecond)
	snap := s.Snapshot()
	assert.Equal(t, []string{"s"}, snap.Completed())
	assert.Empty(t, snap.InFlight)
	assert.Empty(t, snap.ActiveNodes)
	assert.Positive(t, s.StaleCallbacks())

	// Drain both schedules completely; every event after the restart belongs to B.
	v.RunUntilIdle(0)
	rec.events = filterAfter(rec.events, b.StartedAt)
	for _, ev := range rec.events {
		assert.Equal(t, b.Generation, ev.Generation, "%s from stale run", ev.Type)
		assert.Equal(t, "run-2", ev.RunID)
	}
	assert.Len(t, rec.ofType(EventRunFinished), 1)
	assert.Len(t, rec.ofType(EventTransferArrived), len(b.Plan))

	final := s.Snapshot()
	assert.Equal(t, PhaseFinished, final.Phase)
	assert.Equal(t, 2, final.TerminalArrivals)
	assert.NotEqual(t, a.Plan, b.Plan)
}

func filterAfter(events []Event, t time.Time) []Event {
	var out []Event
	for _, ev := range events {
		if !ev.At.Before(t) {
			out = append(out, ev)
		}
	}
	return out
}

func TestSequencer_RestartCancelsPendingHandles(t *testing.T) {
	s, v, _ := newTestSequencer(t)
	s.StartRun()
	pendingOne := v.Pending()

	s.StartRun()
	assert.Equal(t, pendingOne, v.Pending(), "first run's callbacks were cancelled")
	assert.Zero(t, s.StaleCallbacks())
}

func TestSequencer_Ticker(t *testing.T) {
	var ticks []Event
	s, v, _ := newTestSequencer(t, WithListener(func(ev Event) {
		if ev.Type == EventTick {
			ticks = append(ticks, ev)
		}
	}))
	s.StartRun()

	v.Advance(1050 * time.Millisecond)
	require.Len(t, ticks, 10)
	assert.Equal(t, time.Second, s.Snapshot().Elapsed)
	for i, ev := range ticks {
		assert.Equal(t, time.Duration(i+1)*100*time.Millisecond, ev.Elapsed)
	}

	v.RunUntilIdle(0)
	snap := s.Snapshot()
	require.Equal(t, PhaseFinished, snap.Phase)
	last := ticks[len(ticks)-1]
	assert.False(t, last.At.After(snap.FinishedAt), "no tick after the run finished")
	assert.Equal(t, snap.FinishedAt.Sub(snap.StartedAt), snap.Elapsed)
}

func TestSequencer_Halt(t *testing.T) {
	s, v, rec := newTestSequencer(t)
	s.StartRun()
	v.Advance(time.Second)
	before := len(rec.events)

	s.Halt()
	v.RunUntilIdle(0)
	assert.Len(t, rec.events, before)
	assert.Equal(t, 0, v.Pending())

	st := s.Snapshot()
	assert.Equal(t, PhaseHalted, st.Phase)
	assert.Equal(t, time.Second, st.Elapsed)

	v.Advance(10 * time.Minute)
	assert.Equal(t, time.Second, s.Snapshot().Elapsed)
}

func TestSequencer_HaltLeavesIdleAndFinishedRuns(t *testing.T) {
	s, v, _ := newTestSequencer(t)
	s.Halt()
	assert.Equal(t, PhaseIdle, s.Snapshot().Phase)

	s.StartRun()
	v.RunUntilIdle(0)
	finished := s.Snapshot()
	require.Equal(t, PhaseFinished, finished.Phase)

	s.Halt()
	st := s.Snapshot()
	assert.Equal(t, PhaseFinished, st.Phase)
	assert.Equal(t, finished.Elapsed, st.Elapsed)
}

func TestSequencer_ActiveColumnFollowsDepartures(t *testing.T) {
	s, v, rec := newTestSequencer(t)
	st := s.StartRun()
	assert.Equal(t, 0, st.ActiveColumn)

	v.AdvanceTo(st.StartedAt.Add(st.Plan[0].StartOffset))
	assert.Equal(t, 1, s.Snapshot().ActiveColumn)
	assert.True(t, s.Snapshot().IsActive("e1"))
	require.NotEmpty(t, rec.ofType(EventTransferDeparted))
}

func TestSequencer_DeterministicForSeed(t *testing.T) {
	a, _, _ := newTestSequencer(t)
	b, _, _ := newTestSequencer(t)
	assert.Equal(t, a.StartRun().Plan, b.StartRun().Plan)
}

func TestSequencer_Reseed(t *testing.T) {
	a, _, _ := newTestSequencer(t)
	b, _, _ := newTestSequencer(t, WithSeed(7))
	b.Reseed(42)
	assert.Equal(t, a.StartRun().Plan, b.StartRun().Plan)

	first := a.Snapshot().Plan
	a.Reseed(42)
	assert.Equal(t, first, a.StartRun().Plan, "same seed replays the same plan")
}

func TestSequencer_NowFollowsScheduler(t *testing.T) {
	s, v, _ := newTestSequencer(t)
	assert.Equal(t, epoch, s.Now())
	v.Advance(time.Second)
	assert.Equal(t, epoch.Add(time.Second), s.Now())
}
