package sequencer

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentflow/agentflow/internal/core/graph"
	"github.com/agentflow/agentflow/internal/core/timer"
	imetrics "github.com/agentflow/agentflow/internal/infrastructure/metrics"
)

// Option configures a Sequencer
type Option func(*Sequencer)

// WithTiming overrides the default pacing
func WithTiming(t Timing) Option {
	return func(s *Sequencer) { s.timing = t }
}

// WithRandom injects the randomness source
func WithRandom(r Random) Option {
	return func(s *Sequencer) { s.rng = r }
}

// WithSeed uses a deterministic source seeded with seed
func WithSeed(seed int64) Option {
	return func(s *Sequencer) { s.rng = NewRandom(seed) }
}

// WithResult sets the payload surfaced once a run has settled
func WithResult(result any) Option {
	return func(s *Sequencer) { s.result = result }
}

// WithLogger sets the structured logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Sequencer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithListener registers a listener for run events
func WithListener(l Listener) Option {
	return func(s *Sequencer) {
		if l != nil {
			s.listeners = append(s.listeners, l)
		}
	}
}

// WithRunIDs overrides how run identifiers are generated
func WithRunIDs(next func() string) Option {
	return func(s *Sequencer) {
		if next != nil {
			s.newRunID = next
		}
	}
}

// Sequencer schedules the depart and arrive callbacks of a run on a
// timer.Scheduler and owns the resulting RunState.
//
// Every run gets a new generation. Callbacks capture the generation they
// were scheduled for and become no-ops once a newer run has started, so a
// superseded run can never mutate the current one even if one of its
// handles escaped cancellation.
type Sequencer struct {
	mu sync.Mutex

	graph     *graph.Graph
	timing    Timing
	sched     timer.Scheduler
	rng       Random
	result    any
	logger    *zap.Logger
	listeners []Listener
	newRunID  func() string

	fanIn         map[string]int
	terminalFanIn int
	columns       map[string]int
	categories    map[string]graph.Category

	generation uint64
	state      *RunState
	handles    []timer.Handle
	ticker     timer.Handle
	stale      int
}

// New validates the pipeline topology and returns an idle sequencer.
func New(g *graph.Graph, sched timer.Scheduler, opts ...Option) (*Sequencer, error) {
	if g == nil {
		return nil, ErrNilGraph
	}
	if sched == nil {
		return nil, ErrNilScheduler
	}
	g = g.Clone()
	if err := g.ValidateTopology(); err != nil {
		return nil, fmt.Errorf("invalid pipeline %q: %w", g.Name, err)
	}
	if err := g.AssignColumns(); err != nil {
		return nil, err
	}

	s := &Sequencer{
		graph:      g,
		timing:     DefaultTiming(),
		sched:      sched,
		logger:     zap.NewNop(),
		newRunID:   uuid.NewString,
		fanIn:      g.IncomingCounts(),
		columns:    make(map[string]int, len(g.Nodes)),
		categories: make(map[string]graph.Category, len(g.Nodes)),
		state:      newRunState(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = NewRandom(time.Now().UnixNano())
	}
	if err := s.timing.Validate(); err != nil {
		return nil, err
	}
	s.terminalFanIn = s.fanIn[g.Terminal]
	for _, n := range g.Nodes {
		s.columns[n.ID] = n.Column
		s.categories[n.ID] = n.Category
	}
	return s, nil
}

// Graph returns the pipeline the sequencer animates. Do not mutate it.
func (s *Sequencer) Graph() *graph.Graph {
	return s.graph
}

// Timing returns the pacing bounds
func (s *Sequencer) Timing() Timing {
	return s.timing
}

// Now returns the scheduler's current time
func (s *Sequencer) Now() time.Time {
	return s.sched.Now()
}

// Reseed replaces the random source with a deterministic one seeded with
// seed. It affects runs started afterwards.
func (s *Sequencer) Reseed(seed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng = NewRandom(seed)
}

// Generation returns the generation of the current run (0 before any run)
func (s *Sequencer) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Phase returns the phase of the current run
func (s *Sequencer) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Phase
}

// Snapshot returns a copy of the current run state
func (s *Sequencer) Snapshot() *RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Result returns the result payload once the current run has settled
func (s *Sequencer) Result() (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.ResultReady {
		return nil, false
	}
	return s.result, true
}

// StaleCallbacks returns how many callbacks of superseded runs were dropped
func (s *Sequencer) StaleCallbacks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

// StartRun supersedes any previous run and schedules a fresh one. It may be
// called from any phase. It returns the new run's state.
func (s *Sequencer) StartRun() *RunState {
	s.mu.Lock()
	s.cancelLocked()
	s.generation++
	gen := s.generation

	now := s.sched.Now()
	st := newRunState()
	st.Generation = gen
	st.RunID = s.newRunID()
	st.Phase = PhaseRunning
	st.StartedAt = now
	for _, id := range s.graph.Start {
		st.CompletedNodes[id] = true
		st.ActiveColumn = s.columns[id]
	}
	if s.timing.Layered {
		st.Plan = s.timing.PlanLayers(s.graph.Edges, s.columns, s.rng)
	} else {
		st.Plan = s.timing.Plan(s.graph.Edges, s.rng)
	}
	s.state = st

	for _, tr := range st.Plan {
		tr := tr
		s.handles = append(s.handles,
			s.sched.After(tr.StartOffset, s.guard(gen, func() []Event { return s.depart(tr) })),
			s.sched.After(tr.ArrivalOffset(), s.guard(gen, func() []Event { return s.arrive(tr) })),
		)
	}
	s.scheduleTickLocked(gen)

	snapshot := st.Clone()
	ev := Event{Type: EventRunStarted, Generation: gen, RunID: st.RunID, At: now}
	s.mu.Unlock()

	imetrics.IncRunsStarted()
	imetrics.SetInFlight(0)
	s.logger.Info("run started",
		zap.String("run_id", snapshot.RunID),
		zap.Uint64("generation", gen),
		zap.Int("transfers", len(snapshot.Plan)),
	)
	s.emit(ev)
	return snapshot
}

// Halt cancels every pending callback and revokes the current run without
// starting a new one. A running run moves to PhaseHalted with its elapsed
// time frozen; the last state stays readable through Snapshot.
func (s *Sequencer) Halt() {
	s.mu.Lock()
	s.cancelLocked()
	s.generation++
	st := s.state
	halted := st.Phase == PhaseRunning
	if halted {
		st.Phase = PhaseHalted
		st.Elapsed = s.sched.Now().Sub(st.StartedAt)
	}
	runID, elapsed := st.RunID, st.Elapsed
	s.mu.Unlock()

	if halted {
		s.logger.Info("run halted", zap.String("run_id", runID), zap.Duration("elapsed", elapsed))
	}
}

// cancelLocked cancels all pending handles of the current run.
func (s *Sequencer) cancelLocked() {
	for _, h := range s.handles {
		h.Cancel()
	}
	s.handles = s.handles[:0]
	if s.ticker != nil {
		s.ticker.Cancel()
		s.ticker = nil
	}
}

// guard wraps a state mutation so it only applies to run gen. Events
// produced by the mutation are emitted after the lock is released.
func (s *Sequencer) guard(gen uint64, mutate func() []Event) func() {
	return func() {
		s.mu.Lock()
		if gen != s.generation {
			s.stale++
			s.mu.Unlock()
			imetrics.IncStaleCallbacks()
			return
		}
		events := mutate()
		s.mu.Unlock()
		for _, ev := range events {
			s.emit(ev)
		}
	}
}

func (s *Sequencer) event(t EventType) Event {
	now := s.sched.Now()
	return Event{
		Type:       t,
		Generation: s.state.Generation,
		RunID:      s.state.RunID,
		At:         now,
		Elapsed:    now.Sub(s.state.StartedAt),
	}
}

// depart puts a transfer in flight and marks its destination as processing.
func (s *Sequencer) depart(tr ScheduledTransfer) []Event {
	st := s.state
	st.InFlight[tr.ID] = tr
	st.ActiveNodes[tr.To] = true
	st.ActiveColumn = s.columns[tr.To]
	imetrics.IncTransfersDeparted()
	imetrics.SetInFlight(len(st.InFlight))

	ev := s.event(EventTransferDeparted)
	ev.Node = tr.To
	ev.Transfer = &tr
	return []Event{ev}
}

// arrive lands a transfer. A node completes once every incoming edge has
// delivered; the terminal's last delivery finishes the run. Transfers of the
// current run still land after it finished.
func (s *Sequencer) arrive(tr ScheduledTransfer) []Event {
	st := s.state
	delete(st.InFlight, tr.ID)
	st.Arrivals[tr.To]++
	if !s.targetedLocked(tr.To) {
		delete(st.ActiveNodes, tr.To)
	}
	if s.categories[tr.To].CountsAsDocument() {
		st.ProcessedCount++
	}
	imetrics.IncTransfersArrived()
	imetrics.SetInFlight(len(st.InFlight))

	arrived := s.event(EventTransferArrived)
	arrived.Node = tr.To
	arrived.Transfer = &tr
	events := []Event{arrived}

	if !st.CompletedNodes[tr.To] && st.Arrivals[tr.To] >= s.fanIn[tr.To] {
		st.CompletedNodes[tr.To] = true
		done := s.event(EventNodeCompleted)
		done.Node = tr.To
		events = append(events, done)
		s.logger.Debug("node completed", zap.String("node", tr.To), zap.Duration("elapsed", done.Elapsed))
	}

	if tr.To == s.graph.Terminal {
		st.TerminalArrivals++
		if st.Phase == PhaseRunning && st.TerminalArrivals == s.terminalFanIn {
			events = append(events, s.finishLocked())
		}
	}
	return events
}

// targetedLocked reports whether any in-flight transfer still heads to id.
func (s *Sequencer) targetedLocked(id string) bool {
	for _, tr := range s.state.InFlight {
		if tr.To == id {
			return true
		}
	}
	return false
}

// finishLocked moves the run to Finished, stops the ticker and schedules the
// result payload after the settle delay.
func (s *Sequencer) finishLocked() Event {
	st := s.state
	now := s.sched.Now()
	st.Phase = PhaseFinished
	st.FinishedAt = now
	st.Elapsed = now.Sub(st.StartedAt)
	st.ActiveNodes = make(map[string]bool)
	if s.ticker != nil {
		s.ticker.Cancel()
		s.ticker = nil
	}

	gen := st.Generation
	s.handles = append(s.handles, s.sched.After(s.timing.SettleDelay, s.guard(gen, func() []Event {
		s.state.ResultReady = true
		ev := s.event(EventResultReady)
		ev.Elapsed = s.state.Elapsed
		ev.Result = s.result
		return []Event{ev}
	})))

	imetrics.IncRunsFinished()
	s.logger.Info("run finished",
		zap.String("run_id", st.RunID),
		zap.Uint64("generation", gen),
		zap.Duration("elapsed", st.Elapsed),
		zap.Int("completed_nodes", len(st.CompletedNodes)),
	)
	ev := s.event(EventRunFinished)
	ev.Node = s.graph.Terminal
	return ev
}

// scheduleTickLocked arms the elapsed-time ticker for run gen.
func (s *Sequencer) scheduleTickLocked(gen uint64) {
	s.ticker = s.sched.After(s.timing.TickInterval, s.guard(gen, func() []Event {
		st := s.state
		if st.Phase != PhaseRunning {
			return nil
		}
		st.Elapsed = s.sched.Now().Sub(st.StartedAt)
		s.scheduleTickLocked(gen)
		return []Event{s.event(EventTick)}
	}))
}

func (s *Sequencer) emit(ev Event) {
	for _, l := range s.listeners {
		l(ev)
	}
}
