package agentflow

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/agentflow/agentflow/internal/app/dto"
	"github.com/agentflow/agentflow/internal/app/services"
	"github.com/agentflow/agentflow/internal/app/usecases"
	"github.com/agentflow/agentflow/internal/core/channel"
	"github.com/agentflow/agentflow/internal/core/checkpoint"
	coregraph "github.com/agentflow/agentflow/internal/core/graph"
	"github.com/agentflow/agentflow/internal/core/layout"
	"github.com/agentflow/agentflow/internal/core/sequencer"
	"github.com/agentflow/agentflow/internal/core/timer"
	"github.com/agentflow/agentflow/pkg/prebuilt"
)

// Re-exported types
type (
	Graph            = coregraph.Graph
	Node             = coregraph.Node
	Edge             = coregraph.Edge
	Event            = sequencer.Event
	RunState         = sequencer.RunState
	Frame            = dto.Frame
	Layout           = dto.Layout
	StartRunRequest  = dto.StartRunRequest
	StartRunResponse = dto.StartRunResponse
	Subscription     = channel.Subscription
)

// ErrPipelineMismatch is returned when a start request names another pipeline
var ErrPipelineMismatch = errors.New("request names a different pipeline")

// Option configures a Runtime
type Option func(*options)

type options struct {
	name      string
	pipeline  *prebuilt.Pipeline
	registry  *prebuilt.Registry
	scheduler timer.Scheduler
	seed      *int64
	logger    *zap.Logger
	saver     checkpoint.Saver
	backend   string
	recorder  []services.RecorderOption
	layout    layout.Config
	hub       channel.HubConfig
	listeners []sequencer.Listener
}

// WithPipelineName animates the named pipeline of the prebuilt registry
func WithPipelineName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithPipeline animates p under name
func WithPipeline(name string, p *prebuilt.Pipeline) Option {
	return func(o *options) {
		o.name = name
		o.pipeline = p
	}
}

// WithRegistry resolves pipeline names against r instead of the default registry
func WithRegistry(r *prebuilt.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithScheduler drives the runtime from s. The caller owns s; without this
// option the runtime starts and owns a real-time loop.
func WithScheduler(s timer.Scheduler) Option {
	return func(o *options) { o.scheduler = s }
}

// WithSeed makes every run deterministic
func WithSeed(seed int64) Option {
	return func(o *options) { o.seed = &seed }
}

// WithLogger sets the structured logger
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithJournal records run checkpoints into saver. backend names it in logs
// and metrics.
func WithJournal(saver checkpoint.Saver, backend string, opts ...services.RecorderOption) Option {
	return func(o *options) {
		o.saver = saver
		o.backend = backend
		o.recorder = opts
	}
}

// WithLayout overrides node sizes and spacing. Pipeline offsets are merged in.
func WithLayout(cfg layout.Config) Option {
	return func(o *options) { o.layout = cfg }
}

// WithHub sizes the event hub
func WithHub(cfg channel.HubConfig) Option {
	return func(o *options) { o.hub = cfg }
}

// WithListener receives every sequencer event on the scheduler goroutine
func WithListener(l sequencer.Listener) Option {
	return func(o *options) {
		if l != nil {
			o.listeners = append(o.listeners, l)
		}
	}
}

// Runtime animates one pipeline
type Runtime struct {
	name      string
	pipeline  *prebuilt.Pipeline
	seq       *sequencer.Sequencer
	presenter *usecases.Presenter
	hub       *channel.Hub
	recorder  *services.Recorder
	saver     checkpoint.Saver
	loop      *timer.Loop
	logger    *zap.Logger
}

// New builds a runtime. It fails if the pipeline does not validate.
func New(opts ...Option) (*Runtime, error) {
	o := options{
		name:     prebuilt.Classic,
		registry: prebuilt.DefaultRegistry,
		logger:   zap.NewNop(),
		layout:   layout.DefaultConfig(),
		backend:  "memory",
	}
	for _, opt := range opts {
		opt(&o)
	}

	p := o.pipeline
	if p == nil {
		var err error
		if p, err = o.registry.Build(o.name); err != nil {
			return nil, err
		}
	}
	if p.Graph == nil {
		return nil, sequencer.ErrNilGraph
	}

	rt := &Runtime{
		name:     o.name,
		pipeline: p,
		hub:      channel.NewHub(o.hub),
		saver:    o.saver,
		logger:   o.logger.With(zap.String("pipeline", o.name)),
	}

	sched := o.scheduler
	if sched == nil {
		rt.loop = timer.NewLoop()
		sched = rt.loop
	}

	seqOpts := []sequencer.Option{
		sequencer.WithTiming(p.Timing),
		sequencer.WithResult(p.Result),
		sequencer.WithLogger(rt.logger),
		sequencer.WithListener(rt.hub.Publish),
	}
	if o.seed != nil {
		seqOpts = append(seqOpts, sequencer.WithSeed(*o.seed))
	}
	var recorder *services.Recorder
	if o.saver != nil {
		seqOpts = append(seqOpts, sequencer.WithListener(func(ev sequencer.Event) {
			recorder.Listen(ev)
		}))
	}
	for _, l := range o.listeners {
		seqOpts = append(seqOpts, sequencer.WithListener(l))
	}

	seq, err := sequencer.New(p.Graph, sched, seqOpts...)
	if err != nil {
		rt.shutdown()
		return nil, err
	}
	rt.seq = seq

	cfg := o.layout
	cfg.Offsets = mergeOffsets(p.Offsets, cfg.Offsets)
	engine, err := layout.NewEngine(seq.Graph(), cfg)
	if err != nil {
		rt.shutdown()
		return nil, err
	}
	rt.presenter = usecases.NewPresenter(seq, engine)

	if o.saver != nil {
		recOpts := append([]services.RecorderOption{
			services.WithBackend(o.backend),
			services.WithRecorderLogger(rt.logger),
		}, o.recorder...)
		recorder = services.NewRecorder(o.saver, p.Graph.ID, seq.Snapshot, recOpts...)
		rt.recorder = recorder
	}
	return rt, nil
}

func mergeOffsets(base, override map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// Name returns the name the pipeline was selected by
func (rt *Runtime) Name() string {
	return rt.name
}

// Graph returns the animated pipeline. Do not mutate it.
func (rt *Runtime) Graph() *Graph {
	return rt.seq.Graph()
}

// RequiresFile reports whether Start needs FileSelected
func (rt *Runtime) RequiresFile() bool {
	return rt.seq.Graph().RequiresFile()
}

// Start supersedes the current run with a new one
func (rt *Runtime) Start(req StartRunRequest) (*StartRunResponse, error) {
	if req.Pipeline != "" && req.Pipeline != rt.name {
		return nil, fmt.Errorf("%w: %q, runtime animates %q", ErrPipelineMismatch, req.Pipeline, rt.name)
	}
	if err := usecases.CheckStart(rt.seq.Graph(), req); err != nil {
		return nil, err
	}
	if req.Seed != nil {
		rt.seq.Reseed(*req.Seed)
	}
	st := rt.seq.StartRun()
	return &StartRunResponse{
		PipelineID: rt.seq.Graph().ID,
		RunID:      st.RunID,
		Generation: st.Generation,
		Phase:      st.Phase.String(),
		Transfers:  len(st.Plan),
	}, nil
}

// Halt cancels the current run without starting another
func (rt *Runtime) Halt() {
	rt.seq.Halt()
}

// Frame renders the current instant on a width x height canvas
func (rt *Runtime) Frame(width, height float64) *Frame {
	return rt.presenter.Frame(width, height)
}

// Layout places the pipeline on a width x height canvas
func (rt *Runtime) Layout(width, height float64) *Layout {
	return rt.presenter.Layout(width, height)
}

// Snapshot returns a copy of the current run state
func (rt *Runtime) Snapshot() *RunState {
	return rt.seq.Snapshot()
}

// Result returns the result document once the run has settled
func (rt *Runtime) Result() (any, bool) {
	return rt.seq.Result()
}

// Subscribe streams sequencer events. Close the subscription when done.
func (rt *Runtime) Subscribe() (*Subscription, error) {
	return rt.hub.Subscribe()
}

// Journal lists recorded checkpoints newest first. A runtime without a
// journal returns an empty list.
func (rt *Runtime) Journal(ctx context.Context, filter checkpoint.Filter) ([]dto.CheckpointView, error) {
	if rt.saver == nil {
		return []dto.CheckpointView{}, nil
	}
	return usecases.ListJournal(ctx, rt.saver, filter)
}

// Close halts the run, stops an owned loop, flushes the journal and ends
// every subscription. The saver itself is left open. On an owned loop the
// halt runs between callbacks, so events already being delivered reach the
// hub and the journal first.
func (rt *Runtime) Close() error {
	if rt.loop == nil || !rt.loop.Do(rt.seq.Halt) {
		rt.seq.Halt()
	}
	return rt.shutdown()
}

func (rt *Runtime) shutdown() error {
	var errs []error
	if rt.loop != nil {
		errs = append(errs, rt.loop.Close())
	}
	if rt.recorder != nil {
		errs = append(errs, rt.recorder.Close())
	}
	errs = append(errs, rt.hub.Close())
	return errors.Join(errs...)
}
