package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentflow/agentflow/internal/core/checkpoint"
	"github.com/agentflow/agentflow/internal/core/sequencer"
	imetrics "github.com/agentflow/agentflow/internal/infrastructure/metrics"
)

// TagFinal marks the checkpoint written when a run finishes
const TagFinal = "final"

// RecorderOption configures a Recorder
type RecorderOption func(*Recorder)

// WithRecorderLogger sets the structured logger
func WithRecorderLogger(l *zap.Logger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithBackend names the journal backend in logs and metrics
func WithBackend(name string) RecorderOption {
	return func(r *Recorder) { r.backend = name }
}

// WithQueueSize bounds how many checkpoints may wait for the saver
func WithQueueSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithSaveTimeout bounds a single Save call
func WithSaveTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// Recorder journals a run: it listens to sequencer events and writes a
// checkpoint when a run starts, when each node completes and when the run
// finishes. Checkpoints are built on the listener goroutine and saved by a
// single background worker, so a slow backend never stalls the sequencer;
// when the queue is full the checkpoint is dropped and counted.
type Recorder struct {
	saver      checkpoint.Saver
	pipelineID string
	snapshot   func() *sequencer.RunState
	logger     *zap.Logger
	backend    string
	queueSize  int
	timeout    time.Duration

	mu     sync.Mutex
	steps  map[string]int
	queue  chan *checkpoint.Checkpoint
	closed bool
	wg     sync.WaitGroup
}

// NewRecorder starts a recorder for pipelineID. snapshot is called once per
// recorded event.
func NewRecorder(saver checkpoint.Saver, pipelineID string, snapshot func() *sequencer.RunState, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		saver:      saver,
		pipelineID: pipelineID,
		snapshot:   snapshot,
		logger:     zap.NewNop(),
		backend:    "memory",
		queueSize:  256,
		timeout:    5 * time.Second,
		steps:      make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.queue = make(chan *checkpoint.Checkpoint, r.queueSize)
	r.wg.Add(1)
	go r.run()
	return r
}

// Listen is a sequencer.Listener
func (r *Recorder) Listen(ev sequencer.Event) {
	switch ev.Type {
	case sequencer.EventRunStarted, sequencer.EventNodeCompleted, sequencer.EventRunFinished:
	default:
		return
	}

	st := r.snapshot()
	if st.Generation != ev.Generation {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.steps[ev.RunID]++
	cp := &checkpoint.Checkpoint{
		ID:         uuid.NewString(),
		PipelineID: r.pipelineID,
		RunID:      ev.RunID,
		Generation: ev.Generation,
		Phase:      st.Phase.String(),
		State:      StateFromSnapshot(st),
		Metadata: checkpoint.Metadata{
			Step:    r.steps[ev.RunID],
			Source:  string(ev.Type),
			Node:    ev.Node,
			Elapsed: ev.Elapsed,
			Tags:    []string{string(ev.Type)},
		},
		Timestamp: ev.At,
		Version:   checkpoint.SchemaVersion,
	}
	if ev.Type == sequencer.EventRunFinished {
		cp.Metadata.Tags = append(cp.Metadata.Tags, TagFinal)
		delete(r.steps, ev.RunID)
	}

	select {
	case r.queue <- cp:
	default:
		imetrics.CheckpointError(r.backend)
		r.logger.Warn("checkpoint dropped, journal queue full",
			zap.String("run_id", cp.RunID),
			zap.String("source", cp.Metadata.Source),
		)
	}
}

// Close stops accepting events and waits until queued checkpoints are saved
func (r *Recorder) Close() error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	r.wg.Wait()
	return nil
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for cp := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		err := r.saver.Save(ctx, cp)
		cancel()
		if err != nil {
			imetrics.CheckpointError(r.backend)
			r.logger.Error("failed to save checkpoint",
				zap.String("backend", r.backend),
				zap.String("run_id", cp.RunID),
				zap.Int("step", cp.Metadata.Step),
				zap.Error(err),
			)
			continue
		}
		imetrics.CheckpointSaved(r.backend)
		r.logger.Debug("checkpoint saved",
			zap.String("backend", r.backend),
			zap.String("run_id", cp.RunID),
			zap.String("source", cp.Metadata.Source),
			zap.Int("step", cp.Metadata.Step),
		)
	}
}

// StateFromSnapshot flattens a run state into the journal's state map
func StateFromSnapshot(st *sequencer.RunState) map[string]interface{} {
	arrivals := make(map[string]interface{}, len(st.Arrivals))
	for id, n := range st.Arrivals {
		arrivals[id] = n
	}
	return map[string]interface{}{
		"run_id":            st.RunID,
		"generation":        st.Generation,
		"phase":             st.Phase.String(),
		"completed":         st.Completed(),
		"active":            st.Active(),
		"in_flight":         len(st.InFlight),
		"arrivals":          arrivals,
		"processed":         st.ProcessedCount,
		"terminal_arrivals": st.TerminalArrivals,
		"active_column":     st.ActiveColumn,
		"elapsed_ms":        st.Elapsed.Milliseconds(),
		"elapsed":           sequencer.FormatElapsed(st.Elapsed),
	}
}
