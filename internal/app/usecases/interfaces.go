package usecases

import (
	"context"
	"time"

	"github.com/agentflow/agentflow/internal/core/graph"
	"github.com/agentflow/agentflow/internal/core/sequencer"
	"github.com/agentflow/agentflow/pkg/prebuilt"
)

// PipelineRepository defines storage of named pipelines
// PRINCIPLES:
// - SRP: Only responsible for pipeline persistence
// - DIP: Used for dependency injection
type PipelineRepository interface {
	Save(ctx context.Context, name string, p *prebuilt.Pipeline) error
	Get(ctx context.Context, name string) (*prebuilt.Pipeline, error)
	List(ctx context.Context) ([]string, error)
}

// RunSource is the read side of a sequencer. *sequencer.Sequencer
// satisfies it.
type RunSource interface {
	Graph() *graph.Graph
	Snapshot() *sequencer.RunState
	Result() (any, bool)
	Now() time.Time
}
