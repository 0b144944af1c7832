package usecases

import (
	"context"

	"github.com/agentflow/agentflow/internal/app/dto"
	"github.com/agentflow/agentflow/internal/core/checkpoint"
)

// ListJournal returns matching journal entries newest first, without state.
func ListJournal(ctx context.Context, saver checkpoint.Saver, filter checkpoint.Filter) ([]dto.CheckpointView, error) {
	list, err := saver.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]dto.CheckpointView, 0, len(list))
	for _, cp := range list {
		out = append(out, dto.CheckpointView{
			ID:         cp.ID,
			PipelineID: cp.PipelineID,
			RunID:      cp.RunID,
			Generation: cp.Generation,
			Phase:      cp.Phase,
			Step:       cp.Metadata.Step,
			Source:     cp.Metadata.Source,
			Node:       cp.Metadata.Node,
			Elapsed:    cp.Metadata.Elapsed,
			Tags:       cp.Metadata.Tags,
			Timestamp:  cp.Timestamp,
		})
	}
	return out, nil
}
