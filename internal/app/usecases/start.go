package usecases

import (
	"fmt"

	"github.com/agentflow/agentflow/internal/app/dto"
	"github.com/agentflow/agentflow/internal/core/graph"
	"github.com/agentflow/agentflow/pkg/validation"
)

// CheckStart validates req and applies the file gate: a pipeline that
// starts from a file picker only runs once a file has been selected.
func CheckStart(g *graph.Graph, req dto.StartRunRequest) error {
	if err := validation.ValidateStruct(req); err != nil {
		return err
	}
	if g.RequiresFile() && !req.FileSelected {
		return fmt.Errorf("%w: pipeline %s", dto.ErrFileNotSelected, g.ID)
	}
	return nil
}
