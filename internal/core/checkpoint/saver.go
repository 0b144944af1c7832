package checkpoint

import (
	"context"
	"time"
)

// Saver persists checkpoints. Implementations return List results newest
// first.
type Saver interface {
	// Save persists a checkpoint
	Save(ctx context.Context, checkpoint *Checkpoint) error

	// Load retrieves a checkpoint by ID
	Load(ctx context.Context, id string) (*Checkpoint, error)

	// List returns checkpoints matching the filter
	List(ctx context.Context, filter Filter) ([]*Checkpoint, error)

	// Delete removes a checkpoint by ID
	Delete(ctx context.Context, id string) error
}

// Filter for checkpoint queries
type Filter struct {
	PipelineID string     `json:"pipeline_id,omitempty"`
	RunID      string     `json:"run_id,omitempty"`
	Phase      string     `json:"phase,omitempty"`
	Limit      int        `json:"limit,omitempty"`
	Offset     int        `json:"offset,omitempty"`
	Since      *time.Time `json:"since,omitempty"`
	Before     *time.Time `json:"before,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
}

// Validate ensures filter parameters are valid
func (f *Filter) Validate() error {
	if f.Limit < 0 {
		return ErrInvalidLimit
	}
	if f.Offset < 0 {
		return ErrInvalidOffset
	}
	if f.Since != nil && f.Before != nil && f.Since.After(*f.Before) {
		return ErrInvalidTimeRange
	}
	return nil
}

// Matches applies every field of the filter except paging. Since is
// inclusive and Before exclusive.
func (f *Filter) Matches(c *Checkpoint) bool {
	if f.PipelineID != "" && c.PipelineID != f.PipelineID {
		return false
	}
	if f.RunID != "" && c.RunID != f.RunID {
		return false
	}
	if f.Phase != "" && c.Phase != f.Phase {
		return false
	}
	if f.Since != nil && c.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Before != nil && !c.Timestamp.Before(*f.Before) {
		return false
	}
	return c.HasTags(f.Tags)
}

// Latest returns the newest checkpoint of runID
func Latest(ctx context.Context, s Saver, runID string) (*Checkpoint, error) {
	list, err := s.List(ctx, Filter{RunID: runID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrCheckpointNotFound
	}
	return list[0], nil
}
