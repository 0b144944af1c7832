// Package checkpoint provides the run journal entities and the persistence
// interface the journal backends implement.
package checkpoint

import (
	"time"
)

// SchemaVersion is stamped on every checkpoint written by this build
const SchemaVersion = "1"

// Checkpoint is one journal entry: a snapshot of a run taken when a
// notable event happened.
// PRINCIPLES:
// - KISS: Simple struct with clear fields
// - SRP: Only responsible for checkpoint data structure
type Checkpoint struct {
	ID         string                 `json:"id"`
	PipelineID string                 `json:"pipeline_id"`
	RunID      string                 `json:"run_id"`
	Generation uint64                 `json:"generation"`
	Phase      string                 `json:"phase"`
	State      map[string]interface{} `json:"state"`
	Metadata   Metadata               `json:"metadata"`
	Timestamp  time.Time              `json:"timestamp"`
	Version    string                 `json:"version"`
}

// Metadata describes what caused a checkpoint
type Metadata struct {
	// Step is the sequence number of the checkpoint within its run.
	Step int `json:"step"`
	// Source is the event type that triggered the checkpoint.
	Source string `json:"source"`
	// Node is the stage the event concerned, if any.
	Node    string        `json:"node,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
	Tags    []string      `json:"tags,omitempty"`
}

// Validate ensures checkpoint integrity
func (c *Checkpoint) Validate() error {
	if c.ID == "" {
		return ErrInvalidCheckpointID
	}
	if c.PipelineID == "" {
		return ErrInvalidPipelineID
	}
	if c.RunID == "" {
		return ErrInvalidRunID
	}
	if c.State == nil {
		return ErrNilState
	}
	return nil
}

// HasTags reports whether the checkpoint carries every tag in tags
func (c *Checkpoint) HasTags(tags []string) bool {
	for _, want := range tags {
		found := false
		for _, have := range c.Metadata.Tags {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
