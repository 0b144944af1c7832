// Package checkpoint defines domain-specific errors
package checkpoint

import "errors"

var (
	// Checkpoint validation errors
	ErrInvalidCheckpointID = errors.New("invalid checkpoint ID")
	ErrInvalidPipelineID   = errors.New("invalid pipeline ID")
	ErrInvalidRunID        = errors.New("invalid run ID")
	ErrNilState            = errors.New("checkpoint state cannot be nil")
	ErrCheckpointNotFound  = errors.New("checkpoint not found")

	// Filter validation errors
	ErrInvalidLimit     = errors.New("limit cannot be negative")
	ErrInvalidOffset    = errors.New("offset cannot be negative")
	ErrInvalidTimeRange = errors.New("invalid time range: since is after before")

	// Persistence errors
	ErrSaveFailed   = errors.New("failed to save checkpoint")
	ErrLoadFailed   = errors.New("failed to load checkpoint")
	ErrDeleteFailed = errors.New("failed to delete checkpoint")
)
