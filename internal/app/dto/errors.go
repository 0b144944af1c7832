package dto

import "errors"

// Presentation errors
var (
	ErrFileNotSelected = errors.New("select a file before starting this pipeline")
	ErrNoRun           = errors.New("no run has been started")
	ErrResultNotReady  = errors.New("result is not ready")
	ErrInvalidCanvas   = errors.New("canvas width and height must be positive")
)
