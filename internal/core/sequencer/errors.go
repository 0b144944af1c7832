package sequencer

import "errors"

var (
	// ErrInvalidTiming is returned for unusable timing bounds
	ErrInvalidTiming = errors.New("invalid timing")
	// ErrNilGraph is returned when no graph is supplied
	ErrNilGraph = errors.New("graph cannot be nil")
	// ErrNilScheduler is returned when no scheduler is supplied
	ErrNilScheduler = errors.New("scheduler cannot be nil")
)
