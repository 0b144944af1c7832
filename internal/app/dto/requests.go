package dto

import "time"

// StartRunRequest asks for a new run. An empty Pipeline keeps the
// runtime's current pipeline.
type StartRunRequest struct {
	Pipeline     string `json:"pipeline,omitempty" validate:"omitempty,pipeline_name"`
	FileSelected bool   `json:"file_selected"`
	Seed         *int64 `json:"seed,omitempty"`
}

// StartRunResponse describes the run that was started
type StartRunResponse struct {
	PipelineID string `json:"pipeline_id"`
	RunID      string `json:"run_id"`
	Generation uint64 `json:"generation"`
	Phase      string `json:"phase"`
	Transfers  int    `json:"transfers"`
}

// CanvasQuery sizes a frame or layout request
type CanvasQuery struct {
	Width  float64 `json:"width" validate:"gt=0,lte=10000"`
	Height float64 `json:"height" validate:"gt=0,lte=10000"`
}

// CheckpointView is one journal entry without its state payload
type CheckpointView struct {
	ID         string        `json:"id"`
	PipelineID string        `json:"pipeline_id"`
	RunID      string        `json:"run_id"`
	Generation uint64        `json:"generation"`
	Phase      string        `json:"phase"`
	Step       int           `json:"step"`
	Source     string        `json:"source"`
	Node       string        `json:"node,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
	Tags       []string      `json:"tags,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// ErrorResponse is the JSON body of a failed API call
type ErrorResponse struct {
	Error string `json:"error"`
}
