package dto

import (
	"time"

	"github.com/agentflow/agentflow/internal/core/layout"
)

// NodeStatus is the display state of one stage
type NodeStatus string

const (
	NodeIdle       NodeStatus = "idle"
	NodeProcessing NodeStatus = "processing"
	NodeCompleted  NodeStatus = "completed"
)

// Frame is everything a renderer needs to draw one instant of a run
type Frame struct {
	PipelineID  string         `json:"pipeline_id"`
	RunID       string         `json:"run_id,omitempty"`
	Generation  uint64         `json:"generation"`
	Phase       string         `json:"phase"`
	Elapsed     time.Duration  `json:"elapsed"`
	ElapsedText string         `json:"elapsed_text"`
	Width       float64        `json:"width"`
	Height      float64        `json:"height"`
	Nodes       []NodeView     `json:"nodes"`
	Edges       []EdgeView     `json:"edges"`
	Transfers   []TransferView `json:"transfers"`
	Stats       Stats          `json:"stats"`
	ResultReady bool           `json:"result_ready"`
	Result      any            `json:"result,omitempty"`
}

// NodeView is a positioned stage. X and Y are the top-left corner.
type NodeView struct {
	ID       string     `json:"id"`
	Label    string     `json:"label"`
	Category string     `json:"category"`
	Column   int        `json:"column"`
	X        float64    `json:"x"`
	Y        float64    `json:"y"`
	Width    float64    `json:"width"`
	Height   float64    `json:"height"`
	Status   NodeStatus `json:"status"`
}

// EdgeView is a handoff with its drawn path
type EdgeView struct {
	ID    string           `json:"id"`
	From  string           `json:"from"`
	To    string           `json:"to"`
	Path  string           `json:"path"`
	State layout.EdgeState `json:"state"`
}

// TransferView is an in-flight document and its current position
type TransferView struct {
	ID       string  `json:"id"`
	From     string  `json:"from"`
	To       string  `json:"to"`
	Progress float64 `json:"progress"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// Stats are the counters shown beside the canvas
type Stats struct {
	DocumentsProcessed int `json:"documents_processed"`
	CompletedNodes     int `json:"completed_nodes"`
	TotalNodes         int `json:"total_nodes"`
	InFlight           int `json:"in_flight"`
	ActiveColumn       int `json:"active_column"`
	TerminalArrivals   int `json:"terminal_arrivals"`
	TerminalFanIn      int `json:"terminal_fan_in"`
}

// Layout is the static placement of a pipeline on a canvas
type Layout struct {
	PipelineID string     `json:"pipeline_id"`
	Width      float64    `json:"width"`
	Height     float64    `json:"height"`
	Nodes      []NodeView `json:"nodes"`
	Edges      []EdgeView `json:"edges"`
}
