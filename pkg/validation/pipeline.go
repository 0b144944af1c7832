package validation

import (
	"time"

	"github.com/agentflow/agentflow/internal/core/graph"
	"github.com/agentflow/agentflow/internal/core/sequencer"
)

// NodeConfig describes one pipeline stage in a definition file
type NodeConfig struct {
	ID       string `json:"id" yaml:"id" validate:"required,node_id"`
	Label    string `json:"label" yaml:"label" validate:"required,max=100"`
	Category string `json:"category" yaml:"category" validate:"required,category"`
	// Column pins the node; nil lets the layout derive it from depth.
	Column *int `json:"column,omitempty" yaml:"column,omitempty" validate:"omitempty,min=0,max=64"`
}

// EdgeConfig describes one handoff between stages
type EdgeConfig struct {
	From string `json:"from" yaml:"from" validate:"required,node_id,nefield=To"`
	To   string `json:"to" yaml:"to" validate:"required,node_id"`
}

// TimingConfig overrides the pacing of a pipeline, in milliseconds. A zero
// tick interval keeps the default.
type TimingConfig struct {
	InitialOffsetMs int `json:"initial_offset_ms" yaml:"initial_offset_ms" validate:"min=0"`
	StaggerMinMs    int `json:"stagger_min_ms" yaml:"stagger_min_ms" validate:"min=0"`
	StaggerMaxMs    int `json:"stagger_max_ms" yaml:"stagger_max_ms" validate:"gtefield=StaggerMinMs"`
	TravelMinMs     int `json:"travel_min_ms" yaml:"travel_min_ms" validate:"min=1"`
	TravelMaxMs     int `json:"travel_max_ms" yaml:"travel_max_ms" validate:"gtefield=TravelMinMs"`
	SettleDelayMs   int `json:"settle_delay_ms" yaml:"settle_delay_ms" validate:"min=0"`
	TickIntervalMs  int `json:"tick_interval_ms,omitempty" yaml:"tick_interval_ms,omitempty" validate:"min=0"`
	// Layered moves stages forward in waves, one column at a time.
	Layered    bool `json:"layered,omitempty" yaml:"layered,omitempty"`
	LayerGapMs int  `json:"layer_gap_ms,omitempty" yaml:"layer_gap_ms,omitempty" validate:"min=0"`
}

// Timing converts the config to sequencer pacing
func (tc *TimingConfig) Timing() sequencer.Timing {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	t := sequencer.Timing{
		InitialOffset: ms(tc.InitialOffsetMs),
		StaggerMin:    ms(tc.StaggerMinMs),
		StaggerMax:    ms(tc.StaggerMaxMs),
		TravelMin:     ms(tc.TravelMinMs),
		TravelMax:     ms(tc.TravelMaxMs),
		SettleDelay:   ms(tc.SettleDelayMs),
		TickInterval:  ms(tc.TickIntervalMs),
		Layered:       tc.Layered,
		LayerGap:      ms(tc.LayerGapMs),
	}
	if t.TickInterval == 0 {
		t.TickInterval = sequencer.DefaultTiming().TickInterval
	}
	return t
}

// PipelineConfig is the on-disk definition of a pipeline
type PipelineConfig struct {
	ID          string             `json:"id" yaml:"id" validate:"required,pipeline_name"`
	Name        string             `json:"name" yaml:"name" validate:"required,min=1,max=200"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty" validate:"max=1000"`
	Start       []string           `json:"start" yaml:"start" validate:"required,min=1,dive,node_id"`
	Terminal    string             `json:"terminal" yaml:"terminal" validate:"required,node_id"`
	Nodes       []NodeConfig       `json:"nodes" yaml:"nodes" validate:"required,min=2,dive"`
	Edges       []EdgeConfig       `json:"edges" yaml:"edges" validate:"required,min=1,dive"`
	Timing      *TimingConfig      `json:"timing,omitempty" yaml:"timing,omitempty" validate:"omitempty"`
	Offsets     map[string]float64 `json:"offsets,omitempty" yaml:"offsets,omitempty" validate:"omitempty,dive,keys,node_id,endkeys,gte=-1,lte=1"`
	// Result is the document surfaced once a run has settled.
	Result map[string]interface{} `json:"result,omitempty" yaml:"result,omitempty"`
}

// Validate implements cross-field checks that tags cannot express
func (pc *PipelineConfig) Validate() error {
	var errs ValidationErrors

	nodeIDs := make(map[string]bool, len(pc.Nodes))
	for _, node := range pc.Nodes {
		if nodeIDs[node.ID] {
			errs = append(errs, ValidationError{Field: "nodes", Value: node.ID, Message: "duplicate node ID"})
		}
		nodeIDs[node.ID] = true
	}

	seen := make(map[string]bool, len(pc.Edges))
	for _, edge := range pc.Edges {
		if !nodeIDs[edge.From] {
			errs = append(errs, ValidationError{Field: "edges.from", Value: edge.From, Message: "source node does not exist"})
		}
		if !nodeIDs[edge.To] {
			errs = append(errs, ValidationError{Field: "edges.to", Value: edge.To, Message: "target node does not exist"})
		}
		id := graph.EdgeID(edge.From, edge.To)
		if seen[id] {
			errs = append(errs, ValidationError{Field: "edges", Value: id, Message: "duplicate edge"})
		}
		seen[id] = true
	}

	for _, id := range pc.Start {
		if !nodeIDs[id] {
			errs = append(errs, ValidationError{Field: "start", Value: id, Message: "start node does not exist"})
		}
	}
	if pc.Terminal != "" && !nodeIDs[pc.Terminal] {
		errs = append(errs, ValidationError{Field: "terminal", Value: pc.Terminal, Message: "terminal node does not exist"})
	}
	for id := range pc.Offsets {
		if !nodeIDs[id] {
			errs = append(errs, ValidationError{Field: "offsets", Value: id, Message: "offset for unknown node"})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
