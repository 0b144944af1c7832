package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agentflow/agentflow/internal/core/graph"
	"github.com/agentflow/agentflow/internal/core/sequencer"
	"github.com/agentflow/agentflow/pkg/prebuilt"
)

// ErrUnsupportedFormat is returned for definition files that are neither
// YAML nor JSON.
var ErrUnsupportedFormat = errors.New("unsupported pipeline file format")

// Format of a pipeline definition
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf picks the format from a file extension
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// LoadPipelineFile reads and validates a pipeline definition
func LoadPipelineFile(path string) (*PipelineConfig, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline file: %w", err)
	}
	cfg, err := ParsePipeline(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParsePipeline decodes and validates a pipeline definition. Unknown fields
// are rejected.
func ParsePipeline(data []byte, format Format) (*PipelineConfig, error) {
	var cfg PipelineConfig
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err := ValidateStruct(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Build turns the definition into a topology-checked graph and its pacing.
func (pc *PipelineConfig) Build() (*graph.Graph, sequencer.Timing, error) {
	g := graph.New(pc.ID, pc.Name)
	for _, nc := range pc.Nodes {
		n := graph.NewNode(nc.ID, nc.Label, graph.Category(nc.Category))
		if nc.Column != nil {
			n.InColumn(*nc.Column)
		}
		if err := g.AddNode(n); err != nil {
			return nil, sequencer.Timing{}, fmt.Errorf("node %q: %w", nc.ID, err)
		}
	}
	for _, ec := range pc.Edges {
		if err := g.Connect(ec.From, ec.To); err != nil {
			return nil, sequencer.Timing{}, fmt.Errorf("edge %s: %w", graph.EdgeID(ec.From, ec.To), err)
		}
	}
	g.Start = append([]string(nil), pc.Start...)
	g.Terminal = pc.Terminal

	if err := ValidateCoreGraph(g, GraphValidationOptions{CheckCycles: true, CheckTopology: true}); err != nil {
		return nil, sequencer.Timing{}, err
	}

	timing := sequencer.DefaultTiming()
	if pc.Timing != nil {
		timing = pc.Timing.Timing()
	}
	if err := timing.Validate(); err != nil {
		return nil, sequencer.Timing{}, err
	}
	return g, timing, nil
}

// Pipeline builds the definition into a runnable prebuilt pipeline
func (pc *PipelineConfig) Pipeline() (*prebuilt.Pipeline, error) {
	g, timing, err := pc.Build()
	if err != nil {
		return nil, err
	}
	p := &prebuilt.Pipeline{Graph: g, Timing: timing, Offsets: pc.Offsets}
	if pc.Result != nil {
		p.Result = pc.Result
	}
	return p, nil
}
