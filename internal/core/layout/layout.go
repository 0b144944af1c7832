// Package layout positions pipeline nodes on a canvas and computes the
// curves drawn between them.
package layout

import (
	"sync"

	"github.com/agentflow/agentflow/internal/core/graph"
)

// Point is a canvas coordinate; for nodes it is the top-left corner of the
// node's box.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Config sizes node boxes and spacing.
type Config struct {
	NodeWidth  float64 `json:"node_width" yaml:"node_width"`
	NodeHeight float64 `json:"node_height" yaml:"node_height"`
	// Margin is the horizontal gap kept on the left and right of the canvas.
	Margin float64 `json:"margin" yaml:"margin"`
	// MinSpacing is the smallest vertical gap between boxes in a column.
	MinSpacing float64 `json:"min_spacing" yaml:"min_spacing"`
	// Offsets nudges nodes vertically by a fraction of their column's row
	// height.
	Offsets map[string]float64 `json:"offsets,omitempty" yaml:"offsets,omitempty"`
}

// DefaultConfig matches the 160x80 cards of the web pages.
func DefaultConfig() Config {
	return Config{NodeWidth: 160, NodeHeight: 80, Margin: 50, MinSpacing: 16}
}

// Engine computes node positions for one pipeline.
type Engine struct {
	cfg     Config
	columns [][]string
}

// NewEngine builds a layout engine for g. Nodes whose column is ColumnAuto
// are placed by graph depth.
func NewEngine(g *graph.Graph, cfg Config) (*Engine, error) {
	g = g.Clone()
	if err := g.AssignColumns(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, columns: g.Columns()}, nil
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// Columns returns node IDs grouped by column
func (e *Engine) Columns() [][]string {
	return e.columns
}

// ComputePositions places every node on a width x height canvas. It is pure;
// a zero or negative dimension yields an empty mapping, meaning the canvas
// is not ready to render.
//
// Columns are spread evenly across the canvas. Within a column nodes sit on
// rows of height/(n+1); if that is tighter than a box plus MinSpacing the
// column is packed at minimum pitch around the vertical centre instead.
func (e *Engine) ComputePositions(width, height float64) map[string]Point {
	positions := make(map[string]Point)
	if width <= 0 || height <= 0 {
		return positions
	}

	ncol := len(e.columns)
	xs := make([]float64, ncol)
	if ncol == 1 {
		xs[0] = (width - e.cfg.NodeWidth) / 2
	} else {
		usable := width - 2*e.cfg.Margin - e.cfg.NodeWidth
		if usable < 0 {
			usable = 0
		}
		step := usable / float64(ncol-1)
		for i := range xs {
			xs[i] = e.cfg.Margin + float64(i)*step
		}
	}

	pitch := e.cfg.NodeHeight + e.cfg.MinSpacing
	for i, ids := range e.columns {
		n := len(ids)
		row := height / float64(n+1)
		ys := make([]float64, n)
		if row >= pitch || n == 1 {
			for j, id := range ids {
				ys[j] = float64(j+1)*row - e.cfg.NodeHeight/2 + e.cfg.Offsets[id]*row
			}
		} else {
			top := height/2 - float64(n-1)*pitch/2 - e.cfg.NodeHeight/2
			for j := range ids {
				ys[j] = top + float64(j)*pitch
			}
		}
		for j := 1; j < n; j++ {
			if ys[j] < ys[j-1]+pitch {
				ys[j] = ys[j-1] + pitch
			}
		}
		for j, id := range ids {
			positions[id] = Point{X: xs[i], Y: ys[j]}
		}
	}
	return positions
}

// RightCenter is where outgoing curves leave a node at p.
func (e *Engine) RightCenter(p Point) Point {
	return Point{X: p.X + e.cfg.NodeWidth, Y: p.Y + e.cfg.NodeHeight/2}
}

// LeftCenter is where incoming curves enter a node at p.
func (e *Engine) LeftCenter(p Point) Point {
	return Point{X: p.X, Y: p.Y + e.cfg.NodeHeight/2}
}

// Memo caches the last ComputePositions result keyed on canvas size.
type Memo struct {
	engine *Engine

	mu        sync.Mutex
	w, h      float64
	positions map[string]Point
	valid     bool
}

// NewMemo wraps engine with a single-entry cache
func NewMemo(engine *Engine) *Memo {
	return &Memo{engine: engine}
}

// Engine returns the wrapped engine
func (m *Memo) Engine() *Engine {
	return m.engine
}

// Positions returns a copy of the positions for width x height, recomputing
// only when the size changed.
func (m *Memo) Positions(width, height float64) map[string]Point {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.valid || m.w != width || m.h != height {
		m.positions = m.engine.ComputePositions(width, height)
		m.w, m.h, m.valid = width, height, true
	}
	out := make(map[string]Point, len(m.positions))
	for k, v := range m.positions {
		out[k] = v
	}
	return out
}
