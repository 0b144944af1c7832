// Package graph provides edge definitions
package graph

import "fmt"

// Edge represents a work handoff between two stages
// PRINCIPLES:
// - KISS: Simple directed pair
// - SRP: Only responsible for edge data
type Edge struct {
	ID   string `json:"id" yaml:"id,omitempty"`
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// NewEdge creates an edge with its default ID
func NewEdge(from, to string) *Edge {
	return &Edge{ID: EdgeID(from, to), From: from, To: to}
}

// EdgeID returns the canonical identifier for the (from, to) pair
func EdgeID(from, to string) string {
	return fmt.Sprintf("%s->%s", from, to)
}

// Validate ensures edge integrity
func (e *Edge) Validate() error {
	if e.From == "" {
		return ErrInvalidSource
	}
	if e.To == "" {
		return ErrInvalidTarget
	}
	if e.From == e.To {
		return ErrSelfLoop
	}
	if e.ID == "" {
		e.ID = EdgeID(e.From, e.To)
	}
	return nil
}

// Connects reports whether the edge joins exactly from and to
func (e *Edge) Connects(from, to string) bool {
	return e.From == from && e.To == to
}
