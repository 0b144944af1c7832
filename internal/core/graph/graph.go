// Package graph provides the core pipeline domain entities
// following Clean Architecture principles with zero external dependencies.
package graph

import (
	"fmt"
	"time"
)

// Graph represents a fixed pipeline of stages and handoffs
// PRINCIPLES:
// - KISS: Simple struct, no complex hierarchies
// - SRP: Only responsible for graph structure, not animation
// - Order matters: nodes and edges keep declaration order
type Graph struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Nodes     []*Node   `json:"nodes"`
	Edges     []*Edge   `json:"edges"`
	Start     []string  `json:"start"`
	Terminal  string    `json:"terminal"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	index map[string]*Node
}

// New creates an empty graph
func New(id, name string) *Graph {
	now := time.Now()
	return &Graph{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}
}

// Validate ensures graph integrity
// PRINCIPLES:
// - SRP: Single responsibility - validation only
// - KISS: Simple validation rules, easy to understand
func (g *Graph) Validate() error {
	if g.Name == "" {
		return ErrInvalidGraphName
	}
	if len(g.Start) == 0 {
		return ErrNoStartNode
	}
	for _, id := range g.Start {
		if g.Node(id) == nil {
			return fmt.Errorf("%w: %s", ErrInvalidStartNode, id)
		}
	}
	if g.Terminal == "" {
		return ErrNoTerminal
	}
	if g.Node(g.Terminal) == nil {
		return ErrInvalidTerminal
	}
	return nil
}

// AddNode adds a node to the graph
// PRINCIPLES:
// - KISS: Direct and simple implementation
// - SRP: Only adds node, doesn't validate graph
func (g *Graph) AddNode(node *Node) error {
	if node == nil {
		return ErrNilNode
	}
	if err := node.Validate(); err != nil {
		return err
	}
	if g.Node(node.ID) != nil {
		return ErrDuplicateNode
	}
	g.Nodes = append(g.Nodes, node)
	g.index[node.ID] = node
	g.UpdatedAt = time.Now()
	return nil
}

// AddEdge adds an edge to the graph
func (g *Graph) AddEdge(edge *Edge) error {
	if edge == nil {
		return ErrNilEdge
	}
	if err := edge.Validate(); err != nil {
		return err
	}
	if g.Node(edge.From) == nil {
		return ErrSourceNodeNotFound
	}
	if g.Node(edge.To) == nil {
		return ErrTargetNodeNotFound
	}
	for _, e := range g.Edges {
		if e.Connects(edge.From, edge.To) || e.ID == edge.ID {
			return ErrDuplicateEdge
		}
	}
	g.Edges = append(g.Edges, edge)
	g.UpdatedAt = time.Now()
	return nil
}

// Connect is a shorthand for AddEdge(NewEdge(from, to))
func (g *Graph) Connect(from, to string) error {
	return g.AddEdge(NewEdge(from, to))
}

// Node looks up a node by ID, returning nil when absent
func (g *Graph) Node(id string) *Node {
	if g.index == nil || len(g.index) != len(g.Nodes) {
		g.reindex()
	}
	return g.index[id]
}

func (g *Graph) reindex() {
	g.index = make(map[string]*Node, len(g.Nodes))
	for _, n := range g.Nodes {
		if n != nil {
			g.index[n.ID] = n
		}
	}
}

// Incoming returns the edges whose destination is id, in declaration order
func (g *Graph) Incoming(id string) []*Edge {
	var out []*Edge
	for _, e := range g.Edges {
		if e.To == id {
			out = append(out, e)
		}
	}
	return out
}

// Outgoing returns the edges whose source is id, in declaration order
func (g *Graph) Outgoing(id string) []*Edge {
	var out []*Edge
	for _, e := range g.Edges {
		if e.From == id {
			out = append(out, e)
		}
	}
	return out
}

// IncomingCounts returns the fan-in of every node
func (g *Graph) IncomingCounts() map[string]int {
	counts := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		counts[n.ID] = 0
	}
	for _, e := range g.Edges {
		counts[e.To]++
	}
	return counts
}

// IsStart reports whether id belongs to the start set
func (g *Graph) IsStart(id string) bool {
	for _, s := range g.Start {
		if s == id {
			return true
		}
	}
	return false
}

// RequiresFile reports whether the pipeline starts with a file picker stage
func (g *Graph) RequiresFile() bool {
	for _, id := range g.Start {
		if n := g.Node(id); n != nil && n.Category == CategoryFileInput {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the graph
func (g *Graph) Clone() *Graph {
	c := &Graph{
		ID:        g.ID,
		Name:      g.Name,
		Start:     append([]string(nil), g.Start...),
		Terminal:  g.Terminal,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
	for _, n := range g.Nodes {
		cp := *n
		c.Nodes = append(c.Nodes, &cp)
	}
	for _, e := range g.Edges {
		cp := *e
		c.Edges = append(c.Edges, &cp)
	}
	c.reindex()
	return c
}
