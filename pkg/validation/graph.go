package validation

import (
	"fmt"

	coregraph "github.com/agentflow/agentflow/internal/core/graph"
)

// GraphValidationOptions controls optional validation checks.
type GraphValidationOptions struct {
	// CheckCycles enables detection of directed cycles.
	CheckCycles bool
	// CheckTopology additionally requires every node to lie on a path from
	// the start set to the terminal.
	CheckTopology bool
}

// ValidateCoreGraph performs structural validation on the core graph entity.
// It is intended for graphs loaded from external sources where in-method guards
// (e.g., AddNode/AddEdge) may have been bypassed.
func ValidateCoreGraph(g *coregraph.Graph, opts ...GraphValidationOptions) error {
	if g == nil {
		return fmt.Errorf("graph is nil")
	}

	// Validate all nodes
	ids := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		if n == nil {
			return coregraph.ErrNilNode
		}
		if err := n.Validate(); err != nil {
			return err
		}
		if _, dup := ids[n.ID]; dup {
			return fmt.Errorf("%w: %s", coregraph.ErrDuplicateNode, n.ID)
		}
		ids[n.ID] = struct{}{}
	}

	if err := g.Validate(); err != nil {
		return err
	}

	// Validate edges and endpoints
	seenEdges := make(map[[2]string]struct{}, len(g.Edges))
	for _, e := range g.Edges {
		if e == nil {
			return coregraph.ErrNilEdge
		}
		if err := e.Validate(); err != nil {
			return err
		}
		if _, ok := ids[e.From]; !ok {
			return fmt.Errorf("%w: %s", coregraph.ErrSourceNodeNotFound, e.From)
		}
		if _, ok := ids[e.To]; !ok {
			return fmt.Errorf("%w: %s", coregraph.ErrTargetNodeNotFound, e.To)
		}
		k := [2]string{e.From, e.To}
		if _, dup := seenEdges[k]; dup {
			return fmt.Errorf("%w: %s", coregraph.ErrDuplicateEdge, e.ID)
		}
		seenEdges[k] = struct{}{}
	}

	var cfg GraphValidationOptions
	if len(opts) > 0 {
		cfg = opts[0]
	}
	if cfg.CheckCycles && hasCycle(g) {
		return coregraph.ErrCyclicGraph
	}
	if cfg.CheckTopology {
		return g.ValidateTopology()
	}
	return nil
}

// hasCycle detects any cycle in a directed graph using DFS with coloring.
func hasCycle(g *coregraph.Graph) bool {
	const (
		white = 0 // unvisited
		gray  = 1 // visiting
		black = 2 // visited
	)
	color := make(map[string]int, len(g.Nodes))
	adj := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		adj[e.From] = append(adj[e.From], e.To)
	}
	var dfs func(string) bool
	dfs = func(u string) bool {
		color[u] = gray
		for _, v := range adj[u] {
			if color[v] == gray {
				return true // back-edge
			}
			if color[v] == white {
				if dfs(v) {
					return true
				}
			}
		}
		color[u] = black
		return false
	}
	for _, n := range g.Nodes {
		if color[n.ID] == white {
			if dfs(n.ID) {
				return true
			}
		}
	}
	return false
}
