package graph

import (
	"fmt"
	"sort"
)

// ValidateTopology checks that a run over the graph can always finish.
// Every node must be reachable from the start set, every node must lead to
// the terminal, the terminal needs at least one incoming edge and the graph
// must be acyclic. Call it once at startup; a failure here means the
// sequencer would starve.
func (g *Graph) ValidateTopology() error {
	if err := g.Validate(); err != nil {
		return err
	}
	for _, id := range g.Start {
		if len(g.Incoming(id)) > 0 {
			return fmt.Errorf("%w: %s", ErrStartHasIncoming, id)
		}
	}
	if len(g.Incoming(g.Terminal)) == 0 {
		return ErrTerminalStarved
	}
	if len(g.Outgoing(g.Terminal)) > 0 {
		return ErrTerminalHasOutput
	}
	if _, err := g.TopologicalOrder(); err != nil {
		return err
	}

	forward := g.reach(g.Start, func(e *Edge) (string, string) { return e.From, e.To })
	for _, n := range g.Nodes {
		if !forward[n.ID] {
			return fmt.Errorf("%w: %s", ErrUnreachableNode, n.ID)
		}
	}
	backward := g.reach([]string{g.Terminal}, func(e *Edge) (string, string) { return e.To, e.From })
	for _, n := range g.Nodes {
		if !backward[n.ID] {
			return fmt.Errorf("%w: %s", ErrDeadEnd, n.ID)
		}
	}
	return nil
}

// reach walks the graph breadth first from roots using dir to orient edges.
func (g *Graph) reach(roots []string, dir func(*Edge) (string, string)) map[string]bool {
	adj := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		u, v := dir(e)
		adj[u] = append(adj[u], v)
	}
	seen := make(map[string]bool, len(g.Nodes))
	queue := append([]string(nil), roots...)
	for _, r := range roots {
		seen[r] = true
	}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range adj[u] {
			if !seen[v] {
				seen[v] = true
				queue = append(queue, v)
			}
		}
	}
	return seen
}

// TopologicalOrder returns node IDs so that every edge points forward.
// Ties keep declaration order (Kahn's algorithm with a stable frontier).
func (g *Graph) TopologicalOrder() ([]string, error) {
	position := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		position[n.ID] = i
	}
	indeg := g.IncomingCounts()
	var frontier []string
	for _, n := range g.Nodes {
		if indeg[n.ID] == 0 {
			frontier = append(frontier, n.ID)
		}
	}
	order := make([]string, 0, len(g.Nodes))
	for len(frontier) > 0 {
		u := frontier[0]
		frontier = frontier[1:]
		order = append(order, u)
		for _, e := range g.Outgoing(u) {
			indeg[e.To]--
			if indeg[e.To] == 0 {
				frontier = append(frontier, e.To)
				sort.SliceStable(frontier, func(i, j int) bool {
					return position[frontier[i]] < position[frontier[j]]
				})
			}
		}
	}
	if len(order) != len(g.Nodes) {
		return nil, ErrCyclicGraph
	}
	return order, nil
}

// AssignColumns gives every node with ColumnAuto its longest-path depth
// from the start set. Pinned columns are left untouched.
func (g *Graph) AssignColumns() error {
	order, err := g.TopologicalOrder()
	if err != nil {
		return err
	}
	depth := make(map[string]int, len(order))
	for _, id := range order {
		n := g.Node(id)
		if n.Column != ColumnAuto {
			depth[id] = n.Column
		}
		for _, e := range g.Outgoing(id) {
			if d := depth[id] + 1; d > depth[e.To] {
				depth[e.To] = d
			}
		}
	}
	for _, id := range order {
		if n := g.Node(id); n.Column == ColumnAuto {
			n.Column = depth[id]
		}
	}
	return nil
}

// Columns groups node IDs by column, keeping declaration order within a
// column. Empty columns are dropped so the result is dense.
func (g *Graph) Columns() [][]string {
	byCol := make(map[int][]string)
	var keys []int
	for _, n := range g.Nodes {
		col := n.Column
		if col == ColumnAuto {
			col = 0
		}
		if _, ok := byCol[col]; !ok {
			keys = append(keys, col)
		}
		byCol[col] = append(byCol[col], n.ID)
	}
	sort.Ints(keys)
	out := make([][]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, byCol[k])
	}
	return out
}
