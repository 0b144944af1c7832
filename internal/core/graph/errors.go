// Package graph defines domain-specific errors
package graph

import "errors"

// Domain errors - DRY principle: defined once, used everywhere
var (
	// Graph errors
	ErrInvalidGraphName  = errors.New("invalid graph name")
	ErrNoStartNode       = errors.New("no start node specified")
	ErrInvalidStartNode  = errors.New("start node not found")
	ErrNoTerminal        = errors.New("no terminal node specified")
	ErrInvalidTerminal   = errors.New("terminal node not found")
	ErrGraphNotFound     = errors.New("graph not found")
	ErrCyclicGraph       = errors.New("cyclic dependency detected")
	ErrUnreachableNode   = errors.New("node is not reachable from the start set")
	ErrTerminalStarved   = errors.New("terminal node has no incoming edge")
	ErrDeadEnd           = errors.New("node has no path to the terminal node")
	ErrStartHasIncoming  = errors.New("start node cannot have incoming edges")
	ErrTerminalHasOutput = errors.New("terminal node cannot have outgoing edges")

	// Node errors
	ErrNilNode          = errors.New("node cannot be nil")
	ErrInvalidNodeID    = errors.New("invalid node ID")
	ErrInvalidNodeLabel = errors.New("invalid node label")
	ErrInvalidCategory  = errors.New("invalid node category")
	ErrInvalidColumn    = errors.New("invalid node column")
	ErrNodeNotFound     = errors.New("node not found")
	ErrDuplicateNode    = errors.New("duplicate node ID")

	// Edge errors
	ErrNilEdge            = errors.New("edge cannot be nil")
	ErrInvalidSource      = errors.New("invalid source node")
	ErrInvalidTarget      = errors.New("invalid target node")
	ErrSourceNodeNotFound = errors.New("source node not found")
	ErrTargetNodeNotFound = errors.New("target node not found")
	ErrDuplicateEdge      = errors.New("duplicate edge")
	ErrSelfLoop           = errors.New("self-loops are not allowed")
)
