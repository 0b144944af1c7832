// Package graph provides node definitions
package graph

// Category represents the visual and semantic role of a pipeline stage
type Category string

const (
	// CategoryFileInput represents the file picker placeholder stage
	CategoryFileInput Category = "file_input"
	// CategoryInput represents the input segregation stage
	CategoryInput Category = "input"
	// CategoryExtractor represents a document extractor agent
	CategoryExtractor Category = "extractor"
	// CategoryUtility represents a helper agent (deduplication, categorisation)
	CategoryUtility Category = "utility"
	// CategoryAnalysis represents an analysis agent
	CategoryAnalysis Category = "analysis"
	// CategoryAggregate represents an aggregating agent
	CategoryAggregate Category = "aggregate"
	// CategoryTerminal represents the completion aggregator
	CategoryTerminal Category = "terminal"
)

// ColumnAuto marks a node whose column is derived from the graph depth.
const ColumnAuto = -1

// Categories lists every known category in display order.
var Categories = []Category{
	CategoryFileInput,
	CategoryInput,
	CategoryExtractor,
	CategoryUtility,
	CategoryAnalysis,
	CategoryAggregate,
	CategoryTerminal,
}

// IsValid reports whether c is a known category
func (c Category) IsValid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// CountsAsDocument reports whether an arrival at a node of this category
// counts towards the processed documents statistic.
func (c Category) CountsAsDocument() bool {
	return c != CategoryUtility && c != CategoryAnalysis
}

// Node represents a stage in the pipeline
// PRINCIPLES:
// - KISS: Static data, defined once at startup
// - SRP: Only responsible for node data
type Node struct {
	ID       string   `json:"id" yaml:"id"`
	Label    string   `json:"label" yaml:"label"`
	Category Category `json:"category" yaml:"category"`
	// Column is the layout stage of the node; ColumnAuto derives it.
	Column int `json:"column" yaml:"column"`
}

// NewNode creates a node whose column is derived from the graph
func NewNode(id, label string, category Category) *Node {
	return &Node{ID: id, Label: label, Category: category, Column: ColumnAuto}
}

// InColumn returns the node pinned to the given column
func (n *Node) InColumn(column int) *Node {
	n.Column = column
	return n
}

// Validate ensures node integrity
func (n *Node) Validate() error {
	if n.ID == "" {
		return ErrInvalidNodeID
	}
	if n.Label == "" {
		return ErrInvalidNodeLabel
	}
	if !n.Category.IsValid() {
		return ErrInvalidCategory
	}
	if n.Column < ColumnAuto {
		return ErrInvalidColumn
	}
	return nil
}

// IsTerminal checks if node is the completion stage
func (n *Node) IsTerminal() bool {
	return n.Category == CategoryTerminal
}
