package prebuilt

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/agentflow/agentflow/internal/core/graph"
	"github.com/agentflow/agentflow/internal/core/sequencer"
)

// ErrUnknownPipeline is returned when no builder is registered under a name.
var ErrUnknownPipeline = errors.New("unknown pipeline")

// Pipeline is everything needed to animate one prebuilt.
type Pipeline struct {
	Graph  *graph.Graph
	Timing sequencer.Timing
	// Offsets nudges nodes vertically, as a fraction of their row height.
	Offsets map[string]float64
	// Result is surfaced after the run settles.
	Result any
}

// Builder constructs a Pipeline.
// Implementations should be pure (no side effects) and return
// a graph that passes topology validation.
type Builder interface {
	Name() string
	Build() (*Pipeline, error)
}

// BuildFunc is a convenience adapter to implement Builder via functions.
type BuildFunc struct {
	NameStr string
	Fn      func() (*Pipeline, error)
}

func (b BuildFunc) Name() string { return b.NameStr }

func (b BuildFunc) Build() (*Pipeline, error) {
	return b.Fn()
}

// NewBuildFunc creates a Builder from a function.
func NewBuildFunc(name string, fn func() (*Pipeline, error)) BuildFunc {
	return BuildFunc{NameStr: name, Fn: fn}
}

// Registry holds named prebuilts.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]Builder)}
}

// Register adds or replaces a prebuilt builder.
func (r *Registry) Register(b Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[b.Name()] = b
}

// MustRegister panics on duplicate names; useful during init() setup.
func (r *Registry) MustRegister(b Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.builders[b.Name()]; exists {
		panic(fmt.Sprintf("prebuilt already registered: %s", b.Name()))
	}
	r.builders[b.Name()] = b
}

// Get retrieves a named prebuilt.
func (r *Registry) Get(name string) (Builder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.builders[name]
	return b, ok
}

// Build looks up name and builds it.
func (r *Registry) Build(name string) (*Pipeline, error) {
	b, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPipeline, name)
	}
	p, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build pipeline %q: %w", name, err)
	}
	return p, nil
}

// Names lists registered prebuilts in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is a singleton for convenience. Projects can also
// construct their own Registry if they want isolation.
var DefaultRegistry = NewRegistry()

func init() {
	DefaultRegistry.MustRegister(NewBuildFunc(Classic, ClaimPipeline))
	DefaultRegistry.MustRegister(NewBuildFunc(FileInput, ClaimPipelineWithFileInput))
	DefaultRegistry.MustRegister(NewBuildFunc(Layered, ClaimPipelineLayered))
}
