// Package graphrepo stores the pipelines a runtime can animate, keyed by
// the name clients select them with.
package graphrepo

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/agentflow/agentflow/internal/core/graph"
	"github.com/agentflow/agentflow/pkg/prebuilt"
	"github.com/agentflow/agentflow/pkg/validation"
)

// InMemoryGraphRepository provides an in-memory pipeline repository.
// Pipelines are validated on Save and cloned on the way in and out.
type InMemoryGraphRepository struct {
	mu        sync.RWMutex
	pipelines map[string]*prebuilt.Pipeline
}

// NewInMemoryGraphRepository returns an empty repository
func NewInMemoryGraphRepository() *InMemoryGraphRepository {
	return &InMemoryGraphRepository{
		pipelines: make(map[string]*prebuilt.Pipeline),
	}
}

// Seed builds every pipeline of registry and stores it under its name
func Seed(ctx context.Context, registry *prebuilt.Registry) (*InMemoryGraphRepository, error) {
	r := NewInMemoryGraphRepository()
	for _, name := range registry.Names() {
		p, err := registry.Build(name)
		if err != nil {
			return nil, err
		}
		if err := r.Save(ctx, name, p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Save validates and stores p under name, replacing any previous entry
func (r *InMemoryGraphRepository) Save(_ context.Context, name string, p *prebuilt.Pipeline) error {
	if err := validation.Validate.Var(name, "required,pipeline_name"); err != nil {
		return fmt.Errorf("invalid pipeline name %q: %w", name, err)
	}
	if p == nil || p.Graph == nil {
		return fmt.Errorf("invalid pipeline %q: %w", name, graph.ErrGraphNotFound)
	}
	if err := validation.ValidateCoreGraph(p.Graph, validation.GraphValidationOptions{CheckCycles: true, CheckTopology: true}); err != nil {
		return fmt.Errorf("invalid pipeline %q: %w", name, err)
	}
	if err := p.Timing.Validate(); err != nil {
		return fmt.Errorf("invalid pipeline %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pipelines[name] = clone(p)
	return nil
}

// Get returns a copy of the pipeline stored under name
func (r *InMemoryGraphRepository) Get(_ context.Context, name string) (*prebuilt.Pipeline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pipelines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", graph.ErrGraphNotFound, name)
	}
	return clone(p), nil
}

// Delete removes the pipeline stored under name
func (r *InMemoryGraphRepository) Delete(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pipelines[name]; !ok {
		return fmt.Errorf("%w: %q", graph.ErrGraphNotFound, name)
	}
	delete(r.pipelines, name)
	return nil
}

// List returns the stored names in lexical order
func (r *InMemoryGraphRepository) List(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.pipelines))
	for name := range r.pipelines {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func clone(p *prebuilt.Pipeline) *prebuilt.Pipeline {
	c := *p
	c.Graph = p.Graph.Clone()
	if p.Offsets != nil {
		c.Offsets = make(map[string]float64, len(p.Offsets))
		for k, v := range p.Offsets {
			c.Offsets[k] = v
		}
	}
	return &c
}
