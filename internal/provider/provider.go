// Package provider implements the registry and shared plumbing for upstream
// LLM adapters.
package provider

import (
	"errors"
	"fmt"
	"sync"

	gateway "github.com/bastionlabs/bastion/internal"
)

// Factory constructs a provider adapter on first use.
type Factory func() (gateway.Provider, error)

// Registry lazily instantiates provider adapters by name. Construction runs
// once per name; the instance is then shared across requests. Lazy
// construction keeps a Bedrock-less deployment from paying for AWS
// credential resolution at startup.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	instances map[string]gateway.Provider
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		instances: make(map[string]gateway.Provider),
	}
}

// Register adds a factory under name, overwriting any previous one.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	r.factories[name] = f
	r.mu.Unlock()
}

// Get returns the provider for name, constructing it on first call.
func (r *Registry) Get(name string) (gateway.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.instances[name]; ok {
		return p, nil
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not registered", name)
	}
	p, err := f()
	if err != nil {
		return nil, fmt.Errorf("construct provider %q: %w", name, err)
	}
	r.instances[name] = p
	return p, nil
}

// Close closes every constructed provider. Factories that never ran are
// skipped.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, p := range r.instances {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close provider %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
