package asr

import (
	"fmt"
	"sort"
	"sync"

	"murmur/internal/services"
)

// Registry resolves provider kinds to configured implementations.
// Builders run lazily on first Get and the result is reused, so opening
// HTTP clients or probing model files happens once per process.
type Registry struct {
	mu       sync.Mutex
	builders map[Kind]func() (Provider, error)
	built    map[Kind]Provider
}

func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[Kind]func() (Provider, error)),
		built:    make(map[Kind]Provider),
	}
}

// Register installs the builder for a kind, replacing any previous one.
func (r *Registry) Register(kind Kind, build func() (Provider, error)) {
	if r == nil || build == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[kind] = build
	delete(r.built, kind)
}

// Get returns the provider for kind, building it on first use.
// Kinds with no registered builder fail as configuration errors.
func (r *Registry) Get(kind Kind) (Provider, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: provider registry not initialized", services.ErrConfiguration)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if provider, ok := r.built[kind]; ok {
		return provider, nil
	}
	build, ok := r.builders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: provider %q is not configured", services.ErrConfiguration, kind)
	}
	provider, err := build()
	if err != nil {
		return nil, fmt.Errorf("build provider %q: %w", kind, err)
	}
	r.built[kind] = provider
	return provider, nil
}

// Registered lists the kinds with builders installed, sorted by name.
func (r *Registry) Registered() []Kind {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]Kind, 0, len(r.builders))
	for kind := range r.builders {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
