// Package provider holds the registry of generation adapters and the
// classification helpers shared by the concrete adapters in its subpackages.
package provider

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/maauso/mediagen/internal/generation"
)

var (
	// ErrDuplicateProvider is returned when two adapters share a name.
	ErrDuplicateProvider = errors.New("provider: duplicate provider name")
	// ErrUnknownProvider is returned when a priority list names an
	// unregistered provider.
	ErrUnknownProvider = errors.New("provider: unknown provider")
	// ErrKindUnsupported is returned when a priority list names a provider
	// that cannot produce the requested kind.
	ErrKindUnsupported = errors.New("provider: kind not supported by provider")
)

// Registry maps provider names to adapters. It is populated at startup and
// read concurrently afterwards.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]generation.Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]generation.Adapter)}
}

// Register adds adapters under their descriptor names.
func (r *Registry) Register(adapters ...generation.Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range adapters {
		name := a.Descriptor().Name
		if name == "" {
			return fmt.Errorf("provider: adapter %T has no name", a)
		}
		if _, ok := r.adapters[name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateProvider, name)
		}
		r.adapters[name] = a
	}
	return nil
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (generation.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns the registered provider names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns the descriptors of every registered provider, sorted by name.
func (r *Registry) Descriptors() []generation.Descriptor {
	names := r.Names()
	out := make([]generation.Descriptor, 0, len(names))
	for _, name := range names {
		a, _ := r.Get(name)
		out = append(out, a.Descriptor())
	}
	return out
}

// Resolve returns the adapters named in priority order for kind. Blank
// names are ignored. Every named provider must be registered and support kind.
func (r *Registry) Resolve(kind generation.Kind, names []string) ([]generation.Adapter, error) {
	out := make([]generation.Adapter, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		a, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q (registered: %s)", ErrUnknownProvider, name, strings.Join(r.Names(), ", "))
		}
		if !a.Descriptor().Supports(kind) {
			return nil, fmt.Errorf("%w: %s cannot produce %s", ErrKindUnsupported, name, kind)
		}
		out = append(out, a)
	}
	return out, nil
}
