package registry

import "sync"

// Group is the registry-of-registries owned by the process composition
// root. It builds one registry per domain from a shared spec list and
// provider, and caches it for the process lifetime. There is no
// package level instance; callers own the Group explicitly.
type Group struct {
	specs    []Spec
	provider DependencyProvider
	options  []Option

	mu         sync.Mutex
	registries map[string]*Registry
}

// NewGroup creates a group building registries from specs and provider.
// Options are forwarded to every registry the group builds.
func NewGroup(specs []Spec, provider DependencyProvider, options ...Option) *Group {
	return &Group{
		specs:      specs,
		provider:   provider,
		options:    options,
		registries: make(map[string]*Registry),
	}
}

// Get returns the registry for domain, constructing and caching it on
// first use. Construction failures are not cached; a later call
// revalidates.
func (g *Group) Get(domain string) (*Registry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if r, ok := g.registries[domain]; ok {
		return r, nil
	}

	r, err := New(domain, g.specs, g.provider, g.options...)
	if err != nil {
		return nil, err
	}
	g.registries[domain] = r
	return r, nil
}

// ResetForTesting drops every cached registry so tests can rebuild
// domains from scratch.
func (g *Group) ResetForTesting() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.registries = make(map[string]*Registry)
}
