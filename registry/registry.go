// Package registry is the registration and resolution layer for the
// pluggable lock manager subsystem. A registry is a process local,
// domain scoped directory mapping logical manager names to
// implementation kinds and settings. Instances are constructed lazily,
// at most once per name, with shared infrastructure (lock database,
// process local cache, logger) injected into the kinds that need it.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/singleflight"

	"github.com/stratofs/lockmgr/errors"
	"github.com/stratofs/lockmgr/lock"
)

const (
	// DefaultName is the entry name resolved by Default and preferred
	// by Any.
	DefaultName = "default"

	// FallbackName is the entry name Any falls back to when no default
	// manager is registered.
	FallbackName = "fsLockManager"

	// LogChannel is the logger channel requested from the provider.
	LogChannel = "lockmanager"
)

// Registry holds the lock manager configurations of one domain and
// hands out their lazily constructed instances. The configuration table
// is immutable after construction; constructing a registry performs no
// I/O, so registries are cheap to build speculatively.
type Registry struct {
	domain    string
	provider  DependencyProvider
	factories Factories
	log       logr.Logger

	entries map[string]*entry
	flight  singleflight.Group
}

type entry struct {
	config Config

	mu       sync.RWMutex
	instance lock.Manager
}

func (e *entry) get() lock.Manager {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.instance
}

func (e *entry) set(m lock.Manager) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.instance = m
}

type config struct {
	factories Factories
	logger    *logr.Logger
}

// Option configures a registry.
type Option interface {
	Apply(*config)
}

// OptionFunc is a function that configures a registry.
type OptionFunc func(*config)

// Apply calls f(config).
func (f OptionFunc) Apply(config *config) {
	f(config)
}

// WithFactories returns an option that replaces the factory dispatch
// table.
func WithFactories(value Factories) Option {
	return OptionFunc(func(c *config) {
		c.factories = value
	})
}

// WithLogger returns an option that overrides the provider's logger
// channel.
func WithLogger(value logr.Logger) Option {
	return OptionFunc(func(c *config) {
		c.logger = &value
	})
}

// New builds the registry for one domain from raw registration records.
// Construction is fail fast: a record missing its name or kind, or
// reusing a name, aborts the whole registry with a ConfigError and no
// partial registry is produced. No lock manager instances are
// constructed here.
func New(domain string, specs []Spec, provider DependencyProvider, options ...Option) (*Registry, error) {
	cfg := config{
		factories: DefaultFactories(),
	}
	for _, opt := range options {
		opt.Apply(&cfg)
	}

	configs, err := buildConfigs(domain, specs)
	if err != nil {
		return nil, err
	}

	entries := make(map[string]*entry, len(configs))
	for name, c := range configs {
		entries[name] = &entry{config: c}
	}

	log := provider.Logger(LogChannel)
	if cfg.logger != nil {
		log = *cfg.logger
	}

	return &Registry{
		domain:    domain,
		provider:  provider,
		factories: cfg.factories,
		log:       log,
		entries:   entries,
	}, nil
}

// Domain returns the domain the registry was built for.
func (r *Registry) Domain() string {
	return r.domain
}

// Names returns the registered manager names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Resolve returns the lock manager registered under name, constructing
// it on first use. Concurrent first resolutions of the same name share
// a single in-flight construction, so exactly one instance is ever
// cached per name. A factory failure is returned as-is and is not
// memoized; a later call retries.
func (r *Registry) Resolve(ctx context.Context, name string) (lock.Manager, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, errors.NotFoundName(name)
	}

	if m := e.get(); m != nil {
		return m, nil
	}

	v, err, _ := r.flight.Do(name, func() (any, error) {
		if m := e.get(); m != nil {
			return m, nil
		}
		m, err := r.construct(ctx, e.config)
		if err != nil {
			return nil, err
		}
		e.set(m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(lock.Manager), nil
}

func (r *Registry) construct(ctx context.Context, cfg Config) (lock.Manager, error) {
	factory, ok := r.factories[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("lock manager %q: no factory for kind %q", cfg.Name, cfg.Kind)
	}

	deps := Dependencies{
		Log: r.log.WithValues("manager", cfg.Name, "domain", cfg.Domain),
	}
	if cfg.Kind.needsDatabase() {
		deps.Cache = r.provider.LocalCache()
		switch cfg.Kind {
		case KindPostgres:
			pool, err := r.provider.PgxPool(ctx, r.domain)
			if err != nil {
				return nil, fmt.Errorf("lock manager %q: %w", cfg.Name, err)
			}
			deps.PgxPool = pool
		case KindDatabase:
			db, err := r.provider.DB(ctx, r.domain)
			if err != nil {
				return nil, fmt.Errorf("lock manager %q: %w", cfg.Name, err)
			}
			deps.DB = db
		}
	}

	r.log.V(1).Info("constructing lock manager",
		"name", cfg.Name, "kind", cfg.Kind, "domain", cfg.Domain)

	return factory(ctx, cfg, deps)
}

// Config returns a read-only merged view of the kind and settings
// registered under name, for diagnostics. It never constructs an
// instance.
func (r *Registry) Config(name string) (map[string]any, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, errors.NotFoundName(name)
	}

	view := make(map[string]any, len(e.config.Settings)+2)
	for k, v := range e.config.Settings {
		view[k] = v
	}
	view["kind"] = string(e.config.Kind)
	view["domain"] = e.config.Domain
	return view, nil
}

// Default resolves the manager named "default" when one is registered
// and otherwise returns the no-op manager. This accessor never fails:
// if the registered default cannot be constructed the error is logged
// and the no-op manager is returned.
//
// TODO: call sites for Default and Any are sparse; re-validate that
// both accessors are still needed before extending them.
func (r *Registry) Default(ctx context.Context) lock.Manager {
	if _, ok := r.entries[DefaultName]; ok {
		m, err := r.Resolve(ctx, DefaultName)
		if err == nil {
			return m
		}
		r.log.Error(err, "resolving default lock manager failed, using no-op fallback")
	}
	return lock.Nop()
}

// Any resolves the manager named "default", or failing that the one
// named "fsLockManager". Unlike Default it asserts that some functioning
// manager exists: when neither name is registered it returns a
// NotFoundError.
func (r *Registry) Any(ctx context.Context) (lock.Manager, error) {
	for _, name := range []string{DefaultName, FallbackName} {
		if _, ok := r.entries[name]; ok {
			return r.Resolve(ctx, name)
		}
	}
	return nil, errors.NotFound("no %q or %q lock manager is registered", DefaultName, FallbackName)
}
