package registry

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/stratofs/lockmgr/errors"
)

// Kind selects the lock manager implementation a record refers to. The
// set is closed; dispatch happens through a compile time factory table,
// not by name lookup.
type Kind string

const (
	// KindNop grants every request, see lock.NopManager.
	KindNop Kind = "nop"

	// KindPostgres uses PostgreSQL advisory locks (lock/pgx).
	KindPostgres Kind = "postgres"

	// KindDatabase uses a SQL bookkeeping table (lock/sqldb).
	KindDatabase Kind = "database"

	// KindFilesystem uses lock files on a shared directory
	// (lock/fslock).
	KindFilesystem Kind = "filesystem"

	// KindQuorum uses a majority of Redis compatible servers
	// (lock/quorum).
	KindQuorum Kind = "quorum"
)

// needsDatabase reports whether the kind bookkeeps its locks in a
// database and therefore receives a connection handle and the process
// local cache during construction.
func (k Kind) needsDatabase() bool {
	return k == KindPostgres || k == KindDatabase
}

// Spec is one raw registration record. Every key besides name and kind
// is opaque to the registry and lands in Settings unchanged.
type Spec struct {
	Name     string         `yaml:"name"`
	Kind     Kind           `yaml:"kind"`
	Settings map[string]any `yaml:",inline"`
}

// ParseSpecs decodes an ordered YAML document of registration records.
func ParseSpecs(data []byte) ([]Spec, error) {
	var specs []Spec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parsing lock manager specs: %w", err)
	}
	return specs, nil
}

// Config is the validated, immutable description of one named lock
// manager. Domain is injected by the registry, never by the caller.
type Config struct {
	Name     string
	Kind     Kind
	Domain   string
	Settings map[string]any
}

// buildConfigs validates specs and turns them into per-name configs.
// Every violation is reported; a single bad record fails the whole
// batch so no partial registry can be observed.
func buildConfigs(domain string, specs []Spec) (map[string]Config, error) {
	cerr := errors.Config("invalid lock manager configuration for domain %q", domain)
	configs := make(map[string]Config, len(specs))

	for i, spec := range specs {
		switch {
		case spec.Name == "":
			cerr.AddError(fmt.Errorf("record %d: missing name", i))
			continue
		case spec.Kind == "":
			cerr.AddError(fmt.Errorf("record %d (%s): missing kind", i, spec.Name))
			continue
		}
		if _, ok := configs[spec.Name]; ok {
			cerr.AddError(fmt.Errorf("record %d: duplicate name %q", i, spec.Name))
			continue
		}

		settings := make(map[string]any, len(spec.Settings))
		for k, v := range spec.Settings {
			settings[k] = v
		}
		configs[spec.Name] = Config{
			Name:     spec.Name,
			Kind:     spec.Kind,
			Domain:   domain,
			Settings: settings,
		}
	}

	if len(cerr.Errors) > 0 {
		return nil, cerr
	}
	return configs, nil
}
