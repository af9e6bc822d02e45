package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stratofs/lockmgr/lock"
	"github.com/stratofs/lockmgr/lock/fslock"
	pgxlock "github.com/stratofs/lockmgr/lock/pgx"
	"github.com/stratofs/lockmgr/lock/quorum"
	"github.com/stratofs/lockmgr/lock/sqldb"
)

// Factory constructs a ready-to-use lock manager from a resolved
// configuration and the dependency handles its kind requires.
type Factory func(ctx context.Context, cfg Config, deps Dependencies) (lock.Manager, error)

// Factories maps each implementation kind to its constructor.
type Factories map[Kind]Factory

// DefaultFactories returns the dispatch table covering the closed kind
// set. Tests substitute their own table through WithFactories.
func DefaultFactories() Factories {
	return Factories{
		KindNop:        newNop,
		KindPostgres:   newPostgres,
		KindDatabase:   newDatabase,
		KindFilesystem: newFilesystem,
		KindQuorum:     newQuorum,
	}
}

func newNop(context.Context, Config, Dependencies) (lock.Manager, error) {
	return lock.Nop(), nil
}

func newPostgres(ctx context.Context, cfg Config, deps Dependencies) (lock.Manager, error) {
	if deps.PgxPool == nil {
		return nil, fmt.Errorf("lock manager %q: postgres pool is required", cfg.Name)
	}

	options := make([]pgxlock.Option, 0, 1)
	if ns, ok := settingInt(cfg.Settings, "namespace"); ok {
		options = append(options, pgxlock.WithNamespace(int32(ns)))
	}
	return pgxlock.New(deps.PgxPool, options...), nil
}

func newDatabase(ctx context.Context, cfg Config, deps Dependencies) (lock.Manager, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("lock manager %q: lock database is required", cfg.Name)
	}

	options := make([]sqldb.Option, 0, 3)
	if table, ok := settingString(cfg.Settings, "table"); ok {
		options = append(options, sqldb.WithTable(table))
	}
	ttl, err := settingDuration(cfg.Settings, "ttl")
	if err != nil {
		return nil, fmt.Errorf("lock manager %q: %w", cfg.Name, err)
	}
	if ttl > 0 {
		options = append(options, sqldb.WithTTL(ttl))
	}
	if deps.Cache != nil {
		options = append(options, sqldb.WithCache(deps.Cache))
	}
	return sqldb.New(deps.DB, options...), nil
}

func newFilesystem(ctx context.Context, cfg Config, deps Dependencies) (lock.Manager, error) {
	dir, ok := settingString(cfg.Settings, "lockDirectory")
	if !ok {
		return nil, fmt.Errorf("lock manager %q: lockDirectory setting is required", cfg.Name)
	}

	options := make([]fslock.Option, 0, 1)
	staleAge, err := settingDuration(cfg.Settings, "staleAge")
	if err != nil {
		return nil, fmt.Errorf("lock manager %q: %w", cfg.Name, err)
	}
	if staleAge > 0 {
		options = append(options, fslock.WithStaleAge(staleAge))
	}
	return fslock.New(dir, options...)
}

func newQuorum(ctx context.Context, cfg Config, deps Dependencies) (lock.Manager, error) {
	servers, ok := settingStrings(cfg.Settings, "servers")
	if !ok || len(servers) == 0 {
		return nil, fmt.Errorf("lock manager %q: servers setting is required", cfg.Name)
	}

	clients := make([]redis.UniversalClient, 0, len(servers))
	for _, addr := range servers {
		clients = append(clients, redis.NewClient(&redis.Options{Addr: addr}))
	}

	options := []quorum.Option{
		quorum.WithPrefix("lockmgr:" + cfg.Domain),
	}
	ttl, err := settingDuration(cfg.Settings, "ttl")
	if err != nil {
		return nil, fmt.Errorf("lock manager %q: %w", cfg.Name, err)
	}
	if ttl > 0 {
		options = append(options, quorum.WithTTL(ttl))
	}
	return quorum.New(clients, options...)
}

func settingString(settings map[string]any, key string) (string, bool) {
	value, ok := settings[key].(string)
	return value, ok && value != ""
}

func settingInt(settings map[string]any, key string) (int, bool) {
	switch value := settings[key].(type) {
	case int:
		return value, true
	case int64:
		return int(value), true
	default:
		return 0, false
	}
}

// settingDuration reads a duration setting given either as a Go
// duration string ("30s") or as a number of seconds. A missing key
// yields zero without error.
func settingDuration(settings map[string]any, key string) (time.Duration, error) {
	switch value := settings[key].(type) {
	case nil:
		return 0, nil
	case string:
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid %s setting %q: %w", key, value, err)
		}
		return d, nil
	case int:
		return time.Duration(value) * time.Second, nil
	case int64:
		return time.Duration(value) * time.Second, nil
	default:
		return 0, fmt.Errorf("invalid %s setting of type %T", key, value)
	}
}

func settingStrings(settings map[string]any, key string) ([]string, bool) {
	switch value := settings[key].(type) {
	case []string:
		return value, true
	case []any:
		out := make([]string, 0, len(value))
		for _, v := range value {
			s, ok := v.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
