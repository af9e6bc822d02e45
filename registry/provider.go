package registry

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stratofs/lockmgr/cache"
)

// DependencyProvider supplies the shared infrastructure injected into
// lock manager implementations that declare a need for it. The registry
// borrows the provider during instance construction only; it never owns
// the handle lifecycles.
type DependencyProvider interface {
	// PgxPool returns the pgx pool reserved for lock bookkeeping in
	// the given domain.
	PgxPool(ctx context.Context, domain string) (*pgxpool.Pool, error)

	// DB returns the database/sql handle reserved for lock bookkeeping
	// in the given domain.
	DB(ctx context.Context, domain string) (*sql.DB, error)

	// LocalCache returns the process local cache.
	LocalCache() cache.Cache

	// Logger returns the logger for the given channel.
	Logger(name string) logr.Logger
}

// Dependencies carries the resolved handles passed to a factory. Log is
// always populated; the database handles and cache only for kinds that
// bookkeep in a database.
type Dependencies struct {
	PgxPool *pgxpool.Pool
	DB      *sql.DB
	Cache   cache.Cache
	Log     logr.Logger
}

var (
	_ DependencyProvider = (*StaticProvider)(nil)
)

// StaticProvider is a DependencyProvider handing out fixed handles.
// Nil handles are reported as configuration gaps when requested, so a
// deployment without a database can still serve filesystem and quorum
// managers.
type StaticProvider struct {
	Pool  *pgxpool.Pool
	SQL   *sql.DB
	Cache cache.Cache
	Log   logr.Logger
}

func (p *StaticProvider) PgxPool(ctx context.Context, domain string) (*pgxpool.Pool, error) {
	if p.Pool == nil {
		return nil, fmt.Errorf("no postgres pool configured for domain %q", domain)
	}
	return p.Pool, nil
}

func (p *StaticProvider) DB(ctx context.Context, domain string) (*sql.DB, error) {
	if p.SQL == nil {
		return nil, fmt.Errorf("no lock database configured for domain %q", domain)
	}
	return p.SQL, nil
}

func (p *StaticProvider) LocalCache() cache.Cache {
	return p.Cache
}

func (p *StaticProvider) Logger(name string) logr.Logger {
	return p.Log.WithName(name)
}
