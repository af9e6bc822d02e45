// Package sqldb implements a database backed lock manager over a
// bookkeeping table accessed through database/sql. It serves databases
// without advisory lock support; PostgreSQL deployments should prefer
// the advisory lock manager in lock/pgx.
//
// Lock rows carry an expiry so locks left behind by a crashed process
// decay on their own. The table uses ? placeholders, which covers
// SQLite and MySQL style drivers.
package sqldb

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stratofs/lockmgr/lock"
)

const (
	DefaultTable        = "lock_records"
	DefaultTTL          = 60 * time.Second
	DefaultPollInterval = 50 * time.Millisecond
)

var (
	_ lock.Manager = (*Manager)(nil)
)

// errContended signals that a path is held elsewhere and the attempt
// should be retried.
var errContended = errors.New("lock contended")

// Manager implements lock.Manager using a SQL lock table.
type Manager struct {
	config  Config
	db      *sql.DB
	session string

	mu   sync.Mutex
	held map[heldKey]int
}

type heldKey struct {
	key string
	typ lock.Type
}

// New creates a new SQL lock manager. Every manager owns a distinct
// session identity; locks are scoped to it.
func New(db *sql.DB, options ...Option) *Manager {
	config := Config{
		Table:        DefaultTable,
		TTL:          DefaultTTL,
		PollInterval: DefaultPollInterval,
	}
	for _, opt := range options {
		opt.Apply(&config)
	}

	return &Manager{
		config:  config,
		db:      db,
		session: uuid.NewString(),
		held:    make(map[heldKey]int),
	}
}

// hashPath converts a path to the fixed-width key stored in the table.
func hashPath(path string) string {
	sum := sha1.Sum([]byte(path))
	return hex.EncodeToString(sum[:])
}

func hashPaths(paths []string) []string {
	keys := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		key := hashPath(p)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Lock acquires lock rows for all paths or none of them, retrying
// until the context is cancelled while any path is contended.
func (m *Manager) Lock(ctx context.Context, t lock.Type, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	keys := hashPaths(paths)
	for {
		err := m.tryAcquire(ctx, t, keys)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errContended) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.config.PollInterval):
		}
	}
}

func (m *Manager) tryAcquire(ctx context.Context, t lock.Type, keys []string) error {
	// A manager sharing the process cache may already hold one of the
	// keys exclusively; fail the attempt without a database roundtrip.
	if m.config.Cache != nil {
		for _, key := range keys {
			owner, err := m.config.Cache.Get(m.cacheKey(key))
			if err == nil && owner != m.session {
				return errContended
			}
		}
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting lock transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().Unix()
	inserts := make([]heldKey, 0, len(keys))
	for _, key := range keys {
		hk := heldKey{key: key, typ: t}
		if m.held[hk] > 0 {
			continue
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM "+m.config.Table+" WHERE path_key = ? AND expires < ?",
			key, now,
		); err != nil {
			return fmt.Errorf("expiring stale locks: %w", err)
		}

		var conflicts int
		if err := tx.QueryRowContext(ctx, m.conflictQuery(t), m.conflictArgs(t, key)...).Scan(&conflicts); err != nil {
			return fmt.Errorf("checking lock conflicts: %w", err)
		}
		if conflicts > 0 {
			return errContended
		}
		inserts = append(inserts, hk)
	}

	expires := time.Now().Add(m.config.TTL).Unix()
	for _, hk := range inserts {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+m.config.Table+" (path_key, lock_type, session, expires) VALUES (?, ?, ?, ?)",
			hk.key, int(hk.typ), m.session, expires,
		); err != nil {
			return fmt.Errorf("recording lock: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing locks: %w", err)
	}

	for _, key := range keys {
		m.held[heldKey{key: key, typ: t}]++
	}
	if m.config.Cache != nil && t == lock.TypeExclusive {
		for _, key := range keys {
			_ = m.config.Cache.Set(m.cacheKey(key), m.session, m.config.TTL)
		}
	}
	return nil
}

// conflictQuery returns the count of rows that block acquisition:
// for exclusive locks any foreign row on the path, for shared locks
// only foreign exclusive rows.
func (m *Manager) conflictQuery(t lock.Type) string {
	if t == lock.TypeShared {
		return "SELECT COUNT(*) FROM " + m.config.Table +
			" WHERE path_key = ? AND lock_type = ? AND session <> ?"
	}
	return "SELECT COUNT(*) FROM " + m.config.Table +
		" WHERE path_key = ? AND session <> ?"
}

func (m *Manager) conflictArgs(t lock.Type, key string) []any {
	if t == lock.TypeShared {
		return []any{key, int(lock.TypeExclusive), m.session}
	}
	return []any{key, m.session}
}

// Unlock deletes the manager's lock rows for the given paths.
func (m *Manager) Unlock(ctx context.Context, t lock.Type, paths ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range hashPaths(paths) {
		hk := heldKey{key: key, typ: t}
		if m.held[hk] == 0 {
			continue
		}
		if m.held[hk] > 1 {
			m.held[hk]--
			continue
		}

		if _, err := m.db.ExecContext(ctx,
			"DELETE FROM "+m.config.Table+" WHERE path_key = ? AND lock_type = ? AND session = ?",
			key, int(t), m.session,
		); err != nil {
			return fmt.Errorf("releasing lock: %w", err)
		}
		delete(m.held, hk)
		if m.config.Cache != nil && t == lock.TypeExclusive {
			_ = m.config.Cache.Remove(m.cacheKey(key))
		}
	}
	return nil
}

func (m *Manager) cacheKey(key string) string {
	return "lockmgr:" + m.config.Table + ":excl:" + key
}
