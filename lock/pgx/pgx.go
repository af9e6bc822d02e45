// Package pgx implements a database backed lock manager on top of
// PostgreSQL session advisory locks. All locks taken by one manager are
// held on a single pooled connection for as long as any path stays
// locked; the connection returns to the pool once everything is
// released.
package pgx

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stratofs/lockmgr/lock"
)

var (
	_ lock.Manager = (*Manager)(nil)
)

// Manager implements lock.Manager using PostgreSQL advisory locks.
type Manager struct {
	config Config
	pool   *pgxpool.Pool

	mu       sync.Mutex
	poolConn *pgxpool.Conn
	conn     *pgx.Conn
	held     map[heldKey]int
}

type heldKey struct {
	key int32
	typ lock.Type
}

// New creates a new advisory lock manager using pool.
func New(pool *pgxpool.Pool, options ...Option) *Manager {
	config := Config{
		Namespace: 0,
	}
	for _, opt := range options {
		opt.Apply(&config)
	}

	return &Manager{
		config: config,
		pool:   pool,
		held:   make(map[heldKey]int),
	}
}

// hashPath converts a path to int32 using FNV-1a hash. Distinct paths
// may collide, which only widens a lock and never narrows it.
func hashPath(path string) int32 {
	h := fnv.New32a()
	h.Write([]byte(path))
	return int32(h.Sum32())
}

// Lock acquires advisory locks for all paths or none of them.
func (m *Manager) Lock(ctx context.Context, t lock.Type, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.acquireConn(ctx); err != nil {
		return err
	}

	acquired := make([]heldKey, 0, len(paths))
	for _, key := range hashPaths(paths) {
		hk := heldKey{key: key, typ: t}
		if m.held[hk] > 0 {
			m.held[hk]++
			acquired = append(acquired, hk)
			continue
		}

		if _, err := m.conn.Exec(ctx, lockQuery(t), m.config.Namespace, key); err != nil {
			m.rollback(acquired)
			return fmt.Errorf("acquiring %s lock: %w", t, err)
		}
		m.held[hk]++
		acquired = append(acquired, hk)
	}

	return nil
}

// Unlock releases advisory locks previously acquired with Lock.
func (m *Manager) Unlock(ctx context.Context, t lock.Type, paths ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return nil
	}

	for _, key := range hashPaths(paths) {
		hk := heldKey{key: key, typ: t}
		if m.held[hk] == 0 {
			continue
		}
		if m.held[hk] > 1 {
			m.held[hk]--
			continue
		}

		if _, err := m.conn.Exec(ctx, unlockQuery(t), m.config.Namespace, key); err != nil {
			return fmt.Errorf("releasing %s lock: %w", t, err)
		}
		delete(m.held, hk)
	}

	if len(m.held) == 0 {
		m.releaseConn()
	}
	return nil
}

func lockQuery(t lock.Type) string {
	if t == lock.TypeShared {
		return "SELECT pg_advisory_lock_shared($1, $2)"
	}
	return "SELECT pg_advisory_lock($1, $2)"
}

func unlockQuery(t lock.Type) string {
	if t == lock.TypeShared {
		return "SELECT pg_advisory_unlock_shared($1, $2)"
	}
	return "SELECT pg_advisory_unlock($1, $2)"
}

// hashPaths maps paths to sorted, deduplicated advisory keys. The fixed
// order keeps concurrent multi-path acquisitions deadlock free.
func hashPaths(paths []string) []int32 {
	keys := make([]int32, 0, len(paths))
	seen := make(map[int32]struct{}, len(paths))
	for _, p := range paths {
		key := hashPath(p)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// rollback releases keys acquired earlier in a failed batch so the
// all-or-nothing contract holds. Connection errors here are ignored,
// the session keeps the lock state consistent either way.
func (m *Manager) rollback(acquired []heldKey) {
	for _, hk := range acquired {
		if m.held[hk] > 1 {
			m.held[hk]--
			continue
		}
		_, _ = m.conn.Exec(context.Background(), unlockQuery(hk.typ), m.config.Namespace, hk.key)
		delete(m.held, hk)
	}
	if len(m.held) == 0 {
		m.releaseConn()
	}
}

func (m *Manager) acquireConn(ctx context.Context) error {
	if m.conn != nil {
		return nil
	}

	poolConn, err := m.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring lock connection: %w", err)
	}
	m.poolConn = poolConn
	m.conn = poolConn.Conn()
	return nil
}

func (m *Manager) releaseConn() {
	if m.poolConn != nil {
		m.poolConn.Release()
		m.poolConn = nil
		m.conn = nil
	}
}
