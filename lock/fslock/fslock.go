// Package fslock implements a filesystem backed lock manager. Locks are
// claim files under a configured directory: an exclusive hold is a
// single .excl file created with O_EXCL, a shared hold is one .sh file
// per holder. Coordination is limited to processes sharing the
// directory, which makes this manager suitable for single host
// deployments and local development.
package fslock

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stratofs/lockmgr/lock"
)

const (
	DefaultPollInterval = 50 * time.Millisecond
	DefaultStaleAge     = time.Hour
)

var (
	_ lock.Manager = (*Manager)(nil)
)

// Manager implements lock.Manager using lock files.
type Manager struct {
	config Config

	mu   sync.Mutex
	held map[heldKey]*holder
}

type heldKey struct {
	key string
	typ lock.Type
}

type holder struct {
	count int
	file  string
}

// New creates a filesystem lock manager rooted at dir. The directory is
// created when missing.
func New(dir string, options ...Option) (*Manager, error) {
	if dir == "" {
		return nil, fmt.Errorf("fslock: lock directory is required")
	}

	config := Config{
		Directory:    dir,
		PollInterval: DefaultPollInterval,
		StaleAge:     DefaultStaleAge,
	}
	for _, opt := range options {
		opt.Apply(&config)
	}

	if err := os.MkdirAll(config.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("fslock: creating lock directory: %w", err)
	}

	return &Manager{
		config: config,
		held:   make(map[heldKey]*holder),
	}, nil
}

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

// Lock acquires claim files for all paths or none of them, retrying
// until the context is cancelled while any path is contended.
func (m *Manager) Lock(ctx context.Context, t lock.Type, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acquired := make([]heldKey, 0, len(paths))
	for _, key := range hashPaths(paths) {
		if err := m.lockKey(ctx, t, key); err != nil {
			m.rollback(acquired)
			return err
		}
		acquired = append(acquired, heldKey{key: key, typ: t})
	}
	return nil
}

func (m *Manager) lockKey(ctx context.Context, t lock.Type, key string) error {
	hk := heldKey{key: key, typ: t}
	if h := m.held[hk]; h != nil {
		h.count++
		return nil
	}

	for {
		file, err := m.claim(t, key)
		if err == nil {
			m.held[hk] = &holder{count: 1, file: file}
			return nil
		}
		if !os.IsExist(err) {
			return err
		}

		m.reclaimStale(key)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.config.PollInterval):
		}
	}
}

// claim creates the claim file for one key. A shared claim is refused
// while an exclusive file exists; an exclusive claim is refused while
// any claim file exists. The O_EXCL create arbitrates between racing
// exclusive claimants.
func (m *Manager) claim(t lock.Type, key string) (string, error) {
	exclFile := filepath.Join(m.config.Directory, key+".excl")

	if t == lock.TypeShared {
		if _, err := os.Stat(exclFile); err == nil {
			return "", os.ErrExist
		}
		file := filepath.Join(m.config.Directory, key+".sh."+uuid.NewString())
		if err := m.create(file); err != nil {
			return "", err
		}
		// An exclusive claim may have won the race; back out.
		if _, err := os.Stat(exclFile); err == nil {
			_ = os.Remove(file)
			return "", os.ErrExist
		}
		return file, nil
	}

	if m.sharedHolders(key) > 0 {
		return "", os.ErrExist
	}
	if err := m.create(exclFile); err != nil {
		return "", err
	}
	if m.sharedHolders(key) > 0 {
		_ = os.Remove(exclFile)
		return "", os.ErrExist
	}
	return exclFile, nil
}

func (m *Manager) create(file string) error {
	f, err := os.OpenFile(file, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

func (m *Manager) sharedHolders(key string) int {
	matches, err := filepath.Glob(filepath.Join(m.config.Directory, key+".sh.*"))
	if err != nil {
		return 0
	}
	return len(matches)
}

// reclaimStale removes claim files older than StaleAge so a crashed
// holder does not block the path forever.
func (m *Manager) reclaimStale(key string) {
	matches, err := filepath.Glob(filepath.Join(m.config.Directory, key+".*"))
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-m.config.StaleAge)
	for _, file := range matches {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(file)
		}
	}
}

// Unlock removes claim files previously created by Lock.
func (m *Manager) Unlock(ctx context.Context, t lock.Type, paths ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range hashPaths(paths) {
		hk := heldKey{key: key, typ: t}
		h := m.held[hk]
		if h == nil {
			continue
		}
		if h.count > 1 {
			h.count--
			continue
		}

		if err := os.Remove(h.file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("fslock: removing claim file: %w", err)
		}
		delete(m.held, hk)
	}
	return nil
}

func (m *Manager) rollback(acquired []heldKey) {
	for _, hk := range acquired {
		h := m.held[hk]
		if h == nil {
			continue
		}
		if h.count > 1 {
			h.count--
			continue
		}
		_ = os.Remove(h.file)
		delete(m.held, hk)
	}
}
