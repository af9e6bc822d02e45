// Package quorum implements a cache backed lock manager over one or
// more Redis compatible servers. A lock on a path is held once a
// majority of servers accept the claim, so the manager stays available
// while a minority of servers is down. Locks are volatile with a TTL;
// there is no renewal, long critical sections should size the TTL
// accordingly.
package quorum

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stratofs/lockmgr/lock"
)

const (
	DefaultPrefix       = "lockmgr"
	DefaultTTL          = 60 * time.Second
	DefaultPollInterval = 50 * time.Millisecond
)

var (
	_ lock.Manager = (*Manager)(nil)
)

var errContended = errors.New("lock contended")

// acquireScript claims one path on one server. KEYS[1] is the exclusive
// key, KEYS[2] the shared holder set. ARGV: mode ("ex"/"sh"), holder
// token, TTL in milliseconds.
var acquireScript = redis.NewScript(`
if ARGV[1] == "ex" then
    local cur = redis.call("GET", KEYS[1])
    if cur and cur ~= ARGV[2] then return 0 end
    if redis.call("SCARD", KEYS[2]) > 0 then return 0 end
    redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
    return 1
end
if redis.call("EXISTS", KEYS[1]) == 1 then return 0 end
redis.call("SADD", KEYS[2], ARGV[2])
redis.call("PEXPIRE", KEYS[2], ARGV[3])
return 1
`)

// releaseScript undoes acquireScript for the same holder token.
var releaseScript = redis.NewScript(`
if ARGV[1] == "ex" then
    if redis.call("GET", KEYS[1]) == ARGV[2] then
        redis.call("DEL", KEYS[1])
    end
    return 1
end
redis.call("SREM", KEYS[2], ARGV[2])
return 1
`)

// Manager implements lock.Manager over a quorum of servers.
type Manager struct {
	config  Config
	clients []redis.UniversalClient
	token   string

	mu   sync.Mutex
	held map[heldKey]int
}

type heldKey struct {
	key string
	typ lock.Type
}

// New creates a quorum lock manager over the given clients. At least
// one client is required; the majority threshold is len(clients)/2+1.
func New(clients []redis.UniversalClient, options ...Option) (*Manager, error) {
	if len(clients) == 0 {
		return nil, fmt.Errorf("quorum: at least one server is required")
	}

	config := Config{
		Prefix:       DefaultPrefix,
		TTL:          DefaultTTL,
		PollInterval: DefaultPollInterval,
	}
	for _, opt := range options {
		opt.Apply(&config)
	}

	return &Manager{
		config:  config,
		clients: clients,
		token:   uuid.NewString(),
		held:    make(map[heldKey]int),
	}, nil
}

func (m *Manager) quorum() int {
	return len(m.clients)/2 + 1
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

func (m *Manager) scriptKeys(key string) []string {
	return []string{
		m.config.Prefix + ":excl:" + key,
		m.config.Prefix + ":sh:" + key,
	}
}

func mode(t lock.Type) string {
	if t == lock.TypeShared {
		return "sh"
	}
	return "ex"
}

// Lock acquires quorum locks for all paths or none of them, retrying
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
	if m.held[hk] > 0 {
		m.held[hk]++
		return nil
	}

	for {
		err := m.claim(ctx, t, key)
		if err == nil {
			m.held[hk] = 1
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

// claim runs the acquire script on every server and requires a
// majority of acceptances. A lost claim is rolled back everywhere so a
// minority acceptance cannot shadow-block other claimants.
func (m *Manager) claim(ctx context.Context, t lock.Type, key string) error {
	ttl := m.config.TTL.Milliseconds()
	wins := 0
	var lastErr error
	for _, client := range m.clients {
		ok, err := acquireScript.Run(ctx, client, m.scriptKeys(key), mode(t), m.token, ttl).Int()
		if err != nil {
			lastErr = err
			continue
		}
		wins += ok
	}

	if wins >= m.quorum() {
		return nil
	}

	m.releaseKey(ctx, t, key)
	if lastErr != nil && wins == 0 {
		return fmt.Errorf("quorum: acquiring lock: %w", lastErr)
	}
	return errContended
}

func (m *Manager) releaseKey(ctx context.Context, t lock.Type, key string) {
	for _, client := range m.clients {
		_, _ = releaseScript.Run(ctx, client, m.scriptKeys(key), mode(t), m.token).Result()
	}
}

// Unlock releases quorum locks previously acquired with Lock.
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

		m.releaseKey(ctx, t, key)
		delete(m.held, hk)
	}
	return nil
}

func (m *Manager) rollback(acquired []heldKey) {
	for _, hk := range acquired {
		if m.held[hk] > 1 {
			m.held[hk]--
			continue
		}
		m.releaseKey(context.Background(), hk.typ, hk.key)
		delete(m.held, hk)
	}
}
