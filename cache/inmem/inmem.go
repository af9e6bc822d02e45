package inmem

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/stratofs/lockmgr/cache"
)

var (
	ErrNotFound = errors.New("key not found")
)

var (
	_ cache.Cache = (*Cache)(nil)
)

// item represents a cache item with a value and an expiration time.
type item struct {
	value  any
	expiry time.Time
}

// isExpired checks if the cache item has expired.
func (i item) isExpired() bool {
	return time.Now().After(i.expiry)
}

// Cache is a process local cache with time-to-live (TTL) expiration.
// It backs the lock bookkeeping state of database backed lock managers.
type Cache struct {
	mu    sync.Mutex
	items map[string]item
	stop  chan struct{}
	once  sync.Once
}

// New creates a new cache and starts a goroutine that removes expired
// items every 5 seconds. Call Stop when the cache is no longer needed.
func New() *Cache {
	c := &Cache{
		items: make(map[string]item),
		stop:  make(chan struct{}),
	}

	go c.janitor()

	return c
}

func (c *Cache) janitor() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			for key, item := range c.items {
				if item.isExpired() {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}

// Stop terminates the expiry goroutine. The cache stays usable but no
// longer evicts expired items in the background.
func (c *Cache) Stop() {
	c.once.Do(func() {
		close(c.stop)
	})
}

// Set adds an item to the cache with the given time-to-live.
func (c *Cache) Set(key string, value any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = item{
		value:  value,
		expiry: time.Now().Add(ttl),
	}
	return nil
}

// Get retrieves the value for key or ErrNotFound when the key is
// missing or expired.
func (c *Cache) Get(key string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found || item.isExpired() {
		delete(c.items, key)
		return nil, ErrNotFound
	}
	return item.value, nil
}

// Remove deletes the given keys from the cache.
func (c *Cache) Remove(keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		delete(c.items, key)
	}
	return nil
}

// Keys returns all live keys starting with prefix.
func (c *Cache) Keys(prefix string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.items))
	for key, item := range c.items {
		if item.isExpired() {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys
}
