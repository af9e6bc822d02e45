package sqldb

import (
	"time"

	"github.com/stratofs/lockmgr/cache"
)

// Config holds the configuration for the SQL lock manager.
type Config struct {
	// Table is the name of the lock bookkeeping table.
	Table string

	// TTL bounds how long a lock row stays valid. Rows past their
	// expiry are treated as released, so a crashed process cannot hold
	// a path forever.
	TTL time.Duration

	// PollInterval is the delay between acquisition attempts while a
	// path is held elsewhere.
	PollInterval time.Duration

	// Cache is the optional process local cache used to short-circuit
	// conflict checks between managers in the same process.
	Cache cache.Cache
}

// Option configures a lock manager instance.
type Option interface {
	Apply(*Config)
}

// OptionFunc is a function that configures a lock config.
type OptionFunc func(*Config)

// Apply calls f(config).
func (f OptionFunc) Apply(config *Config) {
	f(config)
}

// WithTable returns an option that sets the bookkeeping table name.
func WithTable(value string) Option {
	return OptionFunc(func(c *Config) {
		c.Table = value
	})
}

// WithTTL returns an option that sets the lock row expiry.
func WithTTL(value time.Duration) Option {
	return OptionFunc(func(c *Config) {
		c.TTL = value
	})
}

// WithPollInterval returns an option that sets the retry delay for
// contended locks.
func WithPollInterval(value time.Duration) Option {
	return OptionFunc(func(c *Config) {
		c.PollInterval = value
	})
}

// WithCache returns an option that attaches the process local cache.
func WithCache(value cache.Cache) Option {
	return OptionFunc(func(c *Config) {
		c.Cache = value
	})
}
