package fslock

import "time"

// Config holds the configuration for the filesystem lock manager.
type Config struct {
	// Directory is where lock files are kept. Required.
	Directory string

	// PollInterval is the delay between acquisition attempts while a
	// path is held elsewhere.
	PollInterval time.Duration

	// StaleAge is the age past which a lock file left behind by a
	// crashed process is reclaimed.
	StaleAge time.Duration
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

// WithPollInterval returns an option that sets the retry delay for
// contended locks.
func WithPollInterval(value time.Duration) Option {
	return OptionFunc(func(c *Config) {
		c.PollInterval = value
	})
}

// WithStaleAge returns an option that sets the reclaim age for
// abandoned lock files.
func WithStaleAge(value time.Duration) Option {
	return OptionFunc(func(c *Config) {
		c.StaleAge = value
	})
}
