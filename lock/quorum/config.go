package quorum

import "time"

// Config holds the configuration for the quorum lock manager.
type Config struct {
	// Prefix namespaces the volatile lock keys on the servers.
	Prefix string

	// TTL bounds how long a volatile lock survives without release, so
	// a crashed holder cannot block a path forever.
	TTL time.Duration

	// PollInterval is the delay between acquisition attempts while a
	// path is held elsewhere.
	PollInterval time.Duration
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

// WithPrefix returns an option that sets the key prefix.
func WithPrefix(value string) Option {
	return OptionFunc(func(c *Config) {
		c.Prefix = value
	})
}

// WithTTL returns an option that sets the volatile lock expiry.
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
