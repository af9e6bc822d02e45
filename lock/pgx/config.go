package pgx

// Config holds the configuration for the advisory lock manager.
type Config struct {
	// Namespace separates locks of different domains sharing one
	// database. It is used as the first key of the advisory lock pair.
	Namespace int32
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

// WithNamespace returns an option that sets the advisory lock
// namespace.
func WithNamespace(value int32) Option {
	return OptionFunc(func(c *Config) {
		c.Namespace = value
	})
}
