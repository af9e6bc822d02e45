// Package lock defines the lock manager contract used by the file
// storage backend to serialize access to abstract file paths across a
// cluster of stateless processes.
package lock

import "context"

// Type selects the lock mode for a set of paths.
type Type int

const (
	// TypeShared allows concurrent holders; it conflicts only with
	// exclusive locks on the same path.
	TypeShared Type = iota + 1

	// TypeExclusive conflicts with every other lock on the same path.
	TypeExclusive
)

// String returns the lock type name.
func (t Type) String() string {
	switch t {
	case TypeShared:
		return "shared"
	case TypeExclusive:
		return "exclusive"
	default:
		return "unknown"
	}
}

// Manager serializes access to abstract resource paths. Implementations
// coordinate through a shared backend (database, filesystem, cache
// quorum) and are constructed through the registry package.
type Manager interface {
	// Lock acquires locks of the given type on all paths or none of
	// them. Acquisition blocks until the locks are available or the
	// context is cancelled.
	Lock(ctx context.Context, t Type, paths ...string) error

	// Unlock releases locks previously acquired with the same type and
	// paths. Releasing locks that are not held is not an error.
	Unlock(ctx context.Context, t Type, paths ...string) error
}
