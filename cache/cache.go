// Package cache defines the process local cache handle that database
// backed lock managers use for lock bookkeeping state.
package cache

import "time"

type Cache interface {
	Set(key string, value any, ttl time.Duration) error
	Get(key string) (any, error)
	Remove(key ...string) error
	Keys(prefix string) []string
}
