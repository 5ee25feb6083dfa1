// Package cache provides the read-through query cache of the operation
// pipeline over an in-memory or Redis backend.
package cache

import (
	"context"
	"time"
)

// Cache is the storage behind QueryCache. Implementations are safe for
// concurrent use.
type Cache interface {
	// Get returns ErrCacheMiss when key is absent or expired
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value; ttl 0 uses the backend default
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// DeletePrefix removes every value whose key starts with prefix
	DeletePrefix(ctx context.Context, prefix string) error
}

// CacheConfig holds common configuration for cache backends
type CacheConfig struct {
	// DefaultTTL applies when Set is given no ttl
	DefaultTTL time.Duration
	// Prefix is prepended to all cache keys
	Prefix string
}

// DefaultCacheConfig keeps entries five minutes under "betterquery:"
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		DefaultTTL: 5 * time.Minute,
		Prefix:     "betterquery:",
	}
}

// ErrCacheMiss is returned when a key is not found in the cache
type ErrCacheMiss struct {
	Key string
}

func (e ErrCacheMiss) Error() string {
	return "cache miss: " + e.Key
}

// IsCacheMiss checks if an error is a cache miss
func IsCacheMiss(err error) bool {
	_, ok := err.(ErrCacheMiss)
	return ok
}
