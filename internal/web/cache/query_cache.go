package cache

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// QueryCache is a read-through cache of query results encoded as JSON. Backend
// failures are logged and treated as misses so a cache outage never fails a
// request.
type QueryCache struct {
	backend Cache
	ttl     time.Duration
	logger  *zap.Logger
}

// NewQueryCache wraps a backend; ttl 0 uses the backend default
func NewQueryCache(backend Cache, ttl time.Duration, logger *zap.Logger) *QueryCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryCache{backend: backend, ttl: ttl, logger: logger.Named("cache")}
}

// Get decodes the cached value of key into dst and reports whether it was found
func (c *QueryCache) Get(ctx context.Context, key string, dst interface{}) bool {
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !IsCacheMiss(err) {
			c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.logger.Warn("cache entry undecodable", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Set encodes v and stores it under key
func (c *QueryCache) Set(ctx context.Context, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cache entry unencodable", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops every cached query of a resource
func (c *QueryCache) Invalidate(ctx context.Context, resource string) {
	if err := c.backend.DeletePrefix(ctx, ResourcePrefix(resource)); err != nil {
		c.logger.Warn("cache invalidation failed", zap.String("resource", resource), zap.Error(err))
	}
}
