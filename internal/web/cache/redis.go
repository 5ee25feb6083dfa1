package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// scanBatch bounds both SCAN page size and DEL batch size
const scanBatch = 100

// RedisCache is a Cache shared by every process using the same Redis. The
// client is owned by the caller.
type RedisCache struct {
	client redis.UniversalClient
	config CacheConfig
}

// NewRedisCache wraps an existing client
func NewRedisCache(client redis.UniversalClient, config CacheConfig) *RedisCache {
	return &RedisCache{client: client, config: config}
}

// Get returns the value of key
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.config.Prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss{Key: key}
	}
	return value, err
}

// Set stores value with ttl; ttl 0 uses the configured default
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = r.config.DefaultTTL
	}
	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(ctx, r.config.Prefix+key, value, ttl).Err()
}

// DeletePrefix removes every value whose key starts with prefix. Keys are
// found with SCAN so large keyspaces never block the server.
func (r *RedisCache) DeletePrefix(ctx context.Context, prefix string) error {
	iter := r.client.Scan(ctx, 0, escapePattern(r.config.Prefix+prefix)+"*", scanBatch).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return r.client.Del(ctx, batch...).Err()
	}
	return nil
}

// escapePattern escapes glob metacharacters for SCAN MATCH
func escapePattern(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
