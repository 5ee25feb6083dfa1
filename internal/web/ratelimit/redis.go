package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims a sorted set of hit timestamps to the window,
// then adds the hit when the remaining count is below the limit. It returns
// {allowed, count, oldest score}.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])
	local member = ARGV[5]

	redis.call('ZREMRANGEBYSCORE', key, 0, window_start)
	local current = redis.call('ZCARD', key)

	local allowed = 0
	if current < limit then
		redis.call('ZADD', key, now, member)
		current = current + 1
		allowed = 1
	end
	redis.call('PEXPIRE', key, ttl)

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local oldest_score = now
	if oldest[2] then
		oldest_score = tonumber(oldest[2])
	end
	return {allowed, current, tostring(oldest_score)}
`)

// RedisRateLimiter is a Limiter shared by every process using the same Redis
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
	seq    atomic.Uint64
}

// NewRedisRateLimiter creates a Redis limiter; keys are stored under prefix
func NewRedisRateLimiter(client redis.UniversalClient, prefix string) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisRateLimiter{client: client, prefix: prefix}, nil
}

// Allow records a hit for key unless max hits already fall inside the window
func (r *RedisRateLimiter) Allow(ctx context.Context, key string, window time.Duration, max int) (*RateLimitInfo, error) {
	if window <= 0 {
		return nil, errors.New("window must be greater than 0")
	}
	now := time.Now()
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + strconv.FormatUint(r.seq.Add(1), 10)

	result, err := slidingWindowScript.Run(ctx, r.client, []string{r.prefix + key},
		now.UnixNano(),
		now.Add(-window).UnixNano(),
		max,
		window.Milliseconds(),
		member,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return nil, errors.New("unexpected redis script result")
	}
	allowed, ok1 := values[0].(int64)
	count, ok2 := values[1].(int64)
	oldestRaw, ok3 := values[2].(string)
	if !ok1 || !ok2 || !ok3 {
		return nil, errors.New("unexpected redis script result")
	}
	oldest, err := strconv.ParseFloat(oldestRaw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid oldest score from redis: %w", err)
	}

	remaining := max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return &RateLimitInfo{
		Limit:     max,
		Remaining: remaining,
		ResetAt:   time.Unix(0, int64(oldest)).Add(window),
		Allowed:   allowed == 1,
	}, nil
}

// Reset removes all rate limit data for the given key
func (r *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

// GetCount returns the number of hits of key inside the window
func (r *RedisRateLimiter) GetCount(ctx context.Context, key string, window time.Duration) (int, error) {
	redisKey := r.prefix + key
	windowStart := time.Now().Add(-window)

	pipe := r.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	countCmd := pipe.ZCard(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to get count: %w", err)
	}
	return int(countCmd.Val()), nil
}
