// Package ratelimit implements sliding-window rate limiting keyed by an
// arbitrary string, in memory or in Redis.
package ratelimit

import (
	"context"
	"time"
)

// Limiter records a hit for key and reports whether it stays within max hits
// over the trailing window
type Limiter interface {
	Allow(ctx context.Context, key string, window time.Duration, max int) (*RateLimitInfo, error)
}

// RateLimitInfo contains information about the current rate limit state
type RateLimitInfo struct {
	// Limit is the maximum number of requests allowed in the window
	Limit int
	// Remaining is the number of requests remaining in the current window
	Remaining int
	// ResetAt is when the oldest counted request leaves the window
	ResetAt time.Time
	// Allowed indicates whether the request should be allowed
	Allowed bool
}

// RetryAfter returns how long a denied caller should wait
func (i *RateLimitInfo) RetryAfter(now time.Time) time.Duration {
	if i.Allowed || !i.ResetAt.After(now) {
		return 0
	}
	return i.ResetAt.Sub(now)
}
