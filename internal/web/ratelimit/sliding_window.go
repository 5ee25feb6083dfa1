package ratelimit

import (
	"context"
	"sync"
	"time"
)

// SlidingWindow is an in-memory Limiter. Each key keeps the timestamps of its
// recent hits; a background sweep drops keys with no hit inside maxWindow.
type SlidingWindow struct {
	mu        sync.Mutex
	hits      map[string][]time.Time
	maxWindow time.Duration
	now       func() time.Time
	done      chan struct{}
	closeOnce sync.Once
}

// SlidingWindowConfig holds configuration for the in-memory limiter
type SlidingWindowConfig struct {
	// CleanupInterval is how often stale keys are swept
	CleanupInterval time.Duration
	// MaxWindow is the longest window callers use; older hits are swept
	MaxWindow time.Duration
}

// DefaultSlidingWindowConfig sweeps every minute and keeps an hour of history
func DefaultSlidingWindowConfig() SlidingWindowConfig {
	return SlidingWindowConfig{
		CleanupInterval: time.Minute,
		MaxWindow:       time.Hour,
	}
}

// NewSlidingWindow creates an in-memory limiter and starts its sweep goroutine.
// Call Close to stop it.
func NewSlidingWindow(config SlidingWindowConfig) *SlidingWindow {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}
	if config.MaxWindow <= 0 {
		config.MaxWindow = time.Hour
	}
	sw := &SlidingWindow{
		hits:      make(map[string][]time.Time),
		maxWindow: config.MaxWindow,
		now:       time.Now,
		done:      make(chan struct{}),
	}
	go sw.sweepLoop(config.CleanupInterval)
	return sw
}

// Allow records a hit for key unless max hits already fall inside the window
func (sw *SlidingWindow) Allow(ctx context.Context, key string, window time.Duration, max int) (*RateLimitInfo, error) {
	now := sw.now()
	cutoff := now.Add(-window)

	sw.mu.Lock()
	defer sw.mu.Unlock()

	recent := prune(sw.hits[key], cutoff)
	info := &RateLimitInfo{Limit: max}

	if len(recent) >= max {
		sw.hits[key] = recent
		info.Allowed = false
		info.Remaining = 0
		if len(recent) > 0 {
			info.ResetAt = recent[0].Add(window)
		}
		return info, nil
	}

	recent = append(recent, now)
	sw.hits[key] = recent
	info.Allowed = true
	info.Remaining = max - len(recent)
	info.ResetAt = recent[0].Add(window)
	return info, nil
}

// Reset forgets every hit of key
func (sw *SlidingWindow) Reset(key string) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	delete(sw.hits, key)
}

// Len returns the number of tracked keys
func (sw *SlidingWindow) Len() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return len(sw.hits)
}

// Sweep drops hits older than the maximum window and keys left empty
func (sw *SlidingWindow) Sweep() {
	cutoff := sw.now().Add(-sw.maxWindow)

	sw.mu.Lock()
	defer sw.mu.Unlock()
	for key, hits := range sw.hits {
		recent := prune(hits, cutoff)
		if len(recent) == 0 {
			delete(sw.hits, key)
			continue
		}
		sw.hits[key] = recent
	}
}

// Close stops the sweep goroutine
func (sw *SlidingWindow) Close() {
	sw.closeOnce.Do(func() { close(sw.done) })
}

func (sw *SlidingWindow) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sw.Sweep()
		case <-sw.done:
			return
		}
	}
}

// prune drops timestamps at or before cutoff; hits are kept in arrival order
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return hits
	}
	return append([]time.Time(nil), hits[i:]...)
}
