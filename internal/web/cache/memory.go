package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type entry struct {
	value   []byte
	expires time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// MemoryCache is a process-local Cache. Expired entries are dropped on read
// and by a periodic sweep; Close stops the sweep.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	config  CacheConfig
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// NewMemoryCache creates a memory cache with DefaultCacheConfig
func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithConfig(DefaultCacheConfig(), time.Minute)
}

// NewMemoryCacheWithConfig creates a memory cache sweeping every interval
func NewMemoryCacheWithConfig(config CacheConfig, sweepInterval time.Duration) *MemoryCache {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	m := &MemoryCache{
		entries: make(map[string]entry),
		config:  config,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go m.sweepLoop(sweepInterval)
	return m
}

// Get returns the live value of key
func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	e, ok := m.entries[m.config.Prefix+key]
	m.mu.RUnlock()
	if !ok || e.expired(m.now()) {
		return nil, ErrCacheMiss{Key: key}
	}
	return e.value, nil
}

// Set stores value until ttl elapses; a negative ttl never expires
func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}
	e := entry{value: value}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[m.config.Prefix+key] = e
	m.mu.Unlock()
	return nil
}

// DeletePrefix removes every value whose key starts with prefix
func (m *MemoryCache) DeletePrefix(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full := m.config.Prefix + prefix
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if strings.HasPrefix(k, full) {
			delete(m.entries, k)
		}
	}
	return nil
}

// Len returns the number of stored entries, expired ones included
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Sweep drops expired entries
func (m *MemoryCache) Sweep() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
		}
	}
}

// Close stops the sweep goroutine
func (m *MemoryCache) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryCache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-m.done:
			return
		}
	}
}
