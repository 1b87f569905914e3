// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package cache provides TTL key/value caches: an in-memory implementation
// and a Redis-backed one sharing the same interface.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Cache is a TTL key/value store. Backend failures are returned rather than
// reported as misses, so callers that must fail closed can do so.
type Cache interface {
	// Get reports found=false for missing and expired keys.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Stats() Stats
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Sets        int64
	Errors      int64 // backend failures
	Evictions   int64 // expired entries removed by the janitor
	CurrentSize int
}

// counters is shared by both implementations.
type counters struct {
	hits, misses, sets, errors, evictions atomic.Int64
}

func (c *counters) snapshot(size int) Stats {
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Sets:        c.sets.Load(),
		Errors:      c.errors.Load(),
		Evictions:   c.evictions.Load(),
		CurrentSize: size,
	}
}

type item struct {
	value     []byte
	expiresAt time.Time
}

// expired reports whether the item is past its deadline. An item is still
// valid at the exact expiry instant.
func (it item) expired(now time.Time) bool { return now.After(it.expiresAt) }

// MemoryCache keeps entries in a map guarded by a mutex.
type MemoryCache struct {
	counters

	mu    sync.RWMutex
	items map[string]item
	now   func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithMemoryClock replaces time.Now for expiry decisions.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCache) { c.now = now }
}

// NewMemoryCache returns an empty cache. A positive sweepEvery starts a
// janitor that drops expired entries until Close.
func NewMemoryCache(sweepEvery time.Duration, opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		items: make(map[string]item),
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if sweepEvery > 0 {
		go c.janitor(sweepEvery)
	}
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()

	if !ok || it.expired(c.now()) {
		c.misses.Add(1)
		return nil, false, nil
	}
	c.hits.Add(1)
	return it.value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	it := item{value: value, expiresAt: c.now().Add(ttl)}
	c.mu.Lock()
	c.items[key] = it
	c.mu.Unlock()
	c.sets.Add(1)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Ping(context.Context) error { return nil }

func (c *MemoryCache) Stats() Stats {
	c.mu.RLock()
	n := len(c.items)
	c.mu.RUnlock()
	return c.snapshot(n)
}

// Close stops the janitor. It is safe to call more than once.
func (c *MemoryCache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

// sweep removes expired entries and returns how many it dropped.
func (c *MemoryCache) sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for key, it := range c.items {
		if it.expired(now) {
			delete(c.items, key)
			dropped++
		}
	}
	c.evictions.Add(int64(dropped))
	return dropped
}

func (c *MemoryCache) janitor(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			c.sweep()
		}
	}
}
