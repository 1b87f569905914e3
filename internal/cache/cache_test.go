// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryCache_SetGetExpire(t *testing.T) {
	clock := &stepClock{now: time.Unix(1_700_000_000, 0)}
	c := NewMemoryCache(0, WithMemoryClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 10*time.Second))
	v, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), v)

	clock.Advance(10 * time.Second)
	_, found, _ = c.Get(ctx, "k")
	assert.True(t, found, "entry is valid up to its expiration instant")

	clock.Advance(time.Nanosecond)
	_, found, _ = c.Get(ctx, "k")
	assert.False(t, found)

	assert.Equal(t, 1, c.sweep())
	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Evictions)
	assert.Equal(t, 0, stats.CurrentSize)
}

func TestMemoryCache_Delete(t *testing.T) {
	c := NewMemoryCache(0)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))
	_, found, _ := c.Get(ctx, "k")
	assert.False(t, found)
}

func TestMemoryCache_JanitorStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := NewMemoryCache(time.Millisecond)
	require.NoError(t, c.Set(context.Background(), "k", []byte("v"), time.Nanosecond))
	require.Eventually(t, func() bool { return c.Stats().CurrentSize == 0 }, time.Second, time.Millisecond)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "Close is idempotent")
}
