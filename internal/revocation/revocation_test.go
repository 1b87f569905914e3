// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/ManuGH/coursecast/internal/cache"
	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRevokeWithMemoryCache(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	l := New(cache.NewMemoryCache(0, cache.WithMemoryClock(clock)), clock)
	ctx := context.Background()

	require.NoError(t, l.Revoke(ctx, "jti-1", now.Add(5*time.Minute)))
	require.NoError(t, l.Revoke(ctx, "jti-old", now.Add(-time.Second)))

	revoked, err := l.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = l.IsRevoked(ctx, "jti-old")
	require.NoError(t, err)
	assert.False(t, revoked, "expired tokens are not stored")

	now = now.Add(5*time.Minute + 2*time.Second)
	revoked, err = l.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked, "entry expires with the token")
}

func TestRevokeWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache(context.Background(), cache.RedisConfig{Addr: mr.Addr(), Prefix: "cc:"}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	l := New(rc, nil)
	ctx := context.Background()
	require.NoError(t, l.Revoke(ctx, "jti-1", time.Now().Add(time.Minute)))

	assert.True(t, mr.Exists("cc:revoked:jti-1"))
	ttl := mr.TTL("cc:revoked:jti-1")
	assert.Greater(t, ttl, 55*time.Second)
	assert.LessOrEqual(t, ttl, 61*time.Second)

	mr.FastForward(2 * time.Minute)
	revoked, err := l.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestIsRevokedFailsClosedOnBackendError(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache(context.Background(), cache.RedisConfig{Addr: mr.Addr()}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	mr.Close()

	_, err = New(rc, nil).IsRevoked(context.Background(), "jti-1")
	assert.ErrorIs(t, err, ErrUnavailable)
}
