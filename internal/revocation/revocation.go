// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package revocation keeps a deny list of playback token ids. Entries live
// exactly as long as the token they revoke, so the list never outgrows the
// set of tokens that are still cryptographically valid.
package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/coursecast/internal/cache"
)

// ErrUnavailable is returned when the backing cache cannot be reached.
var ErrUnavailable = errors.New("revocation: list unavailable")

const keyPrefix = "revoked:"

// List is a TTL-bounded deny list of token ids.
type List struct {
	cache cache.Cache
	now   func() time.Time
}

// New creates a List on top of c.
func New(c cache.Cache, now func() time.Time) *List {
	if now == nil {
		now = time.Now
	}
	return &List{cache: c, now: now}
}

// Revoke denies jti until expiresAt. Tokens that are already expired are
// skipped.
func (l *List) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(l.now())
	if ttl <= 0 {
		return nil
	}
	// One extra second covers the granularity of the exp claim.
	if err := l.cache.Set(ctx, keyPrefix+jti, []byte{1}, ttl+time.Second); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether jti is on the deny list.
func (l *List) IsRevoked(ctx context.Context, jti string) (bool, error) {
	_, found, err := l.cache.Get(ctx, keyPrefix+jti)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return found, nil
}
