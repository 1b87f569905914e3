// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package entitlement

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/coursecast/internal/resilience"
)

// GuardedStore routes every call of the wrapped Store through a circuit
// breaker so a failing database answers fast with ErrTransient.
type GuardedStore struct {
	next    Store
	breaker *resilience.CircuitBreaker
}

// NewGuardedStore wraps next. ErrNotFound does not count as a failure.
func NewGuardedStore(next Store, threshold int, reset time.Duration) *GuardedStore {
	return &GuardedStore{
		next: next,
		breaker: resilience.NewCircuitBreaker("entitlement_store", threshold, reset,
			resilience.WithFailurePredicate(func(err error) bool {
				return !errors.Is(err, ErrNotFound)
			})),
	}
}

// LookupContent implements Store.
func (g *GuardedStore) LookupContent(ctx context.Context, id string) (Content, error) {
	var c Content
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		c, err = g.next.LookupContent(ctx, id)
		return err
	})
	return c, err
}

// LatestGrant implements Store.
func (g *GuardedStore) LatestGrant(ctx context.Context, userID string, contentIDs ...string) (Grant, error) {
	var gr Grant
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		gr, err = g.next.LatestGrant(ctx, userID, contentIDs...)
		return err
	})
	return gr, err
}

// BreakerState exposes the breaker state for health reporting.
func (g *GuardedStore) BreakerState() resilience.State {
	return g.breaker.State()
}
