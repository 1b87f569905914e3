// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package entitlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	xglog "github.com/ManuGH/coursecast/internal/log"
	"github.com/ManuGH/coursecast/internal/metrics"
)

// Resolver answers "can user U play content C right now?".
type Resolver struct {
	store Store
	now   func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a resolver reading from store.
func NewResolver(store Store, opts ...Option) *Resolver {
	r := &Resolver{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Now returns the resolver's notion of the current time.
func (r *Resolver) Now() time.Time {
	return r.now()
}

// Resolve returns the entitlement decision for userID on contentID, which may
// name a video or a course. A non-nil error always wraps ErrTransient and the
// returned decision is then a zero (not granted) value.
func (r *Resolver) Resolve(ctx context.Context, userID, contentID string) (Decision, error) {
	start := time.Now()
	d, err := r.resolve(ctx, userID, contentID)

	outcome := "granted"
	switch {
	case err != nil:
		outcome = "error"
		logger := xglog.WithComponentFromContext(ctx, "entitlement")
		logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "entitlement.store_failed").
			Str(xglog.FieldUserID, userID).
			Str(xglog.FieldVideoID, contentID).
			Msg("entitlement lookup failed")
	case !d.Granted:
		outcome = strings.ToLower(string(d.Reason))
	}
	metrics.ObserveEntitlementResolve(outcome, time.Since(start))
	return d, err
}

func (r *Resolver) resolve(ctx context.Context, userID, contentID string) (Decision, error) {
	content, err := r.store.LookupContent(ctx, contentID)
	if errors.Is(err, ErrNotFound) {
		return denied(Content{ID: contentID}, ReasonNotFound), nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("%w: lookup content %q: %w", ErrTransient, contentID, err)
	}

	if content.Free {
		return granted(content, nil), nil
	}

	ids := []string{content.ID}
	if content.IsVideo() {
		ids = append(ids, content.CourseID)
	}

	// A repurchase supersedes older grants on the same content only. The
	// video grant and the course grant are judged independently.
	now := r.now()
	var (
		best  *Grant
		found bool
	)
	for _, id := range ids {
		grant, err := r.store.LatestGrant(ctx, userID, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return Decision{}, fmt.Errorf("%w: lookup grant on %q: %w", ErrTransient, id, err)
		}
		found = true
		if grant.ValidAt(now) && (best == nil || outlasts(grant, *best)) {
			best = &grant
		}
	}

	switch {
	case !found:
		return denied(content, ReasonNotPurchased), nil
	case best == nil:
		return denied(content, ReasonAccessExpired), nil
	}
	return granted(content, best.ExpiresAt()), nil
}

// outlasts reports whether a ends after b. Unlimited grants outlast any
// bounded one.
func outlasts(a, b Grant) bool {
	ea, eb := a.ExpiresAt(), b.ExpiresAt()
	switch {
	case ea == nil:
		return eb != nil
	case eb == nil:
		return false
	}
	return ea.After(*eb)
}
