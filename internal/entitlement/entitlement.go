// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package entitlement decides whether a user may currently stream a video
// or course, and until when.
package entitlement

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by a Store when the content or grant does not exist.
	ErrNotFound = errors.New("entitlement: not found")
	// ErrTransient marks failures of the backing store. Callers must treat it
	// as "try again", never as a denial or a grant.
	ErrTransient = errors.New("entitlement: store unavailable")
)

// Reason explains a denied decision.
type Reason string

const (
	ReasonNotPurchased  Reason = "NOT_PURCHASED"
	ReasonAccessExpired Reason = "ACCESS_EXPIRED"
	ReasonNotFound      Reason = "NOT_FOUND"
)

// Content is a video or a course. For a course, CourseID equals ID.
type Content struct {
	ID          string
	CourseID    string
	Title       string
	Free        bool
	AssetPrefix string
}

// IsVideo reports whether c refers to a single video inside a course.
func (c Content) IsVideo() bool {
	return c.ID != c.CourseID
}

// Grant is a purchase or free-grant record. A nil AccessDurationDays means
// unlimited access.
type Grant struct {
	UserID             string
	ContentID          string
	GrantedAt          time.Time
	AccessDurationDays *int
	Source             string // purchase, free, admin
}

// ExpiresAt returns the end of the access window, nil when unlimited.
func (g Grant) ExpiresAt() *time.Time {
	if g.AccessDurationDays == nil {
		return nil
	}
	t := g.GrantedAt.Add(time.Duration(*g.AccessDurationDays) * 24 * time.Hour)
	return &t
}

// ValidAt reports whether the grant is valid at now. The boundary instant
// itself is still valid.
func (g Grant) ValidAt(now time.Time) bool {
	exp := g.ExpiresAt()
	return exp == nil || !now.After(*exp)
}

// Days is a helper for building grants with a bounded duration.
func Days(n int) *int {
	return &n
}

// Decision is the outcome of Resolve.
type Decision struct {
	Granted   bool
	Reason    Reason
	ExpiresAt *time.Time
	Content   Content
}

// Remaining returns how long the decision stays valid after now. The second
// result is false when access is unlimited.
func (d Decision) Remaining(now time.Time) (time.Duration, bool) {
	if d.ExpiresAt == nil {
		return 0, false
	}
	return d.ExpiresAt.Sub(now), true
}

func granted(c Content, exp *time.Time) Decision {
	return Decision{Granted: true, ExpiresAt: exp, Content: c}
}

func denied(c Content, reason Reason) Decision {
	return Decision{Reason: reason, Content: c}
}

// Store is the read side of the purchase/entitlement record store.
type Store interface {
	// LookupContent returns the video or course with the given id, or ErrNotFound.
	LookupContent(ctx context.Context, id string) (Content, error)
	// LatestGrant returns the most recent grant of userID on any of
	// contentIDs, or ErrNotFound.
	LatestGrant(ctx context.Context, userID string, contentIDs ...string) (Grant, error)
}
