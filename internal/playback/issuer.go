// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package playback mints and verifies short-lived playback tokens scoped to
// a single video.
package playback

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ManuGH/coursecast/internal/auth"
	"github.com/ManuGH/coursecast/internal/entitlement"
	xglog "github.com/ManuGH/coursecast/internal/log"
	"github.com/ManuGH/coursecast/internal/metrics"
)

// Settings are the token parameters that can change on config reload.
type Settings struct {
	Issuer     string
	Audience   string
	DefaultTTL time.Duration
	MaxTTL     time.Duration
}

// Resolver is the entitlement decision source.
type Resolver interface {
	Resolve(ctx context.Context, userID, contentID string) (entitlement.Decision, error)
}

// Access describes the entitlement a token was minted under.
type Access struct {
	VideoID   string     `json:"videoId"`
	CourseID  string     `json:"courseId"`
	Free      bool       `json:"free"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// Issued is a freshly minted token.
type Issued struct {
	Token     string
	ExpiresIn int // seconds
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Access    Access
}

// Issuer mints playback tokens after a successful entitlement check.
type Issuer struct {
	resolver Resolver
	keys     *auth.Keyring
	settings atomic.Pointer[Settings]
	now      func() time.Time
	newID    func() string
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithIssuerClock replaces time.Now.
func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.now = now }
}

// WithTokenIDs replaces the jti generator.
func WithTokenIDs(newID func() string) IssuerOption {
	return func(i *Issuer) { i.newID = newID }
}

// NewIssuer creates an issuer signing with the active key of keys.
func NewIssuer(resolver Resolver, keys *auth.Keyring, s Settings, opts ...IssuerOption) (*Issuer, error) {
	i := &Issuer{resolver: resolver, keys: keys, now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(i)
	}
	if err := i.Update(s); err != nil {
		return nil, err
	}
	return i, nil
}

// Validate checks the TTL bounds.
func (s Settings) Validate() error {
	if s.DefaultTTL < time.Second {
		return fmt.Errorf("playback: default ttl %s too short", s.DefaultTTL)
	}
	if s.MaxTTL > 0 && s.DefaultTTL > s.MaxTTL {
		return fmt.Errorf("playback: default ttl %s exceeds max ttl %s", s.DefaultTTL, s.MaxTTL)
	}
	return nil
}

// Update swaps the token settings. Invalid settings leave the current ones
// in place.
func (i *Issuer) Update(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	i.settings.Store(&s)
	return nil
}

// Issue resolves the caller's entitlement on videoID and, only if granted,
// mints a token whose lifetime never outlives the entitlement.
func (i *Issuer) Issue(ctx context.Context, p *auth.Principal, videoID string) (Issued, error) {
	logger := xglog.WithComponentFromContext(ctx, "playback")

	if p == nil || p.UserID == "" {
		metrics.RecordTokenDenied(CodeUnauthenticated)
		return Issued{}, ErrUnauthenticated
	}

	d, err := i.resolver.Resolve(ctx, p.UserID, videoID)
	if err != nil {
		metrics.RecordTokenDenied(CodeUpstreamUnavailable)
		return Issued{}, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	now := i.now()
	if err := denial(d, now); err != nil {
		code, _, _ := Classify(err)
		metrics.RecordTokenDenied(code)
		logger.Info().
			Str(xglog.FieldEvent, "token.denied").
			Str(xglog.FieldUserID, p.UserID).
			Str(xglog.FieldVideoID, videoID).
			Str(xglog.FieldReason, code).
			Msg("playback token denied")
		return Issued{}, err
	}

	s := i.settings.Load()
	ttl := s.DefaultTTL.Truncate(time.Second)
	if remaining, bounded := d.Remaining(now); bounded && remaining < ttl {
		ttl = remaining.Truncate(time.Second)
	}

	iat := now.Truncate(time.Second)
	claims := auth.Claims{
		Iss: s.Issuer,
		Aud: s.Audience,
		Sub: p.UserID,
		Jti: i.newID(),
		Iat: iat.Unix(),
		Nbf: iat.Unix(),
		Exp: iat.Add(ttl).Unix(),
		Vid: d.Content.ID,
	}
	if apx := d.Content.AssetPrefix; apx != d.Content.ID {
		claims.Apx = apx
	}
	key := i.keys.Active()
	token, err := auth.GenerateHS256(key, claims)
	if err != nil {
		return Issued{}, fmt.Errorf("playback: sign token: %w", err)
	}

	metrics.RecordTokenIssued(ttl)
	logger.Info().
		Str(xglog.FieldEvent, "token.issued").
		Str(xglog.FieldUserID, p.UserID).
		Str(xglog.FieldVideoID, d.Content.ID).
		Str(xglog.FieldTokenID, claims.Jti).
		Str(xglog.FieldKeyID, key.ID).
		Int("expires_in", int(ttl/time.Second)).
		Msg("playback token issued")

	return Issued{
		Token:     token,
		ExpiresIn: int(ttl / time.Second),
		TokenID:   claims.Jti,
		IssuedAt:  iat,
		ExpiresAt: iat.Add(ttl),
		Access: Access{
			VideoID:   d.Content.ID,
			CourseID:  d.Content.CourseID,
			Free:      d.Content.Free,
			ExpiresAt: d.ExpiresAt,
		},
	}, nil
}

// denial maps a decision to an Issue error, or nil when a token may be
// minted. Courses are rejected: tokens are scoped to a single video.
func denial(d entitlement.Decision, now time.Time) error {
	if !d.Granted {
		switch d.Reason {
		case entitlement.ReasonAccessExpired:
			return ErrAccessExpired
		case entitlement.ReasonNotFound:
			return ErrNotFound
		default:
			return ErrNotPurchased
		}
	}
	if !d.Content.IsVideo() {
		return ErrNotFound
	}
	if remaining, bounded := d.Remaining(now); bounded && remaining < time.Second {
		return ErrAccessExpired
	}
	return nil
}
