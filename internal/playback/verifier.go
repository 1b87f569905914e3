// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/ManuGH/coursecast/internal/auth"
)

// ErrScopeMismatch is returned when a valid token is presented for a video
// other than the one it was minted for.
var ErrScopeMismatch = errors.New("playback: token not valid for this video")

// Verifier checks playback tokens on every gateway request.
type Verifier struct {
	keys   auth.KeySource
	policy atomic.Pointer[auth.Policy]
	now    func() time.Time
}

// NewVerifier returns a verifier accepting tokens signed by any key in keys.
func NewVerifier(keys auth.KeySource, s Settings) *Verifier {
	v := &Verifier{keys: keys, now: time.Now}
	v.Update(s)
	return v
}

// WithClock returns v reading time from now. Intended for tests.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Update swaps the expected issuer, audience and TTL bound.
func (v *Verifier) Update(s Settings) {
	v.policy.Store(&auth.Policy{
		Issuer:        s.Issuer,
		Audience:      s.Audience,
		MaxTTL:        s.MaxTTL,
		NotBeforeSkew: 30 * time.Second,
		RequireNbf:    true,
		RequireJti:    true,
	})
}

// Now returns the verifier's current time.
func (v *Verifier) Now() time.Time {
	return v.now()
}

// Verify checks signature, expiry and policy and, when videoID is not
// empty, that the token is scoped to videoID.
func (v *Verifier) Verify(token, videoID string) (*auth.Claims, error) {
	claims, err := auth.VerifyHS256(token, v.keys, *v.policy.Load(), v.now())
	if err != nil {
		return nil, err
	}
	if claims.Vid == "" {
		return nil, auth.ErrTokenMalformed
	}
	if videoID != "" && claims.Vid != videoID {
		return claims, ErrScopeMismatch
	}
	return claims, nil
}
