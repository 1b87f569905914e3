// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package auth

import (
	"sync"
	"time"
)

// sessionKeyID names the single shared secret of the authentication service.
const sessionKeyID = "session"

// SessionVerifier validates session bearer tokens minted by the external
// authentication service. Its secret and policy can be swapped at runtime.
type SessionVerifier struct {
	mu     sync.RWMutex
	keys   *Keyring
	policy Policy
	now    func() time.Time
}

// NewSessionVerifier returns a verifier for HS256 session tokens.
func NewSessionVerifier(secret []byte, issuer, audience string) *SessionVerifier {
	v := &SessionVerifier{now: time.Now}
	v.Update(secret, issuer, audience)
	return v
}

// WithClock returns v reading time from now. Intended for tests.
func (v *SessionVerifier) WithClock(now func() time.Time) *SessionVerifier {
	v.now = now
	return v
}

// Update replaces the secret and expected issuer/audience.
func (v *SessionVerifier) Update(secret []byte, issuer, audience string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys = StaticKey(sessionKeyID, secret)
	v.policy = Policy{
		Issuer:        issuer,
		Audience:      audience,
		NotBeforeSkew: 30 * time.Second,
	}
}

// Verify checks token at the current time.
func (v *SessionVerifier) Verify(token string) (*Principal, error) {
	return v.VerifyAt(token, v.now())
}

// VerifyAt checks token at now and returns the authenticated principal.
func (v *SessionVerifier) VerifyAt(token string, now time.Time) (*Principal, error) {
	v.mu.RLock()
	keys, policy := v.keys, v.policy
	v.mu.RUnlock()

	claims, err := VerifyHS256(token, sessionKeys{keys}, policy, now)
	if err != nil {
		return nil, err
	}
	return &Principal{UserID: claims.Sub, SessionID: claims.Jti}, nil
}

// sessionKeys accepts any kid: the authentication service does not name its
// key, and there is only one.
type sessionKeys struct{ ring *Keyring }

func (s sessionKeys) Lookup(string) ([]byte, bool) {
	return s.ring.Lookup("")
}
