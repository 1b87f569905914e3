// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyring_Rotation(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	old := Key{ID: "2025-01", Secret: []byte("old-secret-old-secret-old-secret")}
	next := Key{ID: "2025-02", Secret: []byte("new-secret-new-secret-new-secret")}

	ring, err := NewKeyring(old.ID, old)
	require.NoError(t, err)
	oldToken, err := GenerateHS256(ring.Active(), validClaims(now.Unix()))
	require.NoError(t, err)

	// Rotate: next becomes active, old stays verify-only.
	require.NoError(t, ring.Replace(next.ID, old, next))
	assert.Equal(t, next.ID, ring.Active().ID)

	newToken, err := GenerateHS256(ring.Active(), validClaims(now.Unix()))
	require.NoError(t, err)

	for _, tok := range []string{oldToken, newToken} {
		_, err := VerifyHS256(tok, ring, testPolicy, now)
		require.NoError(t, err)
	}

	// Retire old.
	require.NoError(t, ring.Replace(next.ID, next))
	_, err = VerifyHS256(oldToken, ring, testPolicy, now)
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestKeyring_ReplaceRejectsBadSets(t *testing.T) {
	ring := StaticKey("a", []byte("secret"))

	err := ring.Replace("missing", Key{ID: "a", Secret: []byte("x")})
	assert.True(t, errors.Is(err, ErrNoActiveKey))

	assert.Error(t, ring.Replace("a", Key{ID: "a", Secret: []byte("x")}, Key{ID: "a", Secret: []byte("y")}))
	assert.Error(t, ring.Replace("a", Key{ID: "a"}))

	// A failed replace leaves the previous set in place.
	assert.Equal(t, "a", ring.Active().ID)
	s, ok := ring.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, []byte("secret"), s)
}

func TestKeyring_LookupEmptyKidUsesActive(t *testing.T) {
	ring := StaticKey("only", []byte("s"))
	s, ok := ring.Lookup("")
	require.True(t, ok)
	assert.Equal(t, []byte("s"), s)
}

func TestSessionVerifier(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	secret := []byte("session-secret-session-secret-32")
	v := NewSessionVerifier(secret, "auth", "coursecast/api")

	claims := Claims{Iss: "auth", Aud: "coursecast/api", Sub: "user-42", Jti: "s-1", Iat: now.Unix(), Exp: now.Add(24 * time.Hour).Unix()}
	token, err := GenerateHS256(Key{Secret: secret}, claims)
	require.NoError(t, err)

	p, err := v.VerifyAt(token, now)
	require.NoError(t, err)
	assert.Equal(t, "user-42", p.UserID)
	assert.Equal(t, "s-1", p.SessionID)

	_, err = v.VerifyAt(token, now.Add(25*time.Hour))
	assert.ErrorIs(t, err, ErrTokenExpired)

	v.Update([]byte("rotated-rotated-rotated-rotated!"), "auth", "coursecast/api")
	_, err = v.VerifyAt(token, now)
	assert.ErrorIs(t, err, ErrInvalidSig)
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"bearer   abc ", "abc"},
		{"Basic dXNlcjpwYXNz", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, ExtractBearer(r), tt.header)
	}
	assert.Empty(t, ExtractBearer(nil))
}

func TestPrincipalContext(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, PrincipalFromContext(r.Context()))
	ctx := WithPrincipal(r.Context(), &Principal{UserID: "u"})
	require.NotNil(t, PrincipalFromContext(ctx))
	assert.Equal(t, "u", PrincipalFromContext(ctx).UserID)
}
