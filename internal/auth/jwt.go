// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// JWT error classifications for strict 401/403 mapping.
var (
	ErrTokenMissing    = errors.New("token missing")
	ErrTokenMalformed  = errors.New("token malformed")
	ErrInvalidAlg      = errors.New("invalid algorithm: must be HS256")
	ErrInvalidSig      = errors.New("invalid signature")
	ErrUnknownKey      = errors.New("unknown signing key")
	ErrTokenExpired    = errors.New("token expired")
	ErrTokenNotActive  = errors.New("token not yet active (nbf)")
	ErrMissingIAT      = errors.New("missing iat claim")
	ErrMissingExp      = errors.New("missing exp claim")
	ErrMissingNbf      = errors.New("missing nbf claim")
	ErrMissingSub      = errors.New("missing sub claim")
	ErrMissingJti      = errors.New("missing jti claim")
	ErrMismatchIss     = errors.New("issuer mismatch")
	ErrMismatchAud     = errors.New("audience mismatch")
	ErrTokenTTLTooLong = errors.New("token ttl exceeds maximum allowed policy duration")
)

// Claims is the claim set shared by session and playback tokens. Vid is only
// set on playback tokens and binds the token to a single video. Apx names the
// video's asset directory when it differs from Vid.
type Claims struct {
	Iss string `json:"iss"`
	Aud string `json:"aud"`
	Sub string `json:"sub"`
	Jti string `json:"jti,omitempty"`
	Iat int64  `json:"iat"`
	Nbf int64  `json:"nbf,omitempty"`
	Exp int64  `json:"exp"`
	Vid string `json:"vid,omitempty"`
	Apx string `json:"apx,omitempty"`
}

// ExpiresAt returns exp as a time.
func (c Claims) ExpiresAt() time.Time {
	return time.Unix(c.Exp, 0)
}

// Header is the JOSE header. Kid selects the verification key.
type Header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
	Kid string `json:"kid,omitempty"`
}

// Policy lists what a verifier demands of a token beyond a valid signature.
type Policy struct {
	Issuer   string
	Audience string
	// MaxTTL bounds exp-iat. Zero disables the bound.
	MaxTTL time.Duration
	// NotBeforeSkew tolerates clock drift on nbf only. Expiry is never skewed.
	NotBeforeSkew time.Duration
	RequireNbf    bool
	RequireJti    bool
}

// GenerateHS256 signs claims with key and stamps key.ID into the header.
func GenerateHS256(key Key, claims Claims) (string, error) {
	header := Header{Alg: "HS256", Typ: "JWT", Kid: key.ID}

	hJSON, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	cJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	payload := base64.RawURLEncoding.EncodeToString(hJSON) + "." + base64.RawURLEncoding.EncodeToString(cJSON)
	return payload + "." + base64.RawURLEncoding.EncodeToString(sign(key.Secret, payload)), nil
}

func sign(secret []byte, payload string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}

// VerifyHS256 verifies token against the key named by its kid header and
// checks the claims against policy at now.
//
// The kid is read before the signature is checked, but only to pick a key:
// nothing else in the header or body is trusted until the MAC matches.
func VerifyHS256(token string, keys KeySource, policy Policy, now time.Time) (*Claims, error) {
	if token == "" {
		return nil, ErrTokenMissing
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrTokenMalformed
	}

	hJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrTokenMalformed
	}
	var header Header
	if err := json.Unmarshal(hJSON, &header); err != nil {
		return nil, ErrTokenMalformed
	}

	secret, ok := keys.Lookup(header.Kid)
	if !ok {
		return nil, ErrUnknownKey
	}

	// 1. Signature first
	actualSig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, ErrInvalidSig
	}
	if !hmac.Equal(sign(secret, parts[0]+"."+parts[1]), actualSig) {
		return nil, ErrInvalidSig
	}

	// 2. Header
	if header.Alg != "HS256" {
		return nil, ErrInvalidAlg
	}

	// 3. Claims
	cJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrTokenMalformed
	}
	var claims Claims
	if err := json.Unmarshal(cJSON, &claims); err != nil {
		return nil, ErrTokenMalformed
	}

	if claims.Iat == 0 {
		return nil, ErrMissingIAT
	}
	if claims.Exp == 0 {
		return nil, ErrMissingExp
	}
	if policy.RequireNbf && claims.Nbf == 0 {
		return nil, ErrMissingNbf
	}
	if claims.Sub == "" {
		return nil, ErrMissingSub
	}
	if policy.RequireJti && claims.Jti == "" {
		return nil, ErrMissingJti
	}

	if claims.Nbf != 0 && now.Before(time.Unix(claims.Nbf, 0).Add(-policy.NotBeforeSkew)) {
		return nil, ErrTokenNotActive
	}
	if now.After(claims.ExpiresAt()) {
		return nil, ErrTokenExpired
	}

	ttl := claims.Exp - claims.Iat
	if ttl <= 0 {
		return nil, ErrTokenExpired
	}
	if policy.MaxTTL > 0 && time.Duration(ttl)*time.Second > policy.MaxTTL {
		return nil, ErrTokenTTLTooLong
	}

	if claims.Iss != policy.Issuer {
		return nil, ErrMismatchIss
	}
	if claims.Aud != policy.Audience {
		return nil, ErrMismatchAud
	}

	return &claims, nil
}
