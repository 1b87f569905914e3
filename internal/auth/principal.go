// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package auth

import (
	"context"
	"net/http"
	"strings"
)

// Principal represents the authenticated identity of a caller.
type Principal struct {
	// UserID is the stable identifier issued by the authentication service.
	UserID string
	// SessionID is the jti of the session token, when present.
	SessionID string
}

type contextKey struct{}

// WithPrincipal adds the principal to the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// PrincipalFromContext retrieves the principal from the context.
func PrincipalFromContext(ctx context.Context) *Principal {
	if p, ok := ctx.Value(contextKey{}).(*Principal); ok {
		return p
	}
	return nil
}

// ExtractBearer returns the token of an "Authorization: Bearer" header, or
// "" if there is none. Tokens in query strings and cookies are not accepted.
func ExtractBearer(r *http.Request) string {
	if r == nil {
		return ""
	}
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
