// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package gateway authorizes and serves HLS manifests, segments and keys.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/coursecast/internal/auth"
	xglog "github.com/ManuGH/coursecast/internal/log"
	"github.com/ManuGH/coursecast/internal/metrics"
	"github.com/ManuGH/coursecast/internal/playback"
	"github.com/ManuGH/coursecast/internal/problem"
	"github.com/ManuGH/coursecast/internal/ratelimit"
)

// Rejection codes.
const (
	CodeTokenMissing        = "TOKEN_MISSING"
	CodeTokenInvalid        = "TOKEN_INVALID"
	CodeTokenExpired        = "TOKEN_EXPIRED"
	CodeTokenRevoked        = "TOKEN_REVOKED"
	CodeTokenScopeMismatch  = "TOKEN_SCOPE_MISMATCH"
	CodeRateLimited         = "RATE_LIMITED"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeAssetNotFound       = "ASSET_NOT_FOUND"
)

// RevocationChecker reports whether a token id was revoked. An error means
// the answer is unknown.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Config wires the Authorize middleware.
type Config struct {
	Verifier    *playback.Verifier
	Revocations RevocationChecker  // optional
	Limiter     *ratelimit.Limiter // optional, keyed by subject
	// VideoParam is the chi URL parameter holding the video id.
	VideoParam string
}

type claimsKey struct{}

// ClaimsFromContext returns the verified playback claims of the request.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(claimsKey{}).(*auth.Claims)
	return c
}

// Authorize validates the playback token of every request against the
// {videoId} of the route. It holds no state between requests.
func Authorize(cfg Config) func(http.Handler) http.Handler {
	param := cfg.VideoParam
	if param == "" {
		param = "videoId"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			videoID := chi.URLParam(r, param)
			label := assetLabel(videoID, chi.URLParam(r, "*"))
			if videoID == "" {
				// An unscoped check would accept tokens of any video.
				reject(w, r, label, http.StatusNotFound, CodeAssetNotFound, "asset not found", nil)
				return
			}

			token := auth.ExtractBearer(r)
			if token == "" {
				reject(w, r, label, http.StatusUnauthorized, CodeTokenMissing, "playback token required", nil)
				return
			}

			claims, err := cfg.Verifier.Verify(token, videoID)
			if err != nil {
				status, code, detail := classifyVerifyError(err)
				reject(w, r, label, status, code, detail, err)
				return
			}

			if cfg.Revocations != nil {
				revoked, err := cfg.Revocations.IsRevoked(r.Context(), claims.Jti)
				if err != nil {
					w.Header().Set("Retry-After", "1")
					reject(w, r, label, http.StatusServiceUnavailable, CodeUpstreamUnavailable, "token status unavailable, try again", err)
					return
				}
				if revoked {
					reject(w, r, label, http.StatusUnauthorized, CodeTokenRevoked, "playback token revoked", nil)
					return
				}
			}

			if cfg.Limiter != nil && !cfg.Limiter.Allow(claims.Sub) {
				w.Header().Set("Retry-After", "1")
				reject(w, r, label, http.StatusTooManyRequests, CodeRateLimited, "too many requests", nil)
				return
			}

			ctx := xglog.ContextWithSubject(r.Context(), claims.Sub)
			ctx = context.WithValue(ctx, claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func classifyVerifyError(err error) (int, string, string) {
	switch {
	case errors.Is(err, playback.ErrScopeMismatch):
		return http.StatusForbidden, CodeTokenScopeMismatch, "playback token is not valid for this video"
	case errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized, CodeTokenExpired, "playback token expired"
	case errors.Is(err, auth.ErrTokenMissing):
		return http.StatusUnauthorized, CodeTokenMissing, "playback token required"
	default:
		return http.StatusUnauthorized, CodeTokenInvalid, "playback token invalid"
	}
}

// reject writes a problem response. label is the asset kind for metrics.
func reject(w http.ResponseWriter, r *http.Request, label string, status int, code, detail string, cause error) {
	metrics.RecordGatewayRequest(label, "rejected_"+strconv.Itoa(status))

	logger := xglog.WithComponentFromContext(r.Context(), "gateway")
	ev := logger.Info()
	if status >= 500 {
		ev = logger.Warn()
	}
	if cause != nil {
		ev = ev.Err(cause)
	}
	ev.Str(xglog.FieldEvent, "gateway.rejected").
		Str(xglog.FieldReason, code).
		Int(xglog.FieldStatus, status).
		Str(xglog.FieldPath, r.URL.Path).
		Msg("hls request rejected")

	problem.Write(w, r, status, code, detail, nil)
}

// assetLabel is the metric label of the requested asset, "other" when the
// path is not on the allowlist.
func assetLabel(videoID, rel string) string {
	a, err := ParseAsset(videoID, rel)
	if err != nil {
		return "other"
	}
	return string(a.Kind)
}
