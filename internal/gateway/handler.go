// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/coursecast/internal/auth"
	"github.com/ManuGH/coursecast/internal/fsutil"
	xglog "github.com/ManuGH/coursecast/internal/log"
	"github.com/ManuGH/coursecast/internal/metrics"
	"github.com/ManuGH/coursecast/internal/problem"
	"github.com/ManuGH/coursecast/internal/telemetry"
)

// Handler serves assets of the route's video through a Backend. It must be
// mounted behind Authorize.
type Handler struct {
	backend Backend
	now     func() time.Time
}

// NewHandler returns an asset handler. now must be the clock of the
// verifier used by Authorize.
func NewHandler(backend Backend, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{backend: backend, now: now}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		reject(w, r, "other", http.StatusUnauthorized, CodeTokenMissing, "playback token required", nil)
		return
	}

	// Authorize has matched claims.Vid against the route.
	a, err := ParseAsset(claims.Vid, chi.URLParam(r, "*"))
	if err != nil {
		reject(w, r, "other", http.StatusNotFound, CodeAssetNotFound, "asset not found", nil)
		return
	}
	if claims.Apx != "" {
		if !ValidAssetDir(claims.Apx) {
			reject(w, r, string(a.Kind), http.StatusNotFound, CodeAssetNotFound, "asset not found", nil)
			return
		}
		a.Dir = claims.Apx
	}

	remaining := claims.ExpiresAt().Sub(h.now())
	trace.SpanFromContext(r.Context()).SetAttributes(telemetry.AssetAttributes(a.VideoID, string(a.Kind), remaining)...)
	err = h.backend.Serve(w, r, a, remaining)
	switch {
	case err == nil:
		metrics.RecordGatewayRequest(string(a.Kind), "served")
	case errors.Is(err, ErrAssetNotFound), errors.Is(err, fsutil.ErrEscapesRoot):
		reject(w, r, string(a.Kind), http.StatusNotFound, CodeAssetNotFound, "asset not found", err)
	case errors.Is(err, auth.ErrTokenExpired):
		reject(w, r, string(a.Kind), http.StatusUnauthorized, CodeTokenExpired, "playback token expired", nil)
	default:
		logger := xglog.WithComponentFromContext(r.Context(), "gateway")
		logger.Error().Err(err).
			Str(xglog.FieldVideoID, a.VideoID).
			Str(xglog.FieldAsset, a.Key()).
			Msg("asset backend failed")
		metrics.RecordGatewayRequest(string(a.Kind), "error")
		problem.Write(w, r, http.StatusInternalServerError, "INTERNAL", "asset could not be served", nil)
	}
}
