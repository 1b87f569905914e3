// SPDX-License-Identifier: MIT

// Package middleware provides the HTTP ingress middleware stack of the
// coursecast API server.
package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	xglog "github.com/ManuGH/coursecast/internal/log"
)

// StackConfig selects the optional layers of the ingress stack.
type StackConfig struct {
	EnableCORS     bool
	AllowedOrigins []string

	EnableSecurityHeaders bool
	CSP                   string

	EnableMetrics  bool
	TracingService string // empty disables tracing
	EnableLogging  bool
}

// NewRouter returns a chi router with ApplyStack already applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack mounts, outermost first: panic recovery, request ids, CORS,
// security headers, route metrics, server spans and the access log. Rate
// limits are mounted per route group, not here.
func ApplyStack(r chi.Router, cfg StackConfig) {
	layers := []func(http.Handler) http.Handler{Recoverer, RequestID}
	if cfg.EnableCORS {
		layers = append(layers, CORS(cfg.AllowedOrigins))
	}
	if cfg.EnableSecurityHeaders {
		layers = append(layers, SecurityHeaders(cfg.CSP))
	}
	if cfg.EnableMetrics {
		layers = append(layers, Metrics())
	}
	if cfg.TracingService != "" {
		layers = append(layers, Tracing(cfg.TracingService))
	}
	if cfg.EnableLogging {
		layers = append(layers, xglog.Middleware())
	}
	r.Use(layers...)
}
