// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/coursecast/internal/api/middleware"
	"github.com/ManuGH/coursecast/internal/gateway"
)

const (
	tokenPath = "/api/videos/token"
	hlsPath   = "/api/videos/hls/{videoId}"
)

func (s *Server) routes() http.Handler {
	r := s.newRouter()
	s.registerPublicRoutes(r)
	s.registerTokenRoutes(r)
	s.registerGatewayRoutes(r)
	return r
}

func (s *Server) newRouter() chi.Router {
	return middleware.NewRouter(middleware.StackConfig{
		EnableCORS:     true,
		AllowedOrigins: s.cfg.Server.AllowedOrigins,

		EnableSecurityHeaders: true,
		CSP:                   middleware.DefaultCSP,

		EnableMetrics:  true,
		TracingService: "coursecast-api",
		EnableLogging:  true,
	})
}

func (s *Server) registerPublicRoutes(r chi.Router) {
	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Method(http.MethodGet, "/metrics", s.metrics)
	r.Get("/api/openapi.yaml", serveOpenAPI)
}

func (s *Server) registerTokenRoutes(r chi.Router) {
	r.Route(tokenPath, func(r chi.Router) {
		r.With(
			middleware.TokenRateLimit(s.cfg.RateLimit.TokenPerMinute),
			s.requireSession,
		).Post("/{videoId}", s.handleIssueToken)
		r.Delete("/", s.handleRevokeToken)
	})
}

// registerGatewayRoutes mounts every HLS asset behind one Authorize
// middleware.
func (s *Server) registerGatewayRoutes(r chi.Router) {
	r.Route(hlsPath, func(r chi.Router) {
		r.Use(gateway.Authorize(gateway.Config{
			Verifier:    s.verifier,
			Revocations: s.revocations,
			Limiter:     s.limiter,
		}))
		h := gateway.NewHandler(s.backend, s.now)
		r.Get("/*", h.ServeHTTP)
		r.Head("/*", h.ServeHTTP)
	})
}
