// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api wires the coursecast HTTP surface: token minting, token
// revocation, the HLS streaming gateway and the operational endpoints.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/ManuGH/coursecast/internal/auth"
	"github.com/ManuGH/coursecast/internal/config"
	"github.com/ManuGH/coursecast/internal/gateway"
	"github.com/ManuGH/coursecast/internal/health"
	"github.com/ManuGH/coursecast/internal/log"
	"github.com/ManuGH/coursecast/internal/playback"
	"github.com/ManuGH/coursecast/internal/ratelimit"
	"github.com/ManuGH/coursecast/internal/revocation"
)

// Deps are the components the server routes to. Issuer, Verifier, Sessions,
// Revocations and Backend are required.
type Deps struct {
	Keys        *auth.Keyring
	Issuer      *playback.Issuer
	Verifier    *playback.Verifier
	Sessions    *auth.SessionVerifier
	Revocations *revocation.List
	Backend     gateway.Backend
	Health      *health.Manager
	// Metrics serves /metrics; defaults to the Prometheus default registry.
	Metrics http.Handler
	// Now is the clock of the gateway handler; defaults to the verifier clock.
	Now func() time.Time
}

// Server is the coursecast HTTP server.
type Server struct {
	cfg config.AppConfig

	keys        *auth.Keyring
	issuer      *playback.Issuer
	verifier    *playback.Verifier
	sessions    *auth.SessionVerifier
	revocations *revocation.List
	backend     gateway.Backend
	health      *health.Manager
	metrics     http.Handler
	limiter     *ratelimit.Limiter
	now         func() time.Time

	handlerOnce sync.Once
	handler     http.Handler
}

// New creates a server. Listener, rate limit and CORS settings are read from
// cfg once; token settings and keys follow ApplyConfig.
func New(cfg config.AppConfig, deps Deps) (*Server, error) {
	switch {
	case deps.Issuer == nil:
		return nil, errors.New("api: issuer is required")
	case deps.Verifier == nil:
		return nil, errors.New("api: verifier is required")
	case deps.Sessions == nil:
		return nil, errors.New("api: session verifier is required")
	case deps.Revocations == nil:
		return nil, errors.New("api: revocation list is required")
	case deps.Backend == nil:
		return nil, errors.New("api: asset backend is required")
	}

	s := &Server{
		cfg:         cfg,
		keys:        deps.Keys,
		issuer:      deps.Issuer,
		verifier:    deps.Verifier,
		sessions:    deps.Sessions,
		revocations: deps.Revocations,
		backend:     deps.Backend,
		health:      deps.Health,
		metrics:     deps.Metrics,
		now:         deps.Now,
	}
	if s.health == nil {
		s.health = health.NewManager(cfg.Version)
	}
	if s.metrics == nil {
		s.metrics = promhttp.Handler()
	}
	if s.now == nil {
		s.now = s.verifier.Now
	}

	rl := ratelimit.DefaultConfig()
	rl.Scope = "gateway"
	rl.GlobalRate = 0
	rl.PerKeyRate = rate.Limit(cfg.RateLimit.GatewayRPS)
	rl.PerKeyBurst = cfg.RateLimit.GatewayBurst
	s.limiter = ratelimit.New(rl)

	return s, nil
}

// Handler returns the configured HTTP handler with all routes and middleware applied.
func (s *Server) Handler() http.Handler {
	s.handlerOnce.Do(func() {
		s.handler = s.routes()
	})
	return s.handler
}

// ApplyConfig pushes reloadable settings into the running components: the
// playback key ring, token settings and the session verifier. Listener,
// store and backend settings need a restart. On error nothing is applied.
func (s *Server) ApplyConfig(cfg config.AppConfig) error {
	settings := PlaybackSettings(cfg.Playback)
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("api: apply playback settings: %w", err)
	}
	keys := SigningKeys(cfg.Playback)

	// Replace is the last step that can fail.
	if s.keys != nil {
		if err := s.keys.Replace(cfg.Playback.ActiveKeyID, keys...); err != nil {
			return fmt.Errorf("api: apply signing keys: %w", err)
		}
	}
	if err := s.issuer.Update(settings); err != nil {
		return fmt.Errorf("api: apply playback settings: %w", err)
	}
	s.verifier.Update(settings)
	s.sessions.Update([]byte(cfg.Session.Secret), cfg.Session.Issuer, cfg.Session.Audience)

	logger := log.WithComponent("api")
	logger.Info().
		Str(log.FieldEvent, "config.applied").
		Str("active_kid", cfg.Playback.ActiveKeyID).
		Dur("default_ttl", settings.DefaultTTL).
		Msg("playback configuration applied")
	return nil
}

// PlaybackSettings converts the playback config section.
func PlaybackSettings(p config.PlaybackConfig) playback.Settings {
	return playback.Settings{
		Issuer:     p.Issuer,
		Audience:   p.Audience,
		DefaultTTL: p.DefaultTTL,
		MaxTTL:     p.MaxTTL,
	}
}

// SigningKeys converts the configured key ring.
func SigningKeys(p config.PlaybackConfig) []auth.Key {
	keys := make([]auth.Key, 0, len(p.Keys))
	for _, k := range p.Keys {
		keys = append(keys, auth.Key{ID: k.ID, Secret: []byte(k.Secret)})
	}
	return keys
}
