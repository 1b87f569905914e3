// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/coursecast/internal/auth"
	"github.com/ManuGH/coursecast/internal/gateway"
	"github.com/ManuGH/coursecast/internal/log"
	"github.com/ManuGH/coursecast/internal/metrics"
	"github.com/ManuGH/coursecast/internal/playback"
	"github.com/ManuGH/coursecast/internal/telemetry"
)

// TokenResponse is the body of a successful token request.
type TokenResponse struct {
	Success   bool            `json:"success"`
	Token     string          `json:"token"`
	ExpiresIn int             `json:"expiresIn"`
	Access    playback.Access `json:"access"`
}

// requireSession authenticates the caller with the session bearer token
// issued by the authentication service.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.ExtractBearer(r)
		if token == "" {
			writeTokenError(w, r, playback.ErrUnauthenticated)
			return
		}
		p, err := s.sessions.Verify(token)
		if err != nil {
			log.FromContext(r.Context()).Debug().
				Err(err).
				Str(log.FieldEvent, "session.rejected").
				Msg("session token rejected")
			writeTokenError(w, r, playback.ErrUnauthenticated)
			return
		}
		ctx := log.ContextWithSubject(r.Context(), p.UserID)
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(ctx, p)))
	})
}

// handleIssueToken mints a playback token for {videoId}.
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoId")
	span := trace.SpanFromContext(r.Context())

	if !gateway.ValidVideoID(videoID) {
		span.SetAttributes(telemetry.TokenAttributes(videoID, playback.CodeNotFound, 0)...)
		writeTokenError(w, r, playback.ErrNotFound)
		return
	}

	issued, err := s.issuer.Issue(r.Context(), auth.PrincipalFromContext(r.Context()), videoID)
	if err != nil {
		code, _, _ := playback.Classify(err)
		span.SetAttributes(telemetry.TokenAttributes(videoID, code, 0)...)
		writeTokenError(w, r, err)
		return
	}
	span.SetAttributes(telemetry.TokenAttributes(videoID, "GRANTED", issued.ExpiresIn)...)

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, TokenResponse{
		Success:   true,
		Token:     issued.Token,
		ExpiresIn: issued.ExpiresIn,
		Access:    issued.Access,
	})
}

// handleRevokeToken puts the presented playback token on the deny list
// until it expires. Revoking an expired token is a no-op.
func (s *Server) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	token := auth.ExtractBearer(r)
	if token == "" {
		writeTokenError(w, r, playback.ErrUnauthenticated)
		return
	}

	claims, err := s.verifier.Verify(token, "")
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		w.WriteHeader(http.StatusNoContent)
		return
	case err != nil:
		writeTokenError(w, r, playback.ErrUnauthenticated)
		return
	}

	if err := s.revocations.Revoke(r.Context(), claims.Jti, claims.ExpiresAt()); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Err(err).
			Str(log.FieldEvent, "token.revoke_failed").
			Str(log.FieldTokenID, claims.Jti).
			Msg("failed to revoke playback token")
		writeTokenError(w, r, playback.ErrUpstreamUnavailable)
		return
	}

	metrics.RecordTokenRevoked()
	log.FromContext(r.Context()).Info().
		Str(log.FieldEvent, "token.revoked").
		Str(log.FieldUserID, claims.Sub).
		Str(log.FieldVideoID, claims.Vid).
		Str(log.FieldTokenID, claims.Jti).
		Msg("playback token revoked")
	w.WriteHeader(http.StatusNoContent)
}
