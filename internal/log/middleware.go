// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Middleware returns an HTTP access-log middleware. It stores a request-scoped
// logger in the request context so handlers can use FromContext, and logs one
// line per request once the handler returns.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			l := WithContext(r.Context(), WithComponent("http"))
			ctx := l.WithContext(r.Context())

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if pattern := rc.RoutePattern(); pattern != "" {
					route = pattern
				}
			}

			// Handlers may have added fields to the stored logger.
			rl := zerolog.Ctx(ctx)
			ev := rl.Info()
			switch {
			case status >= 500:
				ev = rl.Error()
			case status >= 400:
				ev = rl.Warn()
			}
			ev.Str(FieldEvent, "request.handled").
				Int(FieldBytes, ww.BytesWritten()).
				Str(FieldMethod, r.Method).
				Str(FieldPath, r.URL.Path).
				Str(FieldRoute, route).
				Int(FieldStatus, status).
				Int64(FieldDurationMS, time.Since(start).Milliseconds()).
				Str(FieldRemoteAddr, r.RemoteAddr).
				Msg("request handled")
		})
	}
}
