// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/ManuGH/coursecast/internal/log"
	"github.com/ManuGH/coursecast/internal/problem"
)

func ok(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func TestRecoverer_ReturnsProblem(t *testing.T) {
	r := NewRouter(StackConfig{})
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != problem.ContentType {
		t.Fatalf("expected problem content type, got %q", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["code"] != "INTERNAL" {
		t.Errorf("expected code INTERNAL, got %v", body["code"])
	}
	if body[problem.JSONKeyRequestID] == "" || body[problem.JSONKeyRequestID] != w.Header().Get(problem.HeaderRequestID) {
		t.Errorf("expected request id in body to match header, got %v", body[problem.JSONKeyRequestID])
	}
	if strings.Contains(w.Body.String(), "kaboom") {
		t.Error("panic value must not leak to the client")
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = log.RequestIDFromContext(r.Context())
	}))

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generated when absent", "", false},
		{"client id kept", "req-abc-123", true},
		{"control characters replaced", "bad\nid", false},
		{"overlong replaced", strings.Repeat("x", maxRequestIDLen+1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(problem.HeaderRequestID, tt.incoming)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			got := w.Header().Get(problem.HeaderRequestID)
			if got == "" || got != seen {
				t.Fatalf("header %q and context %q must match and be set", got, seen)
			}
			if tt.keep && got != tt.incoming {
				t.Errorf("expected %q to be kept, got %q", tt.incoming, got)
			}
			if !tt.keep && got == tt.incoming {
				t.Errorf("expected %q to be replaced", tt.incoming)
			}
		})
	}
}

func TestCORS_AllowList(t *testing.T) {
	h := CORS([]string{"https://learn.example.com"})(http.HandlerFunc(ok))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://learn.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if val := w.Header().Get("Access-Control-Allow-Origin"); val != "https://learn.example.com" {
		t.Errorf("expected allowed origin to be reflected, got %q", val)
	}
	if val := w.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(val, "Authorization") {
		t.Errorf("Authorization must be an allowed header, got %q", val)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if val := w.Header().Get("Access-Control-Allow-Origin"); val != "" {
		t.Errorf("expected no Access-Control-Allow-Origin for foreign origin, got %q", val)
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	h := CORS([]string{"*"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodOptions, "/api/videos/token/vid-a", nil)
	req.Header.Set("Origin", "https://any.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if called {
		t.Error("preflight must not reach the handler")
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders("")(http.HandlerFunc(ok))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	want := map[string]string{
		"Content-Security-Policy": DefaultCSP,
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "no-referrer",
	}
	for k, v := range want {
		if got := w.Header().Get(k); got != v {
			t.Errorf("%s: expected %q, got %q", k, v, got)
		}
	}
	if w.Header().Get("Strict-Transport-Security") == "" {
		t.Error("expected HSTS behind a TLS terminating proxy")
	}
}

func TestMetrics_LabelsByRoutePattern(t *testing.T) {
	r := NewRouter(StackConfig{EnableMetrics: true})
	r.Route("/api/videos/hls/{videoId}", func(r chi.Router) {
		r.Get("/*", ok)
	})

	for _, p := range []string{"/api/videos/hls/vid-a/index.m3u8", "/api/videos/hls/vid-b/720p/seg_00001.ts"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))
	}

	obs, err := httpRequestDuration.GetMetricWithLabelValues(http.MethodGet, "/api/videos/hls/{videoId}/*", "200")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	var m dto.Metric
	if err := obs.(prometheus.Metric).Write(&m); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := m.GetHistogram().GetSampleCount(); got < 2 {
		t.Errorf("expected both requests under one route label, got %d samples", got)
	}
}

func TestRateLimit_ProblemWithRetryAfter(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestLimit: 2, WindowSize: time.Minute})(http.HandlerFunc(ok))

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/videos/token/vid-a", nil)
		req.RemoteAddr = ip + ":4321"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 2; i++ {
		if w := send("10.0.0.1"); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
	}
	w := send("10.0.0.1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "60" {
		t.Errorf("expected Retry-After 60, got %q", got)
	}
	if !strings.Contains(w.Body.String(), `"RATE_LIMITED"`) {
		t.Errorf("expected RATE_LIMITED problem, got %s", w.Body.String())
	}

	if w := send("10.0.0.2"); w.Code != http.StatusOK {
		t.Errorf("other clients must not be limited, got %d", w.Code)
	}
}

func TestRateLimit_UsesForwardedClient(t *testing.T) {
	h := TokenRateLimit(1)(http.HandlerFunc(ok))

	send := func(xff string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "192.0.2.10:1000"
		req.Header.Set("X-Forwarded-For", xff)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	if code := send("203.0.113.1"); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := send("203.0.113.2, 192.0.2.10"); code != http.StatusOK {
		t.Errorf("distinct forwarded clients share a proxy but not a bucket, got %d", code)
	}
	if code := send("203.0.113.1"); code != http.StatusTooManyRequests {
		t.Errorf("expected 429 for repeated client, got %d", code)
	}
}
