// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return rec
}

func TestTracing_NamesSpanAfterRoute(t *testing.T) {
	rec := withRecorder(t)

	r := NewRouter(StackConfig{TracingService: "coursecast"})
	r.Route("/api/videos/hls/{videoId}", func(r chi.Router) {
		r.Get("/*", ok)
	})
	r.Get("/fail", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/videos/hls/vid-a/index.m3u8", nil))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if got := spans[0].Name(); got != "GET /api/videos/hls/{videoId}/*" {
		t.Errorf("unexpected span name %q", got)
	}
	if spans[0].Status().Code == codes.Error {
		t.Error("200 must not be an error span")
	}
	if spans[1].Status().Code != codes.Error {
		t.Errorf("5xx must mark the span as error, got %v", spans[1].Status().Code)
	}
}

func TestTracing_ContinuesIncomingTrace(t *testing.T) {
	rec := withRecorder(t)

	var traceID string
	h := Tracing("coursecast")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID, _ = ExtractTraceContext(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/videos/token/vid-a", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if traceID != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("expected incoming trace id to be continued, got %q", traceID)
	}
	if len(rec.Ended()) != 1 {
		t.Errorf("expected one server span, got %d", len(rec.Ended()))
	}
}

func TestTracing_SkipsProbes(t *testing.T) {
	rec := withRecorder(t)

	h := Tracing("coursecast")(http.HandlerFunc(ok))
	for _, p := range []string{"/healthz", "/readyz", "/metrics"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}
	if n := len(rec.Ended()); n != 0 {
		t.Errorf("expected no spans for probes, got %d", n)
	}
}
