// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/coursecast/internal/telemetry"
)

// Tracing wraps the handler with OpenTelemetry HTTP instrumentation.
// otelhttp extracts the W3C trace context and opens the server span; once the
// router has matched, the span is renamed after the chi route and annotated
// with the response status.
func Tracing(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		annotate := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			span := trace.SpanFromContext(r.Context())
			route := routePattern(r)
			status := statusOf(ww)
			span.SetName(r.Method + " " + route)
			span.SetAttributes(telemetry.HTTPAttributes(r.Method, route, status)...)

			// 4xx are client-side issues and stay out of the error signal.
			if status >= 500 {
				span.SetStatus(codes.Error, http.StatusText(status))
			}
		})

		return otelhttp.NewHandler(
			annotate,
			serviceName,
			otelhttp.WithTracerProvider(otel.GetTracerProvider()),
			otelhttp.WithPropagators(otel.GetTextMapPropagator()),
			otelhttp.WithSpanOptions(
				trace.WithAttributes(semconv.ServiceName(serviceName)),
			),
			otelhttp.WithFilter(shouldTrace),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return "HTTP " + r.Method
			}),
		)
	}
}

// shouldTrace skips probe and scrape endpoints.
func shouldTrace(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/readyz", "/metrics":
		return false
	}
	return true
}

// ExtractTraceContext extracts trace_id and span_id from the request context.
// Returns empty strings if no active span exists.
func ExtractTraceContext(r *http.Request) (traceID, spanID string) {
	spanCtx := trace.SpanContextFromContext(r.Context())
	if !spanCtx.IsValid() {
		return "", ""
	}
	return spanCtx.TraceID().String(), spanCtx.SpanID().String()
}
