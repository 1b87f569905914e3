// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics holds the Prometheus collectors of coursecast.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EntitlementResolveDuration tracks resolver latency by outcome
	// (granted, not_purchased, access_expired, not_found, error).
	EntitlementResolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coursecast_entitlement_resolve_duration_seconds",
		Help:    "Entitlement resolution latency by outcome",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
	}, []string{"outcome"})

	// TokensIssued counts minted playback tokens.
	TokensIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coursecast_tokens_issued_total",
		Help: "Total number of playback tokens issued",
	})

	// TokensDenied counts refused token requests by reason code.
	TokensDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coursecast_tokens_denied_total",
		Help: "Total number of refused playback token requests by reason",
	}, []string{"reason"})

	// TokenTTLSeconds tracks the lifetime of issued tokens, which drops below
	// the default when entitlements are about to expire.
	TokenTTLSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "coursecast_token_ttl_seconds",
		Help:    "Lifetime of issued playback tokens",
		Buckets: []float64{1, 10, 30, 60, 120, 240, 300, 600, 900},
	})

	// GatewayRequests counts gateway requests by asset kind and outcome.
	GatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coursecast_gateway_requests_total",
		Help: "Total number of HLS gateway requests by asset kind and outcome",
	}, []string{"asset", "outcome"})

	// TokensRevoked counts playback tokens put on the deny list.
	TokensRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coursecast_tokens_revoked_total",
		Help: "Total number of playback tokens revoked before expiry",
	})
)

// ObserveEntitlementResolve records one resolver call.
func ObserveEntitlementResolve(outcome string, d time.Duration) {
	EntitlementResolveDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordTokenIssued records a minted token and its lifetime.
func RecordTokenIssued(ttl time.Duration) {
	TokensIssued.Inc()
	TokenTTLSeconds.Observe(ttl.Seconds())
}

// RecordTokenDenied records a refused token request.
func RecordTokenDenied(reason string) {
	TokensDenied.WithLabelValues(reason).Inc()
}

// RecordGatewayRequest records an authorized or rejected gateway request.
func RecordGatewayRequest(asset, outcome string) {
	GatewayRequests.WithLabelValues(asset, outcome).Inc()
}

// RecordTokenRevoked records a revocation.
func RecordTokenRevoked() {
	TokensRevoked.Inc()
}
