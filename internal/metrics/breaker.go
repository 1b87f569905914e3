// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Breaker states as exported on coursecast_breaker_state.
const (
	breakerClosed   = 0
	breakerHalfOpen = 1
	breakerOpen     = 2
)

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "coursecast_breaker_state",
		Help: "Circuit breaker state per guarded dependency (0 closed, 1 half-open, 2 open)",
	}, []string{"breaker"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coursecast_breaker_trips_total",
		Help: "Transitions to the open state per guarded dependency",
	}, []string{"breaker", "reason"})
)

// SetCircuitBreakerState publishes the current state of the named breaker.
// Unknown states are reported as open.
func SetCircuitBreakerState(breaker, state string) {
	v := breakerOpen
	switch state {
	case "closed":
		v = breakerClosed
	case "half-open":
		v = breakerHalfOpen
	}
	breakerState.WithLabelValues(breaker).Set(float64(v))
}

// RecordCircuitBreakerTrip counts a trip of the named breaker.
func RecordCircuitBreakerTrip(breaker, reason string) {
	breakerTrips.WithLabelValues(breaker, reason).Inc()
}
