// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package resilience provides failure isolation primitives for upstream
// dependencies such as the entitlement store.
package resilience

import (
	"cmp"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ManuGH/coursecast/internal/metrics"
)

// State represents the circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// ErrCircuitOpen is returned instead of calling through an open breaker.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Clock abstracts time operations for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

const (
	defaultThreshold    = 3
	defaultResetTimeout = 30 * time.Second
)

// outcome of one guarded call as seen by the breaker.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeAbandoned // the caller gave up; says nothing about the dependency
)

// CircuitBreaker trips after threshold consecutive failures and rejects
// calls for resetTimeout. It then admits one probe at a time: a successful
// probe closes it, a failed one opens it again.
//
// Every state change starts a new generation; results of calls admitted in
// an earlier generation are ignored.
type CircuitBreaker struct {
	name         string
	threshold    int
	resetTimeout time.Duration
	clock        Clock
	isFailure    func(error) bool

	mu         sync.Mutex
	state      State
	generation uint64
	failures   int
	openedAt   time.Time
	probing    bool
}

type Option func(*CircuitBreaker)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(cb *CircuitBreaker) { cb.clock = c }
}

// WithFailurePredicate decides which errors count against the breaker.
// Errors it rejects still reach the caller but count as a healthy round
// trip, "row not found" being the usual example.
func WithFailurePredicate(fn func(error) bool) Option {
	return func(cb *CircuitBreaker) { cb.isFailure = fn }
}

// NewCircuitBreaker returns a closed breaker. Non-positive threshold and
// resetTimeout fall back to 3 and 30s.
func NewCircuitBreaker(name string, threshold int, resetTimeout time.Duration, opts ...Option) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         name,
		threshold:    cmp.Or(max(threshold, 0), defaultThreshold),
		resetTimeout: cmp.Or(max(resetTimeout, 0), defaultResetTimeout),
		clock:        realClock{},
		isFailure:    func(err error) bool { return err != nil },
		state:        StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	metrics.SetCircuitBreakerState(cb.name, string(cb.state))
	return cb
}

// Execute runs fn unless the breaker rejects the call with ErrCircuitOpen.
// fn's error is returned unchanged.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	gen, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	cb.settle(gen, cb.classify(ctx, err))
	return err
}

func (cb *CircuitBreaker) classify(ctx context.Context, err error) outcome {
	switch {
	case err == nil:
		return outcomeSuccess
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return outcomeAbandoned
	case cb.isFailure(err):
		return outcomeFailure
	default:
		return outcomeSuccess
	}
}

func (cb *CircuitBreaker) admit() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.clock.Now().Sub(cb.openedAt) < cb.resetTimeout {
			return 0, ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
	case StateHalfOpen:
		if cb.probing {
			return 0, ErrCircuitOpen
		}
	}
	if cb.state == StateHalfOpen {
		cb.probing = true
	}
	return cb.generation, nil
}

func (cb *CircuitBreaker) settle(gen uint64, o outcome) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if gen != cb.generation {
		return
	}

	switch o {
	case outcomeAbandoned:
		cb.probing = false
	case outcomeSuccess:
		cb.failures = 0
		cb.setState(StateClosed)
	case outcomeFailure:
		cb.failures++
		switch {
		case cb.state == StateHalfOpen:
			metrics.RecordCircuitBreakerTrip(cb.name, "half_open_failure")
			cb.setState(StateOpen)
		case cb.failures >= cb.threshold:
			metrics.RecordCircuitBreakerTrip(cb.name, "threshold_exceeded")
			cb.setState(StateOpen)
		}
	}
}

// setState moves to s and starts a new generation. Caller holds mu.
func (cb *CircuitBreaker) setState(s State) {
	if cb.state == s {
		return
	}
	cb.state = s
	cb.generation++
	cb.probing = false
	cb.failures = 0
	if s == StateOpen {
		cb.openedAt = cb.clock.Now()
	}
	metrics.SetCircuitBreakerState(cb.name, string(s))
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
