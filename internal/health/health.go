// SPDX-License-Identifier: MIT

// Package health provides liveness and readiness checks with per-component
// status for container probes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/coursecast/internal/log"
	"github.com/ManuGH/coursecast/internal/resilience"
)

// Status is the health of one component or of the whole service.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// worse reports whether s outranks o.
func (s Status) worse(o Status) bool {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	return rank[s] > rank[o]
}

// DefaultCheckTimeout bounds a single component check.
const DefaultCheckTimeout = 2 * time.Second

type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Uptime    int64                  `json:"uptimeSeconds"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// ReadinessResponse is the /readyz body.
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker probes one dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager runs the registered checkers for the probe endpoints. Register
// every checker before serving.
type Manager struct {
	version  string
	started  time.Time
	timeout  time.Duration
	checkers []Checker
}

func NewManager(version string) *Manager {
	return &Manager{version: version, started: time.Now(), timeout: DefaultCheckTimeout}
}

func (m *Manager) RegisterChecker(checker Checker) {
	m.checkers = append(m.checkers, checker)
}

// run probes every checker concurrently, each under its own timeout, and
// returns the results with the worst status among them.
func (m *Manager) run(ctx context.Context) (map[string]CheckResult, Status) {
	var (
		mu      sync.Mutex
		g       errgroup.Group
		checks  = make(map[string]CheckResult, len(m.checkers))
		overall = StatusHealthy
	)
	for _, c := range m.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()
			result := c.Check(cctx)

			mu.Lock()
			defer mu.Unlock()
			checks[c.Name()] = result
			if result.Status.worse(overall) {
				overall = result.Status
			}
			return nil
		})
	}
	_ = g.Wait()
	return checks, overall
}

// Health is the liveness answer. A live process is healthy whatever its
// dependencies say; they are only probed when verbose is set.
func (m *Manager) Health(ctx context.Context, verbose bool) HealthResponse {
	resp := HealthResponse{
		Status:    StatusHealthy,
		Version:   m.version,
		Uptime:    int64(time.Since(m.started) / time.Second),
		Timestamp: time.Now(),
	}
	if verbose && len(m.checkers) > 0 {
		resp.Checks, resp.Status = m.run(ctx)
	}
	return resp
}

// Ready is the readiness answer: ready unless a component is unhealthy.
func (m *Manager) Ready(ctx context.Context) ReadinessResponse {
	resp := ReadinessResponse{Ready: true, Status: StatusHealthy, Timestamp: time.Now()}
	if len(m.checkers) > 0 {
		resp.Checks, resp.Status = m.run(ctx)
		resp.Ready = resp.Status != StatusUnhealthy
	}
	return resp
}

// ServeHealth always answers 200 while the process runs.
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	resp := m.Health(r.Context(), r.URL.Query().Get("verbose") == "true")
	writeProbe(w, r, http.StatusOK, resp)
}

// ServeReady answers 503 while a critical dependency is unhealthy.
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	resp := m.Ready(r.Context())
	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
		logger := log.WithComponentFromContext(r.Context(), "health")
		logger.Warn().
			Str(log.FieldEvent, "readiness.not_ready").
			Str(log.FieldStatus, string(resp.Status)).
			Msg("not ready")
	}
	writeProbe(w, r, status, resp)
}

func writeProbe(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "health")
		logger.Debug().Err(err).Msg("probe response not written")
	}
}

// PingChecker reports a dependency reachable through a ping function, such as
// sql.DB.PingContext or cache.Cache.Ping. A failing optional dependency only
// degrades the service.
type PingChecker struct {
	name     string
	ping     func(ctx context.Context) error
	optional bool
}

// NewPingChecker creates a checker that is unhealthy when ping fails.
func NewPingChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping}
}

// Optional marks the dependency as non-critical.
func (c *PingChecker) Optional() *PingChecker {
	c.optional = true
	return c
}

func (c *PingChecker) Name() string {
	return c.name
}

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	if err := c.ping(ctx); err != nil {
		status := StatusUnhealthy
		if c.optional {
			status = StatusDegraded
		}
		return CheckResult{Status: status, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "reachable"}
}

// BreakerChecker reports a circuit breaker. Open and half-open breakers
// report degraded, so the instance stays ready.
type BreakerChecker struct {
	name  string
	state func() resilience.State
}

// NewBreakerChecker creates a checker over a breaker state source.
func NewBreakerChecker(name string, state func() resilience.State) *BreakerChecker {
	return &BreakerChecker{name: name, state: state}
}

func (c *BreakerChecker) Name() string {
	return c.name
}

func (c *BreakerChecker) Check(context.Context) CheckResult {
	switch s := c.state(); s {
	case resilience.StateClosed:
		return CheckResult{Status: StatusHealthy, Message: string(s)}
	default:
		return CheckResult{Status: StatusDegraded, Message: string(s)}
	}
}
