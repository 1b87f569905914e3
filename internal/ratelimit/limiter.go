// SPDX-License-Identifier: MIT

// Package ratelimit provides keyed token-bucket limiters.
package ratelimit

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var rejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "coursecast",
	Subsystem: "ratelimit",
	Name:      "rejections_total",
	Help:      "Requests refused by a rate limiter, by bucket and scope.",
}, []string{"bucket", "scope"})

// Config sizes the global and per-key token buckets.
type Config struct {
	// Scope labels rejections, e.g. "gateway".
	Scope string

	// Global limit across all keys. Zero disables it.
	GlobalRate  rate.Limit
	GlobalBurst int

	// Per-key limit, keyed by subject or client IP.
	PerKeyRate  rate.Limit
	PerKeyBurst int

	// Keys idle for longer than IdleTimeout are forgotten on the next sweep.
	IdleTimeout time.Duration
}

// DefaultConfig is used for the token API when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Scope:       "default",
		GlobalRate:  500,
		GlobalBurst: 1000,
		PerKeyRate:  50,
		PerKeyBurst: 100,
		IdleTimeout: 5 * time.Minute,
	}
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter holds one token bucket per key plus an optional global bucket.
type Limiter struct {
	config Config
	now    func() time.Time

	global *rate.Limiter
	perKey map[string]*entry
	mu     sync.Mutex

	lastSweep time.Time
}

// New returns a Limiter for config. IdleTimeout defaults to five minutes.
func New(config Config) *Limiter {
	l := &Limiter{
		config: config,
		now:    time.Now,
		perKey: make(map[string]*entry),
	}
	if config.GlobalRate > 0 {
		l.global = rate.NewLimiter(config.GlobalRate, config.GlobalBurst)
	}
	if l.config.IdleTimeout <= 0 {
		l.config.IdleTimeout = 5 * time.Minute
	}
	l.lastSweep = l.now()
	return l
}

// Allow reports whether one more request for key fits in its budget.
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	if l.global != nil && !l.global.AllowN(now, 1) {
		rejections.WithLabelValues("global", l.config.Scope).Inc()
		return false
	}

	l.mu.Lock()
	e, ok := l.perKey[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.config.PerKeyRate, l.config.PerKeyBurst)}
		l.perKey[key] = e
	}
	e.lastSeen = now
	l.sweepLocked(now)
	l.mu.Unlock()

	if !e.limiter.AllowN(now, 1) {
		rejections.WithLabelValues("per_key", l.config.Scope).Inc()
		return false
	}
	return true
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.perKey)
}

// sweepLocked drops idle keys at most once per IdleTimeout.
func (l *Limiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.config.IdleTimeout {
		return
	}
	for k, e := range l.perKey {
		if now.Sub(e.lastSeen) >= l.config.IdleTimeout {
			delete(l.perKey, k)
		}
	}
	l.lastSweep = now
}

// ClientIP returns the originating client address. The first hop of
// X-Forwarded-For wins, then X-Real-IP, then RemoteAddr. Header values that do
// not parse as an IP address are ignored.
func ClientIP(r *http.Request) string {
	first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	for _, candidate := range []string{first, r.Header.Get("X-Real-IP")} {
		if addr, err := netip.ParseAddr(strings.TrimSpace(candidate)); err == nil {
			return addr.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
