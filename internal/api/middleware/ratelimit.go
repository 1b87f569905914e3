// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/ManuGH/coursecast/internal/problem"
	"github.com/ManuGH/coursecast/internal/ratelimit"
)

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	// RequestLimit is the maximum number of requests allowed in the window
	RequestLimit int
	// WindowSize is the time window for rate limiting
	WindowSize time.Duration
	// KeyFunc extracts the rate limit key from the request.
	// If nil, the client IP (proxy headers first) is used.
	KeyFunc func(r *http.Request) (string, error)
}

// RateLimit creates a sliding window rate limiting middleware using httprate.
// Excess requests get a 429 problem with Retry-After.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = keyByClientIP
	}
	retryAfter := strconv.Itoa(max(1, int(cfg.WindowSize/time.Second)))

	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowSize,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", retryAfter)
			problem.Write(w, r, http.StatusTooManyRequests, "RATE_LIMITED",
				"Too many requests. Please try again later.", nil)
		}),
	)
}

// TokenRateLimit limits token minting to perMinute requests per client IP.
func TokenRateLimit(perMinute int) func(http.Handler) http.Handler {
	return RateLimit(RateLimitConfig{
		RequestLimit: perMinute,
		WindowSize:   time.Minute,
	})
}

func keyByClientIP(r *http.Request) (string, error) {
	return ratelimit.ClientIP(r), nil
}
