// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import (
	"errors"
	"net/http"
)

// Issue errors. Each maps to one client code.
var (
	ErrUnauthenticated     = errors.New("playback: unauthenticated")
	ErrNotPurchased        = errors.New("playback: content not purchased")
	ErrAccessExpired       = errors.New("playback: access expired")
	ErrNotFound            = errors.New("playback: content not found")
	ErrUpstreamUnavailable = errors.New("playback: entitlement store unavailable")
)

// Client codes.
const (
	CodeUnauthenticated     = "UNAUTHENTICATED"
	CodeNotPurchased        = "NOT_PURCHASED"
	CodeAccessExpired       = "ACCESS_EXPIRED"
	CodeNotFound            = "NOT_FOUND"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeInternal            = "INTERNAL"
)

// Classify returns the client code, HTTP status and a user-facing message
// for an Issue error.
func Classify(err error) (code string, status int, message string) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return CodeUnauthenticated, http.StatusUnauthorized, "Your session has expired. Please sign in again."
	case errors.Is(err, ErrNotPurchased):
		return CodeNotPurchased, http.StatusForbidden, "You need to purchase this course to watch this video."
	case errors.Is(err, ErrAccessExpired):
		return CodeAccessExpired, http.StatusForbidden, "Your access to this course has expired."
	case errors.Is(err, ErrNotFound):
		return CodeNotFound, http.StatusNotFound, "This video does not exist."
	case errors.Is(err, ErrUpstreamUnavailable):
		return CodeUpstreamUnavailable, http.StatusServiceUnavailable, "Playback is temporarily unavailable. Please try again."
	default:
		return CodeInternal, http.StatusInternalServerError, "Something went wrong. Please try again."
	}
}
