// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// State is the phase of a playback session.
type State int

const (
	StateIdle State = iota
	StateFetchingToken
	StatePlaying
	StateRefreshScheduled
	StateExpired
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetchingToken:
		return "fetching_token"
	case StatePlaying:
		return "playing"
	case StateRefreshScheduled:
		return "refresh_scheduled"
	case StateExpired:
		return "expired"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var stateNames = map[string]State{
	"idle":              StateIdle,
	"fetching_token":    StateFetchingToken,
	"playing":           StatePlaying,
	"refresh_scheduled": StateRefreshScheduled,
	"expired":           StateExpired,
	"error":             StateError,
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	v, ok := stateNames[string(b)]
	if !ok {
		return fmt.Errorf("player: unknown state %q", b)
	}
	*s = v
	return nil
}

// Reason classifies a token fetch failure for the viewer.
type Reason string

const (
	ReasonNotPurchased   Reason = "NOT_PURCHASED"
	ReasonAccessExpired  Reason = "ACCESS_EXPIRED"
	ReasonSessionExpired Reason = "SESSION_EXPIRED"
	ReasonNotFound       Reason = "NOT_FOUND"
	ReasonUnavailable    Reason = "UPSTREAM_UNAVAILABLE"
	ReasonTimeout        Reason = "TIMEOUT"
	ReasonGeneric        Reason = "GENERIC"
)

// Message returns the user-facing text for r.
func (r Reason) Message() string {
	switch r {
	case ReasonNotPurchased:
		return "Purchase this course to watch the video."
	case ReasonAccessExpired:
		return "Your access to this course has ended. Renew it to keep watching."
	case ReasonSessionExpired:
		return "Your session has expired. Please sign in again."
	case ReasonNotFound:
		return "This video is not available."
	case ReasonUnavailable:
		return "The service is temporarily unavailable. Try again in a moment."
	case ReasonTimeout:
		return "The request timed out. Check your connection and try again."
	default:
		return "Something went wrong. Please try again."
	}
}

// Phase tells which fetch produced a failure.
type Phase string

const (
	PhaseInitial Phase = "initial"
	PhaseRefresh Phase = "refresh"
)

// Failure is the last fetch error of a session.
type Failure struct {
	Phase   Phase     `json:"phase"`
	Reason  Reason    `json:"reason"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
	Err     error     `json:"-"`
}

// Access mirrors the entitlement summary returned with a token.
type Access struct {
	VideoID   string     `json:"videoId"`
	CourseID  string     `json:"courseId"`
	Free      bool       `json:"free"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// Token is a playback token as returned by the token endpoint.
type Token struct {
	Value     string
	ExpiresIn int // seconds
	Access    Access
}

// FetchError is a token fetch failure with its classified reason.
type FetchError struct {
	Reason Reason
	Status int
	Code   string
	Err    error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("player: token fetch failed: %s", e.Reason)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d", e.Status)
		if e.Code != "" {
			msg += " " + e.Code
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// ReasonOf classifies err. Context deadlines become ReasonTimeout.
func ReasonOf(err error) Reason {
	var fe *FetchError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &fe):
		return fe.Reason
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	default:
		return ReasonGeneric
	}
}

// Snapshot is a copy of the controller's state. The token value is not
// part of it.
type Snapshot struct {
	State      State     `json:"state"`
	VideoID    string    `json:"videoId,omitempty"`
	Generation uint64    `json:"generation"`
	ExpiresAt  time.Time `json:"tokenExpiresAt,omitzero"`
	RefreshAt  time.Time `json:"refreshAt,omitzero"`
	// Refreshes counts successful token swaps, RefreshAttempts every started
	// refresh of the current video.
	Refreshes       int      `json:"refreshes"`
	RefreshAttempts int      `json:"refreshAttempts"`
	Refreshing      bool     `json:"refreshing"`
	Failure         *Failure `json:"failure,omitempty"`
}

// RefreshFailed reports whether the session ended in a failed refresh, as
// opposed to a failed initial fetch or no refresh at all.
func (s Snapshot) RefreshFailed() bool {
	return s.Failure != nil && s.Failure.Phase == PhaseRefresh
}

// RefreshDelay returns when to refresh a token valid for expiresIn seconds:
// 60 seconds early but never sooner than 30 seconds, or at expiry for tokens
// shorter than that.
func RefreshDelay(expiresIn int) time.Duration {
	if expiresIn <= 0 {
		return 0
	}
	if expiresIn < 30 {
		return time.Duration(expiresIn) * time.Second
	}
	return time.Duration(max(expiresIn-60, 30)) * time.Second
}
