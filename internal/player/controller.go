// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package player is the client side of token-gated playback: it fetches a
// playback token, hands it to every HLS request and refreshes it before it
// expires.
package player

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	xglog "github.com/ManuGH/coursecast/internal/log"
)

var (
	ErrClosed     = errors.New("player: controller closed")
	ErrSuperseded = errors.New("player: superseded by a newer selection")
	ErrNoToken    = errors.New("player: no playback token")
)

// DefaultFetchTimeout bounds a single token request.
const DefaultFetchTimeout = 10 * time.Second

// TokenSource fetches playback tokens.
type TokenSource interface {
	FetchToken(ctx context.Context, videoID string) (Token, error)
}

// Clock schedules the refresh timer.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock and timers.
func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithFetchTimeout bounds each token fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithObserver registers fn for every state change. fn runs without the
// controller lock held.
func WithObserver(fn func(from, to State)) Option {
	return func(c *Controller) { c.observe = fn }
}

type transition struct{ from, to State }

// Controller owns one playback session. The current token lives in a single
// slot; every Select or Close bumps the generation so that late fetch
// results and timers of an older selection are dropped.
type Controller struct {
	source  TokenSource
	clock   Clock
	timeout time.Duration
	observe func(from, to State)
	logger  zerolog.Logger

	base   context.Context
	stop   context.CancelFunc
	flight singleflight.Group
	wg     sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	gen        uint64
	state      State
	videoID    string
	token      Token
	expiresAt  time.Time
	refreshAt  time.Time
	timer      Timer
	cancel     context.CancelFunc
	refreshing bool
	refreshes  int
	attempts   int
	failure    *Failure
	pending    []transition
}

// New returns an idle controller fetching tokens from source.
func New(source TokenSource, opts ...Option) *Controller {
	c := &Controller{
		source:  source,
		clock:   systemClock{},
		timeout: DefaultFetchTimeout,
		logger:  xglog.WithComponent("player"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.base, c.stop = context.WithCancel(context.Background())
	return c
}

// Select starts a session for videoID and blocks until its first token is
// in place or the fetch failed. Any previous session is cancelled first.
// ErrSuperseded is returned when another Select or Close won the race.
func (c *Controller) Select(ctx context.Context, videoID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.resetLocked()
	c.gen++
	gen := c.gen
	c.videoID = videoID
	c.setLocked(StateFetchingToken)
	fctx, cancel := context.WithTimeout(ctx, c.timeout)
	c.cancel = cancel
	c.notifyUnlock()

	tok, err := c.source.FetchToken(fctx, videoID)
	cancel()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.gen != gen {
		c.mu.Unlock()
		return ErrSuperseded
	}
	c.cancel = nil
	if err != nil {
		c.failLocked(PhaseInitial, err)
		c.notifyUnlock()
		return err
	}
	c.installLocked(gen, tok)
	c.notifyUnlock()
	return nil
}

// Token returns the token to attach to HLS requests.
func (c *Controller) Token() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token.Value, c.token.Value != ""
}

// ForceRefresh replaces stale with a fresh token. When the slot already
// holds a different token it is returned as is. Concurrent callers share a
// single fetch.
func (c *Controller) ForceRefresh(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	current, gen := c.token.Value, c.gen
	c.mu.Unlock()

	if current == "" {
		return "", ErrNoToken
	}
	if current != stale {
		return current, nil
	}

	ch := c.flight.DoChan(flightKey(gen), func() (any, error) {
		return c.refresh(gen, stale)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Snapshot returns a copy of the session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		State:           c.state,
		VideoID:         c.videoID,
		Generation:      c.gen,
		ExpiresAt:       c.expiresAt,
		RefreshAt:       c.refreshAt,
		Refreshes:       c.refreshes,
		RefreshAttempts: c.attempts,
		Refreshing:      c.refreshing,
	}
	if c.failure != nil {
		f := *c.failure
		s.Failure = &f
	}
	return s
}

// Close cancels the session and waits for background refreshes to return.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.wg.Wait()
		return
	}
	c.closed = true
	c.resetLocked()
	c.gen++
	c.videoID = ""
	c.setLocked(StateIdle)
	c.stop()
	c.notifyUnlock()
	c.wg.Wait()
}

func flightKey(gen uint64) string {
	return strconv.FormatUint(gen, 10)
}

func (c *Controller) onTimer(gen uint64) {
	_, _, _ = c.flight.Do(flightKey(gen), func() (any, error) {
		return c.refresh(gen, "")
	})
}

// refresh fetches a new token for generation gen. A non-empty stale skips
// the fetch when the slot has moved on already.
func (c *Controller) refresh(gen uint64, stale string) (string, error) {
	c.mu.Lock()
	if c.closed || c.gen != gen || c.token.Value == "" {
		c.mu.Unlock()
		return "", ErrSuperseded
	}
	if stale != "" && c.token.Value != stale {
		current := c.token.Value
		c.mu.Unlock()
		return current, nil
	}
	c.stopTimerLocked()
	c.refreshing = true
	c.attempts++
	videoID := c.videoID
	ctx, cancel := context.WithTimeout(c.base, c.timeout)
	c.cancel = cancel
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	tok, err := c.source.FetchToken(ctx, videoID)
	cancel()

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return "", ErrSuperseded
	}
	c.cancel = nil
	c.refreshing = false
	if err != nil {
		c.failLocked(PhaseRefresh, err)
		c.notifyUnlock()
		return "", err
	}
	c.refreshes++
	c.installLocked(gen, tok)
	c.notifyUnlock()
	return tok.Value, nil
}

func (c *Controller) installLocked(gen uint64, tok Token) {
	now := c.clock.Now()
	delay := RefreshDelay(tok.ExpiresIn)

	c.token = tok
	c.failure = nil
	c.expiresAt = now.Add(time.Duration(tok.ExpiresIn) * time.Second)
	c.setLocked(StatePlaying)

	c.refreshAt = now.Add(delay)
	c.timer = c.clock.AfterFunc(delay, func() { c.onTimer(gen) })
	c.setLocked(StateRefreshScheduled)

	c.logger.Debug().
		Str(xglog.FieldEvent, "player.token_installed").
		Str(xglog.FieldVideoID, c.videoID).
		Int("expires_in", tok.ExpiresIn).
		Time("refresh_at", c.refreshAt).
		Msg("playback token installed")
}

func (c *Controller) failLocked(phase Phase, err error) {
	reason := ReasonOf(err)
	c.failure = &Failure{
		Phase:   phase,
		Reason:  reason,
		Message: reason.Message(),
		At:      c.clock.Now(),
		Err:     err,
	}
	c.stopTimerLocked()
	c.token = Token{}
	c.expiresAt = time.Time{}
	c.refreshAt = time.Time{}
	if reason == ReasonAccessExpired {
		c.setLocked(StateExpired)
	} else {
		c.setLocked(StateError)
	}

	c.logger.Warn().
		Err(err).
		Str(xglog.FieldEvent, "player.fetch_failed").
		Str(xglog.FieldVideoID, c.videoID).
		Str(xglog.FieldReason, string(reason)).
		Str("phase", string(phase)).
		Msg("playback token fetch failed")
}

// resetLocked drops everything tied to the current selection.
func (c *Controller) resetLocked() {
	c.stopTimerLocked()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.token = Token{}
	c.expiresAt = time.Time{}
	c.refreshAt = time.Time{}
	c.refreshing = false
	c.refreshes = 0
	c.attempts = 0
	c.failure = nil
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) setLocked(s State) {
	if c.state == s {
		return
	}
	c.pending = append(c.pending, transition{from: c.state, to: s})
	c.state = s
}

// notifyUnlock releases the lock and then reports queued transitions.
func (c *Controller) notifyUnlock() {
	pending := c.pending
	c.pending = nil
	observe := c.observe
	c.mu.Unlock()

	for _, t := range pending {
		c.logger.Debug().
			Str(xglog.FieldEvent, "player.state").
			Str(xglog.FieldOldState, t.from.String()).
			Str(xglog.FieldNewState, t.to.String()).
			Msg("player state changed")
		if observe != nil {
			observe(t.from, t.to)
		}
	}
}
