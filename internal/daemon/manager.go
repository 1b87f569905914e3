// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon runs the coursecast HTTP server and its shutdown sequence.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/coursecast/internal/config"
	xglog "github.com/ManuGH/coursecast/internal/log"
)

const defaultShutdownTimeout = 15 * time.Second

// ShutdownHook releases one resource during shutdown. Hooks run after the
// server has drained, last registered first.
type ShutdownHook func(ctx context.Context) error

// Manager owns the listener and the shutdown sequence of the daemon.
type Manager interface {
	// Start serves until ctx is done or the server fails, then shuts down.
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
	RegisterShutdownHook(name string, hook ShutdownHook)
	// Addr blocks until Start has tried to listen. It is nil when that failed.
	Addr() net.Addr
}

type phase int

const (
	phaseNew phase = iota
	phaseServing
	phaseStopping
)

type namedHook struct {
	name string
	fn   ShutdownHook
}

type manager struct {
	cfg    config.ServerConfig
	deps   Deps
	logger zerolog.Logger

	bound chan struct{} // closed once listening was attempted

	mu    sync.Mutex
	phase phase
	srv   *http.Server
	ln    net.Listener
	hooks []namedHook
}

// NewManager validates deps and returns a Manager for cfg.
func NewManager(cfg config.ServerConfig, deps Deps) (Manager, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("daemon: %w", err)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	return &manager{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.With().Str(xglog.FieldComponent, "daemon").Logger(),
		bound:  make(chan struct{}),
	}, nil
}

func (m *manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.phase != phaseNew {
		m.mu.Unlock()
		return errors.New("daemon: manager already started")
	}
	m.phase = phaseServing
	m.mu.Unlock()

	ln, err := net.Listen("tcp", m.cfg.ListenAddr)
	if err != nil {
		close(m.bound)
		return fmt.Errorf("daemon: listen %s: %w", m.cfg.ListenAddr, err)
	}
	srv := &http.Server{
		Handler:           m.deps.APIHandler,
		ReadHeaderTimeout: m.cfg.ReadHeaderTimeout,
		IdleTimeout:       m.cfg.IdleTimeout,
	}
	m.mu.Lock()
	m.ln, m.srv = ln, srv
	m.mu.Unlock()
	close(m.bound)

	m.logger.Info().
		Str(xglog.FieldEvent, "daemon.listening").
		Str("addr", ln.Addr().String()).
		Dur("shutdown_timeout", m.cfg.ShutdownTimeout).
		Msg("serving")

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	var cause error
	select {
	case <-ctx.Done():
		m.logger.Info().Str(xglog.FieldEvent, "daemon.stopping").Msg("stop requested")
	case err := <-served:
		if !errors.Is(err, http.ErrServerClosed) {
			cause = fmt.Errorf("daemon: serve: %w", err)
			m.logger.Error().Err(err).Str(xglog.FieldEvent, "daemon.serve_failed").Msg("server failed")
		}
	}
	return errors.Join(cause, m.Shutdown(context.WithoutCancel(ctx)))
}

func (m *manager) Addr() net.Addr {
	<-m.bound
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ln == nil {
		return nil
	}
	return m.ln.Addr()
}

// Shutdown drains the server within the configured timeout and then runs
// every hook, even when draining or an earlier hook failed.
func (m *manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	switch m.phase {
	case phaseNew:
		m.mu.Unlock()
		return ErrManagerNotStarted
	case phaseStopping:
		m.mu.Unlock()
		return nil
	}
	m.phase = phaseStopping
	srv := m.srv
	hooks := make([]namedHook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain server: %w", err))
		}
	}
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		start := time.Now()
		err := h.fn(ctx)
		ev := m.logger.Debug()
		if err != nil {
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
			ev = m.logger.Error().Err(err)
		}
		ev.Str("hook", h.name).Dur("took", time.Since(start)).Msg("shutdown hook ran")
	}

	if err := errors.Join(errs...); err != nil {
		m.logger.Error().Int("errors", len(errs)).Str(xglog.FieldEvent, "daemon.stopped").Msg("stopped with errors")
		return err
	}
	m.logger.Info().Str(xglog.FieldEvent, "daemon.stopped").Msg("stopped")
	return nil
}

func (m *manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, namedHook{name: name, fn: hook})
}
