// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package log provides structured logging utilities built on zerolog.
package log

import (
	"cmp"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config is applied once by Configure.
type Config struct {
	Level   string    // zerolog level name, info when empty or unknown
	Output  io.Writer // os.Stdout when nil
	Service string    // "coursecast" when empty
	Version string
}

var (
	once sync.Once
	mu   sync.RWMutex
	base zerolog.Logger
)

// Configure installs the process logger. Only the first call has an effect;
// later verbosity changes go through SetLevel.
func Configure(cfg Config) {
	once.Do(func() {
		level, err := zerolog.ParseLevel(cfg.Level)
		if err != nil || cfg.Level == "" {
			level = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(level)
		zerolog.TimeFieldFormat = time.RFC3339

		out := cfg.Output
		if out == nil {
			out = os.Stdout
		}
		l := zerolog.New(out).With().
			Timestamp().
			Str(FieldService, cmp.Or(cfg.Service, "coursecast")).
			Str(FieldVersion, cfg.Version).
			Logger()

		mu.Lock()
		base = l
		mu.Unlock()
	})
}

// SetLevel changes the global verbosity. Unknown level names are rejected.
func SetLevel(level string) error {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(parsed)
	return nil
}

// Base returns the process logger, configuring defaults on first use.
func Base() zerolog.Logger {
	Configure(Config{})
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// WithComponent returns Base tagged with component.
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str(FieldComponent, component).Logger()
}
