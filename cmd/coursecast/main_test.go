// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_MissingConfigFile(t *testing.T) {
	err := run(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load configuration")
}

func TestRun_StartsAndStopsOnCancel(t *testing.T) {
	t.Setenv("COURSECAST_LISTEN_ADDR", "127.0.0.1:0")
	t.Setenv("COURSECAST_SQLITE_PATH", filepath.Join(t.TempDir(), "coursecast.db"))
	t.Setenv("COURSECAST_ASSETS_ROOT", t.TempDir())
	t.Setenv("COURSECAST_SESSION_SECRET", "session-secret-0123456789abcdef0123")
	t.Setenv("COURSECAST_PLAYBACK_SECRET", "playback-secret-0123456789abcdef01")

	// The deadline stands in for SIGTERM once the server is up.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, run(ctx, ""))
}

func TestRun_RejectsInvalidConfig(t *testing.T) {
	t.Setenv("COURSECAST_SESSION_SECRET", "short")
	err := run(context.Background(), "")
	require.Error(t, err)
}
