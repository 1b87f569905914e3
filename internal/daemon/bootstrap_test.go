// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/coursecast/internal/config"
	"github.com/ManuGH/coursecast/internal/gateway"
)

func testAppConfig(t *testing.T) config.AppConfig {
	t.Helper()
	cfg := config.Defaults()
	cfg.Version = "test"
	cfg.Session.Secret = "session-secret-0123456789abcdef0123"
	cfg.Playback.Keys = []config.SigningKey{{ID: "default", Secret: "playback-secret-0123456789abcdef01"}}
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "coursecast.db")
	cfg.Assets.Root = t.TempDir()
	return cfg
}

func TestBootstrap_MemoryBackends(t *testing.T) {
	rt, err := Bootstrap(context.Background(), testAppConfig(t))
	require.NoError(t, err)
	defer rt.Close()

	rr := httptest.NewRecorder()
	rt.Server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	require.NoError(t, rt.Store.PutCourse(context.Background(), "course-go", "Go", false))
}

func TestBootstrap_RedisRevocation(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testAppConfig(t)
	cfg.Revocation.Backend = "redis"
	cfg.Revocation.RedisAddr = mr.Addr()

	rt, err := Bootstrap(context.Background(), cfg)
	require.NoError(t, err)
	defer rt.Close()

	mr.SetError("LOADING")
	rr := httptest.NewRecorder()
	rt.Server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code, "an unreachable revocation list makes the instance unready")
}

func TestBootstrap_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.AppConfig)
	}{
		{"unknown revocation backend", func(c *config.AppConfig) { c.Revocation.Backend = "etcd" }},
		{"unreachable redis", func(c *config.AppConfig) {
			c.Revocation.Backend = "redis"
			c.Revocation.RedisAddr = "127.0.0.1:1"
		}},
		{"missing active key", func(c *config.AppConfig) { c.Playback.ActiveKeyID = "nope" }},
		{"unknown assets backend", func(c *config.AppConfig) { c.Assets.Backend = "ftp" }},
		{"s3 without bucket", func(c *config.AppConfig) { c.Assets.Backend = "s3" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testAppConfig(t)
			tt.mutate(&cfg)
			_, err := Bootstrap(context.Background(), cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewBackend(t *testing.T) {
	b, err := NewBackend(config.AssetsConfig{Backend: "fs", Root: "/srv/hls"})
	require.NoError(t, err)
	assert.Equal(t, gateway.FileBackend{Root: "/srv/hls"}, b)

	s3b, err := NewBackend(config.AssetsConfig{Backend: "s3", S3Bucket: "media", S3Region: "eu-central-1"})
	require.NoError(t, err)
	assert.IsType(t, &gateway.S3Backend{}, s3b)
}
