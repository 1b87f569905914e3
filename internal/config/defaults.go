// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// Default values. DefaultPlaybackTTL is the lifetime of a playback token
// when the entitlement has more time left than that.
const (
	DefaultListenAddr   = ":8080"
	DefaultPlaybackTTL  = 300 * time.Second
	DefaultMaxTTL       = 900 * time.Second
	DefaultPresignTTL   = 60 * time.Second
	DefaultSQLitePath   = "coursecast.db"
	DefaultAssetsRoot   = "media/hls"
	DefaultIssuer       = "coursecast"
	DefaultAudience     = "coursecast/hls"
	DefaultSessionAud   = "coursecast/api"
	DefaultKeyID        = "default"
	minSecretBytes      = 32
	maxConfiguredMaxTTL = time.Hour
)

// Defaults returns the baseline configuration before file and env overrides.
func Defaults() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			ListenAddr:        DefaultListenAddr,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Log: LogConfig{Level: "info"},
		Session: SessionConfig{
			Issuer:   "auth",
			Audience: DefaultSessionAud,
		},
		Playback: PlaybackConfig{
			Issuer:      DefaultIssuer,
			Audience:    DefaultAudience,
			DefaultTTL:  DefaultPlaybackTTL,
			MaxTTL:      DefaultMaxTTL,
			ActiveKeyID: DefaultKeyID,
		},
		Store: StoreConfig{
			SQLitePath:       DefaultSQLitePath,
			BusyTimeout:      5 * time.Second,
			BreakerThreshold: 5,
			BreakerReset:     10 * time.Second,
		},
		Revocation: RevocationConfig{Backend: "memory"},
		Assets: AssetsConfig{
			Backend:    "fs",
			Root:       DefaultAssetsRoot,
			PresignTTL: DefaultPresignTTL,
		},
		RateLimit: RateLimitConfig{
			TokenPerMinute: 60,
			GatewayRPS:     50,
			GatewayBurst:   100,
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "coursecast",
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}
