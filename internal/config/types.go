// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config provides configuration management for coursecast.
//
// Precedence is ENV > File > Defaults. The YAML file is parsed strictly:
// unknown keys are rejected.
package config

import "time"

// AppConfig is the effective runtime configuration.
type AppConfig struct {
	Version string `yaml:"-"`

	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Session    SessionConfig    `yaml:"session"`
	Playback   PlaybackConfig   `yaml:"playback"`
	Store      StoreConfig      `yaml:"store"`
	Revocation RevocationConfig `yaml:"revocation"`
	Assets     AssetsConfig     `yaml:"assets"`
	RateLimit  RateLimitConfig  `yaml:"rateLimit"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	ListenAddr        string        `yaml:"listenAddr"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	IdleTimeout       time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
	AllowedOrigins    []string      `yaml:"allowedOrigins"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// SessionConfig describes how user session tokens minted by the
// authentication service are verified.
type SessionConfig struct {
	Secret   string `yaml:"secret"`
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
}

// SigningKey is one HS256 key of the playback key ring.
type SigningKey struct {
	ID     string `yaml:"id"`
	Secret string `yaml:"secret"`
}

// PlaybackConfig configures playback token minting and verification.
type PlaybackConfig struct {
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	DefaultTTL  time.Duration `yaml:"defaultTTL"`
	MaxTTL      time.Duration `yaml:"maxTTL"`
	ActiveKeyID string        `yaml:"activeKeyID"`
	Keys        []SigningKey  `yaml:"keys"`
}

// StoreConfig configures the entitlement store.
type StoreConfig struct {
	SQLitePath       string        `yaml:"sqlitePath"`
	BusyTimeout      time.Duration `yaml:"busyTimeout"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

// RevocationConfig selects the backend of the playback token deny list.
type RevocationConfig struct {
	Backend       string `yaml:"backend"` // memory | redis
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB"`
}

// AssetsConfig selects where HLS assets are served from.
type AssetsConfig struct {
	Backend     string        `yaml:"backend"` // fs | s3
	Root        string        `yaml:"root"`
	S3Bucket    string        `yaml:"s3Bucket"`
	S3Region    string        `yaml:"s3Region"`
	S3Endpoint  string        `yaml:"s3Endpoint"`
	S3Prefix    string        `yaml:"s3Prefix"`
	S3AccessKey string        `yaml:"s3AccessKey"`
	S3SecretKey string        `yaml:"s3SecretKey"`
	S3PathStyle bool          `yaml:"s3PathStyle"`
	PresignTTL  time.Duration `yaml:"presignTTL"`
}

// RateLimitConfig bounds request rates on the token endpoint and the gateway.
type RateLimitConfig struct {
	TokenPerMinute int     `yaml:"tokenPerMinute"`
	GatewayRPS     float64 `yaml:"gatewayRPS"`
	GatewayBurst   int     `yaml:"gatewayBurst"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"serviceName"`
	Exporter     string  `yaml:"exporter"` // grpc | http
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// ActiveKey returns the signing key with ActiveKeyID, if configured.
func (p PlaybackConfig) ActiveKey() (SigningKey, bool) {
	for _, k := range p.Keys {
		if k.ID == p.ActiveKeyID {
			return k, true
		}
	}
	return SigningKey{}, false
}
