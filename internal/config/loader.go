// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the loader consumes.
const EnvPrefix = "COURSECAST_"

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseString(EnvPrefix+key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseBool(EnvPrefix+key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseInt(EnvPrefix+key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseFloat(EnvPrefix+key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseDuration(EnvPrefix+key, defaultVal)
}

func (l *Loader) envList(key string, defaultVal []string) []string {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseList(EnvPrefix+key, defaultVal)
}

// Path returns the configuration file path, empty for ENV-only setups.
func (l *Loader) Path() string {
	return l.configPath
}

// Load loads configuration with precedence: ENV > File > Defaults
// It enforces Strict Validated Order: Parse File (Strict) -> Apply Env -> Validate
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes the YAML file on top of cfg with STRICT parsing.
// Unknown fields cause an error to prevent misconfiguration.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

// mergeEnv applies COURSECAST_* overrides.
func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.Server.ListenAddr = l.envString("LISTEN_ADDR", cfg.Server.ListenAddr)
	cfg.Server.ReadHeaderTimeout = l.envDuration("READ_HEADER_TIMEOUT", cfg.Server.ReadHeaderTimeout)
	cfg.Server.ShutdownTimeout = l.envDuration("SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.AllowedOrigins = l.envList("ALLOWED_ORIGINS", cfg.Server.AllowedOrigins)

	cfg.Log.Level = l.envString("LOG_LEVEL", cfg.Log.Level)

	cfg.Session.Secret = l.envString("SESSION_SECRET", cfg.Session.Secret)
	cfg.Session.Issuer = l.envString("SESSION_ISSUER", cfg.Session.Issuer)
	cfg.Session.Audience = l.envString("SESSION_AUDIENCE", cfg.Session.Audience)

	cfg.Playback.DefaultTTL = l.envDuration("PLAYBACK_TTL", cfg.Playback.DefaultTTL)
	cfg.Playback.MaxTTL = l.envDuration("PLAYBACK_MAX_TTL", cfg.Playback.MaxTTL)
	cfg.Playback.ActiveKeyID = l.envString("PLAYBACK_KEY_ID", cfg.Playback.ActiveKeyID)
	// A single secret from the environment replaces (or adds) the active key.
	if secret := l.envString("PLAYBACK_SECRET", ""); secret != "" {
		cfg.Playback.Keys = upsertKey(cfg.Playback.Keys, SigningKey{ID: cfg.Playback.ActiveKeyID, Secret: secret})
	}

	cfg.Store.SQLitePath = l.envString("SQLITE_PATH", cfg.Store.SQLitePath)
	cfg.Store.BusyTimeout = l.envDuration("SQLITE_BUSY_TIMEOUT", cfg.Store.BusyTimeout)

	cfg.Revocation.Backend = l.envString("REVOCATION_BACKEND", cfg.Revocation.Backend)
	cfg.Revocation.RedisAddr = l.envString("REDIS_ADDR", cfg.Revocation.RedisAddr)
	cfg.Revocation.RedisPassword = l.envString("REDIS_PASSWORD", cfg.Revocation.RedisPassword)
	cfg.Revocation.RedisDB = l.envInt("REDIS_DB", cfg.Revocation.RedisDB)

	cfg.Assets.Backend = l.envString("ASSETS_BACKEND", cfg.Assets.Backend)
	cfg.Assets.Root = l.envString("ASSETS_ROOT", cfg.Assets.Root)
	cfg.Assets.S3Bucket = l.envString("S3_BUCKET", cfg.Assets.S3Bucket)
	cfg.Assets.S3Region = l.envString("S3_REGION", cfg.Assets.S3Region)
	cfg.Assets.S3Endpoint = l.envString("S3_ENDPOINT", cfg.Assets.S3Endpoint)
	cfg.Assets.S3Prefix = l.envString("S3_PREFIX", cfg.Assets.S3Prefix)
	cfg.Assets.S3AccessKey = l.envString("S3_ACCESS_KEY", cfg.Assets.S3AccessKey)
	cfg.Assets.S3SecretKey = l.envString("S3_SECRET_KEY", cfg.Assets.S3SecretKey)
	cfg.Assets.S3PathStyle = l.envBool("S3_PATH_STYLE", cfg.Assets.S3PathStyle)
	cfg.Assets.PresignTTL = l.envDuration("PRESIGN_TTL", cfg.Assets.PresignTTL)

	cfg.RateLimit.TokenPerMinute = l.envInt("RATELIMIT_TOKEN_PER_MINUTE", cfg.RateLimit.TokenPerMinute)
	cfg.RateLimit.GatewayRPS = l.envFloat("RATELIMIT_GATEWAY_RPS", cfg.RateLimit.GatewayRPS)
	cfg.RateLimit.GatewayBurst = l.envInt("RATELIMIT_GATEWAY_BURST", cfg.RateLimit.GatewayBurst)

	cfg.Telemetry.Enabled = l.envBool("TRACING_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("TRACING_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("TRACING_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("TRACING_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}

func upsertKey(keys []SigningKey, k SigningKey) []SigningKey {
	out := make([]SigningKey, 0, len(keys)+1)
	replaced := false
	for _, existing := range keys {
		if existing.ID == k.ID {
			out = append(out, k)
			replaced = true
			continue
		}
		out = append(out, existing)
	}
	if !replaced {
		out = append(out, k)
	}
	return out
}
