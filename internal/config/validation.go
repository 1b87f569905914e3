// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"time"

	"github.com/ManuGH/coursecast/internal/validate"
)

// Validate validates an AppConfig using the centralized validation package
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.ListenAddr("Server.ListenAddr", cfg.Server.ListenAddr)
	v.OneOf("Log.Level", cfg.Log.Level, []string{"trace", "debug", "info", "warn", "error"})

	v.MinLength("Session.Secret", cfg.Session.Secret, minSecretBytes)
	v.NotEmpty("Session.Audience", cfg.Session.Audience)

	validatePlayback(v, cfg.Playback)

	v.NotEmpty("Store.SQLitePath", cfg.Store.SQLitePath)
	v.Positive("Store.BreakerThreshold", cfg.Store.BreakerThreshold)
	v.DurationRange("Store.BreakerReset", cfg.Store.BreakerReset, time.Second, 10*time.Minute)

	v.OneOf("Revocation.Backend", cfg.Revocation.Backend, []string{"memory", "redis"})
	if cfg.Revocation.Backend == "redis" {
		v.NotEmpty("Revocation.RedisAddr", cfg.Revocation.RedisAddr)
	}

	v.OneOf("Assets.Backend", cfg.Assets.Backend, []string{"fs", "s3"})
	switch cfg.Assets.Backend {
	case "fs":
		v.NotEmpty("Assets.Root", cfg.Assets.Root)
	case "s3":
		v.NotEmpty("Assets.S3Bucket", cfg.Assets.S3Bucket)
		v.NotEmpty("Assets.S3Region", cfg.Assets.S3Region)
		if cfg.Assets.S3Endpoint != "" {
			v.URL("Assets.S3Endpoint", cfg.Assets.S3Endpoint, []string{"http", "https"})
		}
		v.DurationRange("Assets.PresignTTL", cfg.Assets.PresignTTL, time.Second, 15*time.Minute)
	}

	v.Positive("RateLimit.TokenPerMinute", cfg.RateLimit.TokenPerMinute)
	if cfg.RateLimit.GatewayRPS <= 0 {
		v.AddError("RateLimit.GatewayRPS", "value must be positive", cfg.RateLimit.GatewayRPS)
	}
	v.Positive("RateLimit.GatewayBurst", cfg.RateLimit.GatewayBurst)

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.Exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
		if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
			v.AddError("Telemetry.SamplingRate", "must be between 0 and 1", cfg.Telemetry.SamplingRate)
		}
	}

	return v.Err()
}

func validatePlayback(v *validate.Validator, p PlaybackConfig) {
	v.NotEmpty("Playback.Issuer", p.Issuer)
	v.NotEmpty("Playback.Audience", p.Audience)
	v.DurationRange("Playback.MaxTTL", p.MaxTTL, time.Minute, maxConfiguredMaxTTL)
	v.DurationRange("Playback.DefaultTTL", p.DefaultTTL, 30*time.Second, p.MaxTTL)

	if len(p.Keys) == 0 {
		v.AddError("Playback.Keys", "at least one signing key is required", nil)
		return
	}
	seen := make(map[string]struct{}, len(p.Keys))
	for i, k := range p.Keys {
		field := fmt.Sprintf("Playback.Keys[%d]", i)
		v.NotEmpty(field+".ID", k.ID)
		v.MinLength(field+".Secret", k.Secret, minSecretBytes)
		if _, dup := seen[k.ID]; dup {
			v.AddError(field+".ID", "duplicate key id", k.ID)
		}
		seen[k.ID] = struct{}{}
	}
	if _, ok := p.ActiveKey(); !ok {
		v.AddError("Playback.ActiveKeyID", "must reference a configured key", p.ActiveKeyID)
	}
}
