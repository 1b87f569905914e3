// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ManuGH/coursecast/internal/api"
	"github.com/ManuGH/coursecast/internal/auth"
	"github.com/ManuGH/coursecast/internal/cache"
	"github.com/ManuGH/coursecast/internal/config"
	"github.com/ManuGH/coursecast/internal/entitlement"
	"github.com/ManuGH/coursecast/internal/gateway"
	"github.com/ManuGH/coursecast/internal/health"
	xglog "github.com/ManuGH/coursecast/internal/log"
	"github.com/ManuGH/coursecast/internal/persistence/sqlite"
	"github.com/ManuGH/coursecast/internal/playback"
	"github.com/ManuGH/coursecast/internal/revocation"
)

// Runtime is the wired server and the resources it holds open.
type Runtime struct {
	Server *api.Server
	Store  *sqlite.EntitlementStore
	Health *health.Manager

	db    *sql.DB
	cache revocationCache
}

type revocationCache interface {
	cache.Cache
	Close() error
}

// Bootstrap opens the entitlement database and the revocation backend and
// assembles the API server from cfg.
func Bootstrap(ctx context.Context, cfg config.AppConfig) (_ *Runtime, err error) {
	logger := xglog.WithComponent("bootstrap")
	rt := &Runtime{Health: health.NewManager(cfg.Version)}
	defer func() {
		if err != nil {
			rt.close()
		}
	}()

	rt.db, err = OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	rt.Store = sqlite.NewEntitlementStore(rt.db)
	guarded := entitlement.NewGuardedStore(rt.Store, cfg.Store.BreakerThreshold, cfg.Store.BreakerReset)
	resolver := entitlement.NewResolver(guarded)

	rt.cache, err = openRevocationCache(ctx, cfg.Revocation)
	if err != nil {
		return nil, err
	}
	revocations := revocation.New(rt.cache, nil)

	keys, err := NewKeyring(cfg.Playback)
	if err != nil {
		return nil, err
	}
	settings := api.PlaybackSettings(cfg.Playback)
	issuer, err := playback.NewIssuer(resolver, keys, settings)
	if err != nil {
		return nil, err
	}
	verifier := playback.NewVerifier(keys, settings)
	sessions := auth.NewSessionVerifier([]byte(cfg.Session.Secret), cfg.Session.Issuer, cfg.Session.Audience)

	backend, err := NewBackend(cfg.Assets)
	if err != nil {
		return nil, err
	}

	rt.Health.RegisterChecker(health.NewPingChecker("sqlite", rt.Store.Ping))
	rt.Health.RegisterChecker(health.NewPingChecker("revocation", rt.cache.Ping))
	rt.Health.RegisterChecker(health.NewBreakerChecker("entitlement_store", guarded.BreakerState))

	rt.Server, err = api.New(cfg, api.Deps{
		Keys:        keys,
		Issuer:      issuer,
		Verifier:    verifier,
		Sessions:    sessions,
		Revocations: revocations,
		Backend:     backend,
		Health:      rt.Health,
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("revocation_backend", cfg.Revocation.Backend).
		Str("assets_backend", cfg.Assets.Backend).
		Str("active_kid", cfg.Playback.ActiveKeyID).
		Msg("runtime assembled")
	return rt, nil
}

// RegisterHooks closes the runtime's resources on manager shutdown.
func (rt *Runtime) RegisterHooks(m Manager) {
	m.RegisterShutdownHook("sqlite", func(context.Context) error { return rt.db.Close() })
	m.RegisterShutdownHook("revocation", func(context.Context) error { return rt.cache.Close() })
}

func (rt *Runtime) close() {
	if rt.cache != nil {
		_ = rt.cache.Close()
	}
	if rt.db != nil {
		_ = rt.db.Close()
	}
}

// Close releases the runtime without a manager.
func (rt *Runtime) Close() { rt.close() }

// OpenStore opens and migrates the sqlite entitlement database.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (*sql.DB, error) {
	sc := sqlite.DefaultConfig()
	if cfg.BusyTimeout > 0 {
		sc.BusyTimeout = cfg.BusyTimeout
	}
	db, err := sqlite.Open(ctx, cfg.SQLitePath, sc)
	if err != nil {
		return nil, fmt.Errorf("open entitlement store %s: %w", cfg.SQLitePath, err)
	}
	return db, nil
}

// NewKeyring loads the playback signing keys.
func NewKeyring(cfg config.PlaybackConfig) (*auth.Keyring, error) {
	keys, err := auth.NewKeyring(cfg.ActiveKeyID, api.SigningKeys(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("playback keys: %w", err)
	}
	return keys, nil
}

// NewBackend returns the asset backend selected by cfg.Backend.
func NewBackend(cfg config.AssetsConfig) (gateway.Backend, error) {
	switch cfg.Backend {
	case "", "fs":
		return gateway.FileBackend{Root: cfg.Root}, nil
	case "s3":
		return gateway.NewS3Backend(gateway.S3Config{
			Bucket:     cfg.S3Bucket,
			Region:     cfg.S3Region,
			Endpoint:   cfg.S3Endpoint,
			Prefix:     cfg.S3Prefix,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			PathStyle:  cfg.S3PathStyle,
			PresignTTL: cfg.PresignTTL,
		})
	default:
		return nil, fmt.Errorf("unknown assets backend %q", cfg.Backend)
	}
}

func openRevocationCache(ctx context.Context, cfg config.RevocationConfig) (revocationCache, error) {
	switch cfg.Backend {
	case "", "memory":
		return cache.NewMemoryCache(time.Minute), nil
	case "redis":
		c, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   "coursecast:",
		}, xglog.WithComponent("revocation"))
		if err != nil {
			return nil, fmt.Errorf("revocation backend: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown revocation backend %q", cfg.Backend)
	}
}
