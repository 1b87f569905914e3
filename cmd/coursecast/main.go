// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command coursecast serves the playback token API and the HLS gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/coursecast/internal/config"
	"github.com/ManuGH/coursecast/internal/daemon"
	"github.com/ManuGH/coursecast/internal/health"
	xglog "github.com/ManuGH/coursecast/internal/log"
	"github.com/ManuGH/coursecast/internal/telemetry"
	"github.com/ManuGH/coursecast/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	// Safe defaults until the config is loaded
	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: "coursecast",
		Version: version.Version,
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, strings.TrimSpace(*configPath)); err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "daemon.failed").
			Msg("coursecast exited with error")
	}
}

func run(ctx context.Context, configPath string) error {
	logger := xglog.WithComponent("daemon")

	loader := config.NewLoader(configPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if err := xglog.SetLevel(cfg.Log.Level); err != nil {
		logger.Warn().Err(err).Str("level", cfg.Log.Level).Msg("unknown log level, keeping info")
	}
	if configPath != "" {
		logger.Info().
			Str(xglog.FieldEvent, "config.loaded").
			Str("source", "file").
			Str(xglog.FieldPath, configPath).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str(xglog.FieldEvent, "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		return fmt.Errorf("startup checks: %w", err)
	}

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	rt, err := daemon.Bootstrap(ctx, cfg)
	if err != nil {
		_ = tp.Shutdown(context.WithoutCancel(ctx))
		return err
	}

	holder := config.NewHolder(cfg, loader)
	holder.OnReload(func(next config.AppConfig) {
		if err := xglog.SetLevel(next.Log.Level); err != nil {
			logger.Warn().Err(err).Msg("log level not changed")
		}
		if err := rt.Server.ApplyConfig(next); err != nil {
			logger.Error().
				Err(err).
				Str(xglog.FieldEvent, "config.apply_failed").
				Msg("reloaded configuration rejected, keeping previous settings")
		}
	})
	if err := holder.StartWatcher(ctx); err != nil {
		logger.Warn().Err(err).Msg("config watcher not started, reload with SIGHUP")
	}
	go reloadOnHangup(ctx, holder)

	mgr, err := daemon.NewManager(cfg.Server, daemon.Deps{
		Logger:     xglog.WithComponent("daemon"),
		APIHandler: rt.Server.Handler(),
	})
	if err != nil {
		rt.Close()
		_ = tp.Shutdown(context.WithoutCancel(ctx))
		return err
	}
	// LIFO: the tracer provider flushes last.
	mgr.RegisterShutdownHook("telemetry", tp.Shutdown)
	rt.RegisterHooks(mgr)

	return mgr.Start(ctx)
}

func reloadOnHangup(ctx context.Context, holder *config.Holder) {
	logger := xglog.WithComponent("daemon")
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := holder.Reload(ctx); err != nil {
				logger.Error().Err(err).Str(xglog.FieldEvent, "config.reload_failed").Msg("SIGHUP reload failed")
			}
		}
	}
}
