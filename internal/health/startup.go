// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/coursecast/internal/config"
	"github.com/ManuGH/coursecast/internal/log"
)

// PerformStartupChecks validates the environment before the server starts
// listening. Config syntax is already validated by the loader; these checks
// cover the filesystem.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")

	if err := checkDataDir(logger, databaseDir(cfg.Store.SQLitePath)); err != nil {
		return fmt.Errorf("database directory: %w", err)
	}

	if cfg.Assets.Backend == "fs" {
		if err := checkAssetsRoot(logger, cfg.Assets.Root); err != nil {
			return fmt.Errorf("assets root: %w", err)
		}
	}

	if cfg.Revocation.Backend == "memory" {
		logger.Warn().
			Str("revocation_backend", cfg.Revocation.Backend).
			Msg("revocations are kept in memory; they are lost on restart and not shared between instances")
	}

	logger.Info().Str(log.FieldEvent, "startup.checks_passed").Msg("startup checks passed")
	return nil
}

// databaseDir returns the directory holding the sqlite file. ":memory:" and
// file: URIs are not checked.
func databaseDir(path string) string {
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file:") {
		return ""
	}
	return filepath.Dir(path)
}

// statDir fails unless path is an existing directory.
func statDir(path string) error {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s does not exist", path)
	case err != nil:
		return err
	case !info.IsDir():
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}

// checkDataDir fails unless sqlite can create its -wal and -shm files in path.
func checkDataDir(logger zerolog.Logger, path string) error {
	if path == "" {
		return nil
	}
	if err := statDir(path); err != nil {
		return err
	}
	probe, err := os.CreateTemp(path, ".coursecast-write-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", path, err)
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())

	logger.Debug().Str(log.FieldPath, path).Msg("database directory is writable")
	return nil
}

func checkAssetsRoot(logger zerolog.Logger, root string) error {
	if err := statDir(root); err != nil {
		return err
	}
	if _, err := os.ReadDir(root); err != nil {
		return fmt.Errorf("%s is not readable: %w", root, err)
	}
	logger.Debug().Str(log.FieldPath, root).Msg("assets root is readable")
	return nil
}
