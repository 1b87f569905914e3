// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/renameio/v2"

	xglog "github.com/ManuGH/coursecast/internal/log"
)

// SaveState writes s to path atomically. Token values are never part of a
// Snapshot and so never reach the disk.
func SaveState(path string, s Snapshot) error {
	logger := xglog.WithComponent("player")

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode player state: %w", err)
	}

	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending state file: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending state file")
		}
	}()

	if _, err := pendingFile.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write player state: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace state file: %w", err)
	}
	return nil
}

// LoadState reads a file written by SaveState.
func LoadState(path string) (Snapshot, error) {
	var s Snapshot
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied path
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("decode player state: %w", err)
	}
	return s, nil
}
