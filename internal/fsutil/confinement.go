// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsutil contains filesystem helpers for serving files from a
// fixed root without escaping it.
package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrEscapesRoot is returned when a path resolves outside its root.
var ErrEscapesRoot = errors.New("path escapes root")

// ConfineRelPath joins root and relTarget and returns the resolved path of an
// existing file physically underneath the resolved root. Symlinks are followed
// and must stay inside root. Backslashes, absolute targets and ".." segments
// are rejected before touching the filesystem. A missing target yields an
// error wrapping fs.ErrNotExist.
func ConfineRelPath(root, relTarget string) (string, error) {
	if strings.Contains(relTarget, "\\") {
		return "", fmt.Errorf("path contains backslash: %q: %w", relTarget, ErrEscapesRoot)
	}
	if relTarget == "" || strings.HasPrefix(relTarget, "/") || filepath.IsAbs(relTarget) {
		return "", fmt.Errorf("target path must be relative: %q: %w", relTarget, ErrEscapesRoot)
	}
	cleanRel := filepath.Clean(relTarget)
	if !filepath.IsLocal(cleanRel) {
		return "", fmt.Errorf("path traversal attempt: %q: %w", relTarget, ErrEscapesRoot)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root path: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}

	realPath, err := filepath.EvalSymlinks(filepath.Join(realRoot, cleanRel))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		return "", fmt.Errorf("resolve path: %w", err)
	}

	rel, err := filepath.Rel(realRoot, realPath)
	if err != nil || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%q resolves outside root: %w", relTarget, ErrEscapesRoot)
	}
	return realPath, nil
}

// ErrNotRegular is returned by OpenRegular for directories, devices and
// other non-regular files.
var ErrNotRegular = errors.New("not a regular file")

// OpenRegular opens path for reading and returns it with its FileInfo. The
// file is closed again when it is not a regular file.
func OpenRegular(path string) (*os.File, fs.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err == nil && !info.Mode().IsRegular() {
		err = fmt.Errorf("%s: %w", path, ErrNotRegular)
	}
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return f, info, nil
}
