// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfineRelPath(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "vid-1", "720p"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "vid-1", "index.m3u8"), []byte("#EXTM3U\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "vid-1", "720p", "seg_0001.ts"), []byte("ts"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.key"), []byte("k"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.key"), filepath.Join(root, "vid-1", "leak.key")))

	t.Run("inside root", func(t *testing.T) {
		p, err := ConfineRelPath(root, "vid-1/720p/seg_0001.ts")
		require.NoError(t, err)
		assert.Equal(t, "seg_0001.ts", filepath.Base(p))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ConfineRelPath(root, "vid-1/nope.ts")
		assert.True(t, errors.Is(err, fs.ErrNotExist))
	})

	for _, bad := range []string{"../x", "vid-1/../../x", "/etc/passwd", `vid-1\index.m3u8`, ""} {
		t.Run("rejects "+bad, func(t *testing.T) {
			_, err := ConfineRelPath(root, bad)
			assert.ErrorIs(t, err, ErrEscapesRoot)
		})
	}

	t.Run("symlink escape", func(t *testing.T) {
		_, err := ConfineRelPath(root, "vid-1/leak.key")
		assert.ErrorIs(t, err, ErrEscapesRoot)
	})
}

func TestOpenRegular(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "seg0.ts")
	require.NoError(t, os.WriteFile(name, []byte("ts"), 0o644))

	f, info, err := OpenRegular(name)
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.Size())
	require.NoError(t, f.Close())

	_, _, err = OpenRegular(dir)
	assert.ErrorIs(t, err, ErrNotRegular)

	_, _, err = OpenRegular(filepath.Join(dir, "missing.ts"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
