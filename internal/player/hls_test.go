// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlaylist(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []playlistRef
	}{
		{
			name: "master",
			in:   "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=1280x720\n720p/index.m3u8\n#EXT-X-STREAM-INF:BANDWIDTH=300000\n360p/index.m3u8\n",
			want: []playlistRef{{AssetPlaylist, "720p/index.m3u8"}, {AssetPlaylist, "360p/index.m3u8"}},
		},
		{
			name: "media with key and map",
			in:   "#EXTM3U\r\n#EXT-X-MAP:URI=\"init.mp4\"\r\n#EXT-X-KEY:METHOD=AES-128,URI=\"../enc.key\",IV=0x1\r\n#EXTINF:6,\r\nseg_1.m4s\r\n",
			want: []playlistRef{{AssetInit, "init.mp4"}, {AssetKey, "../enc.key"}, {AssetSegment, "seg_1.m4s"}},
		},
		{
			name: "key method none",
			in:   "#EXTM3U\n#EXT-X-KEY:METHOD=NONE\n#EXTINF:6,\nseg_1.ts\n",
			want: []playlistRef{{AssetSegment, "seg_1.ts"}},
		},
		{
			name: "empty playlist",
			in:   "#EXTM3U\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePlaylist(strings.NewReader(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePlaylist_RejectsNonPlaylist(t *testing.T) {
	for _, in := range []string{"", "\n\n", "<html>", "seg_1.ts\n#EXTM3U\n"} {
		_, err := parsePlaylist(strings.NewReader(in))
		assert.ErrorIs(t, err, ErrNotPlaylist, "input %q", in)
	}
}

func TestAttribute(t *testing.T) {
	line := `#EXT-X-KEY:METHOD=AES-128,URI="https://cdn.example/k,1.key",IV=0xABC`
	assert.Equal(t, "AES-128", attribute(line, "METHOD"))
	assert.Equal(t, "https://cdn.example/k,1.key", attribute(line, "URI"))
	assert.Equal(t, "0xABC", attribute(line, "IV"))
	assert.Empty(t, attribute(line, "KEYFORMAT"))
	assert.Empty(t, attribute(`#EXT-X-KEY:URI="unterminated`, "URI"))
}
