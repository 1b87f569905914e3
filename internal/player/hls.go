// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	maxPlaylistBytes = 1 << 20
	maxPlaylistDepth = 2
)

// AssetKind is the class of a fetched HLS file.
type AssetKind string

const (
	AssetPlaylist AssetKind = "playlist"
	AssetSegment  AssetKind = "segment"
	AssetInit     AssetKind = "init"
	AssetKey      AssetKind = "key"
)

// ErrNotPlaylist is returned for a playlist without the #EXTM3U header.
var ErrNotPlaylist = errors.New("player: not an HLS playlist")

// StatusError is a non-2xx gateway answer.
type StatusError struct {
	Path   string
	Status int
	Code   string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("player: GET %s: %d %s", e.Path, e.Status, e.Code)
	}
	return fmt.Sprintf("player: GET %s: %d", e.Path, e.Status)
}

// WalkStats counts what a Walk fetched.
type WalkStats struct {
	Playlists int   `json:"playlists"`
	Segments  int   `json:"segments"`
	Keys      int   `json:"keys"`
	Bytes     int64 `json:"bytes"`
}

// Walker fetches every file of a video's HLS tree through one client,
// normally one whose transport is a Transport.
type Walker struct {
	base   *url.URL
	client *http.Client
}

// NewWalker returns a walker for the gateway at baseURL.
func NewWalker(baseURL string, client *http.Client) (*Walker, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("player: parse base url: %w", err)
	}
	if client == nil {
		return nil, errors.New("player: http client is required")
	}
	return &Walker{base: u, client: client}, nil
}

// ManifestURL is the master playlist of videoID.
func (w *Walker) ManifestURL(videoID string) *url.URL {
	return w.base.JoinPath("api", "videos", "hls", videoID, "index.m3u8")
}

// Walk downloads the master playlist of videoID and everything it references.
// visit, when not nil, is called after each successful fetch.
func (w *Walker) Walk(ctx context.Context, videoID string, visit func(kind AssetKind, u *url.URL, size int64)) (WalkStats, error) {
	var stats WalkStats
	seen := map[string]bool{}
	err := w.walkPlaylist(ctx, w.ManifestURL(videoID), 0, seen, &stats, visit)
	return stats, err
}

func (w *Walker) walkPlaylist(ctx context.Context, u *url.URL, depth int, seen map[string]bool, stats *WalkStats, visit func(AssetKind, *url.URL, int64)) error {
	body, err := w.get(ctx, u)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(io.LimitReader(body, maxPlaylistBytes))
	_ = body.Close()
	if err != nil {
		return fmt.Errorf("player: read %s: %w", u.Path, err)
	}
	stats.Playlists++
	stats.Bytes += int64(len(data))
	if visit != nil {
		visit(AssetPlaylist, u, int64(len(data)))
	}

	refs, err := parsePlaylist(bytes.NewReader(data))
	if err != nil {
		return err
	}
	for _, ref := range refs {
		target, err := u.Parse(ref.uri)
		if err != nil {
			return fmt.Errorf("player: bad uri %q in %s: %w", ref.uri, u.Path, err)
		}
		if seen[target.String()] {
			continue
		}
		seen[target.String()] = true

		if ref.kind == AssetPlaylist {
			if depth+1 > maxPlaylistDepth {
				continue
			}
			if err := w.walkPlaylist(ctx, target, depth+1, seen, stats, visit); err != nil {
				return err
			}
			continue
		}
		n, err := w.fetch(ctx, target)
		if err != nil {
			return err
		}
		stats.Bytes += n
		if ref.kind == AssetKey {
			stats.Keys++
		} else {
			stats.Segments++
		}
		if visit != nil {
			visit(ref.kind, target, n)
		}
	}
	return nil
}

func (w *Walker) fetch(ctx context.Context, u *url.URL) (int64, error) {
	body, err := w.get(ctx, u)
	if err != nil {
		return 0, err
	}
	defer func() { _ = body.Close() }()
	n, err := io.Copy(io.Discard, body)
	if err != nil {
		return n, fmt.Errorf("player: read %s: %w", u.Path, err)
	}
	return n, nil
}

func (w *Walker) get(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body := readErrorBody(resp.Body)
		_ = resp.Body.Close()
		return nil, &StatusError{Path: u.Path, Status: resp.StatusCode, Code: body.Code}
	}
	return resp.Body, nil
}

type playlistRef struct {
	kind AssetKind
	uri  string
}

// parsePlaylist extracts variant playlists, segments, init sections and
// keys in order of appearance.
func parsePlaylist(r io.Reader) ([]playlistRef, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxPlaylistBytes)

	var (
		refs    []playlistRef
		header  bool
		variant bool
	)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case !header:
			if line != "#EXTM3U" {
				return nil, ErrNotPlaylist
			}
			header = true
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			variant = true
		case strings.HasPrefix(line, "#EXT-X-KEY:"):
			if uri := attribute(line, "URI"); uri != "" && attribute(line, "METHOD") != "NONE" {
				refs = append(refs, playlistRef{kind: AssetKey, uri: uri})
			}
		case strings.HasPrefix(line, "#EXT-X-MAP:"):
			if uri := attribute(line, "URI"); uri != "" {
				refs = append(refs, playlistRef{kind: AssetInit, uri: uri})
			}
		case strings.HasPrefix(line, "#"):
			continue
		default:
			kind := AssetSegment
			if variant || strings.HasSuffix(line, ".m3u8") {
				kind = AssetPlaylist
			}
			variant = false
			refs = append(refs, playlistRef{kind: kind, uri: line})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("player: scan playlist: %w", err)
	}
	if !header {
		return nil, ErrNotPlaylist
	}
	return refs, nil
}

// attribute returns the value of name in an attribute list such as
// METHOD=AES-128,URI="key.key". Quoted values may contain commas.
func attribute(line, name string) string {
	_, list, ok := strings.Cut(line, ":")
	if !ok {
		return ""
	}
	for list != "" {
		key, rest, ok := strings.Cut(list, "=")
		if !ok {
			return ""
		}
		var value string
		if strings.HasPrefix(rest, `"`) {
			end := strings.Index(rest[1:], `"`)
			if end < 0 {
				return ""
			}
			value, rest = rest[1:end+1], rest[end+2:]
			rest = strings.TrimPrefix(rest, ",")
		} else {
			value, rest, _ = strings.Cut(rest, ",")
		}
		if strings.TrimSpace(key) == name {
			return value
		}
		list = rest
	}
	return ""
}
