// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package gateway

import (
	"errors"
	"path"
	"regexp"
	"strings"
)

// Kind is the class of an HLS asset.
type Kind string

const (
	KindPlaylist Kind = "playlist"
	KindSegment  Kind = "segment"
	KindInit     Kind = "init"
	KindKey      Kind = "key"
)

// ErrAssetNotAllowed is returned for paths outside the HLS allowlist.
var ErrAssetNotAllowed = errors.New("gateway: asset not allowed")

var (
	videoIDPattern   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)
	renditionPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,31}$`)
	segmentPattern   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}\.(ts|m4s)$`)
	keyPattern       = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}\.key$`)
)

// Asset is one allowlisted file of a video's HLS tree.
type Asset struct {
	VideoID string
	// Dir is the video's directory below the backend root. It defaults to
	// VideoID.
	Dir string
	// Path is relative to Dir, e.g. "720p/seg_00001.ts".
	Path string
	Kind Kind
}

// Key is the slash-separated location of the asset below the backend root.
func (a Asset) Key() string {
	return a.Dir + "/" + a.Path
}

// ContentType returns the media type served for the asset.
func (a Asset) ContentType() string {
	switch a.Kind {
	case KindPlaylist:
		return "application/vnd.apple.mpegurl"
	case KindKey:
		return "application/octet-stream"
	case KindInit:
		return "video/mp4"
	}
	if strings.HasSuffix(a.Path, ".m4s") {
		return "video/iso.segment"
	}
	return "video/MP2T"
}

// CacheControl returns the Cache-Control value for the asset. Tokens are
// user scoped, so nothing may be stored by shared caches.
func (a Asset) CacheControl() string {
	switch a.Kind {
	case KindSegment, KindInit:
		return "private, max-age=60"
	default:
		return "no-store"
	}
}

// ValidVideoID reports whether id is usable as a directory name.
func ValidVideoID(id string) bool {
	return videoIDPattern.MatchString(id)
}

// ValidAssetDir reports whether dir is usable as an asset directory: one to
// eight slash-separated segments, each shaped like a video id.
func ValidAssetDir(dir string) bool {
	segs := strings.Split(dir, "/")
	if len(segs) > 8 {
		return false
	}
	for _, s := range segs {
		if !videoIDPattern.MatchString(s) {
			return false
		}
	}
	return true
}

// ParseAsset checks rel against the allowlist:
//
//	index.m3u8
//	{rendition}/index.m3u8
//	[{rendition}/]*.ts | *.m4s | init.mp4 | *.key
func ParseAsset(videoID, rel string) (Asset, error) {
	if !ValidVideoID(videoID) || rel == "" || strings.HasPrefix(rel, "/") || strings.Contains(rel, "\\") || path.Clean(rel) != rel {
		return Asset{}, ErrAssetNotAllowed
	}

	dir, file := path.Split(rel)
	dir = strings.TrimSuffix(dir, "/")
	if dir != "" && !renditionPattern.MatchString(dir) {
		return Asset{}, ErrAssetNotAllowed
	}

	a := Asset{VideoID: videoID, Dir: videoID, Path: rel}
	switch {
	case file == "index.m3u8":
		a.Kind = KindPlaylist
	case file == "init.mp4":
		a.Kind = KindInit
	case segmentPattern.MatchString(file):
		a.Kind = KindSegment
	case keyPattern.MatchString(file):
		a.Kind = KindKey
	default:
		return Asset{}, ErrAssetNotAllowed
	}
	return a, nil
}
