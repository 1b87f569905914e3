// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package gateway

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/ManuGH/coursecast/internal/auth"
	"github.com/ManuGH/coursecast/internal/fsutil"
)

// ErrAssetNotFound is returned by a Backend when the asset does not exist.
var ErrAssetNotFound = errors.New("gateway: asset not found")

// Backend delivers an authorized asset. tokenRemaining is how long the
// presented token stays valid; backends must not hand out credentials that
// outlive it. A Backend writes nothing on error.
type Backend interface {
	Serve(w http.ResponseWriter, r *http.Request, a Asset, tokenRemaining time.Duration) error
}

// FileBackend serves assets from <Root>/<Dir>/<Path>.
type FileBackend struct {
	Root string
}

// Serve implements Backend. Range requests are handled by http.ServeContent.
func (b FileBackend) Serve(w http.ResponseWriter, r *http.Request, a Asset, _ time.Duration) error {
	p, err := fsutil.ConfineRelPath(b.Root, a.Key())
	if errors.Is(err, fs.ErrNotExist) {
		return ErrAssetNotFound
	}
	if err != nil {
		return err
	}

	f, info, err := fsutil.OpenRegular(p)
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fsutil.ErrNotRegular):
		return ErrAssetNotFound
	case err != nil:
		return fmt.Errorf("open asset: %w", err)
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", a.ContentType())
	w.Header().Set("Cache-Control", a.CacheControl())
	http.ServeContent(w, r, path.Base(a.Path), info.ModTime(), f)
	return nil
}

// S3Config configures the pre-signed redirect backend.
type S3Config struct {
	Bucket     string
	Region     string
	Endpoint   string
	Prefix     string
	AccessKey  string
	SecretKey  string
	PathStyle  bool
	PresignTTL time.Duration
}

// S3Backend redirects to short-lived pre-signed GET URLs.
type S3Backend struct {
	client *s3.S3
	bucket string
	prefix string
	ttl    time.Duration
}

// NewS3Backend builds the S3 client. Presigning is local; no request is
// made to S3 here.
func NewS3Backend(cfg S3Config) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gateway: s3 bucket is required")
	}
	awsCfg := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(cfg.PathStyle),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("gateway: aws session: %w", err)
	}

	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Backend{client: s3.New(sess), bucket: cfg.Bucket, prefix: prefix, ttl: ttl}, nil
}

// Presign returns a GET URL for a, valid for lifetime.
func (b *S3Backend) Presign(a Asset, lifetime time.Duration) (string, error) {
	req, _ := b.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket:               aws.String(b.bucket),
		Key:                  aws.String(b.prefix + a.Key()),
		ResponseContentType:  aws.String(a.ContentType()),
		ResponseCacheControl: aws.String(a.CacheControl()),
	})
	u, err := req.Presign(lifetime)
	if err != nil {
		return "", fmt.Errorf("gateway: presign: %w", err)
	}
	return u, nil
}

// Serve implements Backend.
func (b *S3Backend) Serve(w http.ResponseWriter, r *http.Request, a Asset, tokenRemaining time.Duration) error {
	lifetime := min(b.ttl, tokenRemaining).Truncate(time.Second)
	if lifetime < time.Second {
		return auth.ErrTokenExpired
	}
	u, err := b.Presign(a, lifetime)
	if err != nil {
		return err
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, u, http.StatusFound)
	return nil
}
