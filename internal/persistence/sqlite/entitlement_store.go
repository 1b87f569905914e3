// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/coursecast/internal/entitlement"
)

// EntitlementStore reads and appends course, video and grant records.
type EntitlementStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewEntitlementStore wraps an opened database.
func NewEntitlementStore(db *sql.DB) *EntitlementStore {
	return &EntitlementStore{db: db, now: time.Now}
}

// LookupContent implements entitlement.Store. Video ids are looked up first,
// then course ids.
func (s *EntitlementStore) LookupContent(ctx context.Context, id string) (entitlement.Content, error) {
	var (
		c    entitlement.Content
		free int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT v.id, v.course_id, v.title, (v.free OR c.free), v.asset_prefix
		FROM videos v JOIN courses c ON c.id = v.course_id
		WHERE v.id = ?`, id).Scan(&c.ID, &c.CourseID, &c.Title, &free, &c.AssetPrefix)
	if err == nil {
		c.Free = free != 0
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return entitlement.Content{}, fmt.Errorf("sqlite: lookup video: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `SELECT id, title, free FROM courses WHERE id = ?`, id).
		Scan(&c.ID, &c.Title, &free)
	if errors.Is(err, sql.ErrNoRows) {
		return entitlement.Content{}, entitlement.ErrNotFound
	}
	if err != nil {
		return entitlement.Content{}, fmt.Errorf("sqlite: lookup course: %w", err)
	}
	c.CourseID = c.ID
	c.Free = free != 0
	return c, nil
}

// LatestGrant implements entitlement.Store.
func (s *EntitlementStore) LatestGrant(ctx context.Context, userID string, contentIDs ...string) (entitlement.Grant, error) {
	if len(contentIDs) == 0 {
		return entitlement.Grant{}, entitlement.ErrNotFound
	}
	args := make([]any, 0, len(contentIDs)+1)
	args = append(args, userID)
	for _, id := range contentIDs {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(contentIDs)), ",")

	var (
		g         entitlement.Grant
		grantedMS int64
		days      sql.NullInt64
	)
	// #nosec G202 -- placeholders are generated, values are bound
	query := `SELECT user_id, content_id, granted_at_ms, access_duration_days, source
		FROM grants WHERE user_id = ? AND content_id IN (` + placeholders + `)
		ORDER BY granted_at_ms DESC, id DESC LIMIT 1`
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&g.UserID, &g.ContentID, &grantedMS, &days, &g.Source)
	if errors.Is(err, sql.ErrNoRows) {
		return entitlement.Grant{}, entitlement.ErrNotFound
	}
	if err != nil {
		return entitlement.Grant{}, fmt.Errorf("sqlite: lookup grant: %w", err)
	}
	g.GrantedAt = time.UnixMilli(grantedMS).UTC()
	if days.Valid {
		g.AccessDurationDays = entitlement.Days(int(days.Int64))
	}
	return g, nil
}

// PutCourse inserts or updates a course.
func (s *EntitlementStore) PutCourse(ctx context.Context, id, title string, free bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO courses (id, title, free, created_at_ms) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, free = excluded.free`,
		id, title, boolInt(free), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite: put course: %w", err)
	}
	return nil
}

// PutVideo inserts or updates a video. An empty assetPrefix defaults to the video id.
func (s *EntitlementStore) PutVideo(ctx context.Context, id, courseID, title, assetPrefix string, free bool) error {
	if assetPrefix == "" {
		assetPrefix = id
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO videos (id, course_id, title, free, asset_prefix, created_at_ms) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET course_id = excluded.course_id, title = excluded.title,
			free = excluded.free, asset_prefix = excluded.asset_prefix`,
		id, courseID, title, boolInt(free), assetPrefix, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite: put video: %w", err)
	}
	return nil
}

// AddGrant appends a grant record. Existing grants are never modified.
func (s *EntitlementStore) AddGrant(ctx context.Context, g entitlement.Grant) error {
	var days sql.NullInt64
	if g.AccessDurationDays != nil {
		days = sql.NullInt64{Int64: int64(*g.AccessDurationDays), Valid: true}
	}
	source := g.Source
	if source == "" {
		source = "purchase"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO grants (user_id, content_id, granted_at_ms, access_duration_days, source)
		VALUES (?, ?, ?, ?, ?)`,
		g.UserID, g.ContentID, g.GrantedAt.UnixMilli(), days, source)
	if err != nil {
		return fmt.Errorf("sqlite: add grant: %w", err)
	}
	return nil
}

// Ping checks database reachability.
func (s *EntitlementStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
