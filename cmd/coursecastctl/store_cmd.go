// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/coursecast/internal/daemon"
	"github.com/ManuGH/coursecast/internal/entitlement"
	"github.com/ManuGH/coursecast/internal/gateway"
	"github.com/ManuGH/coursecast/internal/persistence/sqlite"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the entitlement database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd.Context(), func(*sqlite.EntitlementStore) error {
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		})
	},
}

var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "Manage courses and videos",
}

var contentFlags struct {
	title       string
	course      string
	assetPrefix string
	free        bool
}

var contentAddCmd = &cobra.Command{
	Use:   "add (course|video) ID",
	Short: "Add or replace a course or a video",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, id := args[0], args[1]
		return withStore(cmd.Context(), func(s *sqlite.EntitlementStore) error {
			switch kind {
			case "course":
				return s.PutCourse(cmd.Context(), id, contentFlags.title, contentFlags.free)
			case "video":
				if contentFlags.course == "" {
					return errors.New("--course is required for videos")
				}
				if p := contentFlags.assetPrefix; p != "" && !gateway.ValidAssetDir(p) {
					return fmt.Errorf("invalid --asset-prefix %q", p)
				}
				return s.PutVideo(cmd.Context(), id, contentFlags.course, contentFlags.title, contentFlags.assetPrefix, contentFlags.free)
			default:
				return fmt.Errorf("unknown content kind %q, want course or video", kind)
			}
		})
	},
}

var grantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Manage access grants",
}

var grantFlags struct {
	user      string
	content   string
	days      int
	source    string
	grantedAt string
}

var grantAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a purchase or a manual grant",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if grantFlags.user == "" || grantFlags.content == "" {
			return errors.New("--user and --content are required")
		}
		at := time.Now().UTC()
		if grantFlags.grantedAt != "" {
			parsed, err := time.Parse(time.RFC3339, grantFlags.grantedAt)
			if err != nil {
				return fmt.Errorf("--at: %w", err)
			}
			at = parsed
		}
		g := entitlement.Grant{
			UserID:    grantFlags.user,
			ContentID: grantFlags.content,
			GrantedAt: at,
			Source:    grantFlags.source,
		}
		if grantFlags.days > 0 {
			g.AccessDurationDays = entitlement.Days(grantFlags.days)
		}
		return withStore(cmd.Context(), func(s *sqlite.EntitlementStore) error {
			if err := s.AddGrant(cmd.Context(), g); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"userId":    g.UserID,
				"contentId": g.ContentID,
				"grantedAt": g.GrantedAt,
				"expiresAt": g.ExpiresAt(),
			})
		})
	},
}

func init() {
	contentAddCmd.Flags().StringVar(&contentFlags.title, "title", "", "display title")
	contentAddCmd.Flags().StringVar(&contentFlags.course, "course", "", "parent course of a video")
	contentAddCmd.Flags().StringVar(&contentFlags.assetPrefix, "asset-prefix", "", "asset directory of a video, defaults to its id")
	contentAddCmd.Flags().BoolVar(&contentFlags.free, "free", false, "playable without a grant")
	contentCmd.AddCommand(contentAddCmd)

	grantAddCmd.Flags().StringVar(&grantFlags.user, "user", "", "user id")
	grantAddCmd.Flags().StringVar(&grantFlags.content, "content", "", "course or video id")
	grantAddCmd.Flags().IntVar(&grantFlags.days, "days", 0, "access duration in days, 0 for unlimited")
	grantAddCmd.Flags().StringVar(&grantFlags.source, "source", "purchase", "grant source")
	grantAddCmd.Flags().StringVar(&grantFlags.grantedAt, "at", "", "grant time (RFC 3339), defaults to now")
	grantCmd.AddCommand(grantAddCmd)

	rootCmd.AddCommand(migrateCmd, contentCmd, grantCmd)
}

func withStore(ctx context.Context, fn func(*sqlite.EntitlementStore) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := daemon.OpenStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return fn(sqlite.NewEntitlementStore(db))
}
