// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ManuGH/coursecast/internal/api"
	"github.com/ManuGH/coursecast/internal/auth"
	"github.com/ManuGH/coursecast/internal/daemon"
	"github.com/ManuGH/coursecast/internal/entitlement"
	"github.com/ManuGH/coursecast/internal/persistence/sqlite"
	"github.com/ManuGH/coursecast/internal/playback"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint tokens for debugging",
}

var tokenFlags struct {
	user string
	ttl  time.Duration
}

var tokenMintCmd = &cobra.Command{
	Use:   "mint VIDEO_ID",
	Short: "Mint a playback token after the same entitlement check the server runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenFlags.user == "" {
			return errors.New("--user is required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		keys, err := daemon.NewKeyring(cfg.Playback)
		if err != nil {
			return err
		}
		db, err := daemon.OpenStore(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		resolver := entitlement.NewResolver(sqlite.NewEntitlementStore(db))
		issuer, err := playback.NewIssuer(resolver, keys, api.PlaybackSettings(cfg.Playback))
		if err != nil {
			return err
		}
		issued, err := issuer.Issue(cmd.Context(), &auth.Principal{UserID: tokenFlags.user}, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), api.TokenResponse{
			Success:   true,
			Token:     issued.Token,
			ExpiresIn: issued.ExpiresIn,
			Access:    issued.Access,
		})
	},
}

var tokenSessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Mint a session token the way the authentication service does",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if tokenFlags.user == "" {
			return errors.New("--user is required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		now := time.Now().Truncate(time.Second)
		token, err := auth.GenerateHS256(auth.Key{ID: "session", Secret: []byte(cfg.Session.Secret)}, auth.Claims{
			Iss: cfg.Session.Issuer,
			Aud: cfg.Session.Audience,
			Sub: tokenFlags.user,
			Jti: uuid.NewString(),
			Iat: now.Unix(),
			Nbf: now.Unix(),
			Exp: now.Add(tokenFlags.ttl).Unix(),
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{"token": token, "expiresAt": now.Add(tokenFlags.ttl)})
	},
}

func init() {
	tokenCmd.PersistentFlags().StringVar(&tokenFlags.user, "user", "", "user id")
	tokenSessionCmd.Flags().DurationVar(&tokenFlags.ttl, "ttl", time.Hour, "session lifetime")
	tokenCmd.AddCommand(tokenMintCmd, tokenSessionCmd)
	rootCmd.AddCommand(tokenCmd)
}
