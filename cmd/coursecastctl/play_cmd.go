// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	xglog "github.com/ManuGH/coursecast/internal/log"
	"github.com/ManuGH/coursecast/internal/platform/httpx"
	"github.com/ManuGH/coursecast/internal/player"
)

var playFlags struct {
	server   string
	session  string
	state    string
	duration time.Duration
	interval time.Duration
	timeout  time.Duration
	revoke   bool
}

var playCmd = &cobra.Command{
	Use:   "play VIDEO_ID",
	Short: "Play a video against a running server, refreshing the token as a viewer would",
	Long: `play fetches a playback token, then walks the HLS tree of the video
(master playlist, variants, keys and segments) every --interval until
--duration has passed. Tokens are refreshed in the background before they
expire. The session state is written to --state after every step.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlay(cmd, args[0])
	},
}

func init() {
	f := playCmd.Flags()
	f.StringVar(&playFlags.server, "server", "http://localhost:8080", "coursecast base URL")
	f.StringVar(&playFlags.session, "session", os.Getenv("COURSECAST_SESSION"), "session bearer token (env COURSECAST_SESSION)")
	f.StringVar(&playFlags.state, "state", "", "write the session state to this file")
	f.DurationVar(&playFlags.duration, "duration", 10*time.Minute, "how long to keep playing")
	f.DurationVar(&playFlags.interval, "interval", 6*time.Second, "pause between playlist walks")
	f.DurationVar(&playFlags.timeout, "timeout", player.DefaultFetchTimeout, "per request timeout")
	f.BoolVar(&playFlags.revoke, "revoke", true, "revoke the playback token when done")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, videoID string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	logger := xglog.WithComponent("play")

	if playFlags.session == "" {
		return errors.New("--session or COURSECAST_SESSION is required")
	}
	base, err := url.Parse(playFlags.server)
	if err != nil {
		return fmt.Errorf("--server: %w", err)
	}

	client, err := player.NewClient(playFlags.server, playFlags.session, httpx.NewClient(playFlags.timeout))
	if err != nil {
		return err
	}
	ctrl := player.New(client,
		player.WithFetchTimeout(playFlags.timeout),
		player.WithObserver(func(from, to player.State) {
			fmt.Fprintf(out, "state %s -> %s\n", from, to)
		}))
	defer ctrl.Close()

	media := &http.Client{
		Timeout:   playFlags.timeout,
		Transport: &player.Transport{Base: httpx.NewTransport(playFlags.timeout), Slot: ctrl, Host: base.Host},
	}
	walker, err := player.NewWalker(playFlags.server, media)
	if err != nil {
		return err
	}

	save := func() {
		if playFlags.state == "" {
			return
		}
		if err := player.SaveState(playFlags.state, ctrl.Snapshot()); err != nil {
			logger.Warn().Err(err).Str(xglog.FieldPath, playFlags.state).Msg("state file not written")
		}
	}
	defer save()

	if err := ctrl.Select(ctx, videoID); err != nil {
		if f := ctrl.Snapshot().Failure; f != nil {
			return fmt.Errorf("%s (%s)", f.Message, f.Reason)
		}
		return err
	}
	save()

	deadline := time.Now().Add(playFlags.duration)
	ticker := time.NewTicker(playFlags.interval)
	defer ticker.Stop()

	for {
		stats, err := walker.Walk(ctx, videoID, nil)
		if err != nil {
			if f := ctrl.Snapshot().Failure; f != nil {
				return fmt.Errorf("%s (%s): %w", f.Message, f.Reason, err)
			}
			return err
		}
		snap := ctrl.Snapshot()
		fmt.Fprintf(out, "walked %d playlists, %d segments, %d keys, %d bytes; refresh at %s\n",
			stats.Playlists, stats.Segments, stats.Keys, stats.Bytes, snap.RefreshAt.Format(time.RFC3339))
		save()

		if !time.Now().Before(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return revokeCurrent(ctrl, client)
		case <-ticker.C:
		}
	}
	return revokeCurrent(ctrl, client)
}

func revokeCurrent(ctrl *player.Controller, client *player.Client) error {
	if !playFlags.revoke {
		return nil
	}
	tok, ok := ctrl.Token()
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), playFlags.timeout)
	defer cancel()
	return client.Revoke(ctx, tok)
}
