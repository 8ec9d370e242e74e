package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/playlistbot/internal/server"
	"github.com/urfave/cli/v3"
)

// Serve runs the chat webhook until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.requirePipeline(); err != nil {
		return err
	}

	repo, closeDB, err := r.openShares(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	handler := r.newHandler(repo)
	router := server.NewWebhookRouter(server.WebhookOpts{
		Bot:    handler,
		Shares: repo,
		Token:  r.config.Server.WebhookToken,
		Logger: r.logger,
	})

	host := cmd.String("host")
	if host == "" {
		host = r.config.Server.Host
	}
	port := cmd.Int("port")
	if port == 0 {
		port = r.config.Server.Port
	}
	if r.config.Server.WebhookToken == "" {
		r.logger.Warn("server.webhook_token is empty, /events accepts unauthenticated requests")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("handling shares",
		"channel", handler.Channel(),
		"playlist", r.config.Destination.PlaylistName,
		"playlist_id", r.config.Destination.PlaylistID)
	return server.NewServer(host, port, router, r.logger).Run(ctx)
}
