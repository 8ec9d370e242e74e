package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/playlistbot/internal/bot"
	"github.com/desertthunder/playlistbot/internal/models"
	"github.com/desertthunder/playlistbot/internal/shared"
	"github.com/desertthunder/playlistbot/internal/tasks"
	"github.com/desertthunder/playlistbot/internal/ui"
	"github.com/urfave/cli/v3"
)

// Share handles the command line arguments as one message posted in the bot's channel.
func (r *Runner) Share(ctx context.Context, cmd *cli.Command) error {
	text := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if text == "" {
		return fmt.Errorf("%w: message text", shared.ErrMissingArgument)
	}
	if err := r.requirePipeline(); err != nil {
		return err
	}

	var recorder bot.ShareRecorder
	if cmd.Bool("record") {
		repo, closeDB, err := r.openShares(ctx)
		if err != nil {
			r.logger.Warn("audit log unavailable, continuing without it", "error", err)
		} else {
			defer closeDB()
			recorder = repo
		}
	}

	handler := r.newHandler(recorder)
	reply, handled := handler.HandleEvent(ctx, bot.Event{
		Channel: handler.Channel(),
		Author:  cmd.String("author"),
		Content: text,
	})
	if !handled {
		return r.writePlain("%s\n", r.palette.Help("No Spotify link found, nothing to do"))
	}

	if cmd.Bool("json") {
		return r.writeJSON(reply, true)
	}
	return r.writePlain("%s %s\n", ui.Symbol(reply.Outcome), r.palette.Outcome(reply.Outcome, reply.Text))
}

type reconcileView struct {
	Reference  string           `json:"reference"`
	Name       string           `json:"name"`
	Playlist   string           `json:"playlist"`
	Candidates int              `json:"candidates"`
	Missing    []models.TrackID `json:"missing"`
}

// Reconcile resolves a link and prints the tracks the destination playlist is missing, without appending.
func (r *Runner) Reconcile(ctx context.Context, cmd *cli.Command) error {
	text := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if text == "" {
		return fmt.Errorf("%w: spotify link", shared.ErrMissingArgument)
	}
	ref, err := models.ParseReference(text)
	if err != nil {
		return err
	}
	if err := r.requirePipeline(); err != nil {
		return err
	}

	if timeout := r.config.Reconcile.RequestTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	progress, wait := r.watchProgress()
	result, err := r.pipeline.DryRun(ctx, progress, r.destination(), ref)
	wait()
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", ref, err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(reconcileView{
			Reference:  ref.String(),
			Name:       result.DisplayName,
			Playlist:   result.Destination.Name,
			Candidates: result.Candidates.Len(),
			Missing:    result.Missing.IDs(),
		}, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("%s %q → %q", ref.Kind.Title(), result.DisplayName, result.Destination.Name))
	r.writePlain("Candidates:      %d\n", result.Candidates.Len())
	r.writePlain("Already present: %d\n", result.Candidates.Len()-result.Missing.Len())
	r.writePlain("Missing:         %d\n", result.Missing.Len())

	if result.AlreadyPresent() {
		return r.writePlainln("%s", r.palette.OK("✓ Nothing to add"))
	}
	r.writePlainln("%s", r.palette.Warn("Would add:"))
	for _, id := range result.Missing.IDs() {
		r.writePlain("  %s\n", id.URI())
	}
	return nil
}

// watchProgress logs pipeline progress at debug level. wait must be called once the
// pipeline has returned.
func (r *Runner) watchProgress() (chan<- tasks.ProgressUpdate, func()) {
	progress := make(chan tasks.ProgressUpdate, 32)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.logger.Debug(update.Message, "phase", update.Phase, "step", update.Step, "total", update.Total)
		}
	}()
	return progress, func() {
		close(progress)
		<-done
	}
}
