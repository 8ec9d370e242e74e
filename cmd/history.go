package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/playlistbot/internal/models"
	"github.com/desertthunder/playlistbot/internal/ui"
	"github.com/urfave/cli/v3"
)

var outcomeOrder = []models.Outcome{
	models.OutcomeAdded,
	models.OutcomeAlreadyPresent,
	models.OutcomePartial,
	models.OutcomeFailed,
	models.OutcomeUnsupported,
}

// History lists recently handled shares from the audit log.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	repo, closeDB, err := r.openShares(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	records, err := repo.Recent(ctx, cmd.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list shares: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(records, cmd.Bool("pretty"))
	}

	if len(records) == 0 {
		return r.writePlain("%s\n", r.palette.Help("No shares recorded yet"))
	}

	r.writePlainHeader("Recent shares")
	for _, rec := range records {
		name := rec.DisplayName
		if name == "" {
			name = rec.AssetID
		}
		status := fmt.Sprintf("%s %-15s", ui.Symbol(rec.Outcome), rec.Outcome)
		r.writePlain("%4d  %s  %s  %-8s %q by %s\n",
			rec.Sequence,
			rec.CreatedAt.Local().Format("2006-01-02 15:04"),
			r.palette.Outcome(rec.Outcome, status),
			rec.Kind, name, rec.Author)
	}

	counts, err := repo.CountByOutcome(ctx)
	if err != nil {
		r.logger.Warn("failed to count shares", "error", err)
		return nil
	}
	totals := make([]string, 0, len(outcomeOrder))
	for _, o := range outcomeOrder {
		if n := counts[o]; n > 0 {
			totals = append(totals, fmt.Sprintf("%s %d", o, n))
		}
	}
	return r.writePlainln("Totals: %s", strings.Join(totals, ", "))
}
