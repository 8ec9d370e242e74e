package tasks

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playlistbot/internal/models"
	"github.com/desertthunder/playlistbot/internal/shared"
)

// Engine computes which candidate tracks are missing from a destination playlist.
type Engine struct {
	pager  *Pager
	logger *log.Logger
}

// NewEngine creates an engine that reads the destination through pager.
func NewEngine(pager *Pager, logger *log.Logger) *Engine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Engine{pager: pager, logger: logger}
}

// Reconcile returns candidates minus every track currently in the playlist.
//
// Each page is intersected with candidates inside its own worker and the driver unions the
// per-page results once all pages are in. A failed page fails the whole call; it is never
// counted as an empty page.
func (e *Engine) Reconcile(
	ctx context.Context,
	progress chan<- ProgressUpdate,
	playlistID string,
	candidates models.TrackSet,
) (models.TrackSet, error) {
	if candidates.Empty() {
		return models.NewTrackSet(), nil
	}

	length, err := e.pager.Length(ctx, playlistID)
	if err != nil {
		return models.TrackSet{}, fmt.Errorf("playlist length of %s: %w", playlistID, err)
	}

	pages := e.pager.PageCount(length)
	sendProgress(progress, lengthUpdate(playlistID, length, pages))

	results, err := e.pager.Scan(ctx, playlistID, length,
		func(page models.TrackSet) models.TrackSet { return candidates.Intersect(page) },
		func(done, total int) { sendProgress(progress, pageUpdate(ScanPages, done, total)) },
	)
	if err != nil {
		return models.TrackSet{}, err
	}

	intersections := make([]models.TrackSet, len(results))
	for i, r := range results {
		intersections[i] = r.Intersection
	}
	present := models.NewTrackSet().Union(intersections...)
	missing := candidates.Difference(present)

	e.logger.Debug("reconciled",
		"playlist_id", playlistID, "length", length, "pages", pages,
		"candidates", candidates.Len(), "present", present.Len(), "missing", missing.Len())
	return missing, nil
}
