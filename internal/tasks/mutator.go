package tasks

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playlistbot/internal/models"
	"github.com/desertthunder/playlistbot/internal/services"
	"github.com/desertthunder/playlistbot/internal/shared"
)

// PartialAppendError reports an append that failed after zero or more batches landed.
type PartialAppendError struct {
	Appended    models.TrackSet // confirmed by the API
	Unconfirmed models.TrackSet // the failed batch and everything after it
	Err         error
}

func (e *PartialAppendError) Error() string {
	return fmt.Sprintf("append stopped after %d tracks, %d unconfirmed: %v", e.Appended.Len(), e.Unconfirmed.Len(), e.Err)
}

func (e *PartialAppendError) Unwrap() error {
	return e.Err
}

// Mutator appends tracks to a playlist in ordered batches.
type Mutator struct {
	writer    services.PlaylistWriter
	batchSize int
	logger    *log.Logger
}

// NewMutator creates a mutator. A batchSize outside 1..100 falls back to 100.
func NewMutator(writer services.PlaylistWriter, batchSize int, logger *log.Logger) *Mutator {
	if batchSize <= 0 || batchSize > services.MaxAppendBatch {
		batchSize = services.MaxAppendBatch
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Mutator{writer: writer, batchSize: batchSize, logger: logger}
}

// Append adds ids to the end of the playlist in their set order. An empty set makes no call.
//
// Batches are sent one after another; the first failure stops the run and is returned as a
// [*PartialAppendError].
func (m *Mutator) Append(ctx context.Context, progress chan<- ProgressUpdate, playlistID string, ids models.TrackSet) error {
	if ids.Empty() {
		return nil
	}

	batches := (ids.Len() + m.batchSize - 1) / m.batchSize
	for b := range batches {
		from := b * m.batchSize
		batch := ids.Slice(from, from+m.batchSize)

		if err := m.writer.AppendItems(ctx, playlistID, batch.URIs()); err != nil {
			m.logger.Error("append batch failed",
				"playlist_id", playlistID, "batch", b+1, "batches", batches, "error", err)
			return &PartialAppendError{
				Appended:    ids.Slice(0, from),
				Unconfirmed: ids.Slice(from, ids.Len()),
				Err:         err,
			}
		}
		sendProgress(progress, appendUpdate(b+1, batches, batch.Len()))
	}

	m.logger.Info("appended tracks", "playlist_id", playlistID, "tracks", ids.Len(), "batches", batches)
	return nil
}
