package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playlistbot/internal/models"
	"github.com/desertthunder/playlistbot/internal/services"
	"github.com/desertthunder/playlistbot/internal/shared"
)

// ShareResult describes what a share did to the destination playlist.
type ShareResult struct {
	Reference   models.AssetReference
	Destination models.Destination
	DisplayName string
	Candidates  models.TrackSet // tracks the asset stands for
	Missing     models.TrackSet // candidates not in the destination when reconciled
	Added       models.TrackSet // tracks confirmed appended
	DryRun      bool
}

// AlreadyPresent reports whether every candidate was already in the destination.
func (r *ShareResult) AlreadyPresent() bool {
	return r.Missing.Empty()
}

// Outcome classifies the result for the audit log. err is the error Process returned.
func (r *ShareResult) Outcome(err error) models.Outcome {
	var partial *PartialAppendError
	switch {
	case errors.Is(err, shared.ErrUnsupportedShareType):
		return models.OutcomeUnsupported
	case errors.As(err, &partial) && !partial.Appended.Empty():
		return models.OutcomePartial
	case err != nil:
		return models.OutcomeFailed
	case r.AlreadyPresent():
		return models.OutcomeAlreadyPresent
	default:
		return models.OutcomeAdded
	}
}

// PipelineOpts tunes the pager, worker pool and append batching.
type PipelineOpts struct {
	PageSize        int
	Workers         int
	AppendBatchSize int
	Logger          *log.Logger
}

// Pipeline wires [Resolver], [Engine] and [Mutator] together and serializes work per
// destination playlist.
type Pipeline struct {
	resolver *Resolver
	engine   *Engine
	mutator  *Mutator
	locks    *PlaylistLocks
	logger   *log.Logger
}

// NewPipeline creates a pipeline reading from catalog and writing through writer.
func NewPipeline(catalog services.Catalog, writer services.PlaylistWriter, opts PipelineOpts) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	pager := NewPager(catalog, opts.PageSize, opts.Workers, logger)
	return &Pipeline{
		resolver: NewResolver(catalog, pager),
		engine:   NewEngine(pager, logger),
		mutator:  NewMutator(writer, opts.AppendBatchSize, logger),
		locks:    &PlaylistLocks{},
		logger:   logger,
	}
}

// Process resolves ref and appends the tracks dest does not already contain.
//
// The returned result is non-nil even on error and carries whatever was learned before
// the failure.
func (p *Pipeline) Process(ctx context.Context, progress chan<- ProgressUpdate, dest models.Destination, ref models.AssetReference) (*ShareResult, error) {
	return p.run(ctx, progress, dest, ref, false)
}

// DryRun resolves and reconciles ref against dest without appending.
func (p *Pipeline) DryRun(ctx context.Context, progress chan<- ProgressUpdate, dest models.Destination, ref models.AssetReference) (*ShareResult, error) {
	return p.run(ctx, progress, dest, ref, true)
}

func (p *Pipeline) run(ctx context.Context, progress chan<- ProgressUpdate, dest models.Destination, ref models.AssetReference, dryRun bool) (*ShareResult, error) {
	result := &ShareResult{
		Reference:   ref,
		Destination: dest,
		Candidates:  models.NewTrackSet(),
		Missing:     models.NewTrackSet(),
		Added:       models.NewTrackSet(),
		DryRun:      dryRun,
	}
	if dest.PlaylistID == "" {
		return result, fmt.Errorf("%w: destination playlist id", shared.ErrMissingConfig)
	}
	logger := shared.WithLogger(p.logger, "playlist_id", dest.PlaylistID, "asset", ref.String())

	candidates, name, err := p.resolver.Resolve(ctx, progress, ref)
	if err != nil {
		return result, err
	}
	result.Candidates = candidates
	result.DisplayName = name

	unlock, err := p.locks.Lock(ctx, dest.PlaylistID)
	if err != nil {
		return result, fmt.Errorf("waiting for playlist %s: %w", dest.PlaylistID, err)
	}
	defer unlock()

	missing, err := p.engine.Reconcile(ctx, progress, dest.PlaylistID, candidates)
	if err != nil {
		return result, err
	}
	result.Missing = missing

	if dryRun || missing.Empty() {
		logger.Info("share reconciled", "candidates", candidates.Len(), "missing", missing.Len(), "dry_run", dryRun)
		return result, nil
	}

	if err := p.mutator.Append(ctx, progress, dest.PlaylistID, missing); err != nil {
		var partial *PartialAppendError
		if errors.As(err, &partial) {
			result.Added = partial.Appended
		}
		return result, err
	}
	result.Added = missing

	logger.Info("share applied", "candidates", candidates.Len(), "added", missing.Len())
	return result, nil
}
