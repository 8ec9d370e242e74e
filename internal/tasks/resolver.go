package tasks

import (
	"context"
	"fmt"

	"github.com/desertthunder/playlistbot/internal/models"
	"github.com/desertthunder/playlistbot/internal/services"
	"github.com/desertthunder/playlistbot/internal/shared"
)

// Resolver turns a shared asset into the set of tracks it stands for.
type Resolver struct {
	catalog services.Catalog
	pager   *Pager
}

// NewResolver creates a resolver. Source playlists are read through pager so they use the
// same page size and worker limit as the destination scan.
func NewResolver(catalog services.Catalog, pager *Pager) *Resolver {
	return &Resolver{catalog: catalog, pager: pager}
}

// Resolve returns the candidate tracks for ref along with its display name.
func (r *Resolver) Resolve(ctx context.Context, progress chan<- ProgressUpdate, ref models.AssetReference) (models.TrackSet, string, error) {
	sendProgress(progress, resolveUpdate(ref))

	var (
		candidates models.TrackSet
		name       string
		err        error
	)

	switch ref.Kind {
	case models.KindTrack:
		candidates, name, err = r.resolveTrack(ctx, ref.ID)
	case models.KindAlbum:
		candidates, name, err = r.resolveAlbum(ctx, ref.ID)
	case models.KindPlaylist:
		candidates, name, err = r.resolvePlaylist(ctx, progress, ref.ID)
	default:
		return models.TrackSet{}, "", fmt.Errorf("%w: %q", shared.ErrUnsupportedShareType, ref.Kind)
	}
	if err != nil {
		return models.TrackSet{}, "", fmt.Errorf("resolve %s: %w", ref, err)
	}

	sendProgress(progress, resolvedUpdate(ref, name, candidates))
	return candidates, name, nil
}

func (r *Resolver) resolveTrack(ctx context.Context, id string) (models.TrackSet, string, error) {
	name, err := r.catalog.TrackName(ctx, id)
	if err != nil {
		return models.TrackSet{}, "", err
	}
	return models.NewTrackSet(models.TrackID(id)), name, nil
}

func (r *Resolver) resolveAlbum(ctx context.Context, id string) (models.TrackSet, string, error) {
	name, err := r.catalog.AlbumName(ctx, id)
	if err != nil {
		return models.TrackSet{}, "", err
	}
	ids, err := r.catalog.AlbumTracks(ctx, id)
	if err != nil {
		return models.TrackSet{}, "", err
	}
	return models.NewTrackSet(ids...), name, nil
}

func (r *Resolver) resolvePlaylist(ctx context.Context, progress chan<- ProgressUpdate, id string) (models.TrackSet, string, error) {
	name, err := r.catalog.PlaylistName(ctx, id)
	if err != nil {
		return models.TrackSet{}, "", err
	}

	length, err := r.pager.Length(ctx, id)
	if err != nil {
		return models.TrackSet{}, "", err
	}
	if length == 0 {
		return models.NewTrackSet(), name, nil
	}

	results, err := r.pager.Scan(ctx, id, length, nil,
		func(done, total int) { sendProgress(progress, pageUpdate(ScanSource, done, total)) },
	)
	if err != nil {
		return models.TrackSet{}, "", err
	}

	pages := make([]models.TrackSet, len(results))
	for i, res := range results {
		pages[i] = res.Intersection
	}
	return models.NewTrackSet().Union(pages...), name, nil
}
