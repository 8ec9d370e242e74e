package tasks

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playlistbot/internal/models"
	"github.com/desertthunder/playlistbot/internal/services"
	"github.com/desertthunder/playlistbot/internal/shared"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPageSize = services.MaxPlaylistPage
	DefaultWorkers  = 3
)

// Pager reads a playlist one fixed-size page at a time.
//
// Pages are independent remote calls, so [Pager.Scan] fetches them concurrently over a
// pool of at most workers goroutines.
type Pager struct {
	catalog  services.Catalog
	pageSize int
	workers  int
	logger   *log.Logger
}

// NewPager creates a pager. A pageSize outside 1..100 falls back to 100 and workers below 1 to 3.
func NewPager(catalog services.Catalog, pageSize, workers int, logger *log.Logger) *Pager {
	if pageSize <= 0 || pageSize > services.MaxPlaylistPage {
		pageSize = DefaultPageSize
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Pager{catalog: catalog, pageSize: pageSize, workers: workers, logger: logger}
}

// PageSize returns the number of items requested per page.
func (p *Pager) PageSize() int { return p.pageSize }

// Workers returns the concurrency limit used by Scan.
func (p *Pager) Workers() int { return p.workers }

// PageCount returns floor(n/pageSize)+1. When n is a multiple of the page size the
// last page is empty.
func (p *Pager) PageCount(n int) int {
	if n < 0 {
		n = 0
	}
	return n/p.pageSize + 1
}

// Length returns the current number of items in a playlist.
func (p *Pager) Length(ctx context.Context, playlistID string) (int, error) {
	return p.catalog.PlaylistLength(ctx, playlistID)
}

// FetchPage returns the tracks in window [index*pageSize, (index+1)*pageSize).
// Removed tracks are skipped.
func (p *Pager) FetchPage(ctx context.Context, playlistID string, index int) (models.TrackSet, error) {
	items, err := p.catalog.PlaylistItems(ctx, playlistID, p.pageSize, index*p.pageSize)
	if err != nil {
		return models.TrackSet{}, err
	}

	ids := make([]models.TrackID, 0, len(items))
	for _, item := range items {
		if item != nil {
			ids = append(ids, *item)
		}
	}
	return models.NewTrackSet(ids...), nil
}

// Scan fetches every page of a playlist of the given length and applies fn to each page.
//
// Results are ordered by page index. fn runs inside the worker and must only read shared
// state. onPage, when non-nil, is called after each completed page with the running count.
// The first failing page cancels the remaining fetches and its error is returned.
func (p *Pager) Scan(
	ctx context.Context,
	playlistID string,
	length int,
	fn func(page models.TrackSet) models.TrackSet,
	onPage func(done, total int),
) ([]models.PageResult, error) {
	total := p.PageCount(length)
	results := make([]models.PageResult, total)

	var done atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i := range total {
		g.Go(func() error {
			page, err := p.FetchPage(gctx, playlistID, i)
			if err != nil {
				return fmt.Errorf("page %d of %s: %w", i, playlistID, err)
			}
			if fn != nil {
				page = fn(page)
			}
			results[i] = models.PageResult{Index: i, Intersection: page}

			n := int(done.Add(1))
			if onPage != nil {
				onPage(n, total)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		p.logger.Error("playlist scan failed", "playlist_id", playlistID, "pages", total, "completed", done.Load(), "error", err)
		return nil, err
	}

	p.logger.Debug("playlist scanned", "playlist_id", playlistID, "length", length, "pages", total)
	return results, nil
}
