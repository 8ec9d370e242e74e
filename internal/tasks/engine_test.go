package tasks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playlistbot/internal/models"
	"github.com/desertthunder/playlistbot/internal/shared"
	tu "github.com/desertthunder/playlistbot/internal/testing"
)

func testLogger() *log.Logger {
	return shared.NewLogger(&bytes.Buffer{})
}

func newTestEngine(catalog *tu.FakeCatalog, pageSize, workers int) *Engine {
	return NewEngine(NewPager(catalog, pageSize, workers, testLogger()), testLogger())
}

func TestPager(t *testing.T) {
	t.Run("PageCount", func(t *testing.T) {
		pager := NewPager(tu.NewFakeCatalog(), 100, 3, testLogger())
		tests := []struct {
			length int
			want   int
		}{
			{0, 1},
			{1, 1},
			{99, 1},
			{100, 2},
			{101, 2},
			{200, 3},
			{250, 3},
		}
		for _, tt := range tests {
			if got := pager.PageCount(tt.length); got != tt.want {
				t.Errorf("PageCount(%d) = %d, want %d", tt.length, got, tt.want)
			}
		}
	})

	t.Run("defaults", func(t *testing.T) {
		pager := NewPager(tu.NewFakeCatalog(), 0, 0, nil)
		if pager.PageSize() != DefaultPageSize {
			t.Errorf("expected page size %d, got %d", DefaultPageSize, pager.PageSize())
		}
		if pager.Workers() != DefaultWorkers {
			t.Errorf("expected %d workers, got %d", DefaultWorkers, pager.Workers())
		}

		pager = NewPager(tu.NewFakeCatalog(), 500, 1, nil)
		if pager.PageSize() != DefaultPageSize {
			t.Errorf("expected oversized page to clamp to %d, got %d", DefaultPageSize, pager.PageSize())
		}
	})

	t.Run("FetchPage skips removed tracks", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().AddPlaylist("pl", "List", "A", "", "B", "C")
		pager := NewPager(catalog, 2, 1, testLogger())

		page, err := pager.FetchPage(context.Background(), "pl", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !page.Equal(models.NewTrackSet("A")) {
			t.Errorf("expected {A}, got %v", page)
		}

		page, err = pager.FetchPage(context.Background(), "pl", 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !page.Equal(models.NewTrackSet("B", "C")) {
			t.Errorf("expected {B,C}, got %v", page)
		}
	})

	t.Run("Scan orders results by index", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().AddPlaylist("pl", "List", tu.TrackIDs("t", 25)...)
		pager := NewPager(catalog, 10, 1, testLogger())

		var calls []int
		results, err := pager.Scan(context.Background(), "pl", 25, nil, func(done, total int) {
			calls = append(calls, done)
			if total != 3 {
				t.Errorf("expected total 3, got %d", total)
			}
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(results) != 3 {
			t.Fatalf("expected 3 pages, got %d", len(results))
		}
		for i, r := range results {
			if r.Index != i {
				t.Errorf("result %d has index %d", i, r.Index)
			}
		}
		if results[2].Intersection.Len() != 5 {
			t.Errorf("expected last page with 5 tracks, got %d", results[2].Intersection.Len())
		}
		if len(calls) != 3 {
			t.Errorf("expected 3 progress callbacks, got %d", len(calls))
		}
	})
}

func TestEngineReconcile(t *testing.T) {
	ctx := context.Background()

	t.Run("scenario two pages", func(t *testing.T) {
		dest := append(tu.TrackIDs("x", 150), "B")
		catalog := tu.NewFakeCatalog().AddPlaylist("dest", "Dest", dest...)
		engine := newTestEngine(catalog, 100, 3)

		missing, err := engine.Reconcile(ctx, nil, "dest", models.NewTrackSet("A", "B", "C"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !missing.Equal(models.NewTrackSet("A", "C")) {
			t.Errorf("expected {A,C}, got %v", missing)
		}
		if catalog.PageCalls() != 2 {
			t.Errorf("expected 2 page fetches, got %d", catalog.PageCalls())
		}
	})

	t.Run("empty candidates makes no calls", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().AddPlaylist("dest", "Dest", "A")
		engine := newTestEngine(catalog, 100, 3)

		missing, err := engine.Reconcile(ctx, nil, "dest", models.NewTrackSet())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !missing.Empty() {
			t.Errorf("expected empty result, got %v", missing)
		}
		if catalog.LengthCalls() != 0 || catalog.PageCalls() != 0 {
			t.Errorf("expected no remote calls, got length=%d pages=%d", catalog.LengthCalls(), catalog.PageCalls())
		}
	})

	t.Run("empty destination", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().AddPlaylist("dest", "Dest")
		engine := newTestEngine(catalog, 100, 3)
		candidates := models.NewTrackSet("A", "B")

		missing, err := engine.Reconcile(ctx, nil, "dest", candidates)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !missing.Equal(candidates) {
			t.Errorf("expected all candidates missing, got %v", missing)
		}
		if catalog.PageCalls() != 1 {
			t.Errorf("expected a single empty page fetch, got %d", catalog.PageCalls())
		}
	})

	t.Run("full containment", func(t *testing.T) {
		ids := tu.TrackIDs("t", 320)
		catalog := tu.NewFakeCatalog().AddPlaylist("dest", "Dest", ids...)
		engine := newTestEngine(catalog, 100, 3)

		missing, err := engine.Reconcile(ctx, nil, "dest", models.NewTrackSet(ids[5], ids[150], ids[319]))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !missing.Empty() {
			t.Errorf("expected nothing missing, got %v", missing)
		}
	})

	t.Run("page boundary", func(t *testing.T) {
		for _, k := range []int{1, 2, 3} {
			t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
				ids := tu.TrackIDs("t", k*10)
				catalog := tu.NewFakeCatalog().AddPlaylist("dest", "Dest", ids...)
				engine := newTestEngine(catalog, 10, 2)

				missing, err := engine.Reconcile(ctx, nil, "dest", models.NewTrackSet(ids[len(ids)-1], "new"))
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if !missing.Equal(models.NewTrackSet("new")) {
					t.Errorf("expected {new}, got %v", missing)
				}
				if catalog.PageCalls() != k+1 {
					t.Errorf("expected %d page fetches, got %d", k+1, catalog.PageCalls())
				}
			})
		}
	})

	t.Run("preserves candidate order", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().AddPlaylist("dest", "Dest", "C")
		engine := newTestEngine(catalog, 100, 3)

		missing, err := engine.Reconcile(ctx, nil, "dest", models.NewTrackSet("D", "C", "A", "B"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ids := missing.IDs()
		want := []models.TrackID{"D", "A", "B"}
		for i := range want {
			if ids[i] != want[i] {
				t.Fatalf("expected order %v, got %v", want, ids)
			}
		}
	})

	t.Run("idempotent after append", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().AddPlaylist("dest", "Dest", tu.TrackIDs("t", 130)...)
		engine := newTestEngine(catalog, 50, 2)
		mutator := NewMutator(catalog, 100, testLogger())
		candidates := models.NewTrackSet("t3", "n1", "n2", "t129")

		missing, err := engine.Reconcile(ctx, nil, "dest", candidates)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !missing.Equal(models.NewTrackSet("n1", "n2")) {
			t.Fatalf("expected {n1,n2}, got %v", missing)
		}
		if err := mutator.Append(ctx, nil, "dest", missing); err != nil {
			t.Fatalf("append failed: %v", err)
		}

		missing, err = engine.Reconcile(ctx, nil, "dest", candidates)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !missing.Empty() {
			t.Errorf("expected nothing missing on second run, got %v", missing)
		}
	})

	t.Run("result independent of worker count", func(t *testing.T) {
		ids := tu.TrackIDs("t", 97)
		candidates := models.NewTrackSet(ids[0], ids[33], ids[96], "x", "y")
		var first models.TrackSet
		for workers := 1; workers <= 6; workers++ {
			catalog := tu.NewFakeCatalog().AddPlaylist("dest", "Dest", ids...)
			catalog.PageDelay = time.Millisecond
			engine := newTestEngine(catalog, 7, workers)

			missing, err := engine.Reconcile(ctx, nil, "dest", candidates)
			if err != nil {
				t.Fatalf("workers=%d: unexpected error: %v", workers, err)
			}
			if workers == 1 {
				first = missing
				continue
			}
			if !missing.Equal(first) {
				t.Errorf("workers=%d: got %v, want %v", workers, missing, first)
			}
		}
	})

	t.Run("result independent of page completion order", func(t *testing.T) {
		const pageSize = 7
		ids := tu.TrackIDs("t", 97)
		candidates := models.NewTrackSet(ids[0], ids[6], ids[50], ids[96], "x", "y")
		pages := len(ids)/pageSize + 1

		sequential := tu.NewFakeCatalog().AddPlaylist("dest", "Dest", ids...)
		want, err := newTestEngine(sequential, pageSize, 1).Reconcile(ctx, nil, "dest", candidates)
		if err != nil {
			t.Fatalf("sequential: unexpected error: %v", err)
		}
		if !want.Equal(models.NewTrackSet("x", "y")) {
			t.Fatalf("sequential: expected {x,y}, got %v", want)
		}

		for _, workers := range []int{2, 4, pages} {
			catalog := tu.NewFakeCatalog().AddPlaylist("dest", "Dest", ids...)
			// Earlier pages sleep longest, so they finish last.
			catalog.PageDelayFor = func(offset int) time.Duration {
				return time.Duration(pages-offset/pageSize) * 5 * time.Millisecond
			}
			engine := newTestEngine(catalog, pageSize, workers)

			missing, err := engine.Reconcile(ctx, nil, "dest", candidates)
			if err != nil {
				t.Fatalf("workers=%d: unexpected error: %v", workers, err)
			}
			if !missing.Equal(want) {
				t.Errorf("workers=%d: got %v, want %v", workers, missing, want)
			}

			served := catalog.PagesServed()
			if len(served) != pages {
				t.Fatalf("workers=%d: expected %d pages served, got %d", workers, pages, len(served))
			}
			if served[0] == 0 {
				t.Errorf("workers=%d: expected a later page to finish first, order %v", workers, served)
			}
		}
	})

	t.Run("worker bound", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().AddPlaylist("dest", "Dest", tu.TrackIDs("t", 200)...)
		catalog.PageDelay = 5 * time.Millisecond
		engine := newTestEngine(catalog, 10, 3)

		if _, err := engine.Reconcile(ctx, nil, "dest", models.NewTrackSet("zz")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if catalog.PageCalls() != 21 {
			t.Errorf("expected 21 page fetches, got %d", catalog.PageCalls())
		}
		if got := catalog.MaxInFlight(); got > 3 || got < 1 {
			t.Errorf("expected at most 3 concurrent fetches, got %d", got)
		}
	})

	t.Run("transient page failure fails reconcile", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().AddPlaylist("dest", "Dest", tu.TrackIDs("t", 300)...)
		catalog.PageErr = func(_ string, offset int) error {
			if offset == 100 {
				return fmt.Errorf("%w: 503", shared.ErrTransient)
			}
			return nil
		}
		engine := newTestEngine(catalog, 100, 3)

		missing, err := engine.Reconcile(ctx, nil, "dest", models.NewTrackSet("t150", "new"))
		if !errors.Is(err, shared.ErrTransient) {
			t.Fatalf("expected ErrTransient, got %v", err)
		}
		if !missing.Empty() {
			t.Errorf("expected no result on failure, got %v", missing)
		}
	})

	t.Run("length failure", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		engine := newTestEngine(catalog, 100, 3)

		_, err := engine.Reconcile(ctx, nil, "nope", models.NewTrackSet("A"))
		tu.AssertErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("sends progress", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().AddPlaylist("dest", "Dest", tu.TrackIDs("t", 20)...)
		engine := newTestEngine(catalog, 10, 1)
		progress := make(chan ProgressUpdate, 10)

		if _, err := engine.Reconcile(ctx, progress, "dest", models.NewTrackSet("A")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		close(progress)

		var phases []Phase
		for u := range progress {
			phases = append(phases, u.Phase)
		}
		if len(phases) != 4 || phases[0] != FetchLength || phases[3] != ScanPages {
			t.Errorf("unexpected phases %v", phases)
		}
	})
}
