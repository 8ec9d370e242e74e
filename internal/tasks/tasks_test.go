package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/playlistbot/internal/models"
	"github.com/desertthunder/playlistbot/internal/shared"
	tu "github.com/desertthunder/playlistbot/internal/testing"
)

var testDest = models.Destination{PlaylistID: "dest", Name: "Shared"}

func newTestPipeline(catalog *tu.FakeCatalog) *Pipeline {
	return NewPipeline(catalog, catalog, PipelineOpts{PageSize: 100, Workers: 3, AppendBatchSize: 100, Logger: testLogger()})
}

func TestPipelineProcess(t *testing.T) {
	ctx := context.Background()

	t.Run("adds missing album tracks", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().
			AddAlbum("alb", "Record", "A", "B", "C").
			AddPlaylist("dest", "Shared", append(tu.TrackIDs("x", 120), "B")...)

		result, err := newTestPipeline(catalog).Process(ctx, nil, testDest, models.AssetReference{Kind: models.KindAlbum, ID: "alb"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.DisplayName != "Record" {
			t.Errorf("unexpected display name %q", result.DisplayName)
		}
		if !result.Added.Equal(models.NewTrackSet("A", "C")) {
			t.Errorf("expected {A,C} added, got %v", result.Added)
		}
		if result.Outcome(nil) != models.OutcomeAdded {
			t.Errorf("expected added outcome, got %s", result.Outcome(nil))
		}
		calls := catalog.AppendCalls()
		if len(calls) != 1 || len(calls[0]) != 2 {
			t.Errorf("expected one append with 2 uris, got %v", calls)
		}
	})

	t.Run("track already present", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().
			AddTrack("B", "Bee").
			AddPlaylist("dest", "Shared", "A", "B")

		result, err := newTestPipeline(catalog).Process(ctx, nil, testDest, models.AssetReference{Kind: models.KindTrack, ID: "B"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.AlreadyPresent() {
			t.Error("expected already present")
		}
		if result.Outcome(nil) != models.OutcomeAlreadyPresent {
			t.Errorf("unexpected outcome %s", result.Outcome(nil))
		}
		if len(catalog.AppendCalls()) != 0 {
			t.Error("mutator should not be called")
		}
	})

	t.Run("transient failure leaves playlist untouched", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().
			AddTrack("N", "New").
			AddPlaylist("dest", "Shared", tu.TrackIDs("x", 250)...)
		catalog.PageErr = func(_ string, offset int) error {
			if offset == 200 {
				return fmt.Errorf("%w: 503", shared.ErrTransient)
			}
			return nil
		}

		result, err := newTestPipeline(catalog).Process(ctx, nil, testDest, models.AssetReference{Kind: models.KindTrack, ID: "N"})
		if !errors.Is(err, shared.ErrTransient) {
			t.Fatalf("expected ErrTransient, got %v", err)
		}
		if result.Outcome(err) != models.OutcomeFailed {
			t.Errorf("expected failed outcome, got %s", result.Outcome(err))
		}
		if len(catalog.AppendCalls()) != 0 {
			t.Error("mutator should not be called after a failed scan")
		}
	})

	t.Run("partial append", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().
			AddAlbum("alb", "Record", tu.TrackIDs("a", 150)...).
			AddPlaylist("dest", "Shared")
		catalog.AppendErr = func(call int, _ []string) error {
			if call == 1 {
				return fmt.Errorf("%w: 502", shared.ErrTransient)
			}
			return nil
		}

		result, err := newTestPipeline(catalog).Process(ctx, nil, testDest, models.AssetReference{Kind: models.KindAlbum, ID: "alb"})
		if !errors.Is(err, shared.ErrTransient) {
			t.Fatalf("expected ErrTransient, got %v", err)
		}
		if result.Added.Len() != 100 {
			t.Errorf("expected 100 confirmed, got %d", result.Added.Len())
		}
		if result.Outcome(err) != models.OutcomePartial {
			t.Errorf("expected partial outcome, got %s", result.Outcome(err))
		}
	})

	t.Run("dry run never appends", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().
			AddTrack("N", "New").
			AddPlaylist("dest", "Shared", "A")

		result, err := newTestPipeline(catalog).DryRun(ctx, nil, testDest, models.AssetReference{Kind: models.KindTrack, ID: "N"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Missing.Equal(models.NewTrackSet("N")) || !result.Added.Empty() {
			t.Errorf("unexpected result missing=%v added=%v", result.Missing, result.Added)
		}
		if len(catalog.AppendCalls()) != 0 {
			t.Error("dry run should not append")
		}
	})

	t.Run("missing destination", func(t *testing.T) {
		_, err := newTestPipeline(tu.NewFakeCatalog()).Process(ctx, nil, models.Destination{}, models.AssetReference{Kind: models.KindTrack, ID: "N"})
		tu.AssertErrorIs(t, err, shared.ErrMissingConfig)
	})

	t.Run("concurrent shares of one track append once", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().
			AddTrack("N", "New").
			AddPlaylist("dest", "Shared", tu.TrackIDs("x", 300)...)
		catalog.PageDelay = 2 * time.Millisecond
		pipeline := newTestPipeline(catalog)

		var wg sync.WaitGroup
		for range 5 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := pipeline.Process(ctx, nil, testDest, models.AssetReference{Kind: models.KindTrack, ID: "N"}); err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if n := len(catalog.AppendCalls()); n != 1 {
			t.Errorf("expected exactly one append, got %d", n)
		}
	})
}

func TestPlaylistLocks(t *testing.T) {
	t.Run("serializes one playlist", func(t *testing.T) {
		var locks PlaylistLocks
		unlock, err := locks.Lock(context.Background(), "p")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if _, err := locks.Lock(ctx, "p"); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded while held, got %v", err)
		}

		unlock()
		unlock2, err := locks.Lock(context.Background(), "p")
		if err != nil {
			t.Fatalf("expected lock after release, got %v", err)
		}
		unlock2()
		if locks.Len() != 0 {
			t.Errorf("expected entries to be cleaned up, got %d", locks.Len())
		}
	})

	t.Run("independent playlists", func(t *testing.T) {
		var locks PlaylistLocks
		a, err := locks.Lock(context.Background(), "a")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer a()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		b, err := locks.Lock(ctx, "b")
		if err != nil {
			t.Fatalf("expected independent lock, got %v", err)
		}
		b()
	})

	t.Run("double unlock is harmless", func(t *testing.T) {
		var locks PlaylistLocks
		unlock, _ := locks.Lock(context.Background(), "p")
		unlock()
		unlock()
		if locks.Len() != 0 {
			t.Errorf("expected no entries, got %d", locks.Len())
		}
	})
}

func TestPhaseString(t *testing.T) {
	phases := map[Phase]string{
		ResolveAsset: "resolve_asset",
		ScanSource:   "scan_source",
		FetchLength:  "fetch_length",
		ScanPages:    "scan_pages",
		AppendTracks: "append_tracks",
		Phase(99):    "",
	}
	for p, want := range phases {
		if got := p.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", p, got, want)
		}
	}
}
