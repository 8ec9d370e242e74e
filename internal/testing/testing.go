// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/playlistbot/internal/models"
	"github.com/desertthunder/playlistbot/internal/shared"
)

// FakeCatalog is an in-memory test double for services.Catalog and services.PlaylistWriter.
//
// Appends land in the same playlist map that PlaylistItems reads, so a reconcile, append,
// reconcile sequence observes its own writes.
type FakeCatalog struct {
	mu        sync.Mutex
	tracks    map[string]string
	albums    map[string]fakeAlbum
	playlists map[string]*fakePlaylist

	// PageErr, when set, is consulted before every PlaylistItems call.
	PageErr func(playlistID string, offset int) error
	// LengthErr is returned by PlaylistLength when non-nil.
	LengthErr error
	// AppendErr, when set, is consulted before every AppendItems call with the 0-based call number.
	AppendErr func(call int, uris []string) error
	// PageDelay is slept inside PlaylistItems so concurrent fetches overlap.
	PageDelay time.Duration
	// PageDelayFor, when set, replaces PageDelay with a per-offset delay.
	PageDelayFor func(offset int) time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	pageCalls   atomic.Int32
	lengthCalls atomic.Int32

	appendCalls [][]string
	pagesServed []int
}

type fakeAlbum struct {
	name   string
	tracks []models.TrackID
}

type fakePlaylist struct {
	name  string
	items []*models.TrackID
}

// NewFakeCatalog returns an empty catalog.
func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{
		tracks:    map[string]string{},
		albums:    map[string]fakeAlbum{},
		playlists: map[string]*fakePlaylist{},
	}
}

// AddTrack registers a track title.
func (f *FakeCatalog) AddTrack(id, name string) *FakeCatalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks[id] = name
	return f
}

// AddAlbum registers an album and its tracks in album order.
func (f *FakeCatalog) AddAlbum(id, name string, tracks ...models.TrackID) *FakeCatalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.albums[id] = fakeAlbum{name: name, tracks: tracks}
	return f
}

// AddPlaylist registers a playlist. An empty id in items stands for a removed track.
func (f *FakeCatalog) AddPlaylist(id, name string, items ...models.TrackID) *FakeCatalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	pl := &fakePlaylist{name: name, items: make([]*models.TrackID, len(items))}
	for i, item := range items {
		if item != "" {
			pl.items[i] = &item
		}
	}
	f.playlists[id] = pl
	return f
}

// Items returns the non-null track ids currently in a playlist.
func (f *FakeCatalog) Items(playlistID string) []models.TrackID {
	f.mu.Lock()
	defer f.mu.Unlock()
	pl, ok := f.playlists[playlistID]
	if !ok {
		return nil
	}
	var ids []models.TrackID
	for _, item := range pl.items {
		if item != nil {
			ids = append(ids, *item)
		}
	}
	return ids
}

// AppendCalls returns a copy of the URI batches passed to AppendItems.
func (f *FakeCatalog) AppendCalls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.appendCalls))
	for i, c := range f.appendCalls {
		out[i] = append([]string(nil), c...)
	}
	return out
}

// MaxInFlight is the highest number of concurrent PlaylistItems calls observed.
func (f *FakeCatalog) MaxInFlight() int { return int(f.maxInFlight.Load()) }

// PageCalls is the number of PlaylistItems calls made.
func (f *FakeCatalog) PageCalls() int { return int(f.pageCalls.Load()) }

// PagesServed lists the offsets of successful PlaylistItems calls in completion order.
func (f *FakeCatalog) PagesServed() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.pagesServed...)
}

// LengthCalls is the number of PlaylistLength calls made.
func (f *FakeCatalog) LengthCalls() int { return int(f.lengthCalls.Load()) }

func (f *FakeCatalog) TrackName(ctx context.Context, trackID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.tracks[trackID]
	if !ok {
		return "", fmt.Errorf("%w: track %s", shared.ErrNotFound, trackID)
	}
	return name, nil
}

func (f *FakeCatalog) AlbumName(ctx context.Context, albumID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	album, ok := f.albums[albumID]
	if !ok {
		return "", fmt.Errorf("%w: album %s", shared.ErrNotFound, albumID)
	}
	return album.name, nil
}

func (f *FakeCatalog) PlaylistName(ctx context.Context, playlistID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pl, ok := f.playlists[playlistID]
	if !ok {
		return "", fmt.Errorf("%w: playlist %s", shared.ErrNotFound, playlistID)
	}
	return pl.name, nil
}

func (f *FakeCatalog) AlbumTracks(ctx context.Context, albumID string) ([]models.TrackID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	album, ok := f.albums[albumID]
	if !ok {
		return nil, fmt.Errorf("%w: album %s", shared.ErrNotFound, albumID)
	}
	return append([]models.TrackID(nil), album.tracks...), nil
}

func (f *FakeCatalog) PlaylistLength(ctx context.Context, playlistID string) (int, error) {
	f.lengthCalls.Add(1)
	if f.LengthErr != nil {
		return 0, f.LengthErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	pl, ok := f.playlists[playlistID]
	if !ok {
		return 0, fmt.Errorf("%w: playlist %s", shared.ErrNotFound, playlistID)
	}
	return len(pl.items), nil
}

func (f *FakeCatalog) PlaylistItems(ctx context.Context, playlistID string, limit, offset int) ([]*models.TrackID, error) {
	f.pageCalls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	delay := f.PageDelay
	if f.PageDelayFor != nil {
		delay = f.PageDelayFor(offset)
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.PageErr != nil {
		if err := f.PageErr(playlistID, offset); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	pl, ok := f.playlists[playlistID]
	if !ok {
		return nil, fmt.Errorf("%w: playlist %s", shared.ErrNotFound, playlistID)
	}
	f.pagesServed = append(f.pagesServed, offset)
	if offset >= len(pl.items) {
		return []*models.TrackID{}, nil
	}
	end := min(offset+limit, len(pl.items))
	return append([]*models.TrackID(nil), pl.items[offset:end]...), nil
}

func (f *FakeCatalog) AppendItems(ctx context.Context, playlistID string, uris []string) error {
	f.mu.Lock()
	call := len(f.appendCalls)
	f.appendCalls = append(f.appendCalls, append([]string(nil), uris...))
	f.mu.Unlock()

	if f.AppendErr != nil {
		if err := f.AppendErr(call, uris); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	pl, ok := f.playlists[playlistID]
	if !ok {
		return fmt.Errorf("%w: playlist %s", shared.ErrNotFound, playlistID)
	}
	for _, uri := range uris {
		id := models.TrackID(strings.TrimPrefix(uri, "spotify:track:"))
		pl.items = append(pl.items, &id)
	}
	return nil
}

// TrackIDs builds ids "prefix0" .. "prefix{n-1}".
func TrackIDs(prefix string, n int) []models.TrackID {
	ids := make([]models.TrackID, n)
	for i := range ids {
		ids[i] = models.TrackID(fmt.Sprintf("%s%d", prefix, i))
	}
	return ids
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

func AssertErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected error %v, got %v", target, err)
	}
}
