package tasks

import (
	"context"
	"sync"
)

// PlaylistLocks hands out one mutex per playlist id so a reconcile and its append are not
// interleaved with another request against the same playlist.
//
// The zero value is ready to use.
type PlaylistLocks struct {
	mu    sync.Mutex
	locks map[string]*playlistLock
}

type playlistLock struct {
	sem  chan struct{}
	refs int
}

// Lock blocks until the lock for playlistID is held or ctx is done.
// The returned func releases the lock and must be called exactly once.
func (l *PlaylistLocks) Lock(ctx context.Context, playlistID string) (func(), error) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*playlistLock)
	}
	pl, ok := l.locks[playlistID]
	if !ok {
		pl = &playlistLock{sem: make(chan struct{}, 1)}
		l.locks[playlistID] = pl
	}
	pl.refs++
	l.mu.Unlock()

	select {
	case pl.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-pl.sem
				l.release(playlistID, pl)
			})
		}, nil
	case <-ctx.Done():
		l.release(playlistID, pl)
		return nil, ctx.Err()
	}
}

func (l *PlaylistLocks) release(playlistID string, pl *playlistLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pl.refs--
	if pl.refs == 0 {
		delete(l.locks, playlistID)
	}
}

// Len returns the number of playlists with a holder or waiter.
func (l *PlaylistLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
