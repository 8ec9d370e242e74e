// package services defines the catalog and playlist interfaces the share pipeline depends on
// and implements them for the Spotify Web API.
package services

import (
	"context"

	"github.com/desertthunder/playlistbot/internal/models"
	"golang.org/x/oauth2"
)

// Catalog is the read side of the music catalog.
type Catalog interface {
	// TrackName returns the title of a track.
	TrackName(ctx context.Context, trackID string) (string, error)

	// AlbumName returns the name of an album.
	AlbumName(ctx context.Context, albumID string) (string, error)

	// PlaylistName returns the name of a playlist.
	PlaylistName(ctx context.Context, playlistID string) (string, error)

	// AlbumTracks lists every track of an album in album order.
	AlbumTracks(ctx context.Context, albumID string) ([]models.TrackID, error)

	// PlaylistLength returns the total number of items in a playlist.
	PlaylistLength(ctx context.Context, playlistID string) (int, error)

	// PlaylistItems returns the items in the window [offset, offset+limit).
	// Entries whose underlying track is gone are returned as nil.
	PlaylistItems(ctx context.Context, playlistID string, limit, offset int) ([]*models.TrackID, error)
}

// PlaylistWriter is the mutation side of the catalog.
type PlaylistWriter interface {
	// AppendItems adds the given catalog URIs to the end of a playlist in one call.
	AppendItems(ctx context.Context, playlistID string, uris []string) error
}

// OAuthService is implemented by services that authenticate with the OAuth2 authorization code flow.
type OAuthService interface {
	GetAuthURL(state string) string
	GetOAuthConfig() *oauth2.Config
	OAuthenticate(ctx context.Context, token *oauth2.Token) error
}
