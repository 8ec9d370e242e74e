// Package services defines the [Catalog] and [PlaylistWriter] interfaces the share pipeline
// depends on and implements them for the Spotify Web API.
//
// # Spotify Implementation
//
// [SpotifyService] uses OAuth2 for authentication. Tokens carrying a refresh token are
// refreshed automatically and handed to the callback set with
// [SpotifyService.SetTokenRefreshCallback] so they can be persisted.
//
// All requests go through one [rate.Limiter]. Playlist lengths and names are read with a
// fields filter, and playlist item pages only ask for track ids.
//
// # Error Handling
//
// Non-2xx responses become an [APIError] whose Err is one of:
//   - [shared.ErrNotFound] : 404
//   - [shared.ErrAuthFailure] : 401, 403, or no token installed
//   - [shared.ErrRateLimited] : 429, retried honouring Retry-After
//   - [shared.ErrTransient] : 408, 5xx, network failures; retried for reads only
//   - [shared.ErrInvalidInput] : any other status
//
// A transient failure on an append is returned without retrying since the items may
// already be in the playlist.
package services
