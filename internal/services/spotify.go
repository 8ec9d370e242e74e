// Spotify Web API implementation of [Catalog] and [PlaylistWriter]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playlistbot/internal/models"
	"github.com/desertthunder/playlistbot/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// MaxPlaylistPage is the largest limit the playlist items endpoint accepts.
	MaxPlaylistPage = 100
	// MaxAppendBatch is the largest number of URIs one add-items call accepts.
	MaxAppendBatch = 100

	albumTracksPage = 50
)

// Retry and backoff defaults.
const (
	defaultMaxRetries = 3
	baseBackoff       = 500 * time.Millisecond
	maxBackoff        = 30 * time.Second
	backoffFactor     = 2.0
	jitterFraction    = 0.25
)

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Country     string `json:"country"`
	Product     string `json:"product"`
}

// SpotifyTrack represents the track fields the bot reads.
type SpotifyTrack struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	TotalTracks int    `json:"total_tracks"`
	URI         string `json:"uri"`
}

// SpotifyPaginatedAlbumTracks is one page of the album tracks endpoint.
type SpotifyPaginatedAlbumTracks struct {
	Items  []SpotifyTrack `json:"items"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
	Next   *string        `json:"next"`
}

// SpotifyPlaylist represents the playlist fields requested with the fields filter.
type SpotifyPlaylist struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Tracks struct {
		Total int `json:"total"`
	} `json:"tracks"`
}

// SpotifyPlaylistItems is one page of playlist items. Track is nil when the
// underlying track was removed, and Track.ID is nil for local files.
type SpotifyPlaylistItems struct {
	Items []struct {
		Track *struct {
			ID *string `json:"id"`
		} `json:"track"`
	} `json:"items"`
}

type spotifyErrorBody struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// SpotifyOpts configures the HTTP behaviour of a [SpotifyService].
type SpotifyOpts struct {
	BaseURL           string       // API root, defaults to https://api.spotify.com/v1
	HTTPClient        *http.Client // defaults to http.DefaultClient
	RequestsPerSecond float64      // client-wide request rate, <= 0 disables limiting
	MaxRetries        int          // attempts after the first for RateLimited/Transient failures
	Logger            *log.Logger
}

// SpotifyService implements [Catalog] and [PlaylistWriter] for the Spotify Web API.
//
// Uses [oauth2] for authentication. Requests share one [rate.Limiter], and rate-limited or
// transient failures are retried with exponential backoff.
type SpotifyService struct {
	config         *oauth2.Config
	tokens         oauth2.TokenSource
	onTokenRefresh func(*oauth2.Token)
	httpClient     *http.Client
	baseURL        string
	limiter        *rate.Limiter
	maxRetries     int
	logger         *log.Logger

	// sleepFunc waits between retries. Tests override it to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(credentials map[string]string, opts SpotifyOpts) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = "http://127.0.0.1:3000/callback"
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"playlist-read-private",
			"playlist-read-collaborative",
			"playlist-modify-public",
			"playlist-modify-private",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	if opts.BaseURL == "" {
		opts.BaseURL = spotifyBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &SpotifyService{
		config:     config,
		httpClient: opts.HTTPClient,
		baseURL:    opts.BaseURL,
		limiter:    rate.NewLimiter(limit, 1),
		maxRetries: opts.MaxRetries,
		logger:     shared.WithLogger(opts.Logger, "service", "spotify"),
		sleepFunc:  timeSleep,
	}, nil
}

// Name returns the service name.
func (s *SpotifyService) Name() string {
	return "Spotify"
}

// Authenticate authenticates with Spotify. Expects either an "access_token" or "auth_code" in credentials.
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) error {
	if accessToken, ok := credentials["access_token"]; ok && accessToken != "" {
		return s.OAuthenticate(ctx, &oauth2.Token{
			AccessToken:  accessToken,
			RefreshToken: credentials["refresh_token"],
		})
	}

	if authCode, ok := credentials["auth_code"]; ok && authCode != "" {
		token, err := s.config.Exchange(ctx, authCode)
		if err != nil {
			return fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthFailure, err)
		}
		return s.OAuthenticate(ctx, token)
	}

	return fmt.Errorf("%w: missing access_token or auth_code", shared.ErrMissingCredentials)
}

// OAuthenticate installs token as the credential for subsequent requests.
//
// Tokens with a refresh token are refreshed automatically; each new access token is passed
// to the callback registered with [SpotifyService.SetTokenRefreshCallback].
func (s *SpotifyService) OAuthenticate(ctx context.Context, token *oauth2.Token) error {
	if token == nil || (token.AccessToken == "" && token.RefreshToken == "") {
		return fmt.Errorf("%w: empty token", shared.ErrMissingCredentials)
	}

	var source oauth2.TokenSource
	if token.RefreshToken == "" {
		source = oauth2.StaticTokenSource(token)
	} else {
		// The refresh context must outlive ctx; it only carries the HTTP client.
		refreshCtx := context.WithValue(context.Background(), oauth2.HTTPClient, s.httpClient)
		source = s.config.TokenSource(refreshCtx, token)
	}

	s.tokens = &refreshableTokenSource{
		source:   source,
		callback: s.onTokenRefresh,
		last:     token.AccessToken,
	}
	return nil
}

// SetTokenRefreshCallback registers fn to receive refreshed tokens. Must be called before OAuthenticate.
func (s *SpotifyService) SetTokenRefreshCallback(fn func(*oauth2.Token)) {
	s.onTokenRefresh = fn
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// GetOAuthConfig returns the underlying [oauth2.Config].
func (s *SpotifyService) GetOAuthConfig() *oauth2.Config {
	return s.config
}

// doRequest performs an authenticated request against the Spotify API, retrying
// rate-limited and transient failures, and decodes a 2xx JSON body into result.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return limiterErr(ctx, err)
		}

		apiErr, retryAfter, err := s.doOnce(ctx, method, endpoint, payload, result)
		if err != nil {
			return err
		}
		if apiErr == nil {
			return nil
		}

		if !shouldRetry(method, apiErr) || attempt >= s.maxRetries {
			if attempt > 0 {
				s.logger.Error("request failed after retries",
					"method", method, "endpoint", endpoint, "status", apiErr.StatusCode, "attempts", attempt+1)
			}
			return apiErr
		}

		backoff := retryAfter
		if backoff <= 0 {
			backoff = calcBackoff(attempt)
		}
		s.logger.Warn("retrying spotify request",
			"method", method, "endpoint", endpoint, "status", apiErr.StatusCode,
			"attempt", attempt+1, "backoff", backoff)

		if err := s.sleepFunc(ctx, backoff); err != nil {
			return fmt.Errorf("spotify: request canceled: %w", err)
		}
	}
}

// limiterErr maps a failed limiter wait onto a context error. Wait gives up before the
// deadline when the next token would arrive too late, while ctx.Err() is still nil.
func limiterErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("spotify: request canceled: %w", ctxErr)
	}
	if _, ok := ctx.Deadline(); ok {
		return fmt.Errorf("spotify: request canceled: %w: %v", context.DeadlineExceeded, err)
	}
	return fmt.Errorf("spotify: request canceled: %w", err)
}

// doOnce executes a single request. Failures the caller may retry come back as an
// [APIError]; anything else is returned as err.
func (s *SpotifyService) doOnce(ctx context.Context, method, endpoint string, payload []byte, result any) (*APIError, time.Duration, error) {
	if s.tokens == nil {
		return nil, 0, fmt.Errorf("%w: not authenticated, call Authenticate first", shared.ErrAuthFailure)
	}
	token, err := s.tokens.Token()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", shared.ErrAuthFailure, err)
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, fmt.Errorf("spotify: request canceled: %w", ctx.Err())
		}
		return &APIError{Message: err.Error(), Err: shared.ErrTransient}, 0, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if result != nil {
			if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
				return nil, 0, fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil, 0, nil
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    readErrorMessage(resp.Body),
		Err:        classifyStatus(resp.StatusCode),
	}
	return apiErr, parseRetryAfter(resp), nil
}

func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil {
		return "(failed to read response body)"
	}
	var body spotifyErrorBody
	if err := json.Unmarshal(data, &body); err == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return string(data)
}

func parseRetryAfter(resp *http.Response) time.Duration {
	if resp.StatusCode != http.StatusTooManyRequests {
		return 0
	}
	seconds, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || seconds <= 0 {
		return 0
	}
	return min(time.Duration(seconds)*time.Second, maxBackoff)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}
	backoff += backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec
	return time.Duration(backoff)
}

// timeSleep waits for d or until ctx is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// UserProfile retrieves the current authenticated user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Track retrieves a single track by ID.
func (s *SpotifyService) Track(ctx context.Context, trackID string) (*SpotifyTrack, error) {
	var track SpotifyTrack
	endpoint := fmt.Sprintf("/tracks/%s", url.PathEscape(trackID))
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &track); err != nil {
		return nil, err
	}
	return &track, nil
}

// Album retrieves an album by ID.
func (s *SpotifyService) Album(ctx context.Context, albumID string) (*SpotifyAlbum, error) {
	var album SpotifyAlbum
	endpoint := fmt.Sprintf("/albums/%s", url.PathEscape(albumID))
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &album); err != nil {
		return nil, err
	}
	return &album, nil
}

// Playlist retrieves the name and total length of a playlist.
func (s *SpotifyService) Playlist(ctx context.Context, playlistID string) (*SpotifyPlaylist, error) {
	q := url.Values{"fields": {"id,name,tracks.total"}}
	endpoint := fmt.Sprintf("/playlists/%s?%s", url.PathEscape(playlistID), q.Encode())

	var playlist SpotifyPlaylist
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &playlist); err != nil {
		return nil, err
	}
	return &playlist, nil
}

// TrackName implements [Catalog].
func (s *SpotifyService) TrackName(ctx context.Context, trackID string) (string, error) {
	track, err := s.Track(ctx, trackID)
	if err != nil {
		return "", err
	}
	return track.Name, nil
}

// AlbumName implements [Catalog].
func (s *SpotifyService) AlbumName(ctx context.Context, albumID string) (string, error) {
	album, err := s.Album(ctx, albumID)
	if err != nil {
		return "", err
	}
	return album.Name, nil
}

// PlaylistName implements [Catalog].
func (s *SpotifyService) PlaylistName(ctx context.Context, playlistID string) (string, error) {
	playlist, err := s.Playlist(ctx, playlistID)
	if err != nil {
		return "", err
	}
	return playlist.Name, nil
}

// PlaylistLength implements [Catalog].
func (s *SpotifyService) PlaylistLength(ctx context.Context, playlistID string) (int, error) {
	playlist, err := s.Playlist(ctx, playlistID)
	if err != nil {
		return 0, err
	}
	return playlist.Tracks.Total, nil
}

// AlbumTracks implements [Catalog], following the album tracks pagination to the end.
func (s *SpotifyService) AlbumTracks(ctx context.Context, albumID string) ([]models.TrackID, error) {
	var ids []models.TrackID
	offset := 0

	for {
		endpoint := fmt.Sprintf("/albums/%s/tracks?limit=%d&offset=%d", url.PathEscape(albumID), albumTracksPage, offset)

		var page SpotifyPaginatedAlbumTracks
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}

		for _, t := range page.Items {
			if t.ID != "" {
				ids = append(ids, models.TrackID(t.ID))
			}
		}

		if page.Next == nil || len(page.Items) == 0 {
			break
		}
		offset += len(page.Items)
	}

	return ids, nil
}

// PlaylistItems implements [Catalog].
func (s *SpotifyService) PlaylistItems(ctx context.Context, playlistID string, limit, offset int) ([]*models.TrackID, error) {
	if limit <= 0 || limit > MaxPlaylistPage {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", shared.ErrInvalidInput, MaxPlaylistPage)
	}

	q := url.Values{
		"fields": {"items(track(id))"},
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}
	endpoint := fmt.Sprintf("/playlists/%s/tracks?%s", url.PathEscape(playlistID), q.Encode())

	var page SpotifyPlaylistItems
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
		return nil, err
	}

	items := make([]*models.TrackID, len(page.Items))
	for i, item := range page.Items {
		if item.Track == nil || item.Track.ID == nil || *item.Track.ID == "" {
			continue
		}
		id := models.TrackID(*item.Track.ID)
		items[i] = &id
	}
	return items, nil
}

// AppendItems implements [PlaylistWriter].
func (s *SpotifyService) AppendItems(ctx context.Context, playlistID string, uris []string) error {
	if len(uris) == 0 {
		return nil
	}
	if len(uris) > MaxAppendBatch {
		return fmt.Errorf("%w: at most %d uris per append", shared.ErrInvalidInput, MaxAppendBatch)
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	body := map[string][]string{"uris": uris}

	var resp struct {
		SnapshotID string `json:"snapshot_id"`
	}
	if err := s.doRequest(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		if errors.Is(err, shared.ErrTransient) {
			// The add may have landed; callers treat these ids as unconfirmed.
			s.logger.Warn("append outcome unknown", "playlist_id", playlistID, "uris", len(uris))
		}
		return err
	}

	s.logger.Debug("appended items", "playlist_id", playlistID, "uris", len(uris), "snapshot_id", resp.SnapshotID)
	return nil
}
