package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/oauth2"
)

//go:embed config.example.toml
var exampleConf []byte

// Spotify caps both playlist item pages and add-items requests at 100.
const maxSpotifyBatch = 100

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Destination DestinationConfig `toml:"destination"`
	Chat        ChatConfig        `toml:"chat"`
	Reconcile   ReconcileConfig   `toml:"reconcile"`
	Catalog     CatalogConfig     `toml:"catalog"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials and the persisted OAuth token.
type SpotifyConfig struct {
	ClientID     string    `toml:"client_id"`
	ClientSecret string    `toml:"client_secret"`
	RedirectURI  string    `toml:"redirect_uri"`
	AccessToken  string    `toml:"access_token,omitempty"`
	RefreshToken string    `toml:"refresh_token,omitempty"`
	TokenType    string    `toml:"token_type,omitempty"`
	Expiry       time.Time `toml:"expiry,omitempty"`
}

// DestinationConfig names the playlist shares are collected into.
type DestinationConfig struct {
	PlaylistID   string `toml:"playlist_id"`
	PlaylistName string `toml:"playlist_name"`
}

// ChatConfig selects the channel whose messages are handled.
type ChatConfig struct {
	Channel string `toml:"channel"`
}

// ReconcileConfig tunes the reconciliation worker pool and batching.
type ReconcileConfig struct {
	PageSize              int `toml:"page_size"`
	Workers               int `toml:"workers"`
	AppendBatchSize       int `toml:"append_batch_size"`
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
}

// CatalogConfig contains Spotify Web API client settings.
type CatalogConfig struct {
	BaseURL           string  `toml:"base_url"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	MaxRetries        int     `toml:"max_retries"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	WebhookToken string `toml:"webhook_token"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Map returns the credentials in the form accepted by services.NewSpotifyService.
func (s SpotifyConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     s.ClientID,
		"client_secret": s.ClientSecret,
		"redirect_uri":  s.RedirectURI,
	}
}

// Token returns the persisted [oauth2.Token], or nil when none has been saved.
func (s SpotifyConfig) Token() *oauth2.Token {
	if s.AccessToken == "" && s.RefreshToken == "" {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		Expiry:       s.Expiry,
	}
}

// Update stores the given token's fields, keeping the existing refresh token when the new one omits it.
func (s *SpotifyConfig) Update(token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: empty token", ErrMissingCredentials)
	}
	s.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		s.RefreshToken = token.RefreshToken
	}
	s.TokenType = token.TokenType
	s.Expiry = token.Expiry
	return nil
}

// RequestTimeout returns the per-share deadline.
func (r ReconcileConfig) RequestTimeout() time.Duration {
	return time.Duration(r.RequestTimeoutSeconds) * time.Second
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Missing keys fall back to the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig encodes config as TOML and writes it to path.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides config values with the environment variables the bot has always honoured.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}

	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	set(&c.Credentials.Spotify.ClientID, "SPOTIFY_CLIENT_ID")
	set(&c.Credentials.Spotify.ClientSecret, "SPOTIFY_CLIENT_SECRET")
	set(&c.Credentials.Spotify.RedirectURI, "SPOTIFY_REDIRECT_URI")
	set(&c.Destination.PlaylistID, "SPOTIFY_PLAYLIST_ID")
	set(&c.Destination.PlaylistName, "SPOTIFY_PLAYLIST_NAME")
	set(&c.Chat.Channel, "PLAYLISTBOT_CHANNEL")
	set(&c.Server.WebhookToken, "PLAYLISTBOT_WEBHOOK_TOKEN")
}

// Validate checks the settings required to handle shares.
func (c *Config) Validate() error {
	switch {
	case c.Destination.PlaylistID == "":
		return fmt.Errorf("%w: must set destination.playlist_id or SPOTIFY_PLAYLIST_ID", ErrInvalidConfig)
	case c.Destination.PlaylistName == "":
		return fmt.Errorf("%w: must set destination.playlist_name or SPOTIFY_PLAYLIST_NAME", ErrInvalidConfig)
	case c.Chat.Channel == "":
		return fmt.Errorf("%w: chat.channel is empty", ErrInvalidConfig)
	case c.Reconcile.PageSize < 1 || c.Reconcile.PageSize > maxSpotifyBatch:
		return fmt.Errorf("%w: reconcile.page_size must be between 1 and %d", ErrInvalidConfig, maxSpotifyBatch)
	case c.Reconcile.AppendBatchSize < 1 || c.Reconcile.AppendBatchSize > maxSpotifyBatch:
		return fmt.Errorf("%w: reconcile.append_batch_size must be between 1 and %d", ErrInvalidConfig, maxSpotifyBatch)
	case c.Reconcile.Workers < 1:
		return fmt.Errorf("%w: reconcile.workers must be positive", ErrInvalidConfig)
	}
	return nil
}
