package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playlistbot/internal/bot"
	"github.com/desertthunder/playlistbot/internal/models"
	"github.com/desertthunder/playlistbot/internal/repositories"
	"github.com/desertthunder/playlistbot/internal/services"
	"github.com/desertthunder/playlistbot/internal/shared"
	"github.com/desertthunder/playlistbot/internal/tasks"
	"github.com/desertthunder/playlistbot/internal/ui"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config      *shared.Config
	configPath  string
	catalog     services.Catalog
	writer      services.PlaylistWriter
	oauth       services.OAuthService
	pipeline    *tasks.Pipeline
	logger      *log.Logger
	output      io.Writer
	palette     *ui.Palette
	getenv      func(string) string
	openBrowser func(string) error

	mu sync.Mutex // guards token writes, refreshes arrive from worker goroutines
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Catalog and Writer are normally left nil and built from the loaded config; tests inject fakes.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	Catalog     services.Catalog
	Writer      services.PlaylistWriter
	OAuth       services.OAuthService
	Logger      *log.Logger
	Output      io.Writer
	Getenv      func(string) string
	OpenBrowser func(string) error
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}

	r := &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		oauth:       opts.OAuth,
		logger:      opts.Logger,
		output:      opts.Output,
		palette:     ui.DefaultPalette,
		getenv:      opts.Getenv,
		openBrowser: opts.OpenBrowser,
	}
	if opts.Catalog != nil && opts.Writer != nil {
		r.useCatalog(opts.Catalog, opts.Writer)
	}
	return r
}

// app builds the root command.
func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:    "playlistbot",
		Usage:   "Collect Spotify links shared in chat into one playlist",
		Version: "0.1.0",
		Writer:  r.output,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
				Sources: cli.EnvVars("PLAYLISTBOT_CONFIG"),
			},
		},
		Before:   r.prepare,
		Commands: r.register(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, shareCommand, reconcileCommand, serveCommand, historyCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// prepare loads the config file when present, applies environment overrides and connects to
// Spotify unless a catalog was injected.
func (r *Runner) prepare(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	r.configPath = cmd.String("config")

	if _, err := os.Stat(r.configPath); err == nil {
		config, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return ctx, err
		}
		r.config = config
	} else {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
	}

	r.config.ApplyEnv(r.getenv)
	if err := shared.ApplyLogLevel(r.logger, r.config.Log.Level); err != nil {
		r.logger.Warn("ignoring log level", "error", err)
	}

	if r.catalog != nil {
		// Rebuild so the loaded reconcile settings apply.
		r.useCatalog(r.catalog, r.writer)
		return ctx, nil
	}

	creds := r.config.Credentials.Spotify
	if creds.ClientID == "" || creds.ClientSecret == "" {
		r.logger.Debug("spotify credentials not configured")
		return ctx, nil
	}

	svc, err := r.connectSpotify(ctx)
	if err != nil {
		return ctx, err
	}
	r.useCatalog(svc, svc)
	if r.oauth == nil {
		r.oauth = svc
	}
	return ctx, nil
}

func (r *Runner) connectSpotify(ctx context.Context) (*services.SpotifyService, error) {
	creds := r.config.Credentials.Spotify
	svc, err := services.NewSpotifyService(creds.Map(), services.SpotifyOpts{
		BaseURL:           r.config.Catalog.BaseURL,
		RequestsPerSecond: r.config.Catalog.RequestsPerSecond,
		MaxRetries:        r.config.Catalog.MaxRetries,
		Logger:            r.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Spotify service: %w", err)
	}
	svc.SetTokenRefreshCallback(r.persistToken)

	if token := creds.Token(); token != nil {
		if err := svc.OAuthenticate(ctx, token); err != nil {
			return nil, fmt.Errorf("failed to load saved Spotify token: %w", err)
		}
	}
	return svc, nil
}

// saveTokens stores token in the config and writes it to the config path, when one is set.
func (r *Runner) saveTokens(token *oauth2.Token) error {
	return r.saveTokensTo(r.configPath, token)
}

func (r *Runner) saveTokensTo(path string, token *oauth2.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.config == nil {
		return fmt.Errorf("%w: config is nil", shared.ErrMissingConfig)
	}
	if err := r.config.Credentials.Spotify.Update(token); err != nil {
		return fmt.Errorf("failed to update spotify configuration: %w", err)
	}
	if path == "" {
		return nil
	}
	if err := shared.SaveConfig(path, r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// persistToken receives refreshed tokens. They are only written back to a config file that exists,
// so credentials taken from the environment never end up in a new file.
func (r *Runner) persistToken(token *oauth2.Token) {
	path := r.configPath
	if _, err := os.Stat(path); err != nil {
		path = ""
	}
	if err := r.saveTokensTo(path, token); err != nil {
		r.logger.Warn("failed to persist refreshed token", "error", err)
		return
	}
	r.logger.Debug("refreshed token stored", "path", path)
}

func (r *Runner) useCatalog(catalog services.Catalog, writer services.PlaylistWriter) {
	r.catalog = catalog
	r.writer = writer
	r.pipeline = tasks.NewPipeline(catalog, writer, tasks.PipelineOpts{
		PageSize:        r.config.Reconcile.PageSize,
		Workers:         r.config.Reconcile.Workers,
		AppendBatchSize: r.config.Reconcile.AppendBatchSize,
		Logger:          r.logger,
	})
}

// requirePipeline checks what every share-handling command needs.
func (r *Runner) requirePipeline() error {
	if err := r.config.Validate(); err != nil {
		return err
	}
	if r.pipeline == nil {
		return fmt.Errorf("%w: set credentials.spotify.client_id and client_secret, then run 'playlistbot auth'",
			shared.ErrMissingCredentials)
	}
	return nil
}

func (r *Runner) destination() models.Destination {
	return models.Destination{
		PlaylistID: r.config.Destination.PlaylistID,
		Name:       r.config.Destination.PlaylistName,
	}
}

func (r *Runner) newHandler(recorder bot.ShareRecorder) *bot.Handler {
	return bot.NewHandler(r.pipeline, r.destination(), bot.HandlerOpts{
		Channel:  r.config.Chat.Channel,
		Timeout:  r.config.Reconcile.RequestTimeout(),
		Recorder: recorder,
		Logger:   r.logger,
	})
}

// openDatabase opens the sqlite database and brings its schema up to date.
func (r *Runner) openDatabase(ctx context.Context) (*sql.DB, error) {
	path := r.config.Database.Path
	if path == "" {
		return nil, fmt.Errorf("%w: database.path is empty", shared.ErrInvalidConfig)
	}

	db, err := shared.NewDatabase(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	results, err := shared.RunMigrations(ctx, db)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to run migrations: %w", err), db.Close())
	}
	for _, res := range results {
		r.logger.Info("applied migration", "source", res.Source.Path, "duration", res.Duration)
	}
	return db, nil
}

func (r *Runner) openShares(ctx context.Context) (*repositories.ShareRepository, func(), error) {
	db, err := r.openDatabase(ctx)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if err := db.Close(); err != nil {
			r.logger.Warn("failed to close database", "error", err)
		}
	}
	return repositories.NewShareRepository(db), closeDB, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", r.palette.Title(title))
	r.writePlain("═══════════════════════════════════════\n")
}
