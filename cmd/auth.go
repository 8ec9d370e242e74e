package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/desertthunder/playlistbot/internal/server"
	"github.com/desertthunder/playlistbot/internal/services"
	"github.com/desertthunder/playlistbot/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// Auth performs the OAuth2 authorization code flow and saves the tokens into the config file.
//
// Starts a local HTTP server on the redirect URI, opens the browser for user authorization,
// and exchanges the code for tokens.
func (r *Runner) Auth(ctx context.Context, cmd *cli.Command) error {
	if r.oauth == nil {
		return fmt.Errorf("%w: Spotify client_id and client_secret must be set in %s",
			shared.ErrMissingCredentials, r.configPath)
	}

	open := r.openBrowser
	if cmd.Bool("no-browser") {
		open = nil
	}

	token, err := r.authorize(ctx, r.oauth, cmd.Duration("timeout"), open)
	if err != nil {
		return err
	}

	if err := r.saveTokens(token); err != nil {
		return err
	}
	if err := r.oauth.OAuthenticate(ctx, token); err != nil {
		return fmt.Errorf("failed to use new token: %w", err)
	}

	r.writePlainln("%s", r.palette.OK("✓ Authorization successful"))
	if p, ok := r.oauth.(profiler); ok {
		if user, err := p.UserProfile(ctx); err != nil {
			r.logger.Warn("failed to fetch spotify profile", "error", err)
		} else {
			r.writePlain("✓ Signed in as %s (%s)\n", user.DisplayName, user.ID)
		}
	}
	r.writePlain("✓ Tokens saved to %s\n\n", r.configPath)
	r.writePlain("%s\n", r.palette.Help("You can now use: playlistbot serve"))
	return nil
}

type profiler interface {
	UserProfile(ctx context.Context) (*services.SpotifyUser, error)
}

func (r *Runner) authorize(ctx context.Context, srv services.OAuthService, timeout time.Duration, open func(string) error) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	config := srv.GetOAuthConfig()
	host, port, err := callbackAddr(config.RedirectURL)
	if err != nil {
		return nil, err
	}

	handler := server.NewOAuthHandler(config, state)
	router := server.NewBasicRouter()
	router.Handler(handler)

	ln, err := net.Listen("tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen for the OAuth callback: %w", err)
	}

	serveCtx, stop := context.WithCancel(ctx)
	defer stop()
	served := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth callback server at %v", ln.Addr())
		served <- server.NewServer(host, 0, router, r.logger).Serve(serveCtx, ln)
	}()
	shutdown := func() {
		stop()
		if err := <-served; err != nil {
			r.logger.Warn("error shutting down callback server", "error", err)
		}
	}

	authURL := srv.GetAuthURL(state)
	if open == nil {
		r.writePlain("Open this URL in your browser:\n%s\n\n", authURL)
	} else {
		r.writePlain("→ Opening browser for Spotify authorization...\n")
		if err := open(authURL); err != nil {
			r.logger.Warnf("failed to open browser automatically %v", err)
			r.writePlainln("%s", r.palette.Warn("⚠ Could not open browser automatically."))
			r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
		}
	}

	r.writePlain("→ Waiting for authorization (%v timeout)...\n", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var result server.OAuthResult
	select {
	case result = <-handler.Result():
		shutdown()
	case err := <-served:
		if err == nil {
			err = fmt.Errorf("stopped before the callback arrived")
		}
		return nil, fmt.Errorf("callback server error: %w", err)
	case <-timer.C:
		shutdown()
		return nil, fmt.Errorf("%w: authorization timed out after %v", shared.ErrTimeout, timeout)
	case <-ctx.Done():
		shutdown()
		return nil, ctx.Err()
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailure, result.Error())
	}
	if result.Token == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailure)
	}
	return result.Token, nil
}

// callbackAddr returns the host and port the redirect URI points at.
func callbackAddr(redirectURL string) (string, string, error) {
	u, err := url.Parse(redirectURL)
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("%w: invalid redirect_uri %q", shared.ErrInvalidConfig, redirectURL)
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return u.Hostname(), port, nil
}
