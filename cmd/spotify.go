package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/desertthunder/playsync/internal/formatter"
	"github.com/desertthunder/playsync/internal/server"
	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// authTimeout bounds how long the callback server waits for the browser.
var authTimeout = 2 * time.Minute

// oauthClient is the part of [services.SpotifyService] the authorization flow needs.
type oauthClient interface {
	server.Exchanger
	GetAuthURL(state string) string
}

// SpotifyAuth performs OAuth2 authentication flow for Spotify.
//
// Starts a local HTTP server, opens browser for user authorization, and exchanges auth code for tokens.
func (r *Runner) SpotifyAuth(ctx context.Context, cmd *cli.Command) error {
	return r.spotifyAuth(ctx, cmd.String("config"))
}

func (r *Runner) spotifyAuth(ctx context.Context, configPath string) error {
	config, err := r.configFor(configPath)
	if err != nil {
		return err
	}

	if config.Credentials.Spotify.ClientID == "" || config.Credentials.Spotify.ClientSecret == "" {
		return fmt.Errorf("%w: Spotify client_id and client_secret must be set in %s", shared.ErrInvalidArgument, configPath)
	}

	spotifyService, err := services.NewSpotifyService(config.Credentials.Spotify.Map())
	if err != nil {
		return fmt.Errorf("failed to create Spotify service: %w", err)
	}

	token, err := r.doOAuth(ctx, config.Server, spotifyService)
	if err != nil {
		return err
	}

	if err := r.saveTokens(configPath, config, token); err != nil {
		return err
	}

	if svc, ok := r.unwrapSpotify(); ok {
		if err := svc.OAuthenticate(ctx, token); err != nil {
			r.logger.Warn("failed to apply new token", "error", err)
		}
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Tokens saved to %s\n\n", configPath)
	r.writePlain("You can now use: playsync spotify playlists\n")

	return nil
}

// SpotifyPlaylists lists Spotify playlists with optional limit.
func (r *Runner) SpotifyPlaylists(ctx context.Context, cmd *cli.Command) error {
	limit := cmd.Int("limit")
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	spotify, err := r.service("spotify")
	if err != nil {
		return err
	}

	r.logger.Debug("listing spotify playlists", "limit", limit)

	playlists, err := guarded(ctx, r, "spotify.playlists", spotify.GetPlaylists)
	if err != nil {
		return err
	}

	if limit > 0 && limit < len(playlists) {
		playlists = playlists[:limit]
	}

	if useJSON {
		return r.writeJSON(playlists, pretty)
	}

	r.writePlaylists(playlists)
	return nil
}

// SpotifyExport exports a playlist with all tracks as text, CSV or JSON.
func (r *Runner) SpotifyExport(ctx context.Context, cmd *cli.Command) error {
	playlistID := cmd.String("id")
	if playlistID == "" {
		return fmt.Errorf("%w: --id flag is required", shared.ErrMissingArgument)
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	spotify, err := r.service("spotify")
	if err != nil {
		return err
	}

	r.logger.Debug("exporting spotify playlist", "id", playlistID, "format", format)

	export, err := guarded(ctx, r, "spotify.export", func(ctx context.Context) (*services.PlaylistExport, error) {
		return spotify.ExportPlaylist(ctx, playlistID)
	})
	if err != nil {
		return err
	}

	dest, err := formatter.WriteExport(r.output, export, format, cmd.String("output"))
	if err != nil {
		return err
	}

	if dest != "-" {
		r.logger.Infof("playlist exported to %v with %v tracks", dest, len(export.Tracks))
		r.writePlain("✓ Playlist exported to %s\n", dest)
		r.writePlain("  Playlist: %s\n", export.Playlist.Name)
		r.writePlain("  Tracks: %d\n", len(export.Tracks))
	}
	return nil
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server
func (r *Runner) doOAuth(ctx context.Context, cfg shared.ServerConfig, client oauthClient) (*oauth2.Token, error) {
	state := shared.GenerateID()

	oauthHandler := server.NewOAuthHandler(services.SpotifyIntegration, client, state, r.registry)
	router := server.NewBasicRouter()
	router.Use(server.Recoverer(r.registry, r.sink), server.RequestLogger(r.logger))
	router.Handler(oauthHandler)

	srv, err := server.Start(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), router, r.logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := srv.Shutdown(context.Background()); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	authURL := client.GetAuthURL(state)
	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := r.openURL(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (%s timeout)...\n", authTimeout)

	timeout := time.NewTimer(authTimeout)
	defer timeout.Stop()

	var result server.OAuthResult
	select {
	case result = <-oauthHandler.Result():
	case err := <-srv.Errors():
		return nil, fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, authTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if result.Err != nil {
		r.observe(result.Err, "spotify.auth")
		return nil, r.report(result.Err)
	}
	return result.Token, nil
}

// saveTokens stores token in config and writes it to configPath.
func (r *Runner) saveTokens(configPath string, config *shared.Config, token *oauth2.Token) error {
	if config == nil {
		return fmt.Errorf("%w: config is nil", shared.ErrInvalidConfig)
	}
	if configPath == "" {
		configPath = r.configPath
	}

	if err := config.Credentials.Spotify.Update(token); err != nil {
		return fmt.Errorf("failed to update spotify configuration: %w", err)
	}

	if err := shared.SaveConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	if configPath == r.configPath {
		r.config = config
	}
	return nil
}

// configFor returns the runner's config for its own path and loads any other path from disk.
func (r *Runner) configFor(configPath string) (*shared.Config, error) {
	if configPath == "" || configPath == r.configPath {
		return r.config, nil
	}
	if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrMissingConfig, configPath)
	}
	return shared.LoadConfig(configPath)
}

// unwrapSpotify returns the concrete Spotify client behind any decorators.
func (r *Runner) unwrapSpotify() (*services.SpotifyService, bool) {
	svc := r.spotify
	for {
		switch s := svc.(type) {
		case *services.SpotifyService:
			return s, true
		case *services.ResilientService:
			svc = s.Unwrap()
		default:
			return nil, false
		}
	}
}

func (r *Runner) writePlaylists(playlists []services.Playlist) {
	r.writePlain("Found %d playlists:\n\n", len(playlists))
	for i, p := range playlists {
		r.writePlain("%d. %s\n", i+1, p.Name)
		if p.Description != "" {
			r.writePlain("   Description: %s\n", p.Description)
		}
		r.writePlain("   ID: %s\n", p.ID)
		r.writePlain("   Tracks: %d\n", p.TrackCount)
		if p.Public {
			r.writePlain("   Visibility: Public\n")
		} else {
			r.writePlain("   Visibility: Private\n")
		}
		r.writePlain("\n")
	}
}
