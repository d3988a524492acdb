package main

import (
	"context"
	"errors"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playsync/internal/repositories"
	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
	"github.com/urfave/cli/v3"
)

const configPath = "config.toml"

func main() {
	logger := shared.NewLogger(nil)
	if path := os.Getenv("PLAYSYNC_LOG_FILE"); path != "" {
		fileLogger, f, err := shared.NewFileLogger(path)
		if err != nil {
			logger.Fatalf("failed to open log file: %v", err)
		}
		defer f.Close()
		logger = fileLogger
	}
	if os.Getenv("PLAYSYNC_DEBUG") != "" {
		shared.SetLogLevel(logger, log.DebugLevel)
	}

	config := shared.DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		if loadedConfig, err := shared.LoadConfig(configPath); err == nil {
			config = loadedConfig
		} else {
			logger.Warn("failed to load config, using defaults", "error", err)
		}
	}

	opts := RunnerOpts{
		Config:     config,
		ConfigPath: configPath,
		Logger:     logger,
	}

	if svc, err := newSpotify(context.Background(), config); err == nil {
		opts.Spotify = svc
	} else {
		logger.Debug("spotify unavailable", "error", err)
	}
	opts.YouTube = newYouTube(context.Background(), config, logger)

	if db, err := shared.OpenDatabase(config.Database); err == nil {
		defer db.Close()
		opts.Events = repositories.NewErrorEventRepository(db, shared.WithLogger(logger, "repository", "error_events"))
	} else {
		logger.Debug("error log disabled", "error", err)
	}

	runner := NewRunner(opts)

	app := &cli.Command{
		Name:     "playsync",
		Usage:    "Transfer playlists between Spotify & YouTube Music",
		Version:  "0.6.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, errReported) {
			os.Exit(1)
		}
		logger.Fatalf("application error: %v", err)
	}
}

// newSpotify builds a Spotify client from the configured credentials, restoring saved tokens.
func newSpotify(ctx context.Context, config *shared.Config) (*services.SpotifyService, error) {
	creds := config.Credentials.Spotify
	svc, err := services.NewSpotifyService(creds.Map())
	if err != nil {
		return nil, err
	}
	if token := creds.Token(); token != nil {
		if err := svc.OAuthenticate(ctx, token); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// newYouTube builds a YouTube Music client. A missing headers file leaves it unauthenticated.
func newYouTube(ctx context.Context, config *shared.Config, logger *log.Logger) *services.YouTubeService {
	svc := services.NewYouTubeService(config.Credentials.YouTube.ProxyURL)
	if err := svc.Authenticate(ctx, config.Credentials.YouTube.Map()); err != nil {
		shared.WithLogger(logger, "service", services.YouTubeIntegration).Debug("youtube music not authenticated", "error", err)
	}
	return svc
}
