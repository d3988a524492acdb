package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// YTMusicAuth converts a browser "Copy as cURL" request into the headers file the proxy authenticates with.
func (r *Runner) YTMusicAuth(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	curlFile := cmd.String("curl")
	if curlFile == "" {
		return fmt.Errorf("%w: --curl must be provided", shared.ErrMissingArgument)
	}

	config, err := r.configFor(configPath)
	if err != nil {
		return err
	}

	outputPath := cmd.String("output")
	if outputPath == "" {
		outputPath = config.Credentials.YouTube.HeadersPath
	}
	if outputPath == "" {
		return fmt.Errorf("%w: --output or credentials.youtube.headers_path must be set", shared.ErrMissingArgument)
	}

	r.logger.Info("parsing cURL command for YouTube Music headers", "file", curlFile)
	headers, err := shared.ParseCurlFile(curlFile)
	if err != nil {
		return fmt.Errorf("failed to parse cURL file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := headers.WriteAuthFile(outputPath); err != nil {
		return err
	}
	r.logger.Info("headers file saved", "path", outputPath)

	if config.Credentials.YouTube.HeadersPath != outputPath {
		config.Credentials.YouTube.HeadersPath = outputPath
		if err := shared.SaveConfig(configPath, config); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
	}

	r.writePlain("✓ YouTube Music headers saved to %s\n", outputPath)

	yt, ok := r.youtube.(*services.YouTubeService)
	if !ok {
		return nil
	}
	if err := yt.Authenticate(ctx, config.Credentials.YouTube.Map()); err != nil {
		return err
	}
	if _, err := guarded(ctx, r, "youtube.ping", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, yt.Ping(ctx)
	}); err != nil {
		return err
	}

	r.writePlain("✓ YouTube Music proxy reachable\n")
	return nil
}

// YTMusicPlaylists lists the library playlists of the authenticated account.
func (r *Runner) YTMusicPlaylists(ctx context.Context, cmd *cli.Command) error {
	youtube, err := r.service("youtube")
	if err != nil {
		return err
	}

	playlists, err := guarded(ctx, r, "youtube.playlists", youtube.GetPlaylists)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, cmd.Bool("pretty"))
	}

	r.writePlaylists(playlists)
	return nil
}

// YTMusicSearch searches YouTube Music for tracks.
func (r *Runner) YTMusicSearch(ctx context.Context, cmd *cli.Command) error {
	youtube, err := r.service("youtube")
	if err != nil {
		return err
	}

	query := cmd.StringArg("query")
	if query == "" {
		return fmt.Errorf("%w: search query is required", shared.ErrMissingArgument)
	}
	artist := cmd.String("artist")

	r.logger.Debug("searching youtube music", "query", query, "artist", artist)

	track, err := guarded(ctx, r, "youtube.search", func(ctx context.Context) (*services.Track, error) {
		track, err := youtube.SearchTrack(ctx, query, artist)
		if errors.Is(err, services.ErrNoMatch) {
			return nil, nil
		}
		return track, err
	})
	if err != nil {
		return err
	}
	if track == nil {
		r.writePlain("No matching track found for %q\n", query)
		return nil
	}

	if cmd.Bool("json") {
		return r.writeJSON(track, cmd.Bool("pretty"))
	}

	r.writePlain("Found track:\n\n")
	r.writePlain("Title: %s\n", track.Title)
	if track.Artist != "" {
		r.writePlain("Artist: %s\n", track.Artist)
	}
	if track.Album != "" {
		r.writePlain("Album: %s\n", track.Album)
	}
	r.writePlain("ID: %s\n", track.ID)
	if track.Duration > 0 {
		r.writePlain("Duration: %d:%02d\n", track.Duration/60, track.Duration%60)
	}

	return nil
}
