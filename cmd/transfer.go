package main

import (
	"context"
	"errors"
	"sync"

	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// TransferRun runs a full Spotify → YouTube Music sync.
func (r *Runner) TransferRun(ctx context.Context, cmd *cli.Command) error {
	source := cmd.String("source")

	r.logger.Info("starting transfer", "source", source)
	r.writePlain("Starting playlist transfer...\n")
	r.writePlain("Source: %s\n\n", source)

	progressCh, done := r.printProgress(50, func(update tasks.ProgressUpdate) {
		switch update.Phase {
		case tasks.FetchSource:
			r.writePlain("📥 %s\n", update.Message)
		case tasks.SearchTracks:
			if update.Step == 0 {
				r.writePlain("\n🔍 %s\n", update.Message)
			} else {
				r.writePlain("   %s\n", update.Message)
			}
		case tasks.CreatePlaylist:
			r.writePlain("\n📝 %s\n", update.Message)
		}
	})

	result, err := r.engine.Run(ctx, source, progressCh)
	close(progressCh)
	done.Wait()

	if result != nil && result.TotalTracks > 0 {
		r.writeTransferSummary(result)
	}
	if errors.Is(err, tasks.ErrNothingMatched) {
		r.writePlain("\nNo tracks matched; no playlist was created.\n")
		return nil
	}
	if err != nil {
		return r.fail(err)
	}
	return nil
}

func (r *Runner) writeTransferSummary(result *tasks.TransferRunResult) {
	r.writePlain("\n")
	if result.DestPlaylist != nil {
		r.writePlainHeader("Transfer Complete!")
	} else {
		r.writePlainHeader("Transfer Incomplete")
	}
	r.writePlain("Source: %s (%d tracks)\n", result.SourcePlaylist.Playlist.Name, result.TotalTracks)
	if result.DestPlaylist != nil {
		r.writePlain("Destination: %s (%d tracks)\n", result.DestPlaylist.Name, result.DestPlaylist.TrackCount)
	}
	r.writePlain("Success rate: %d/%d (%.1f%%)\n", result.SuccessCount, result.TotalTracks, result.MatchPercentage)

	if result.FailedCount > 0 {
		r.writePlain("\nNo match for %d tracks:\n", result.FailedCount)
		for _, match := range result.TrackMatches {
			if match.Matched != nil {
				continue
			}
			if match.Err != nil {
				r.writePlain("  - %s - %s (%s)\n", match.Original.Artist, match.Original.Title, match.Err.UserMessage())
			} else {
				r.writePlain("  - %s - %s\n", match.Original.Artist, match.Original.Title)
			}
		}
	}
}

// TransferDiff compares and shows missing tracks between two playlists.
func (r *Runner) TransferDiff(ctx context.Context, cmd *cli.Command) error {
	sourceID := cmd.String("source-id")
	destID := cmd.String("dest-id")

	sourceSvc, err := r.service(cmd.String("source-service"))
	if err != nil {
		return err
	}
	destSvc, err := r.service(cmd.String("dest-service"))
	if err != nil {
		return err
	}

	r.logger.Info("transfer diff requested", "source", sourceID, "dest", destID)
	r.writePlain("Comparing playlists...\n\n")

	progressCh, done := r.printProgress(10, func(update tasks.ProgressUpdate) {
		r.writePlain("📥 %s\n", update.Message)
	})

	engine := r.guard.Engine()
	result, err := r.engine.Diff(ctx,
		services.NewResilientService(sourceSvc, engine, r.policy),
		services.NewResilientService(destSvc, engine, r.policy),
		sourceID, destID, progressCh)
	close(progressCh)
	done.Wait()

	if err != nil {
		return r.fail(err)
	}

	c := result.Comparison
	r.writePlain("\n✓ Source: %s (%d tracks)\n", c.SourcePlaylist.Playlist.Name, len(c.SourcePlaylist.Tracks))
	r.writePlain("✓ Destination: %s (%d tracks)\n\n", c.DestPlaylist.Playlist.Name, len(c.DestPlaylist.Tracks))

	r.writePlainHeader("Comparison Results")
	r.writePlain("Matched: %d tracks\n", c.MatchedCount)
	r.writePlain("Missing from destination: %d tracks\n", len(c.MissingInDest))
	r.writePlain("Extra in destination: %d tracks\n\n", len(c.ExtraInDest))

	if len(c.MissingInDest) > 0 {
		r.writePlain("Missing from destination:\n")
		r.writeTracks(c.MissingInDest)
		r.writePlain("\n")
	}

	if len(c.ExtraInDest) > 0 {
		r.writePlain("Extra in destination (not in source):\n")
		r.writeTracks(c.ExtraInDest)
	}

	return nil
}

// printProgress drains a progress channel on its own goroutine. Wait on the group after closing the channel.
func (r *Runner) printProgress(size int, fn func(tasks.ProgressUpdate)) (chan tasks.ProgressUpdate, *sync.WaitGroup) {
	ch := make(chan tasks.ProgressUpdate, size)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for update := range ch {
			fn(update)
		}
	}()
	return ch, &wg
}

func (r *Runner) writeTracks(tracks []services.Track) {
	for i, track := range tracks {
		r.writePlain("  %d. %s - %s", i+1, track.Artist, track.Title)
		if track.Album != "" {
			r.writePlain(" (%s)", track.Album)
		}
		r.writePlain("\n")
	}
}
