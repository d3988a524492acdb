package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/playsync/internal/resilience"
	"github.com/desertthunder/playsync/internal/shared"
)

// rerunCommands maps guard labels to the command that produced them.
var rerunCommands = map[string]string{
	"spotify.auth":      spotifyReconnect,
	"spotify.playlists": "playsync spotify playlists",
	"spotify.export":    "playsync spotify export --id ID",
	"youtube.ping":      youtubeReconnect + " --curl FILE",
	"youtube.playlists": "playsync ytmusic playlists",
	"youtube.search":    "playsync ytmusic search QUERY",
	"transfer.source":   "playsync transfer run --source SOURCE",
	"transfer.search":   "playsync transfer run --source SOURCE",
	"transfer.import":   "playsync transfer run --source SOURCE",
	"diff.source":       "playsync transfer diff --source-id ID --dest-id ID",
	"diff.dest":         "playsync transfer diff --source-id ID --dest-id ID",
}

// rerunCommand returns the command to run again for a failure recorded under label.
func rerunCommand(label string) string {
	if cmd, ok := rerunCommands[label]; ok {
		return cmd
	}
	return ""
}

// apply carries out a recovery effect for a failure recorded under label.
//
// Reconnecting Spotify runs the authorization flow in place. Other effects that need user input print the
// command to run next.
func (r *Runner) apply(ctx context.Context, effect resilience.Effect, label, configPath string) error {
	r.logger.Debug("applying recovery", "effect", effect.String(), "context", label)

	switch effect.Type {
	case resilience.EffectOpenExternal:
		r.writePlain("→ Opening %s\n", effect.Target)
		if err := r.openURL(effect.Target); err != nil {
			r.logger.Warn("failed to open browser", "error", err)
			r.writePlain("Please open this URL in your browser:\n%s\n", effect.Target)
		}
		return nil

	case resilience.EffectReload:
		if cmd := rerunCommand(label); cmd != "" {
			return r.writePlain("Run again: %s\n", cmd)
		}
		return r.writePlain("Run the command that failed again.\n")

	case resilience.EffectNavigate:
		switch {
		case effect.Target == spotifyReconnect:
			return r.spotifyAuth(ctx, configPath)
		case effect.Target == youtubeReconnect:
			return r.writePlain("Copy a request to music.youtube.com as cURL from your browser, save it, then run:\n  %s --curl FILE\n", youtubeReconnect)
		case strings.HasPrefix(effect.Target, "playsync "):
			return r.writePlain("Next: %s\n", effect.Target)
		default:
			return r.writePlain("Run 'playsync --help' to see available commands.\n")
		}

	case resilience.EffectGoBack:
		return nil

	default:
		return fmt.Errorf("%w: unknown recovery effect %q", shared.ErrInvalidArgument, effect.Type)
	}
}
