// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   configPath,
	}
}

// setupCommand creates the config file, database and schema.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml, initialize the database and run migrations",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Setup,
	}
}

// spotifyCommand handles Spotify operations
func spotifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "spotify",
		Aliases: []string{"spot"},
		Usage:   "Spotify playlist operations",
		Commands: []*cli.Command{
			{
				Name:   "auth",
				Usage:  "Authenticate with Spotify using OAuth2",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SpotifyAuth,
			},
			{
				Name:  "playlists",
				Usage: "List Spotify playlists",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of playlists to print",
						Value: 50,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.SpotifyPlaylists,
			},
			{
				Name:  "export",
				Usage: "Export a playlist with all of its tracks",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Playlist ID to export",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: text, csv or json",
						Value:   "text",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path (default: stdout)",
					},
				},
				Action: r.SpotifyExport,
			},
		},
	}
}

// ytmusicCommand handles YouTube Music operations
func ytmusicCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "ytmusic",
		Aliases: []string{"ytm", "yt"},
		Usage:   "YouTube Music operations",
		Commands: []*cli.Command{
			{
				Name:  "auth",
				Usage: "Write the proxy headers file from a browser 'Copy as cURL' request",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:     "curl",
						Usage:    "Path to a file containing the cURL command",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "output",
						Usage: "Headers file to write (default: credentials.youtube.headers_path)",
					},
				},
				Action: r.YTMusicAuth,
			},
			{
				Name:  "playlists",
				Usage: "List YouTube Music playlists",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.YTMusicPlaylists,
			},
			{
				Name:  "search",
				Usage: "Search YouTube Music for a track",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "query",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "artist",
						Usage: "Artist name to narrow the search",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.YTMusicSearch,
			},
		},
	}
}

// transferCommand handles playlist transfer operations
func transferCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "transfer",
		Usage: "Transfer playlists between services",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run full Spotify → YouTube Music sync",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "source",
						Usage:    "Source playlist name or ID",
						Required: true,
					},
				},
				Action: r.TransferRun,
			},
			{
				Name:  "diff",
				Usage: "Compare and show missing tracks between two playlists",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "source-id",
						Usage:    "Source playlist ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "dest-id",
						Usage:    "Destination playlist ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "source-service",
						Usage: "Source service (spotify or youtube)",
						Value: "spotify",
					},
					&cli.StringFlag{
						Name:  "dest-service",
						Usage: "Destination service (spotify or youtube)",
						Value: "youtube",
					},
				},
				Action: r.TransferDiff,
			},
		},
	}
}

// errorsCommand inspects and replays normalized failures
func errorsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "errors",
		Aliases: []string{"err"},
		Usage:   "Classify, list and recover from failures",
		Commands: []*cli.Command{
			{
				Name:  "classify",
				Usage: "Normalize a synthetic failure and print the record and recommended recovery",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "status",
						Usage: "HTTP status code",
					},
					&cli.StringFlag{
						Name:  "code",
						Usage: "Provider error code",
					},
					&cli.StringFlag{
						Name:    "message",
						Aliases: []string{"m"},
						Usage:   "Technical error message",
					},
					&cli.StringFlag{
						Name:  "service",
						Usage: "Integration that produced the failure (spotify or youtube)",
					},
					&cli.StringSliceFlag{
						Name:  "field",
						Usage: "Response field as key=value, e.g. Retry-After=30 (repeatable)",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.ErrorsClassify,
			},
			{
				Name:  "log",
				Usage: "List recorded failures, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of events",
						Value: 20,
					},
					&cli.StringFlag{
						Name:  "kind",
						Usage: "Only show events of this kind, e.g. NETWORK",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: text, csv or json",
						Value:   "text",
					},
				},
				Action: r.ErrorsLog,
			},
			{
				Name:  "recover",
				Usage: "Pick a recovery for the most recent failure and carry it out",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "primary",
						Usage: "Take the primary action without prompting",
					},
				},
				Action: r.ErrorsRecover,
			},
		},
	}
}
