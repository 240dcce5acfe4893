// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// scrapeCommand fetches and persists playlist metadata without downloading
func scrapeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "scrape",
		Usage:     "Fetch a playlist, show what changed and save the snapshot",
		ArgsUsage: "<playlist url|id>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "playlist"},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Ignore the stored snapshot",
			},
		},
		Action: r.Scrape,
	}
}

// downloadCommand fetches the audio of a stored snapshot
func downloadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "download",
		Usage:     "Download every track of a scraped playlist, skipping existing files",
		ArgsUsage: "<playlist url|id>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "playlist"},
		},
		Action: r.Download,
	}
}

// syncCommand runs the full cycle for the configured playlists
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Keep the configured playlists in sync on a schedule",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "playlist",
				Aliases: []string{"p"},
				Usage:   "Playlist URL or ID (repeatable, overrides sync.playlist_ids)",
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Run a single pass and exit",
			},
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Ignore stored snapshots and fetch every track",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Time between passes (overrides sync.interval)",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show an interactive progress view (implies --once)",
			},
			&cli.StringFlag{
				Name:  "status-addr",
				Usage: "Serve the status API on this address, e.g. 127.0.0.1:8080",
			},
		},
		Action: r.Sync,
	}
}

// diffCommand compares the stored snapshot with the live playlist
func diffCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "diff",
		Usage:     "Compare the stored snapshot with the live playlist without writing",
		ArgsUsage: "<playlist url|id>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "playlist"},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Diff,
	}
}

// statusCommand prints the run history
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show recent sync runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "playlist",
				Usage: "Only show runs of this playlist",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs",
				Value: 20,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Status,
	}
}

// exportCommand renders stored snapshots
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Render stored snapshots as JSON, CSV, Markdown or text",
		ArgsUsage: "<playlist url|id>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "playlist"},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Export every stored snapshot",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format: json, csv, markdown, txt",
				Value: "json",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output directory (default: paths.export_dir)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent exports with --all",
				Value: 4,
			},
		},
		Action: r.Export,
	}
}

// setupCommand handles setup operations for configuration, database and cookies.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config.toml from the built-in template",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize the run history database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:  "cookies",
				Usage: "Convert a browser cURL command into a Netscape cookie file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "curl",
						Usage: "cURL command from browser DevTools (Copy as cURL)",
					},
					&cli.StringFlag{
						Name:  "curl-file",
						Usage: "Path to .sh file containing cURL command",
					},
					&cli.StringFlag{
						Name:  "output",
						Usage: "Output path (default: youtube.cookies_path)",
					},
				},
				Action: r.SetupCookies,
			},
			{
				Name:   "check",
				Usage:  "Check cookies, executables and configured playlists",
				Action: r.SetupCheck,
			},
		},
	}
}
