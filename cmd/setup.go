package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/peanuz/playlist-sync/internal/audio"
	"github.com/peanuz/playlist-sync/internal/services"
	"github.com/peanuz/playlist-sync/internal/shared"
)

const youtubeCookieDomain = ".youtube.com"

// SetupConfig writes the embedded example configuration to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := r.configPath
	if path == "" {
		path = "config.toml"
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	r.logger.Info("config file created", "path", path)
	r.writePlain("✓ Configuration written to %s\n", path)
	r.writePlain("Add your playlist IDs to [sync] playlist_ids or set PLAYLIST_IDS.\n")
	return nil
}

// SetupDatabase initializes the run history database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}
	defer db.Close()

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	r.writePlain("✓ Database ready at %s\n", r.config.Database.Path)
	return nil
}

// SetupCookies converts a "Copy as cURL" command from a logged-in music.youtube.com
// tab into the Netscape cookie file used for searching and downloading.
func (r *Runner) SetupCookies(ctx context.Context, cmd *cli.Command) error {
	curlCmd := cmd.String("curl")
	curlFile := cmd.String("curl-file")
	outputPath := cmd.String("output")

	if curlCmd == "" && curlFile == "" {
		return fmt.Errorf("%w: either --curl or --curl-file must be provided", shared.ErrMissingArgument)
	}

	if curlCmd != "" && curlFile != "" {
		return fmt.Errorf("%w: cannot specify both --curl and --curl-file", shared.ErrInvalidArgument)
	}

	var (
		req *shared.CurlRequest
		err error
	)
	if curlFile != "" {
		req, err = shared.ParseCurlFile(curlFile)
		if err != nil {
			return fmt.Errorf("failed to parse cURL file: %w", err)
		}
		r.logger.Info("parsed cURL from file", "file", curlFile)
	} else {
		req, err = shared.ParseCurlCommand([]byte(curlCmd))
		if err != nil {
			return fmt.Errorf("failed to parse cURL command: %w", err)
		}
		r.logger.Info("parsed cURL command")
	}

	jar := req.CookieJar(youtubeCookieDomain)
	if len(jar) == 0 {
		return fmt.Errorf("%w: the cURL command carries no cookies", shared.ErrInvalidInput)
	}

	if outputPath == "" {
		outputPath = r.config.YouTube.CookiesPath
	}
	if err := shared.WriteFileAtomic(outputPath, jar.Marshal(), 0o600); err != nil {
		return fmt.Errorf("failed to write cookie file: %w", err)
	}

	r.logger.Info("cookie file saved", "path", outputPath, "cookies", len(jar))
	r.writePlain("✓ %d cookies saved to %s\n", len(jar), outputPath)
	if abs, err := filepath.Abs(outputPath); err == nil && outputPath != r.config.YouTube.CookiesPath {
		r.writePlain("Set YOUTUBE_MUSIC_COOKIES=%s or youtube.cookies_path to use it.\n", abs)
	}
	return nil
}

// check is one line of the prerequisite report.
type check struct {
	name   string
	detail string
	err    error
}

// SetupCheck verifies every prerequisite of `sync` without touching the network.
func (r *Runner) SetupCheck(ctx context.Context, cmd *cli.Command) error {
	var checks []check

	jar, err := shared.LoadCookieFile(r.config.YouTube.CookiesPath)
	switch {
	case err != nil:
		checks = append(checks, check{name: "cookies", err: err})
	case len(jar.Valid(time.Now())) == 0:
		checks = append(checks, check{name: "cookies", err: fmt.Errorf("%w: every cookie in %s has expired", shared.ErrMissingCookies, r.config.YouTube.CookiesPath)})
	default:
		checks = append(checks, check{name: "cookies", detail: fmt.Sprintf("%d valid in %s", len(jar.Valid(time.Now())), r.config.YouTube.CookiesPath)})
	}

	for _, exe := range []struct{ name, configured string }{
		{"yt-dlp", r.config.Downloader.YtdlpPath},
		{"ffmpeg", r.config.Downloader.FfmpegPath},
	} {
		path, err := audio.ResolveExecutable(exe.configured, exe.name)
		checks = append(checks, check{name: exe.name, detail: path, err: err})
	}

	ids, err := r.syncPlaylistIDs(nil)
	checks = append(checks, check{name: "playlists", detail: fmt.Sprintf("%d configured", len(ids)), err: err})

	if r.config.Spotify.Backend == "api" {
		_, err := services.NewSpotifyAPIService(ctx, r.config.Spotify.ClientID, r.config.Spotify.ClientSecret, "", "", r.logger)
		checks = append(checks, check{name: "spotify api", detail: "client credentials set", err: err})
	}

	styles := r.styles()
	r.writePlainHeader("Prerequisites")
	var errs []error
	for _, c := range checks {
		if c.err != nil {
			r.writePlain("%s %-12s %v\n", styles.Render(styles.Removed, "✗"), c.name, c.err)
			errs = append(errs, c.err)
			continue
		}
		r.writePlain("%s %-12s %s\n", styles.Render(styles.Added, "✓"), c.name, c.detail)
	}
	return errors.Join(errs...)
}
