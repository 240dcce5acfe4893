package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/peanuz/playlist-sync/internal/audio"
	"github.com/peanuz/playlist-sync/internal/repositories"
	"github.com/peanuz/playlist-sync/internal/services"
	"github.com/peanuz/playlist-sync/internal/shared"
	"github.com/peanuz/playlist-sync/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Remote services are built on first use so that commands which only read local
// state never touch the network.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer

	catalog services.CatalogService
	matcher services.Matcher
	fetcher tasks.Fetcher
	covers  tasks.CoverStore

	closers []func()
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Catalog, Matcher and Fetcher replace the remote services and the download pipeline.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Catalog    services.CatalogService
	Matcher    services.Matcher
	Fetcher    tasks.Fetcher
	Covers     tasks.CoverStore
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
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Config.HTTP.Timeout.Duration}
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		catalog:    opts.Catalog,
		matcher:    opts.Matcher,
		fetcher:    opts.Fetcher,
		covers:     opts.Covers,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		scrapeCommand, downloadCommand, syncCommand, diffCommand, statusCommand, exportCommand, setupCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the logger, e.g. with a file logger while the TUI owns the terminal.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// Close runs the registered cleanup functions in reverse order.
func (r *Runner) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

func (r *Runner) store() *repositories.SnapshotStore {
	return repositories.NewSnapshotStore(r.config.Paths.StateDir)
}

func (r *Runner) catalogService(ctx context.Context) (services.CatalogService, error) {
	if r.catalog != nil {
		return r.catalog, nil
	}

	switch r.config.Spotify.Backend {
	case "api":
		svc, err := services.NewSpotifyAPIService(ctx, r.config.Spotify.ClientID, r.config.Spotify.ClientSecret, "", "", r.logger)
		if err != nil {
			return nil, err
		}
		r.catalog = svc
	default:
		api := services.NewAPIClient(r.httpClient, services.NewLimiter(r.config.HTTP.RequestsPerSecond))
		r.catalog = services.NewSpotifyWebService(api, services.SpotifyEndpoints{}, r.logger)
	}

	r.logger.Debug("catalog backend ready", "backend", r.catalog.Name())
	return r.catalog, nil
}

func (r *Runner) coverStore() tasks.CoverStore {
	if r.covers == nil {
		api := services.NewAPIClient(r.httpClient, services.NewLimiter(r.config.HTTP.RequestsPerSecond))
		r.covers = services.NewCoverCache(api, r.config.Paths.CoverDir)
	}
	return r.covers
}

// checkDownloadPrereqs verifies the cookie file and, unless a fetcher was injected,
// the yt-dlp and ffmpeg executables. Nothing is contacted over the network.
func (r *Runner) checkDownloadPrereqs() (ytdlp, ffmpeg string, err error) {
	cookies := r.config.YouTube.CookiesPath
	if cookies == "" || !shared.FileExists(cookies) {
		return "", "", fmt.Errorf("%w: %q (run 'playlist-sync setup cookies')", shared.ErrMissingCookies, cookies)
	}
	if r.fetcher != nil {
		return "", "", nil
	}

	if ytdlp, err = audio.ResolveExecutable(r.config.Downloader.YtdlpPath, "yt-dlp"); err != nil {
		return "", "", err
	}
	if ffmpeg, err = audio.ResolveExecutable(r.config.Downloader.FfmpegPath, "ffmpeg"); err != nil {
		return "", "", err
	}
	return ytdlp, ffmpeg, nil
}

func (r *Runner) downloadServices(ytdlp, ffmpeg string) (services.Matcher, tasks.Fetcher) {
	if r.matcher == nil {
		api := services.NewAPIClient(r.httpClient, services.NewLimiter(r.config.YouTube.RequestsPerSecond))
		r.matcher = services.NewYouTubeMusicService(api, r.config.YouTube.CookiesPath, "", r.logger)
	}
	if r.fetcher == nil {
		downloader := &audio.YtdlpDownloader{
			Executable: ytdlp,
			FFmpeg:     ffmpeg,
			Cookies:    r.config.YouTube.CookiesPath,
			Quality:    r.config.Downloader.AudioQuality,
		}
		tagger := &audio.FFmpegTagger{Executable: ffmpeg}
		r.fetcher = audio.NewPipeline(r.config.Paths.OutputDir, downloader, tagger, r.logger)
	}
	return r.matcher, r.fetcher
}

// openHistory opens the run history database. History is optional: a failure is
// logged and the engine runs without it.
func (r *Runner) openHistory() *repositories.RunRepository {
	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		r.logger.Warn("run history disabled", "path", r.config.Database.Path, "error", err)
		return nil
	}
	r.closers = append(r.closers, func() { db.Close() })
	return repositories.NewRunRepository(db)
}

// engineOpts controls which collaborators [Runner.newEngine] wires.
type engineOpts struct {
	download bool // matcher and fetcher; requires the download prerequisites
	history  bool // run recorder
}

func (r *Runner) newEngine(ctx context.Context, opts engineOpts) (*tasks.SyncEngine, *repositories.RunRepository, error) {
	var (
		matcher services.Matcher
		fetcher tasks.Fetcher
	)
	if opts.download {
		ytdlp, ffmpeg, err := r.checkDownloadPrereqs()
		if err != nil {
			return nil, nil, err
		}
		matcher, fetcher = r.downloadServices(ytdlp, ffmpeg)
	}

	catalog, err := r.catalogService(ctx)
	if err != nil {
		return nil, nil, err
	}

	dl := r.config.Downloader
	engineOptions := []tasks.EngineOption{
		tasks.WithCovers(r.coverStore()),
		tasks.WithExportDir(r.config.Paths.ExportDir),
		tasks.WithDelay(dl.MinDelay.Duration, dl.MaxDelay.Duration),
		tasks.WithTrackTimeout(dl.Timeout.Duration),
	}

	var history *repositories.RunRepository
	if opts.history {
		if history = r.openHistory(); history != nil {
			engineOptions = append(engineOptions, tasks.WithRunRecorder(history))
		}
	}

	engine := tasks.NewSyncEngine(r.store(), catalog, matcher, fetcher, r.logger, engineOptions...)
	return engine, history, nil
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
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
