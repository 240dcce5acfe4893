package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/samber/lo"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/peanuz/playlist-sync/internal/formatter"
	"github.com/peanuz/playlist-sync/internal/models"
	"github.com/peanuz/playlist-sync/internal/server"
	"github.com/peanuz/playlist-sync/internal/services"
	"github.com/peanuz/playlist-sync/internal/shared"
	"github.com/peanuz/playlist-sync/internal/tasks"
)

// playlistArg reads the positional playlist argument as a URL, URI or bare ID.
func playlistArg(cmd *cli.Command) (string, error) {
	arg := cmd.StringArg("playlist")
	if arg == "" {
		return "", fmt.Errorf("%w: playlist URL or ID", shared.ErrMissingArgument)
	}
	return services.ExtractPlaylistID(arg)
}

func (r *Runner) styles() formatter.Styles {
	if f, ok := r.output.(*os.File); ok {
		return formatter.StylesFor(f)
	}
	return formatter.NewStyles(false)
}

// printProgress writes download progress until ch is closed. The returned channel
// is closed once everything has been written.
func (r *Runner) printProgress(ch <-chan tasks.ProgressUpdate) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range ch {
			switch update.Phase {
			case tasks.FetchingMetadata, tasks.Persisting:
			case tasks.Downloading:
				if update.Step > 0 {
					r.writePlain("  [%d/%d] %s\n", update.Step, update.Total, update.Message)
				}
			default:
				if update.Message != "" {
					r.writePlain("%s\n", update.Message)
				}
			}
		}
	}()
	return done
}

// Scrape fetches a playlist, prints the diff against the stored snapshot and
// persists the snapshot, export and cover when anything changed.
func (r *Runner) Scrape(ctx context.Context, cmd *cli.Command) error {
	id, err := playlistArg(cmd)
	if err != nil {
		return err
	}

	engine, _, err := r.newEngine(ctx, engineOpts{})
	if err != nil {
		return err
	}

	plan, err := engine.Scrape(ctx, id, tasks.SyncOpts{Force: cmd.Bool("force")}, nil)
	if err != nil {
		return err
	}

	s := plan.Current
	r.writePlain("%s (%d tracks)\n", s.PlaylistName, len(s.Tracks))
	switch {
	case plan.FirstRun():
		r.writePlain("Saved %d tracks.\n", len(s.Tracks))
	case plan.Unchanged():
		r.writePlain("No changes since the last scrape.\n")
	default:
		r.writePlain("\n")
		formatter.DiffReport(r.output, plan.Diff, r.styles())
	}

	if !plan.Unchanged() {
		r.writePlainln("Run 'playlist-sync download %s' to fetch the audio.", id)
	}
	return nil
}

// Download fetches every track of the stored snapshot, skipping existing files.
func (r *Runner) Download(ctx context.Context, cmd *cli.Command) error {
	id, err := playlistArg(cmd)
	if err != nil {
		return err
	}

	engine, _, err := r.newEngine(ctx, engineOpts{download: true, history: true})
	if err != nil {
		return err
	}

	progress := make(chan tasks.ProgressUpdate, 50)
	done := r.printProgress(progress)
	run, err := engine.Download(ctx, id, progress)
	close(progress)
	<-done

	if errors.Is(err, shared.ErrNoSnapshot) {
		return fmt.Errorf("%w (run 'playlist-sync scrape %s' first)", err, id)
	}

	r.writePlain("\n")
	formatter.WriteRunSummary(r.output, run, r.styles())
	return err
}

// Sync runs the full cycle for the configured playlists, once or on a schedule,
// optionally with the status server alongside.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	ids, err := r.syncPlaylistIDs(cmd.StringSlice("playlist"))
	if err != nil {
		return err
	}

	interval := r.config.Sync.Interval.Duration
	if d := cmd.Duration("interval"); d > 0 {
		interval = d
	}
	useTUI := cmd.Bool("tui")
	once := cmd.Bool("once") || useTUI

	if useTUI {
		fileLogger, f, err := shared.NewFileLogger(r.config.Paths.LogFile)
		if err != nil {
			return fmt.Errorf("failed to create file logger: %w", err)
		}
		shared.SetLogLevel(fileLogger, r.config.Logging.Level)
		r.closers = append(r.closers, func() { f.Close() })
		r.SetLogger(fileLogger)
	}

	engine, history, err := r.newEngine(ctx, engineOpts{download: true, history: true})
	if err != nil {
		return err
	}

	scheduler := tasks.NewScheduler(engine, interval, r.logger)
	scheduler.Opts = tasks.SyncOpts{Force: cmd.Bool("force")}

	if useTUI {
		return r.syncTUI(ctx, scheduler, ids)
	}

	styles := r.styles()
	scheduler.OnRun = func(run *models.SyncRun, err error) {
		if run != nil {
			formatter.WriteRunSummary(r.output, run, styles)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if addr := cmd.String("status-addr"); addr != "" {
		var runs server.RunSource
		if history != nil {
			runs = history
		}
		srv := server.New(addr, r.store(), runs, r.logger)
		g.Go(func() error { return srv.ListenAndServe(gctx) })
	}

	g.Go(func() error {
		defer cancel()
		if once {
			_, err := scheduler.RunOnce(gctx, ids)
			return err
		}
		r.logger.Info("scheduler started", "playlists", len(ids), "interval", interval)
		return scheduler.Run(gctx, ids)
	})

	return g.Wait()
}

// syncPlaylistIDs normalizes the --playlist values, or the configured IDs when none were given.
func (r *Runner) syncPlaylistIDs(flagged []string) ([]string, error) {
	raw := flagged
	if len(raw) == 0 {
		raw = r.config.Sync.PlaylistIDs
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: set PLAYLIST_IDS, sync.playlist_ids or --playlist", shared.ErrNoPlaylists)
	}

	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		id, err := services.ExtractPlaylistID(v)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return lo.Uniq(ids), nil
}

type movedJSON struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Artists string `json:"artists"`
	From    int    `json:"from"`
	To      int    `json:"to"`
}

type diffJSON struct {
	PlaylistID   string         `json:"playlistId"`
	PlaylistName string         `json:"playlistName"`
	FirstRun     bool           `json:"firstRun"`
	Added        []models.Track `json:"added"`
	Removed      []models.Track `json:"removed"`
	Moved        []movedJSON    `json:"moved"`
	Unchanged    int            `json:"unchanged"`
	CheckedAt    time.Time      `json:"checkedAt"`
}

// Diff compares the stored snapshot with the live playlist. Nothing is written.
func (r *Runner) Diff(ctx context.Context, cmd *cli.Command) error {
	id, err := playlistArg(cmd)
	if err != nil {
		return err
	}

	engine, _, err := r.newEngine(ctx, engineOpts{})
	if err != nil {
		return err
	}

	plan, err := engine.Compare(ctx, id, tasks.SyncOpts{})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(diffJSON{
			PlaylistID:   id,
			PlaylistName: plan.Current.PlaylistName,
			FirstRun:     plan.FirstRun(),
			Added:        lo.Ternary(plan.Diff.Added == nil, []models.Track{}, plan.Diff.Added),
			Removed:      lo.Ternary(plan.Diff.Removed == nil, []models.Track{}, plan.Diff.Removed),
			Moved: lo.Map(plan.Diff.Moved, func(m models.MovedTrack, _ int) movedJSON {
				return movedJSON{ID: m.ID, Title: m.Title, Artists: m.Artists, From: m.From, To: m.To}
			}),
			Unchanged: plan.Diff.Unchanged,
			CheckedAt: time.Now().UTC(),
		}, true)
	}

	r.writePlain("%s (%d tracks)\n", plan.Current.PlaylistName, len(plan.Current.Tracks))
	switch {
	case plan.FirstRun():
		r.writePlain("No stored snapshot: all %d tracks would be fetched.\n", len(plan.Current.Tracks))
	case plan.Unchanged():
		r.writePlain("No changes.\n")
	default:
		r.writePlain("\n")
		formatter.DiffReport(r.output, plan.Diff, r.styles())
	}
	return nil
}
