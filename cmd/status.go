package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/peanuz/playlist-sync/internal/formatter"
	"github.com/peanuz/playlist-sync/internal/models"
	"github.com/peanuz/playlist-sync/internal/services"
	"github.com/peanuz/playlist-sync/internal/shared"
	"github.com/peanuz/playlist-sync/internal/tasks"
)

// Status prints the most recent runs from the history database.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	limit := cmd.Int("limit")
	if limit <= 0 {
		return fmt.Errorf("%w: --limit must be positive", shared.ErrInvalidFlag)
	}

	history := r.openHistory()
	if history == nil {
		return fmt.Errorf("%w: run history database %s", shared.ErrServiceUnavailable, r.config.Database.Path)
	}

	criteria := map[string]any{"limit": limit}
	if v := cmd.String("playlist"); v != "" {
		id, err := services.ExtractPlaylistID(v)
		if err != nil {
			return err
		}
		criteria["playlist_id"] = id
	}

	runs, err := history.List(criteria)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if cmd.Bool("json") {
		if runs == nil {
			runs = []*models.SyncRun{}
		}
		return r.writeJSON(runs, true)
	}

	formatter.WriteRunTable(r.output, runs)
	return nil
}

// Export renders one stored snapshot, or all of them with --all.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	dir := cmd.String("output")
	if dir == "" {
		dir = r.config.Paths.ExportDir
	}
	store := r.store()

	if cmd.Bool("all") {
		return r.exportAll(ctx, format, dir, int(cmd.Int("workers")))
	}

	id, err := playlistArg(cmd)
	if err != nil {
		return fmt.Errorf("%w (or pass --all)", err)
	}

	snapshot, err := store.Load(id)
	if err != nil {
		return err
	}

	path, err := formatter.WriteExport(dir, snapshot, format, snapshot.LastUpdate)
	if err != nil {
		return err
	}

	r.logger.Info("exported playlist", "playlist", id, "format", format, "path", path)
	r.writePlain("✓ %s → %s\n", snapshot.PlaylistName, path)
	return nil
}

func (r *Runner) exportAll(ctx context.Context, format formatter.Format, dir string, workers int) error {
	snapshots, errs := r.store().List()
	for _, err := range errs {
		r.logger.Warn("skipping unreadable snapshot", "error", err)
	}
	if len(snapshots) == 0 {
		return fmt.Errorf("%w in %s", shared.ErrNoSnapshot, r.config.Paths.StateDir)
	}

	r.writePlain("Exporting %d playlists as %s...\n", len(snapshots), format)

	progress := make(chan tasks.ProgressUpdate, len(snapshots)+1)
	done := r.printProgress(progress)
	result, err := tasks.ExportAll(ctx, snapshots, tasks.BulkExportOpts{
		Format:     format,
		OutputDir:  dir,
		NumWorkers: workers,
	}, progress)
	close(progress)
	<-done

	if err != nil {
		return err
	}

	r.writePlainln("Exported %d/%d playlists to %s", result.SuccessfulExports, len(snapshots), dir)
	if result.FailedExports > 0 {
		return fmt.Errorf("%d of %d exports failed", result.FailedExports, len(snapshots))
	}
	return nil
}
