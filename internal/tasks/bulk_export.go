package tasks

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/peanuz/playlist-sync/internal/formatter"
	"github.com/peanuz/playlist-sync/internal/models"
)

const (
	defaultExportWorkers = 4
	maxExportWorkers     = 10
)

// BulkExportOpts contains configuration for bulk playlist exports.
type BulkExportOpts struct {
	Format     formatter.Format // Export format: json, csv, markdown, txt
	OutputDir  string           // Directory receiving <id>.<ext> files
	NumWorkers int              // Concurrent workers (default: 4, max: 10)
}

// PlaylistExportResult is the outcome of exporting one snapshot.
type PlaylistExportResult struct {
	PlaylistID   string
	PlaylistName string
	Path         string
	Error        error
}

// BulkExportResult summarizes an [ExportAll] call.
type BulkExportResult struct {
	Results           []PlaylistExportResult // In input order
	SuccessfulExports int
	FailedExports     int
}

// ExportAll renders snapshots with a bounded worker pool. A failing export does not
// stop the others; only cancellation returns an error.
func ExportAll(ctx context.Context, snapshots []*models.Snapshot, opts BulkExportOpts, prog chan<- ProgressUpdate) (*BulkExportResult, error) {
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = defaultExportWorkers
	}
	if opts.NumWorkers > maxExportWorkers {
		opts.NumWorkers = maxExportWorkers
	}
	if opts.Format == "" {
		opts.Format = formatter.FormatJSON
	}

	result := &BulkExportResult{Results: make([]PlaylistExportResult, len(snapshots))}
	done := make(chan int, len(snapshots))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.NumWorkers)

	for i, snapshot := range snapshots {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			res := PlaylistExportResult{PlaylistID: snapshot.PlaylistID, PlaylistName: snapshot.PlaylistName}
			path, err := formatter.WriteExport(opts.OutputDir, snapshot, opts.Format, snapshot.LastUpdate)
			if err != nil {
				res.Error = fmt.Errorf("%s export failed: %w", opts.Format, err)
			}
			res.Path = path
			result.Results[i] = res
			done <- i
			return nil
		})
	}

	err := g.Wait()
	close(done)

	completed := 0
	for i := range done {
		completed++
		res := result.Results[i]
		if res.Error != nil {
			result.FailedExports++
			sendProgress(prog, exportFailedUpdate(completed, len(snapshots), res.PlaylistName, res.Error))
			continue
		}
		result.SuccessfulExports++
		sendProgress(prog, exportCompletedUpdate(completed, len(snapshots), res.PlaylistName, res.Path))
	}

	if err != nil {
		return result, err
	}
	return result, nil
}
