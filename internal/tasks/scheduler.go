package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/peanuz/playlist-sync/internal/models"
	"github.com/peanuz/playlist-sync/internal/shared"
)

// Syncer runs one cycle of one playlist. Implemented by [SyncEngine].
type Syncer interface {
	Sync(ctx context.Context, playlistID string, opts SyncOpts, progress chan<- ProgressUpdate) (*models.SyncRun, error)
}

// Scheduler runs the configured playlists one after another on a fixed interval.
type Scheduler struct {
	syncer   Syncer
	interval time.Duration
	logger   *log.Logger

	// Opts applies to every cycle.
	Opts SyncOpts
	// Progress receives the updates of every cycle. Optional.
	Progress chan<- ProgressUpdate
	// OnRun is called after each playlist cycle. Optional.
	OnRun func(run *models.SyncRun, err error)
}

func NewScheduler(syncer Syncer, interval time.Duration, logger *log.Logger) *Scheduler {
	return &Scheduler{syncer: syncer, interval: interval, logger: logger}
}

// RunOnce syncs ids in order. A failing playlist does not stop the others.
//
// The returned error joins the per-playlist failures, or is ctx.Err() when the pass was cancelled.
func (s *Scheduler) RunOnce(ctx context.Context, ids []string) ([]*models.SyncRun, error) {
	if len(ids) == 0 {
		return nil, shared.ErrNoPlaylists
	}

	runs := make([]*models.SyncRun, 0, len(ids))
	var errs []error

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return runs, err
		}

		s.logger.Info("syncing playlist", "playlist", id, "step", i+1, "total", len(ids))
		run, err := s.syncer.Sync(ctx, id, s.Opts, s.Progress)
		if run != nil {
			runs = append(runs, run)
		}
		if s.OnRun != nil {
			s.OnRun(run, err)
		}

		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return runs, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}

	return runs, errors.Join(errs...)
}

// Run calls [Scheduler.RunOnce] immediately and then on every tick of the interval,
// measured from the start of Run. Ticks that elapse while a pass is still running are
// dropped. Returns nil when ctx ends.
func (s *Scheduler) Run(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return shared.ErrNoPlaylists
	}
	if s.interval <= 0 {
		return fmt.Errorf("%w: sync interval must be positive", shared.ErrInvalidConfig)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		start := time.Now()
		if _, err := s.RunOnce(ctx, ids); err != nil && ctx.Err() == nil {
			s.logger.Warn("sync pass finished with failures", "error", err)
		}
		if ctx.Err() != nil {
			s.logger.Info("scheduler stopped")
			return nil
		}
		s.logger.Info("sync pass complete", "took", time.Since(start).Round(time.Second), "interval", s.interval)

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}
