package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/peanuz/playlist-sync/internal/models"
	"github.com/peanuz/playlist-sync/internal/tasks"
	"github.com/peanuz/playlist-sync/internal/ui"
)

// syncTUI runs one scheduler pass behind the progress view.
//
// The caller redirects logs to a file first so they do not interfere with rendering.
func (r *Runner) syncTUI(ctx context.Context, scheduler *tasks.Scheduler, ids []string) error {
	model := ui.NewModel(ctx, func(ctx context.Context, progress chan<- tasks.ProgressUpdate) ([]*models.SyncRun, error) {
		scheduler.Progress = progress
		return scheduler.RunOnce(ctx, ids)
	})

	if _, err := tea.NewProgram(model).Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return model.Err()
}
