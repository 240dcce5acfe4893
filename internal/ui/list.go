package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"

	"github.com/peanuz/playlist-sync/internal/models"
)

var (
	_ list.Item = runItem{}
)

// runItem wraps [models.SyncRun] to implement [list.Item].
type runItem struct {
	run *models.SyncRun
}

func (i runItem) FilterValue() string { return i.name() }

func (i runItem) Title() string {
	return fmt.Sprintf("%s %s", statusMarker(i.run.Status), i.name())
}

func (i runItem) Description() string {
	r := i.run
	if r.Error != "" {
		return fmt.Sprintf("%s • %s", r.Status, r.Error)
	}
	return fmt.Sprintf("%s • +%d -%d ↕%d • %d downloaded, %d skipped, %d not found, %d failed • %s",
		r.Status, r.Added, r.Removed, r.Moved, r.Downloaded, r.Skipped, r.NotFound, r.Failed,
		r.Duration().Round(time.Second))
}

func (i runItem) name() string {
	if i.run.PlaylistName != "" {
		return i.run.PlaylistName
	}
	return i.run.PlaylistID
}

func statusMarker(s models.RunStatus) string {
	switch s {
	case models.RunSynced:
		return styles.ok.Render("✓")
	case models.RunUnchanged:
		return styles.help.Render("=")
	case models.RunPartial:
		return styles.warn.Render("!")
	default:
		return styles.err.Render("✗")
	}
}
