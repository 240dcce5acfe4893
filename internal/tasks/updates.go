package tasks

import (
	"fmt"

	"github.com/peanuz/playlist-sync/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase      Phase  // Operation phase
	PlaylistID string // Playlist the update belongs to
	Step       int    // Current step number within phase
	Total      int    // Total steps in this phase
	Message    string // Human-readable message for display
	Data       any    // Optional phase-specific data for advanced UIs
}

// Phase is the state of one playlist cycle.
//
//	Idle → FetchingMetadata → Diffing → Downloading → Persisting → Complete
//
// Failed is reachable from FetchingMetadata (and from Persisting when the state
// store cannot be written). Per-track failures never move a cycle to Failed.
type Phase int

const (
	Idle Phase = iota
	FetchingMetadata
	Diffing
	Downloading
	Persisting
	Failed
	Complete
	Exporting
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case FetchingMetadata:
		return "fetching_metadata"
	case Diffing:
		return "diffing"
	case Downloading:
		return "downloading"
	case Persisting:
		return "persisting"
	case Failed:
		return "failed"
	case Complete:
		return "complete"
	case Exporting:
		return "exporting"
	default:
		return ""
	}
}

// Terminal reports whether p ends a cycle.
func (p Phase) Terminal() bool {
	return p == Failed || p == Complete
}

func fetchingMetadataUpdate(id string) ProgressUpdate {
	return ProgressUpdate{
		Phase:      FetchingMetadata,
		PlaylistID: id,
		Step:       1,
		Total:      1,
		Message:    fmt.Sprintf("Fetching playlist %s...", id),
	}
}

func diffingUpdate(s *models.Snapshot) ProgressUpdate {
	return ProgressUpdate{
		Phase:      Diffing,
		PlaylistID: s.PlaylistID,
		Step:       1,
		Total:      1,
		Message:    fmt.Sprintf("Found playlist: %s (%d tracks)", s.PlaylistName, len(s.Tracks)),
		Data:       s,
	}
}

func downloadingUpdate(id string, step, total int, tr *models.Track) ProgressUpdate {
	if tr == nil {
		return ProgressUpdate{
			Phase:      Downloading,
			PlaylistID: id,
			Step:       step,
			Total:      total,
			Message:    fmt.Sprintf("Downloading %d tracks...", total),
		}
	}
	return ProgressUpdate{
		Phase:      Downloading,
		PlaylistID: id,
		Step:       step,
		Total:      total,
		Message:    fmt.Sprintf("[%d/%d] %s", step, total, tr.DisplayName()),
		Data:       tr,
	}
}

func trackResultUpdate(id string, step, total int, res *models.TrackResult) ProgressUpdate {
	marker := "✓"
	switch res.Outcome {
	case models.OutcomeSkipped:
		marker = "⏭"
	case models.OutcomeNotFound:
		marker = "?"
	case models.OutcomeFailed, models.OutcomeTimedOut:
		marker = "✗"
	}
	return ProgressUpdate{
		Phase:      Downloading,
		PlaylistID: id,
		Step:       step,
		Total:      total,
		Message:    fmt.Sprintf("[%d/%d] %s %s (%s)", step, total, marker, res.Track.DisplayName(), res.Outcome),
		Data:       res,
	}
}

func persistingUpdate(id string) ProgressUpdate {
	return ProgressUpdate{
		Phase:      Persisting,
		PlaylistID: id,
		Step:       1,
		Total:      1,
		Message:    "Saving snapshot and export...",
	}
}

func failedUpdate(id string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:      Failed,
		PlaylistID: id,
		Message:    fmt.Sprintf("✗ %s: %v", id, err),
	}
}

func completeUpdate(run *models.SyncRun) ProgressUpdate {
	return ProgressUpdate{
		Phase:      Complete,
		PlaylistID: run.PlaylistID,
		Step:       1,
		Total:      1,
		Message: fmt.Sprintf("%s: %s (%d downloaded, %d skipped, %d not found, %d failed)",
			run.PlaylistName, run.Status, run.Downloaded, run.Skipped, run.NotFound, run.Failed),
		Data: run,
	}
}

func exportCompletedUpdate(step, total int, name, path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Exporting,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s → %s", step, total, name, path),
	}
}

func exportFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Exporting,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
