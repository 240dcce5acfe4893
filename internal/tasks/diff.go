package tasks

import "github.com/peanuz/playlist-sync/internal/models"

// Diff compares old and new track lists by identifier.
//
// It is a positional diff: a track is moved iff its stored position differs,
// regardless of whether its relative order changed. Output order follows the
// new list for added/moved and the old list for removed.
func Diff(old, current []models.Track) models.DiffResult {
	oldByID := make(map[string]models.Track, len(old))
	for _, t := range old {
		oldByID[t.ID] = t
	}
	newIDs := make(map[string]struct{}, len(current))
	for _, t := range current {
		newIDs[t.ID] = struct{}{}
	}

	var result models.DiffResult
	for _, t := range current {
		prev, ok := oldByID[t.ID]
		switch {
		case !ok:
			result.Added = append(result.Added, t)
		case prev.Position != t.Position:
			result.Moved = append(result.Moved, models.MovedTrack{
				ID:      t.ID,
				Title:   t.Title,
				Artists: t.Artists,
				From:    prev.Position,
				To:      t.Position,
			})
		default:
			result.Unchanged++
		}
	}

	for _, t := range old {
		if _, ok := newIDs[t.ID]; !ok {
			result.Removed = append(result.Removed, t)
		}
	}

	return result
}
