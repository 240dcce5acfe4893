package models

// MovedTrack is a track present in both snapshots at different stored positions.
type MovedTrack struct {
	ID      string
	Title   string
	Artists string
	From    int
	To      int
}

// DiffResult classifies the tracks of two snapshots by identifier.
//
// Every track of the new side is exactly one of added, moved or unchanged;
// every track of the old side missing from the new side is removed.
type DiffResult struct {
	Added     []Track
	Removed   []Track
	Moved     []MovedTrack
	Unchanged int
}

// HasChanges reports whether anything was added, removed or moved.
func (d DiffResult) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0 || len(d.Moved) > 0
}
