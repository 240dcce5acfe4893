package repositories

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peanuz/playlist-sync/internal/models"
	"github.com/peanuz/playlist-sync/internal/shared"
)

// SnapshotStore persists the latest [models.Snapshot] of each playlist as <dir>/<playlistID>.json.
//
// Saves replace the file atomically, so a concurrent Load sees either the previous
// snapshot or the new one, never a partial write.
type SnapshotStore struct {
	dir string
}

// NewSnapshotStore creates a store rooted at dir. The directory is created on first save.
func NewSnapshotStore(dir string) *SnapshotStore {
	return &SnapshotStore{dir: dir}
}

// Dir returns the directory the store writes to.
func (s *SnapshotStore) Dir() string {
	return s.dir
}

// Path returns the file path of playlistID's snapshot.
func (s *SnapshotStore) Path(playlistID string) string {
	return filepath.Join(s.dir, playlistID+".json")
}

// Load reads the snapshot of playlistID.
//
// Returns [shared.ErrNoSnapshot] when none was saved yet and [shared.ErrCorruptSnapshot]
// when the file exists but cannot be decoded or violates the snapshot invariants.
func (s *SnapshotStore) Load(playlistID string) (*models.Snapshot, error) {
	if err := validatePlaylistID(playlistID); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.Path(playlistID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", shared.ErrNoSnapshot, playlistID)
		}
		return nil, fmt.Errorf("failed to read snapshot %s: %w", playlistID, err)
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrCorruptSnapshot, playlistID, err)
	}
	if snapshot.PlaylistID != playlistID {
		return nil, fmt.Errorf("%w: %s: file belongs to playlist %q", shared.ErrCorruptSnapshot, playlistID, snapshot.PlaylistID)
	}
	if err := snapshot.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrCorruptSnapshot, playlistID, err)
	}

	return &snapshot, nil
}

// Save writes snapshot, replacing any previous snapshot of the same playlist.
func (s *SnapshotStore) Save(snapshot *models.Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("%w: nil snapshot", shared.ErrInvalidInput)
	}
	if err := validatePlaylistID(snapshot.PlaylistID); err != nil {
		return err
	}
	if err := snapshot.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := shared.WriteFileAtomic(s.Path(snapshot.PlaylistID), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", snapshot.PlaylistID, err)
	}
	return nil
}

// List loads every stored snapshot, sorted by playlist name.
//
// Unreadable files are skipped and reported through the returned error list.
func (s *SnapshotStore) List() ([]*models.Snapshot, []error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, []error{fmt.Errorf("failed to read state directory: %w", err)}
	}

	var (
		snapshots []*models.Snapshot
		errs      []error
	)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}

		snapshot, err := s.Load(strings.TrimSuffix(name, ".json"))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		snapshots = append(snapshots, snapshot)
	}

	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].PlaylistName == snapshots[j].PlaylistName {
			return snapshots[i].PlaylistID < snapshots[j].PlaylistID
		}
		return snapshots[i].PlaylistName < snapshots[j].PlaylistName
	})
	return snapshots, errs
}

func validatePlaylistID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("%w: playlist ID %q", shared.ErrInvalidArgument, id)
	}
	return nil
}
