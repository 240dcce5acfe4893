package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultArtist = "Unknown Artist"
	DefaultTitle  = "Unknown Track"
)

// Model defines the base interface for persisted history records.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
type Repository[T Model] interface {
	Create(model T) error                      // Create inserts a new model into the database
	Get(id string) (T, error)                  // Get retrieves a model by its ID
	List(criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// Track is one catalog entry of a playlist.
//
// ID is stable across fetches of the same playlist and is the only field used for diffing.
type Track struct {
	Position int    `json:"position"`
	ID       string `json:"id"`
	URL      string `json:"url"`
	Artists  string `json:"artists"`
	Title    string `json:"title"`
}

// DisplayName returns "artists - title".
func (t Track) DisplayName() string {
	return t.Artists + " - " + t.Title
}

// SearchQuery returns the free-text query used to find the track on another platform.
func (t Track) SearchQuery() string {
	return strings.TrimSpace(t.Artists + " " + t.Title)
}

// Snapshot is the captured state of a playlist at LastUpdate.
type Snapshot struct {
	PlaylistID        string    `json:"playlistId"`
	PlaylistName      string    `json:"playlistName"`
	PlaylistImage     string    `json:"playlistImage,omitempty"`
	PlaylistImagePath string    `json:"playlistImagePath,omitempty"`
	LastUpdate        time.Time `json:"lastUpdate"`
	TrackCount        int       `json:"trackCount"`
	Tracks            []Track   `json:"tracks"`
}

// Renumber assigns dense 1..N positions in slice order and refreshes TrackCount.
func (s *Snapshot) Renumber() {
	for i := range s.Tracks {
		s.Tracks[i].Position = i + 1
	}
	s.TrackCount = len(s.Tracks)
}

// Validate checks the snapshot invariants: a playlist ID, non-empty track IDs and
// dense 1..N positions in slice order.
func (s *Snapshot) Validate() error {
	if s.PlaylistID == "" {
		return fmt.Errorf("snapshot has no playlist ID")
	}
	seen := make(map[string]struct{}, len(s.Tracks))
	for i, t := range s.Tracks {
		if t.ID == "" {
			return fmt.Errorf("track at index %d has no ID", i)
		}
		if _, ok := seen[t.ID]; ok {
			return fmt.Errorf("track %s appears more than once", t.ID)
		}
		seen[t.ID] = struct{}{}
		if t.Position != i+1 {
			return fmt.Errorf("track %s has position %d, expected %d", t.ID, t.Position, i+1)
		}
	}
	return nil
}

// Clone returns a deep copy of s.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.Tracks = append([]Track(nil), s.Tracks...)
	return &c
}

// ExportTrack is a track as written to the consumer-facing export file.
type ExportTrack struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	Artists  string `json:"artists"`
	URL      string `json:"url"`
}

// PlaylistExport is the consumer-facing rendering of a [Snapshot].
type PlaylistExport struct {
	PlaylistID        string        `json:"playlistId"`
	PlaylistName      string        `json:"playlistName"`
	PlaylistImage     string        `json:"playlistImage,omitempty"`
	PlaylistImagePath string        `json:"playlistImagePath,omitempty"`
	ExportDate        time.Time     `json:"exportDate"`
	TrackCount        int           `json:"trackCount"`
	Tracks            []ExportTrack `json:"tracks"`
}

// NewPlaylistExport builds an export of s dated at.
func NewPlaylistExport(s *Snapshot, at time.Time) *PlaylistExport {
	tracks := make([]ExportTrack, len(s.Tracks))
	for i, t := range s.Tracks {
		tracks[i] = ExportTrack{Position: t.Position, Title: t.Title, Artists: t.Artists, URL: t.URL}
	}
	return &PlaylistExport{
		PlaylistID:        s.PlaylistID,
		PlaylistName:      s.PlaylistName,
		PlaylistImage:     s.PlaylistImage,
		PlaylistImagePath: s.PlaylistImagePath,
		ExportDate:        at,
		TrackCount:        len(tracks),
		Tracks:            tracks,
	}
}

// Match is a search candidate for a [Track].
type Match struct {
	VideoID    string
	URL        string
	Title      string
	Subtitle   string
	Query      string
	Confidence float64 // 0..1, how closely Title resembles the track title
}
