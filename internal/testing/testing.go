// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/peanuz/playlist-sync/internal/models"
	"github.com/peanuz/playlist-sync/internal/shared"
)

// NewTracks builds n tracks with IDs /track/<prefix><i> and dense positions.
func NewTracks(prefix string, n int) []models.Track {
	tracks := make([]models.Track, n)
	for i := range tracks {
		id := fmt.Sprintf("%s%d", prefix, i+1)
		tracks[i] = models.Track{
			Position: i + 1,
			ID:       "/track/" + id,
			URL:      "https://open.spotify.com/track/" + id,
			Artists:  "Artist " + id,
			Title:    "Title " + id,
		}
	}
	return tracks
}

// NewSnapshot builds a renumbered snapshot of tracks.
func NewSnapshot(playlistID string, tracks ...models.Track) *models.Snapshot {
	s := &models.Snapshot{
		PlaylistID:   playlistID,
		PlaylistName: "Playlist " + playlistID,
		Tracks:       append([]models.Track(nil), tracks...),
	}
	s.Renumber()
	return s
}

// MockCatalog is a test double for [services.CatalogService] serving fixed snapshots.
type MockCatalog struct {
	mu        sync.Mutex
	Snapshots map[string]*models.Snapshot
	Err       error
	calls     int
}

func NewMockCatalog(snapshots ...*models.Snapshot) *MockCatalog {
	m := &MockCatalog{Snapshots: map[string]*models.Snapshot{}}
	for _, s := range snapshots {
		m.Snapshots[s.PlaylistID] = s
	}
	return m
}

// Set replaces the snapshot served for s.PlaylistID.
func (m *MockCatalog) Set(s *models.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Snapshots[s.PlaylistID] = s
}

func (m *MockCatalog) FetchPlaylist(ctx context.Context, playlistID string) (*models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	s, ok := m.Snapshots[playlistID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}
	return s.Clone(), nil
}

// Calls returns how many times FetchPlaylist ran.
func (m *MockCatalog) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockCatalog) Name() string { return "mock" }

// MockSession is a test double for [services.MatchSession].
//
// Tracks listed in Missing resolve to [shared.ErrTrackNotFound]; every other track
// matches a video named after its ID.
type MockSession struct {
	mu      sync.Mutex
	Missing map[string]bool
	Errors  map[string]error
	queries []string
	Closed  bool
}

func NewMockSession(missing ...string) *MockSession {
	s := &MockSession{Missing: map[string]bool{}, Errors: map[string]error{}}
	for _, id := range missing {
		s.Missing[id] = true
	}
	return s
}

func (s *MockSession) Match(ctx context.Context, track models.Track) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Closed {
		return nil, errors.New("session closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.queries = append(s.queries, track.SearchQuery())

	if err, ok := s.Errors[track.ID]; ok {
		return nil, err
	}
	if s.Missing[track.ID] {
		return nil, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, track.SearchQuery())
	}

	videoID := "v" + track.ID[len("/track/"):]
	return &models.Match{
		VideoID:    videoID,
		URL:        "https://www.youtube.com/watch?v=" + videoID,
		Title:      track.Title,
		Query:      track.SearchQuery(),
		Confidence: 1,
	}, nil
}

func (s *MockSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// Queries returns the search queries seen so far.
func (s *MockSession) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertNoFile(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Errorf("File should not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

func MustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
}
