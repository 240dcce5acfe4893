package services

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/peanuz/playlist-sync/internal/models"
	"github.com/peanuz/playlist-sync/internal/shared"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	trackURLPrefix   = "https://open.spotify.com/track/"
)

// CatalogService resolves a playlist identifier into its current track list and attributes.
type CatalogService interface {
	// FetchPlaylist fetches every page of the playlist. Positions are 1-based in catalog order.
	FetchPlaylist(ctx context.Context, playlistID string) (*models.Snapshot, error)

	// Name returns the name of the backend (e.g., "spotify-web", "spotify-api")
	Name() string
}

// Matcher opens search sessions. A session owns its query cache and must be closed.
type Matcher interface {
	Open(ctx context.Context) (MatchSession, error)
}

// MatchSession resolves tracks to downloadable media.
type MatchSession interface {
	// Match returns the first playable candidate for track, or [shared.ErrTrackNotFound].
	Match(ctx context.Context, track models.Track) (*models.Match, error)

	// Close releases the session and its cache.
	Close() error
}

var playlistIDRegex = regexp.MustCompile(`^[A-Za-z0-9]{10,40}$`)

// ExtractPlaylistID accepts a playlist URL (https://open.spotify.com/playlist/<id>?si=...),
// a spotify:playlist:<id> URI or a bare ID and returns the ID.
func ExtractPlaylistID(input string) (string, error) {
	input = strings.TrimSpace(input)

	if rest, ok := strings.CutPrefix(input, "spotify:playlist:"); ok {
		input = rest
	} else if strings.Contains(input, "://") {
		u, err := url.Parse(input)
		if err != nil {
			return "", fmt.Errorf("%w: %q", shared.ErrInvalidArgument, input)
		}

		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		input = ""
		for i := 0; i < len(segments)-1; i++ {
			if segments[i] == "playlist" {
				input = segments[i+1]
				break
			}
		}
	}

	if !playlistIDRegex.MatchString(input) {
		return "", fmt.Errorf("%w: not a playlist URL or ID: %q", shared.ErrInvalidArgument, input)
	}
	return input, nil
}

// TrackIDFromURI converts spotify:track:<id> (or a bare id) into the stored track identifier "/track/<id>".
func TrackIDFromURI(uri string) string {
	id := uri
	if i := strings.LastIndex(uri, ":"); i >= 0 {
		id = uri[i+1:]
	}
	if id == "" {
		return ""
	}
	return "/track/" + id
}

// TrackURL returns the public URL of a stored track identifier.
func TrackURL(trackID string) string {
	return trackURLPrefix + strings.TrimPrefix(trackID, "/track/")
}
