// Official Spotify Web API implementation of [CatalogService]
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/samber/lo"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/peanuz/playlist-sync/internal/models"
	"github.com/peanuz/playlist-sync/internal/shared"
)

// SpotifyAPIService reads playlists with app credentials (client credentials flow).
type SpotifyAPIService struct {
	client *spotify.Client
	logger *log.Logger
}

// NewSpotifyAPIService authenticates with clientID/clientSecret. The returned client refreshes its token itself.
//
// baseURL overrides the Web API root and tokenURL the accounts endpoint; both may be empty.
func NewSpotifyAPIService(ctx context.Context, clientID, clientSecret, baseURL, tokenURL string, logger *log.Logger) (*SpotifyAPIService, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client id and secret are required for the api backend", shared.ErrMissingCredentials)
	}
	if tokenURL == "" {
		tokenURL = spotifyauth.TokenURL
	}

	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}

	opts := []spotify.ClientOption{}
	if baseURL != "" {
		opts = append(opts, spotify.WithBaseURL(strings.TrimSuffix(baseURL, "/")+"/"))
	}

	return &SpotifyAPIService{
		client: spotify.New(cfg.Client(ctx), opts...),
		logger: logger,
	}, nil
}

func (s *SpotifyAPIService) Name() string { return "spotify-api" }

func (s *SpotifyAPIService) FetchPlaylist(ctx context.Context, playlistID string) (*models.Snapshot, error) {
	playlist, err := s.client.GetPlaylist(ctx, spotify.ID(playlistID))
	if err != nil {
		return nil, classifySpotifyError(err)
	}

	snapshot := &models.Snapshot{
		PlaylistID:    playlistID,
		PlaylistName:  playlist.Name,
		PlaylistImage: widestImage(playlist.Images),
	}

	page, err := s.client.GetPlaylistItems(ctx, spotify.ID(playlistID), spotify.Limit(defaultPageSize))
	if err != nil {
		return nil, classifySpotifyError(err)
	}

	for {
		snapshot.Tracks = append(snapshot.Tracks, convertPlaylistItems(page.Items)...)

		err := s.client.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, classifySpotifyError(err)
		}
		s.logger.Debug("loaded playlist page", "playlist", playlistID, "tracks", len(snapshot.Tracks))
	}

	if snapshot.PlaylistName == "" {
		snapshot.PlaylistName = defaultPlaylistName
	}
	snapshot.Renumber()
	return snapshot, nil
}

// convertPlaylistItems keeps tracks only; episodes and unavailable entries are dropped.
func convertPlaylistItems(items []spotify.PlaylistItem) []models.Track {
	return lo.FilterMap(items, func(item spotify.PlaylistItem, _ int) (models.Track, bool) {
		t := item.Track.Track
		if t == nil || t.ID == "" {
			return models.Track{}, false
		}

		id := TrackIDFromURI(string(t.ID))
		artists := lo.FilterMap(t.Artists, func(a spotify.SimpleArtist, _ int) (string, bool) {
			return a.Name, a.Name != ""
		})

		track := models.Track{
			ID:      id,
			URL:     TrackURL(id),
			Artists: strings.Join(artists, ", "),
			Title:   t.Name,
		}
		if track.Artists == "" {
			track.Artists = models.DefaultArtist
		}
		if track.Title == "" {
			track.Title = models.DefaultTitle
		}
		return track, true
	})
}

func widestImage(images []spotify.Image) string {
	if len(images) == 0 {
		return ""
	}
	return lo.MaxBy(images, func(a, b spotify.Image) bool { return a.Width > b.Width }).URL
}

func classifySpotifyError(err error) error {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, apiErr.Message)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", shared.ErrAuthFailed, apiErr.Message)
		}
		return fmt.Errorf("%w: spotify API error: status %d: %s", shared.ErrAPIRequest, apiErr.Status, apiErr.Message)
	}
	return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
}
