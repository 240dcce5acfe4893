// Spotify web-player implementation of [CatalogService]
//
// Playlists are read through the partner GraphQL endpoint used by open.spotify.com,
// authenticated with an anonymous access token and a client token.
package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"github.com/peanuz/playlist-sync/internal/models"
	"github.com/peanuz/playlist-sync/internal/shared"
)

const (
	spotifyGraphQLURL    = "https://api-partner.spotify.com/pathfinder/v2/query"
	fetchPlaylistHash    = "837211ef46f604a73cd3d051f12ee63c81aca4ec6eb18e227b0629a7b36adad3"
	defaultPageSize      = 100
	defaultPlaylistName  = "Unknown Playlist"
	opFetchPlaylist      = "fetchPlaylist"
	opFetchPlaylistItems = "fetchPlaylistContents"
)

// SpotifyEndpoints overrides the remote URLs used by [SpotifyWebService]. Empty fields use the defaults.
type SpotifyEndpoints struct {
	Embed       string
	ClientToken string
	GraphQL     string
}

// SpotifyWebService fetches playlists through the web-player GraphQL API.
type SpotifyWebService struct {
	api      *APIClient
	access   *CredentialProvider
	client   *CredentialProvider
	endpoint string
	pageSize int
	logger   *log.Logger
}

// NewSpotifyWebService creates the default catalog backend.
func NewSpotifyWebService(api *APIClient, endpoints SpotifyEndpoints, logger *log.Logger) *SpotifyWebService {
	if endpoints.GraphQL == "" {
		endpoints.GraphQL = spotifyGraphQLURL
	}
	return &SpotifyWebService{
		api:      api,
		access:   NewCredentialProvider("spotify access token", NewAccessTokenFetcher(api, endpoints.Embed)),
		client:   NewCredentialProvider("spotify client token", NewClientTokenFetcher(api, endpoints.ClientToken)),
		endpoint: endpoints.GraphQL,
		pageSize: defaultPageSize,
		logger:   logger,
	}
}

func (s *SpotifyWebService) Name() string { return "spotify-web" }

// FetchPlaylist pages through the playlist until a short page is returned.
func (s *SpotifyWebService) FetchPlaylist(ctx context.Context, playlistID string) (*models.Snapshot, error) {
	snapshot := &models.Snapshot{PlaylistID: playlistID}

	for offset := 0; ; offset += s.pageSize {
		op := opFetchPlaylistItems
		if offset == 0 {
			op = opFetchPlaylist
		}

		body, err := s.query(ctx, op, map[string]any{
			"uri":                       "spotify:playlist:" + playlistID,
			"offset":                    offset,
			"limit":                     s.pageSize,
			"enableWatchFeedEntrypoint": false,
		})
		if err != nil {
			return nil, err
		}

		page, err := ParsePlaylistPage(body, s.pageSize)
		if err != nil {
			return nil, err
		}

		if snapshot.PlaylistName == "" {
			snapshot.PlaylistName = page.Name
		}
		if snapshot.PlaylistImage == "" {
			snapshot.PlaylistImage = page.Image
		}
		snapshot.Tracks = append(snapshot.Tracks, page.Tracks...)

		if !page.HasMore {
			break
		}
		s.logger.Debug("loaded playlist page", "playlist", playlistID, "tracks", len(snapshot.Tracks))
	}

	if snapshot.PlaylistName == "" {
		snapshot.PlaylistName = defaultPlaylistName
	}
	snapshot.Renumber()
	return snapshot, nil
}

// query posts a persisted GraphQL query. A 401 invalidates both credentials and is retried once.
func (s *SpotifyWebService) query(ctx context.Context, operation string, variables map[string]any) ([]byte, error) {
	payload := map[string]any{
		"variables":     variables,
		"operationName": operation,
		"extensions": map[string]any{
			"persistedQuery": map[string]any{"version": 1, "sha256Hash": fetchPlaylistHash},
		},
	}

	for attempt := 0; ; attempt++ {
		headers, err := s.headers(ctx)
		if err != nil {
			return nil, err
		}

		resp, err := s.api.PostJSON(ctx, s.endpoint, headers, payload)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			s.logger.Warn("spotify credentials rejected, refreshing", "operation", operation)
			s.access.Invalidate()
			s.client.Invalidate()
			continue
		}
		if err := resp.Err("spotify graphql"); err != nil {
			return nil, err
		}
		return resp.Body, nil
	}
}

func (s *SpotifyWebService) headers(ctx context.Context) (map[string]string, error) {
	access, err := s.access.Token(ctx)
	if err != nil {
		return nil, err
	}
	client, err := s.client.Token(ctx)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"Authorization":       "Bearer " + access.AccessToken,
		"client-token":        client.AccessToken,
		"Content-Type":        "application/json;charset=UTF-8",
		"Accept":              "application/json",
		"app-platform":        "WebPlayer",
		"spotify-app-version": spotifyClientVersion,
		"accept-language":     "en",
		"Referer":             spotifyOrigin + "/",
		"Origin":              spotifyOrigin,
	}, nil
}

// PlaylistPage is one page of a GraphQL playlist response.
type PlaylistPage struct {
	Name    string
	Image   string
	Tracks  []models.Track
	HasMore bool
}

// ParsePlaylistPage parses a fetchPlaylist/fetchPlaylistContents response.
//
// Only items of type Track are kept. HasMore is set when the page is full.
// Positions are left to the caller.
func ParsePlaylistPage(body []byte, limit int) (*PlaylistPage, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: graphql response is not JSON", shared.ErrMalformedResponse)
	}

	root := gjson.ParseBytes(body)
	if errs := root.Get("errors"); errs.IsArray() && len(errs.Array()) > 0 {
		return nil, fmt.Errorf("%w: graphql errors: %s", shared.ErrAPIRequest, errs.Raw)
	}

	playlist := root.Get("data.playlistV2")
	if !playlist.IsObject() || playlist.Get("__typename").String() == "NotFound" {
		return nil, shared.ErrPlaylistNotFound
	}

	content := playlist.Get("content.items")
	if content.Exists() && !content.IsArray() {
		return nil, fmt.Errorf("%w: content.items is not a list", shared.ErrMalformedResponse)
	}
	items := content.Array()

	tracks := lo.FilterMap(items, func(item gjson.Result, _ int) (models.Track, bool) {
		data := item.Get("itemV2.data")
		if data.Get("__typename").String() != "Track" {
			return models.Track{}, false
		}

		id := TrackIDFromURI(data.Get("uri").String())
		if id == "" {
			return models.Track{}, false
		}

		artists := lo.FilterMap(data.Get("artists.items").Array(), func(a gjson.Result, _ int) (string, bool) {
			name := a.Get("profile.name").String()
			return name, name != ""
		})

		track := models.Track{
			ID:      id,
			URL:     TrackURL(id),
			Artists: strings.Join(artists, ", "),
			Title:   data.Get("name").String(),
		}
		if track.Artists == "" {
			track.Artists = models.DefaultArtist
		}
		if track.Title == "" {
			track.Title = models.DefaultTitle
		}
		return track, true
	})

	return &PlaylistPage{
		Name:    playlist.Get("name").String(),
		Image:   bestImage(playlist),
		Tracks:  tracks,
		HasMore: limit > 0 && len(items) == limit,
	}, nil
}

type imageSource struct {
	url   string
	width int64
}

// bestImage returns the widest cover source across every image field of the playlist.
func bestImage(playlist gjson.Result) string {
	var sources []imageSource
	collect := func(list gjson.Result) {
		for _, src := range list.Array() {
			if u := src.Get("url").String(); u != "" {
				sources = append(sources, imageSource{url: u, width: src.Get("width").Int()})
			}
		}
	}

	for _, field := range []string{"images", "imagesV2", "galleryImages"} {
		for _, item := range playlist.Get(field + ".items").Array() {
			collect(item.Get("sources"))
		}
	}
	collect(playlist.Get("coverArt.sources"))
	collect(playlist.Get("image.sources"))

	if len(sources) == 0 {
		return ""
	}
	return lo.MaxBy(sources, func(a, b imageSource) bool { return a.width > b.width }).url
}
