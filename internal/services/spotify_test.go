package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tidwall/gjson"

	"github.com/peanuz/playlist-sync/internal/models"
	"github.com/peanuz/playlist-sync/internal/shared"
)

var testAccessToken = strings.Repeat("A", 64)

func embedHTML(token string) string {
	return `<html><head></head><body><script id="__NEXT_DATA__" type="application/json">` +
		`{"props":{"pageProps":{"state":{"settings":{"session":{"accessToken":"` + token +
		`","accessTokenExpirationTimestampMs":1893456000000}}}}}}</script></body></html>`
}

func trackItem(id, title string, artists ...string) string {
	names := make([]string, len(artists))
	for i, a := range artists {
		names[i] = fmt.Sprintf(`{"profile":{"name":%q}}`, a)
	}
	return fmt.Sprintf(`{"itemV2":{"data":{"__typename":"Track","uri":"spotify:track:%s","name":%q,"artists":{"items":[%s]}}}}`,
		id, title, strings.Join(names, ","))
}

func playlistPage(name string, items ...string) string {
	return fmt.Sprintf(`{"data":{"playlistV2":{"__typename":"Playlist","name":%q,`+
		`"images":{"items":[{"sources":[{"url":"https://img/small","width":60},{"url":"https://img/large","width":640}]}]},`+
		`"content":{"items":[%s]}}}}`, name, strings.Join(items, ","))
}

func TestParseAccessToken(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("Next Data Session", func(t *testing.T) {
		token, err := ParseAccessToken([]byte(embedHTML(testAccessToken)), now)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if token.AccessToken != testAccessToken {
			t.Errorf("unexpected token %s", token.AccessToken)
		}
		if !token.Expiry.Equal(time.UnixMilli(1893456000000)) {
			t.Errorf("expected expiry from session, got %v", token.Expiry)
		}
	})

	t.Run("Script Fallback", func(t *testing.T) {
		html := `<html><script>window.config = {"accessToken":"` + testAccessToken + `"};</script></html>`
		token, err := ParseAccessToken([]byte(html), now)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if token.AccessToken != testAccessToken {
			t.Errorf("unexpected token %s", token.AccessToken)
		}
		if !token.Expiry.Equal(now.Add(time.Hour)) {
			t.Errorf("expected one hour lifetime, got %v", token.Expiry)
		}
	})

	t.Run("Short Tokens Ignored", func(t *testing.T) {
		html := `<html><script>{"accessToken":"short"}</script></html>`
		if _, err := ParseAccessToken([]byte(html), now); !errors.Is(err, shared.ErrMalformedResponse) {
			t.Errorf("expected ErrMalformedResponse, got %v", err)
		}
	})
}

func TestParseClientToken(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	token, err := ParseClientToken([]byte(`{"granted_token":{"token":"client-abc","expires_after_seconds":60}}`), now)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if token.AccessToken != "client-abc" || !token.Expiry.Equal(now.Add(time.Minute)) {
		t.Errorf("unexpected token %+v", token)
	}

	token, err = ParseClientToken([]byte(`{"granted_token":{"token":"client-abc"}}`), now)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !token.Expiry.Equal(now.Add(1209600 * time.Second)) {
		t.Errorf("expected default lifetime, got %v", token.Expiry)
	}

	if _, err := ParseClientToken([]byte(`{"response_type":"RESPONSE_CHALLENGE"}`), now); !errors.Is(err, shared.ErrMalformedResponse) {
		t.Errorf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestParsePlaylistPage(t *testing.T) {
	t.Run("Tracks", func(t *testing.T) {
		body := playlistPage("Road Trip",
			trackItem("aaa", "First", "Artist A", "Artist B"),
			`{"itemV2":{"data":{"__typename":"Episode","uri":"spotify:episode:xyz","name":"Podcast"}}}`,
			trackItem("bbb", "", ""),
		)

		page, err := ParsePlaylistPage([]byte(body), 3)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if page.Name != "Road Trip" {
			t.Errorf("unexpected name %s", page.Name)
		}
		if page.Image != "https://img/large" {
			t.Errorf("expected widest image, got %s", page.Image)
		}
		if !page.HasMore {
			t.Error("expected HasMore for a full page")
		}
		if len(page.Tracks) != 2 {
			t.Fatalf("expected 2 tracks, got %d", len(page.Tracks))
		}

		first := page.Tracks[0]
		if first.ID != "/track/aaa" || first.URL != "https://open.spotify.com/track/aaa" {
			t.Errorf("unexpected identifiers %+v", first)
		}
		if first.Artists != "Artist A, Artist B" || first.Title != "First" {
			t.Errorf("unexpected display fields %+v", first)
		}

		second := page.Tracks[1]
		if second.Artists != models.DefaultArtist || second.Title != models.DefaultTitle {
			t.Errorf("expected defaults, got %+v", second)
		}
	})

	t.Run("Short Page", func(t *testing.T) {
		page, err := ParsePlaylistPage([]byte(playlistPage("x", trackItem("a", "t", "a"))), 100)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if page.HasMore {
			t.Error("expected no more pages")
		}
	})

	t.Run("Errors", func(t *testing.T) {
		tc := []struct {
			name string
			body string
			want error
		}{
			{name: "not json", body: "<html>", want: shared.ErrMalformedResponse},
			{name: "graphql errors", body: `{"errors":[{"message":"PersistedQueryNotFound"}]}`, want: shared.ErrAPIRequest},
			{name: "missing playlist", body: `{"data":{}}`, want: shared.ErrPlaylistNotFound},
			{name: "not found type", body: `{"data":{"playlistV2":{"__typename":"NotFound"}}}`, want: shared.ErrPlaylistNotFound},
			{name: "bad items", body: `{"data":{"playlistV2":{"content":{"items":"nope"}}}}`, want: shared.ErrMalformedResponse},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				if _, err := ParsePlaylistPage([]byte(tt.body), 100); !errors.Is(err, tt.want) {
					t.Errorf("expected %v, got %v", tt.want, err)
				}
			})
		}
	})
}

type spotifyFixture struct {
	server      *httptest.Server
	embedHits   atomic.Int32
	graphqlHits atomic.Int32
	rejectFirst bool
	pages       map[int]string
}

func newSpotifyFixture(t *testing.T) *spotifyFixture {
	t.Helper()
	f := &spotifyFixture{pages: map[int]string{}}

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/embed":
			f.embedHits.Add(1)
			w.Write([]byte(embedHTML(testAccessToken)))
		case "/clienttoken":
			w.Write([]byte(`{"granted_token":{"token":"client-token","expires_after_seconds":3600}}`))
		case "/graphql":
			hit := f.graphqlHits.Add(1)
			if f.rejectFirst && hit == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if r.Header.Get("Authorization") != "Bearer "+testAccessToken || r.Header.Get("client-token") != "client-token" {
				t.Errorf("missing credentials on graphql request")
			}

			body, _ := io.ReadAll(r.Body)
			offset := int(gjson.GetBytes(body, "variables.offset").Int())
			op := gjson.GetBytes(body, "operationName").String()
			if (offset == 0) != (op == "fetchPlaylist") {
				t.Errorf("unexpected operation %s at offset %d", op, offset)
			}
			w.Write([]byte(f.pages[offset]))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *spotifyFixture) service(pageSize int) *SpotifyWebService {
	svc := NewSpotifyWebService(NewAPIClient(f.server.Client(), nil), SpotifyEndpoints{
		Embed:       f.server.URL + "/embed",
		ClientToken: f.server.URL + "/clienttoken",
		GraphQL:     f.server.URL + "/graphql",
	}, log.New(io.Discard))
	svc.pageSize = pageSize
	return svc
}

func TestSpotifyWebService(t *testing.T) {
	t.Run("Paginates", func(t *testing.T) {
		f := newSpotifyFixture(t)
		f.pages[0] = playlistPage("Mix", trackItem("a", "A", "x"), trackItem("b", "B", "x"))
		f.pages[2] = playlistPage("Mix", trackItem("c", "C", "x"))

		snapshot, err := f.service(2).FetchPlaylist(context.Background(), "playlist123")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if snapshot.PlaylistID != "playlist123" || snapshot.PlaylistName != "Mix" {
			t.Errorf("unexpected snapshot attributes %+v", snapshot)
		}
		if snapshot.TrackCount != 3 {
			t.Fatalf("expected 3 tracks, got %d", snapshot.TrackCount)
		}
		if err := snapshot.Validate(); err != nil {
			t.Errorf("expected dense positions: %v", err)
		}
		if snapshot.Tracks[2].ID != "/track/c" || snapshot.Tracks[2].Position != 3 {
			t.Errorf("unexpected last track %+v", snapshot.Tracks[2])
		}
		if f.graphqlHits.Load() != 2 {
			t.Errorf("expected 2 page requests, got %d", f.graphqlHits.Load())
		}
		if f.embedHits.Load() != 1 {
			t.Errorf("expected access token to be cached, got %d fetches", f.embedHits.Load())
		}
	})

	t.Run("Retries Once On 401", func(t *testing.T) {
		f := newSpotifyFixture(t)
		f.rejectFirst = true
		f.pages[0] = playlistPage("Mix", trackItem("a", "A", "x"))

		snapshot, err := f.service(100).FetchPlaylist(context.Background(), "playlist123")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if snapshot.TrackCount != 1 {
			t.Errorf("expected 1 track, got %d", snapshot.TrackCount)
		}
		if f.embedHits.Load() != 2 {
			t.Errorf("expected credentials to be refreshed, got %d fetches", f.embedHits.Load())
		}
	})

	t.Run("Upstream Failure", func(t *testing.T) {
		f := newSpotifyFixture(t)
		_, err := f.service(100).FetchPlaylist(context.Background(), "playlist123")
		if !errors.Is(err, shared.ErrMalformedResponse) {
			t.Errorf("expected ErrMalformedResponse for empty body, got %v", err)
		}
	})

	t.Run("Name", func(t *testing.T) {
		f := newSpotifyFixture(t)
		if f.service(100).Name() != "spotify-web" {
			t.Error("unexpected backend name")
		}
	})
}
