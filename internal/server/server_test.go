package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/peanuz/playlist-sync/internal/models"
	"github.com/peanuz/playlist-sync/internal/repositories"
	"github.com/peanuz/playlist-sync/internal/shared"
	th "github.com/peanuz/playlist-sync/internal/testing"
)

type fakeRuns struct {
	runs     []*models.SyncRun
	criteria map[string]any
}

func (f *fakeRuns) Get(id string) (*models.SyncRun, error) {
	for _, r := range f.runs {
		if r.ID() == id {
			return r, nil
		}
	}
	return nil, shared.ErrRunNotFound
}

func (f *fakeRuns) List(criteria map[string]any) ([]*models.SyncRun, error) {
	f.criteria = criteria
	return f.runs, nil
}

func newTestServer(t *testing.T, runs RunSource) (*Server, *repositories.SnapshotStore) {
	t.Helper()
	store := repositories.NewSnapshotStore(t.TempDir())
	if err := store.Save(th.NewSnapshot("abc", th.NewTracks("a", 2)...)); err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}
	return New("127.0.0.1:0", store, runs, log.New(io.Discard)), store
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("%s: response is not JSON: %v (%q)", path, err, rec.Body.String())
	}
	return rec, body
}

func TestHandlers(t *testing.T) {
	run := models.NewSyncRun("abc", false)
	run.SetID("run-1")
	run.Status = models.RunSynced
	runs := &fakeRuns{runs: []*models.SyncRun{run}}
	srv, _ := newTestServer(t, runs)
	h := srv.Handler()

	t.Run("health", func(t *testing.T) {
		rec, body := get(t, h, "/health")
		if rec.Code != http.StatusOK || body["status"] != "ok" || body["history"] != true {
			t.Errorf("unexpected health response %d %v", rec.Code, body)
		}
	})

	t.Run("playlists", func(t *testing.T) {
		rec, body := get(t, h, "/api/playlists")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		list := body["playlists"].([]any)
		if len(list) != 1 {
			t.Fatalf("expected one playlist, got %d", len(list))
		}
		first := list[0].(map[string]any)
		if first["playlistId"] != "abc" || first["trackCount"].(float64) != 2 {
			t.Errorf("unexpected summary %v", first)
		}
	})

	t.Run("playlist", func(t *testing.T) {
		rec, body := get(t, h, "/api/playlists/abc")
		if rec.Code != http.StatusOK || len(body["tracks"].([]any)) != 2 {
			t.Errorf("unexpected response %d %v", rec.Code, body)
		}
	})

	t.Run("playlist not found", func(t *testing.T) {
		rec, body := get(t, h, "/api/playlists/nope")
		if rec.Code != http.StatusNotFound || body["error"] == nil {
			t.Errorf("expected 404 with error, got %d %v", rec.Code, body)
		}
	})

	t.Run("runs with filters", func(t *testing.T) {
		rec, body := get(t, h, "/api/runs?playlist=abc&limit=500&status=synced")
		if rec.Code != http.StatusOK || len(body["runs"].([]any)) != 1 {
			t.Fatalf("unexpected response %d %v", rec.Code, body)
		}
		if runs.criteria["limit"] != maxRunLimit || runs.criteria["playlist_id"] != "abc" || runs.criteria["status"] != models.RunSynced {
			t.Errorf("unexpected criteria %v", runs.criteria)
		}
	})

	t.Run("runs rejects bad limit", func(t *testing.T) {
		rec, _ := get(t, h, "/api/runs?limit=zero")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("run", func(t *testing.T) {
		rec, body := get(t, h, "/api/runs/run-1")
		if rec.Code != http.StatusOK || body["id"] != "run-1" || body["status"] != "synced" {
			t.Errorf("unexpected response %d %v", rec.Code, body)
		}

		rec, _ = get(t, h, "/api/runs/missing")
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/playlists", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})
}

func TestHistoryDisabled(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec, body := get(t, srv.Handler(), "/api/runs")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if body["error"] != "run history is disabled" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestMiddleware(t *testing.T) {
	t.Run("Recover", func(t *testing.T) {
		router := NewBasicRouter()
		router.Use(Recover(log.New(io.Discard)))
		router.HandleFunc(http.MethodGet, "/boom", func(http.ResponseWriter, *http.Request) {
			panic("boom")
		})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
	})

	t.Run("order", func(t *testing.T) {
		var order []string
		mark := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		router := NewBasicRouter()
		router.Use(mark("first"), mark("second"))
		router.HandleFunc(http.MethodGet, "/", func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		})
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "handler" {
			t.Errorf("unexpected order %v", order)
		}
	})

	t.Run("Logging records status", func(t *testing.T) {
		rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
		rec.Write([]byte("ok"))
		if rec.status != http.StatusOK || rec.bytes != 2 {
			t.Errorf("unexpected recorder state %d/%d", rec.status, rec.bytes)
		}
	})
}

func TestServe(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
