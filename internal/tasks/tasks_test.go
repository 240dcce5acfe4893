package tasks

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/peanuz/playlist-sync/internal/audio"
	"github.com/peanuz/playlist-sync/internal/models"
	"github.com/peanuz/playlist-sync/internal/repositories"
	"github.com/peanuz/playlist-sync/internal/services"
	"github.com/peanuz/playlist-sync/internal/shared"
	th "github.com/peanuz/playlist-sync/internal/testing"
)

const testPlaylist = "pl1"

// sessionMatcher opens the same mock session every time.
type sessionMatcher struct {
	session *th.MockSession
	err     error
	opened  int
}

func (m *sessionMatcher) Open(context.Context) (services.MatchSession, error) {
	m.opened++
	if m.err != nil {
		return nil, m.err
	}
	m.session.Closed = false
	return m.session, nil
}

// fakeFetcher marks tracks as present instead of writing audio files.
type fakeFetcher struct {
	mu       sync.Mutex
	present  map[string]bool
	fetched  []string
	requests []audio.FetchRequest
	errs     map[string]error
	hook     func(ctx context.Context, req audio.FetchRequest) error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{present: map[string]bool{}, errs: map[string]error{}}
}

func (f *fakeFetcher) Exists(playlistID string, t models.Track) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.present[playlistID+t.ID]
}

func (f *fakeFetcher) Fetch(ctx context.Context, req audio.FetchRequest) (*audio.Artifact, error) {
	if f.hook != nil {
		if err := f.hook(ctx, req); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err, ok := f.errs[req.Track.ID]; ok {
		return nil, err
	}
	f.present[req.PlaylistID+req.Track.ID] = true
	f.fetched = append(f.fetched, req.Track.ID)
	return &audio.Artifact{Path: "/music/" + req.Track.ID, VideoID: req.Match.VideoID}, nil
}

type fakeRecorder struct {
	runs []*models.SyncRun
	err  error
}

func (r *fakeRecorder) Create(run *models.SyncRun) error {
	if err := run.Validate(); err != nil {
		return err
	}
	if r.err != nil {
		return r.err
	}
	r.runs = append(r.runs, run)
	return nil
}

type fakeCovers struct {
	path string
	err  error
}

func (c *fakeCovers) Ensure(context.Context, string, string) (string, error) {
	return c.path, c.err
}

type harness struct {
	dir      string
	store    *repositories.SnapshotStore
	catalog  *th.MockCatalog
	session  *th.MockSession
	matcher  *sessionMatcher
	fetcher  *fakeFetcher
	recorder *fakeRecorder
	engine   *SyncEngine
	sleeps   []time.Duration
}

func newHarness(t *testing.T, tracks ...models.Track) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		dir:      dir,
		store:    repositories.NewSnapshotStore(filepath.Join(dir, "data")),
		catalog:  th.NewMockCatalog(th.NewSnapshot(testPlaylist, tracks...)),
		session:  th.NewMockSession(),
		fetcher:  newFakeFetcher(),
		recorder: &fakeRecorder{},
	}
	h.matcher = &sessionMatcher{session: h.session}
	h.engine = NewSyncEngine(h.store, h.catalog, h.matcher, h.fetcher, log.New(io.Discard),
		WithRunRecorder(h.recorder),
		WithExportDir(filepath.Join(dir, "playlists")),
		WithDelay(2*time.Second, 3*time.Second),
	)
	h.engine.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	}
	return h
}

func (h *harness) snapshotPath() string { return h.store.Path(testPlaylist) }

func (h *harness) sync(t *testing.T, opts SyncOpts) (*models.SyncRun, error) {
	t.Helper()
	return h.engine.Sync(context.Background(), testPlaylist, opts, nil)
}

func TestSyncEngine(t *testing.T) {
	t.Run("first run fetches every track and persists", func(t *testing.T) {
		h := newHarness(t, th.NewTracks("a", 3)...)

		run, err := h.sync(t, SyncOpts{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if run.Status != models.RunSynced || run.Downloaded != 3 || run.Added != 3 {
			t.Errorf("unexpected run %+v", run)
		}
		if want := []string{"/track/a1", "/track/a2", "/track/a3"}; !equalStrings(h.fetcher.fetched, want) {
			t.Errorf("expected position order %v, got %v", want, h.fetcher.fetched)
		}
		if len(h.sleeps) != 2 {
			t.Errorf("expected a delay between each of 3 downloads, got %d", len(h.sleeps))
		}
		for _, d := range h.sleeps {
			if d < 2*time.Second || d > 3*time.Second {
				t.Errorf("delay %v outside [2s, 3s]", d)
			}
		}

		saved, err := h.store.Load(testPlaylist)
		if err != nil {
			t.Fatalf("snapshot not persisted: %v", err)
		}
		if saved.TrackCount != 3 || saved.LastUpdate.IsZero() {
			t.Errorf("unexpected snapshot %+v", saved)
		}
		th.AssertFileExists(t, filepath.Join(h.dir, "playlists", testPlaylist+".json"))

		if len(h.recorder.runs) != 1 || h.recorder.runs[0] != run {
			t.Errorf("expected run to be recorded, got %d", len(h.recorder.runs))
		}
		if !h.session.Closed {
			t.Error("match session should be closed")
		}
	})

	t.Run("second run without changes is a no-op", func(t *testing.T) {
		h := newHarness(t, th.NewTracks("a", 3)...)
		if _, err := h.sync(t, SyncOpts{}); err != nil {
			t.Fatalf("first sync failed: %v", err)
		}
		before := th.MustReadFile(t, h.snapshotPath())
		fetched := len(h.fetcher.fetched)

		run, err := h.sync(t, SyncOpts{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if run.Status != models.RunUnchanged || run.Unchanged != 3 {
			t.Errorf("expected unchanged run, got %+v", run)
		}
		if len(h.fetcher.fetched) != fetched {
			t.Error("no-op cycle must not download")
		}
		if after := th.MustReadFile(t, h.snapshotPath()); after != before {
			t.Error("no-op cycle must not rewrite the snapshot")
		}
		if len(h.recorder.runs) != 2 {
			t.Errorf("no-op cycles are recorded too, got %d runs", len(h.recorder.runs))
		}
	})

	t.Run("repeated track keeps the first position and stays a no-op", func(t *testing.T) {
		tracks := th.NewTracks("a", 2)
		h := newHarness(t, tracks[0], tracks[1], tracks[0])

		run, err := h.sync(t, SyncOpts{})
		if err != nil {
			t.Fatalf("first sync failed: %v", err)
		}
		if run.Added != 2 || run.Downloaded != 2 {
			t.Errorf("expected the repeated track once, got %+v", run)
		}
		saved, err := h.store.Load(testPlaylist)
		if err != nil {
			t.Fatalf("snapshot not persisted: %v", err)
		}
		if len(saved.Tracks) != 2 || saved.Tracks[0].ID != tracks[0].ID || saved.Tracks[1].Position != 2 {
			t.Errorf("unexpected stored tracks %+v", saved.Tracks)
		}
		before := th.MustReadFile(t, h.snapshotPath())

		run, err = h.sync(t, SyncOpts{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if run.Status != models.RunUnchanged || run.Moved != 0 || run.Unchanged != 2 {
			t.Errorf("expected unchanged run, got %+v", run)
		}
		if after := th.MustReadFile(t, h.snapshotPath()); after != before {
			t.Error("no-op cycle must not rewrite the snapshot")
		}
	})

	t.Run("incremental run fetches only added tracks", func(t *testing.T) {
		initial := th.NewTracks("a", 3)
		h := newHarness(t, initial...)
		if _, err := h.sync(t, SyncOpts{}); err != nil {
			t.Fatalf("first sync failed: %v", err)
		}

		added := th.NewTracks("b", 1)[0]
		h.catalog.Set(th.NewSnapshot(testPlaylist, added, initial[0], initial[2]))
		h.fetcher.fetched = nil

		run, err := h.sync(t, SyncOpts{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !equalStrings(h.fetcher.fetched, []string{"/track/b1"}) {
			t.Errorf("expected only the added track, got %v", h.fetcher.fetched)
		}
		if run.Added != 1 || run.Removed != 1 || run.Moved != 1 || run.Unchanged != 1 {
			t.Errorf("unexpected diff counters %+v", run)
		}

		saved, _ := h.store.Load(testPlaylist)
		if saved.Tracks[0].ID != "/track/b1" || saved.TrackCount != 3 {
			t.Errorf("snapshot not replaced: %+v", saved.Tracks)
		}
	})

	t.Run("skips existing artifacts without opening a session", func(t *testing.T) {
		h := newHarness(t, th.NewTracks("a", 2)...)
		h.fetcher.present[testPlaylist+"/track/a1"] = true
		h.fetcher.present[testPlaylist+"/track/a2"] = true

		run, err := h.sync(t, SyncOpts{Force: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if run.Skipped != 2 || run.Downloaded != 0 || run.Status != models.RunSynced {
			t.Errorf("unexpected run %+v", run)
		}
		if h.matcher.opened != 0 {
			t.Error("session should not be opened when nothing needs fetching")
		}
		if len(h.sleeps) != 0 {
			t.Error("skipped tracks must not be delayed")
		}
	})

	t.Run("missing matches make a partial run that still persists", func(t *testing.T) {
		h := newHarness(t, th.NewTracks("a", 3)...)
		h.session.Missing["/track/a2"] = true
		h.fetcher.errs["/track/a3"] = shared.ErrDownloadFailed

		run, err := h.sync(t, SyncOpts{})
		if err != nil {
			t.Fatalf("per-track failures must not fail the cycle: %v", err)
		}

		if run.Status != models.RunPartial || run.Downloaded != 1 || run.NotFound != 1 || run.Failed != 1 {
			t.Errorf("unexpected run %+v", run)
		}
		outcomes := map[string]models.TrackOutcome{}
		for _, res := range run.Results {
			outcomes[res.Track.ID] = res.Outcome
		}
		if outcomes["/track/a2"] != models.OutcomeNotFound || outcomes["/track/a3"] != models.OutcomeFailed {
			t.Errorf("unexpected outcomes %v", outcomes)
		}
		th.AssertFileExists(t, h.snapshotPath())
	})

	t.Run("metadata failure leaves state untouched", func(t *testing.T) {
		h := newHarness(t, th.NewTracks("a", 2)...)
		if _, err := h.sync(t, SyncOpts{}); err != nil {
			t.Fatalf("first sync failed: %v", err)
		}
		before := th.MustReadFile(t, h.snapshotPath())

		h.catalog.Err = shared.ErrServiceUnavailable
		run, err := h.sync(t, SyncOpts{})
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Fatalf("expected ErrServiceUnavailable, got %v", err)
		}
		if run.Status != models.RunFailed || run.Error == "" {
			t.Errorf("expected failed run, got %+v", run)
		}
		if after := th.MustReadFile(t, h.snapshotPath()); after != before {
			t.Error("snapshot must be byte-identical after a metadata failure")
		}
	})

	t.Run("empty fetch is a metadata failure", func(t *testing.T) {
		h := newHarness(t, th.NewTracks("a", 2)...)
		if _, err := h.sync(t, SyncOpts{}); err != nil {
			t.Fatalf("first sync failed: %v", err)
		}

		h.catalog.Set(th.NewSnapshot(testPlaylist))
		_, err := h.sync(t, SyncOpts{})
		if !errors.Is(err, shared.ErrEmptyPlaylist) {
			t.Fatalf("expected ErrEmptyPlaylist, got %v", err)
		}

		saved, _ := h.store.Load(testPlaylist)
		if saved.TrackCount != 2 {
			t.Error("empty fetch must not wipe the stored snapshot")
		}
	})

	t.Run("corrupt state fails unless forced", func(t *testing.T) {
		h := newHarness(t, th.NewTracks("a", 1)...)
		os.MkdirAll(h.store.Dir(), 0755)
		th.MustWriteFile(t, h.snapshotPath(), "{not json")

		run, err := h.sync(t, SyncOpts{})
		if !errors.Is(err, shared.ErrCorruptSnapshot) {
			t.Fatalf("expected ErrCorruptSnapshot, got %v", err)
		}
		if run.Status != models.RunFailed || h.catalog.Calls() != 0 {
			t.Errorf("corrupt state must fail before fetching, got %+v", run)
		}

		if _, err := h.sync(t, SyncOpts{Force: true}); err != nil {
			t.Fatalf("forced resync should recover: %v", err)
		}
		if _, err := h.store.Load(testPlaylist); err != nil {
			t.Errorf("expected a valid snapshot after forced resync: %v", err)
		}
	})

	t.Run("cancellation does not persist", func(t *testing.T) {
		h := newHarness(t, th.NewTracks("a", 3)...)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		h.fetcher.hook = func(_ context.Context, req audio.FetchRequest) error {
			if req.Track.ID == "/track/a2" {
				cancel()
				return context.Canceled
			}
			return nil
		}

		run, err := h.engine.Sync(ctx, testPlaylist, SyncOpts{}, nil)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if run.Status != models.RunCancelled || run.Downloaded != 1 {
			t.Errorf("unexpected run %+v", run)
		}
		th.AssertNoFile(t, h.snapshotPath())
		if len(h.recorder.runs) != 1 {
			t.Error("cancelled runs are recorded")
		}
	})

	t.Run("per-track timeout", func(t *testing.T) {
		h := newHarness(t, th.NewTracks("a", 2)...)
		WithTrackTimeout(20 * time.Millisecond)(h.engine)
		h.fetcher.hook = func(ctx context.Context, req audio.FetchRequest) error {
			if req.Track.ID == "/track/a1" {
				<-ctx.Done()
				return ctx.Err()
			}
			return nil
		}

		run, err := h.sync(t, SyncOpts{})
		if err != nil {
			t.Fatalf("timeouts are per-track outcomes: %v", err)
		}
		if run.Results[0].Outcome != models.OutcomeTimedOut || run.Results[1].Outcome != models.OutcomeDownloaded {
			t.Errorf("unexpected outcomes %s, %s", run.Results[0].Outcome, run.Results[1].Outcome)
		}
		if run.Status != models.RunPartial {
			t.Errorf("expected partial, got %s", run.Status)
		}
	})

	t.Run("session failure aborts without persisting", func(t *testing.T) {
		h := newHarness(t, th.NewTracks("a", 1)...)
		h.matcher.err = shared.ErrMissingCookies

		run, err := h.sync(t, SyncOpts{})
		if !errors.Is(err, shared.ErrMissingCookies) {
			t.Fatalf("expected ErrMissingCookies, got %v", err)
		}
		if run.Status != models.RunFailed {
			t.Errorf("expected failed, got %s", run.Status)
		}
		th.AssertNoFile(t, h.snapshotPath())
	})

	t.Run("cover path is stored and used for tagging", func(t *testing.T) {
		h := newHarness(t, th.NewTracks("a", 1)...)
		snapshot := th.NewSnapshot(testPlaylist, th.NewTracks("a", 1)...)
		snapshot.PlaylistImage = "https://i.scdn.co/image/x"
		h.catalog.Set(snapshot)
		WithCovers(&fakeCovers{path: "covers/pl1.jpg"})(h.engine)

		if _, err := h.sync(t, SyncOpts{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if h.fetcher.requests[0].CoverPath != "covers/pl1.jpg" {
			t.Errorf("expected cover for tagging, got %q", h.fetcher.requests[0].CoverPath)
		}
		saved, _ := h.store.Load(testPlaylist)
		if saved.PlaylistImagePath != "covers/pl1.jpg" {
			t.Errorf("expected cover path in snapshot, got %q", saved.PlaylistImagePath)
		}
	})

	t.Run("history failure is not fatal", func(t *testing.T) {
		h := newHarness(t, th.NewTracks("a", 1)...)
		h.recorder.err = errors.New("database is locked")

		if _, err := h.sync(t, SyncOpts{}); err != nil {
			t.Errorf("history failures are logged only: %v", err)
		}
	})

	t.Run("progress phases", func(t *testing.T) {
		h := newHarness(t, th.NewTracks("a", 1)...)
		progress := make(chan ProgressUpdate, 32)

		if _, err := h.engine.Sync(context.Background(), testPlaylist, SyncOpts{}, progress); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		close(progress)

		var phases []Phase
		for u := range progress {
			if len(phases) == 0 || phases[len(phases)-1] != u.Phase {
				phases = append(phases, u.Phase)
			}
		}
		want := []Phase{FetchingMetadata, Diffing, Downloading, Persisting, Complete}
		if len(phases) != len(want) {
			t.Fatalf("expected %v, got %v", want, phases)
		}
		for i := range want {
			if phases[i] != want[i] {
				t.Errorf("phase %d: expected %s, got %s", i, want[i], phases[i])
			}
		}
	})
}

func TestCompareAndScrape(t *testing.T) {
	t.Run("Compare never writes", func(t *testing.T) {
		h := newHarness(t, th.NewTracks("a", 2)...)

		plan, err := h.engine.Compare(context.Background(), testPlaylist, SyncOpts{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !plan.FirstRun() || len(plan.Pending) != 2 || len(plan.Diff.Added) != 2 {
			t.Errorf("unexpected plan %+v", plan)
		}
		th.AssertNoFile(t, h.snapshotPath())
	})

	t.Run("Scrape persists without downloading", func(t *testing.T) {
		h := newHarness(t, th.NewTracks("a", 2)...)

		plan, err := h.engine.Scrape(context.Background(), testPlaylist, SyncOpts{}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if plan.Unchanged() {
			t.Error("first scrape is not a no-op")
		}
		if len(h.fetcher.fetched) != 0 {
			t.Error("scrape must not download")
		}
		th.AssertFileExists(t, h.snapshotPath())

		again, err := h.engine.Scrape(context.Background(), testPlaylist, SyncOpts{}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !again.Unchanged() {
			t.Error("second scrape should be a no-op")
		}
	})

	t.Run("Download uses the stored snapshot", func(t *testing.T) {
		h := newHarness(t, th.NewTracks("a", 2)...)

		if _, err := h.engine.Download(context.Background(), testPlaylist, nil); !errors.Is(err, shared.ErrNoSnapshot) {
			t.Fatalf("expected ErrNoSnapshot, got %v", err)
		}

		if _, err := h.engine.Scrape(context.Background(), testPlaylist, SyncOpts{}, nil); err != nil {
			t.Fatalf("scrape failed: %v", err)
		}
		h.fetcher.present[testPlaylist+"/track/a1"] = true

		run, err := h.engine.Download(context.Background(), testPlaylist, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if run.Skipped != 1 || run.Downloaded != 1 || h.catalog.Calls() != 1 {
			t.Errorf("unexpected run %+v (catalog calls %d)", run, h.catalog.Calls())
		}
	})
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if err := sleepContext(context.Background(), 0); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
