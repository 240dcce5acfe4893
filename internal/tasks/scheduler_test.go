package tasks

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/peanuz/playlist-sync/internal/models"
	"github.com/peanuz/playlist-sync/internal/shared"
)

type fakeSyncer struct {
	mu     sync.Mutex
	calls  []string
	errs   map[string]error
	onCall func(n int)
}

func (f *fakeSyncer) Sync(ctx context.Context, id string, _ SyncOpts, _ chan<- ProgressUpdate) (*models.SyncRun, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	n := len(f.calls)
	err := f.errs[id]
	f.mu.Unlock()

	if f.onCall != nil {
		f.onCall(n)
	}

	run := models.NewSyncRun(id, false)
	if err != nil {
		run.Status = models.RunFailed
		return run, err
	}
	if ctx.Err() != nil {
		run.Status = models.RunCancelled
		return run, ctx.Err()
	}
	run.Status = models.RunSynced
	return run, nil
}

func (f *fakeSyncer) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestScheduler(t *testing.T) {
	logger := log.New(io.Discard)

	t.Run("RunOnce keeps going after a failure", func(t *testing.T) {
		syncer := &fakeSyncer{errs: map[string]error{"b": shared.ErrPlaylistNotFound}}
		s := NewScheduler(syncer, time.Hour, logger)

		var seen []models.RunStatus
		s.OnRun = func(run *models.SyncRun, _ error) { seen = append(seen, run.Status) }

		runs, err := s.RunOnce(context.Background(), []string{"a", "b", "c"})
		if !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected joined ErrPlaylistNotFound, got %v", err)
		}
		if len(runs) != 3 || !equalStrings(syncer.Calls(), []string{"a", "b", "c"}) {
			t.Errorf("expected all playlists in order, got %v", syncer.Calls())
		}
		if len(seen) != 3 || seen[1] != models.RunFailed {
			t.Errorf("unexpected callbacks %v", seen)
		}
	})

	t.Run("RunOnce stops when cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		syncer := &fakeSyncer{onCall: func(n int) {
			if n == 1 {
				cancel()
			}
		}}

		_, err := NewScheduler(syncer, time.Hour, logger).RunOnce(ctx, []string{"a", "b"})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if len(syncer.Calls()) != 1 {
			t.Errorf("expected the loop to stop after the first playlist, got %v", syncer.Calls())
		}
	})

	t.Run("requires playlists", func(t *testing.T) {
		s := NewScheduler(&fakeSyncer{}, time.Hour, logger)
		if _, err := s.RunOnce(context.Background(), nil); !errors.Is(err, shared.ErrNoPlaylists) {
			t.Errorf("expected ErrNoPlaylists, got %v", err)
		}
		if err := s.Run(context.Background(), nil); !errors.Is(err, shared.ErrNoPlaylists) {
			t.Errorf("expected ErrNoPlaylists, got %v", err)
		}
	})

	t.Run("Run repeats on the interval until cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		syncer := &fakeSyncer{onCall: func(n int) {
			if n == 3 {
				cancel()
			}
		}}

		done := make(chan error, 1)
		go func() { done <- NewScheduler(syncer, 5*time.Millisecond, logger).Run(ctx, []string{"a"}) }()

		select {
		case err := <-done:
			if err != nil {
				t.Errorf("expected nil on shutdown, got %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("scheduler did not stop")
		}
		if n := len(syncer.Calls()); n != 3 {
			t.Errorf("expected 3 passes, got %d", n)
		}
	})

	t.Run("Run rejects a zero interval", func(t *testing.T) {
		err := NewScheduler(&fakeSyncer{}, 0, logger).Run(context.Background(), []string{"a"})
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}
