package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestSnapshot(t *testing.T) {
	t.Run("Renumber", func(t *testing.T) {
		s := &Snapshot{PlaylistID: "p", Tracks: []Track{{ID: "a", Position: 7}, {ID: "b"}, {ID: "c", Position: 1}}}
		s.Renumber()

		for i, tr := range s.Tracks {
			if tr.Position != i+1 {
				t.Errorf("expected position %d for %s, got %d", i+1, tr.ID, tr.Position)
			}
		}
		if s.TrackCount != 3 {
			t.Errorf("expected track count 3, got %d", s.TrackCount)
		}
		if err := s.Validate(); err != nil {
			t.Errorf("renumbered snapshot should validate: %v", err)
		}
	})

	t.Run("Validate", func(t *testing.T) {
		tc := []struct {
			name    string
			s       Snapshot
			wantErr bool
		}{
			{name: "empty playlist is valid", s: Snapshot{PlaylistID: "p"}},
			{name: "missing playlist id", s: Snapshot{}, wantErr: true},
			{name: "gap", s: Snapshot{PlaylistID: "p", Tracks: []Track{{ID: "a", Position: 1}, {ID: "b", Position: 3}}}, wantErr: true},
			{name: "duplicate position", s: Snapshot{PlaylistID: "p", Tracks: []Track{{ID: "a", Position: 1}, {ID: "b", Position: 1}}}, wantErr: true},
			{name: "repeated track id", s: Snapshot{PlaylistID: "p", Tracks: []Track{{ID: "a", Position: 1}, {ID: "a", Position: 2}}}, wantErr: true},
			{name: "missing track id", s: Snapshot{PlaylistID: "p", Tracks: []Track{{Position: 1}}}, wantErr: true},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				err := tt.s.Validate()
				if (err != nil) != tt.wantErr {
					t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				}
			})
		}
	})

	t.Run("Clone is independent", func(t *testing.T) {
		s := &Snapshot{PlaylistID: "p", Tracks: []Track{{ID: "a", Position: 1}}}
		c := s.Clone()
		c.Tracks[0].Title = "changed"
		if s.Tracks[0].Title != "" {
			t.Error("clone shares track storage with original")
		}
	})

	t.Run("JSON field names", func(t *testing.T) {
		s := Snapshot{PlaylistID: "p", PlaylistName: "Mix", Tracks: []Track{{ID: "/track/x", Position: 1}}}
		data, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		for _, key := range []string{`"playlistId"`, `"playlistName"`, `"lastUpdate"`, `"trackCount"`, `"position"`, `"id"`} {
			if !strings.Contains(string(data), key) {
				t.Errorf("expected %s in %s", key, data)
			}
		}
	})
}

func TestNewPlaylistExport(t *testing.T) {
	s := &Snapshot{
		PlaylistID:   "p",
		PlaylistName: "Mix",
		Tracks:       []Track{{ID: "/track/x", Position: 1, Title: "T", Artists: "A", URL: "https://open.spotify.com/track/x"}},
	}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	export := NewPlaylistExport(s, at)
	if export.TrackCount != 1 || !export.ExportDate.Equal(at) {
		t.Errorf("unexpected export header %+v", export)
	}

	data, err := json.Marshal(export)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(data), `"id"`) {
		t.Errorf("export must not contain internal track ids: %s", data)
	}
	if !strings.Contains(string(data), `"exportDate"`) {
		t.Errorf("expected exportDate in %s", data)
	}
}

func TestTrack(t *testing.T) {
	tr := Track{Artists: "A, B", Title: "Song"}
	if tr.DisplayName() != "A, B - Song" {
		t.Errorf("unexpected display name %q", tr.DisplayName())
	}
	if tr.SearchQuery() != "A, B Song" {
		t.Errorf("unexpected query %q", tr.SearchQuery())
	}
}

func TestSyncRun(t *testing.T) {
	t.Run("Record counts outcomes", func(t *testing.T) {
		run := NewSyncRun("p", false)
		for _, o := range []TrackOutcome{OutcomeDownloaded, OutcomeDownloaded, OutcomeSkipped, OutcomeNotFound, OutcomeFailed, OutcomeTimedOut} {
			run.Record(NewTrackResult(Track{ID: "t"}, o))
		}

		if run.Downloaded != 2 || run.Skipped != 1 || run.NotFound != 1 || run.Failed != 2 {
			t.Errorf("unexpected counters %+v", run)
		}
		if len(run.Results) != 6 {
			t.Errorf("expected 6 results, got %d", len(run.Results))
		}
	})

	t.Run("Validate", func(t *testing.T) {
		run := NewSyncRun("p", false)
		if err := run.Validate(); err == nil {
			t.Error("expected error for missing status")
		}

		run.Status = RunSynced
		run.FinishedAt = run.StartedAt.Add(time.Second)
		if err := run.Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("MarshalJSON includes identity", func(t *testing.T) {
		run := NewSyncRun("p", true)
		run.SetID("run-1")
		run.SetSequence(4)

		data, err := json.Marshal(run)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if !strings.Contains(string(data), `"id":"run-1"`) || !strings.Contains(string(data), `"sequence":4`) {
			t.Errorf("unexpected JSON %s", data)
		}
	})
}
