package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// RunStatus is the final state of one playlist cycle.
type RunStatus string

const (
	RunUnchanged RunStatus = "unchanged" // no diff, nothing written
	RunSynced    RunStatus = "synced"    // snapshot written, every selected track handled
	RunPartial   RunStatus = "partial"   // snapshot written, some tracks failed or had no match
	RunFailed    RunStatus = "failed"    // metadata or state failure, nothing written
	RunCancelled RunStatus = "cancelled" // context cancelled, nothing written
)

// TrackOutcome is what happened to one track during a run.
type TrackOutcome string

const (
	OutcomeDownloaded TrackOutcome = "downloaded"
	OutcomeSkipped    TrackOutcome = "skipped"
	OutcomeNotFound   TrackOutcome = "not_found"
	OutcomeFailed     TrackOutcome = "failed"
	OutcomeTimedOut   TrackOutcome = "timed_out"
)

// SyncRun records one cycle of one playlist.
type SyncRun struct {
	id       string
	sequence int

	PlaylistID   string
	PlaylistName string
	Status       RunStatus
	Forced       bool
	Added        int
	Removed      int
	Moved        int
	Unchanged    int
	Downloaded   int
	Skipped      int
	NotFound     int
	Failed       int
	Error        string
	StartedAt    time.Time
	FinishedAt   time.Time
	Results      []*TrackResult
}

// NewSyncRun creates a run for playlistID starting now.
func NewSyncRun(playlistID string, forced bool) *SyncRun {
	return &SyncRun{PlaylistID: playlistID, Forced: forced, StartedAt: time.Now().UTC()}
}

func (r *SyncRun) ID() string           { return r.id }
func (r *SyncRun) SetID(id string)      { r.id = id }
func (r *SyncRun) Sequence() int        { return r.sequence }
func (r *SyncRun) SetSequence(seq int)  { r.sequence = seq }
func (r *SyncRun) CreatedAt() time.Time { return r.StartedAt }

// Validate checks required fields.
func (r *SyncRun) Validate() error {
	if r.PlaylistID == "" {
		return fmt.Errorf("run has no playlist ID")
	}
	switch r.Status {
	case RunUnchanged, RunSynced, RunPartial, RunFailed, RunCancelled:
	default:
		return fmt.Errorf("run has unknown status %q", r.Status)
	}
	if r.FinishedAt.Before(r.StartedAt) {
		return fmt.Errorf("run finished before it started")
	}
	return nil
}

// Record appends a track result and bumps the matching counter.
func (r *SyncRun) Record(res *TrackResult) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case OutcomeDownloaded:
		r.Downloaded++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeNotFound:
		r.NotFound++
	case OutcomeFailed, OutcomeTimedOut:
		r.Failed++
	}
}

// Duration returns how long the run took.
func (r *SyncRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

type syncRunJSON struct {
	ID           string         `json:"id"`
	Sequence     int            `json:"sequence"`
	PlaylistID   string         `json:"playlistId"`
	PlaylistName string         `json:"playlistName"`
	Status       RunStatus      `json:"status"`
	Forced       bool           `json:"forced"`
	Added        int            `json:"added"`
	Removed      int            `json:"removed"`
	Moved        int            `json:"moved"`
	Unchanged    int            `json:"unchanged"`
	Downloaded   int            `json:"downloaded"`
	Skipped      int            `json:"skipped"`
	NotFound     int            `json:"notFound"`
	Failed       int            `json:"failed"`
	Error        string         `json:"error,omitempty"`
	StartedAt    time.Time      `json:"startedAt"`
	FinishedAt   time.Time      `json:"finishedAt"`
	Results      []*TrackResult `json:"results,omitempty"`
}

// MarshalJSON includes the unexported identity fields.
func (r *SyncRun) MarshalJSON() ([]byte, error) {
	return json.Marshal(syncRunJSON{
		ID: r.id, Sequence: r.sequence,
		PlaylistID: r.PlaylistID, PlaylistName: r.PlaylistName, Status: r.Status, Forced: r.Forced,
		Added: r.Added, Removed: r.Removed, Moved: r.Moved, Unchanged: r.Unchanged,
		Downloaded: r.Downloaded, Skipped: r.Skipped, NotFound: r.NotFound, Failed: r.Failed,
		Error: r.Error, StartedAt: r.StartedAt, FinishedAt: r.FinishedAt, Results: r.Results,
	})
}

// TrackResult is the outcome of one track in a [SyncRun].
type TrackResult struct {
	ResultID  string       `json:"id"`
	RunID     string       `json:"runId"`
	Track     Track        `json:"track"`
	Outcome   TrackOutcome `json:"outcome"`
	VideoID   string       `json:"videoId,omitempty"`
	Path      string       `json:"path,omitempty"`
	Error     string       `json:"error,omitempty"`
	Timestamp time.Time    `json:"createdAt"`
}

// NewTrackResult creates a result for t with outcome.
func NewTrackResult(t Track, outcome TrackOutcome) *TrackResult {
	return &TrackResult{Track: t, Outcome: outcome, Timestamp: time.Now().UTC()}
}

func (r *TrackResult) ID() string           { return r.ResultID }
func (r *TrackResult) CreatedAt() time.Time { return r.Timestamp }

// Validate checks required fields.
func (r *TrackResult) Validate() error {
	if r.RunID == "" {
		return fmt.Errorf("track result has no run ID")
	}
	if r.Track.ID == "" {
		return fmt.Errorf("track result has no track ID")
	}
	if r.Outcome == "" {
		return fmt.Errorf("track result has no outcome")
	}
	return nil
}
