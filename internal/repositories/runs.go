package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/peanuz/playlist-sync/internal/models"
	"github.com/peanuz/playlist-sync/internal/shared"
)

// RunRepository implements models.Repository[*models.SyncRun] for sync run history.
//
// A run and its track results are written in one transaction.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts run and its track results with a generated ID and sequence.
func (r *RunRepository) Create(run *models.SyncRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "sync_runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := run.ID()
	if id == "" {
		id = shared.GenerateID()
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO sync_runs (id, sequence, playlist_id, playlist_name, status, forced, added, removed, moved, unchanged,
			downloaded, skipped, not_found, failed, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id, sequence, run.PlaylistID, run.PlaylistName, string(run.Status), run.Forced,
		run.Added, run.Removed, run.Moved, run.Unchanged,
		run.Downloaded, run.Skipped, run.NotFound, run.Failed, run.Error,
		run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO track_results (id, run_id, track_id, position, title, artists, outcome, video_id, path, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare track result insert: %w", err)
	}
	defer stmt.Close()

	resultIDs := make([]string, len(run.Results))
	for i, res := range run.Results {
		stored := *res
		stored.RunID = id
		if stored.ResultID == "" {
			stored.ResultID = shared.GenerateID()
		}
		if err := stored.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}

		_, err := stmt.Exec(stored.ResultID, stored.RunID, stored.Track.ID, stored.Track.Position, stored.Track.Title, stored.Track.Artists,
			string(stored.Outcome), stored.VideoID, stored.Path, stored.Error, stored.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to insert track result: %w", err)
		}
		resultIDs[i] = stored.ResultID
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	run.SetID(id)
	run.SetSequence(sequence)
	for i, res := range run.Results {
		res.ResultID = resultIDs[i]
		res.RunID = id
	}
	return nil
}

// Get retrieves a run by ID, including its track results
func (r *RunRepository) Get(id string) (*models.SyncRun, error) {
	run, err := scanRun(r.db.QueryRow(runSelect+" WHERE id = ?", id))
	if err != nil {
		return nil, err
	}

	results, err := r.Results(id)
	if err != nil {
		return nil, err
	}
	run.Results = results
	return run, nil
}

// List retrieves runs newest first.
//
// Supported criteria: "playlist_id" (string), "status" (string or [models.RunStatus]) and "limit" (int).
// Track results are not loaded.
func (r *RunRepository) List(criteria map[string]any) ([]*models.SyncRun, error) {
	query := runSelect + " WHERE 1 = 1"
	args := []any{}

	if playlistID, ok := criteria["playlist_id"].(string); ok && playlistID != "" {
		query += " AND playlist_id = ?"
		args = append(args, playlistID)
	}

	switch status := criteria["status"].(type) {
	case string:
		if status != "" {
			query += " AND status = ?"
			args = append(args, status)
		}
	case models.RunStatus:
		query += " AND status = ?"
		args = append(args, string(status))
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.SyncRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

// Latest returns the most recent run of playlistID.
func (r *RunRepository) Latest(playlistID string) (*models.SyncRun, error) {
	runs, err := r.List(map[string]any{"playlist_id": playlistID, "limit": 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: no runs recorded for playlist %s", shared.ErrRunNotFound, playlistID)
	}
	return runs[0], nil
}

// Results retrieves the track results of a run in insertion order.
func (r *RunRepository) Results(runID string) ([]*models.TrackResult, error) {
	rows, err := r.db.Query(`
		SELECT id, run_id, track_id, position, title, artists, outcome, video_id, path, error, created_at
		FROM track_results
		WHERE run_id = ?
		ORDER BY rowid ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query track results: %w", err)
	}
	defer rows.Close()

	var results []*models.TrackResult
	for rows.Next() {
		var (
			res     models.TrackResult
			outcome string
		)
		err := rows.Scan(&res.ResultID, &res.RunID, &res.Track.ID, &res.Track.Position, &res.Track.Title, &res.Track.Artists,
			&outcome, &res.VideoID, &res.Path, &res.Error, &res.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track result: %w", err)
		}
		res.Outcome = models.TrackOutcome(outcome)
		results = append(results, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return results, nil
}

const runSelect = `
	SELECT id, sequence, playlist_id, playlist_name, status, forced, added, removed, moved, unchanged,
		downloaded, skipped, not_found, failed, error, started_at, finished_at
	FROM sync_runs`

type scanner interface {
	Scan(dest ...any) error
}

// scanRun scans a [sql.Row] or [sql.Rows] into a [models.SyncRun]
func scanRun(row scanner) (*models.SyncRun, error) {
	var (
		id         string
		sequence   int
		status     string
		startedAt  time.Time
		finishedAt time.Time
		run        models.SyncRun
	)

	err := row.Scan(&id, &sequence, &run.PlaylistID, &run.PlaylistName, &status, &run.Forced,
		&run.Added, &run.Removed, &run.Moved, &run.Unchanged,
		&run.Downloaded, &run.Skipped, &run.NotFound, &run.Failed, &run.Error, &startedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.SetID(id)
	run.SetSequence(sequence)
	run.Status = models.RunStatus(status)
	run.StartedAt = startedAt
	run.FinishedAt = finishedAt
	return &run, nil
}
