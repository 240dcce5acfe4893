package tasks

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/charmbracelet/log"
	"github.com/samber/lo"

	"github.com/peanuz/playlist-sync/internal/audio"
	"github.com/peanuz/playlist-sync/internal/formatter"
	"github.com/peanuz/playlist-sync/internal/models"
	"github.com/peanuz/playlist-sync/internal/services"
	"github.com/peanuz/playlist-sync/internal/shared"
)

const (
	DefaultMinDelay     = 2 * time.Second
	DefaultMaxDelay     = 3 * time.Second
	DefaultTrackTimeout = 10 * time.Minute
)

// SnapshotStore loads and saves the last persisted snapshot of a playlist.
type SnapshotStore interface {
	Load(playlistID string) (*models.Snapshot, error)
	Save(snapshot *models.Snapshot) error
}

// Fetcher turns a matched track into a local artifact. Implemented by [audio.Pipeline].
type Fetcher interface {
	Exists(playlistID string, t models.Track) bool
	Fetch(ctx context.Context, req audio.FetchRequest) (*audio.Artifact, error)
}

// CoverStore caches playlist cover art. Implemented by [services.CoverCache].
type CoverStore interface {
	Ensure(ctx context.Context, playlistID, imageURL string) (string, error)
}

// RunRecorder stores finished runs. Implemented by repositories.RunRepository.
type RunRecorder interface {
	Create(run *models.SyncRun) error
}

// SyncOpts controls one cycle.
type SyncOpts struct {
	Force bool // ignore the stored snapshot and fetch every track
}

// Plan is the outcome of fetching and diffing one playlist.
type Plan struct {
	Previous *models.Snapshot // nil on first run or forced resync
	Current  *models.Snapshot
	Diff     models.DiffResult
	Pending  []models.Track // tracks selected for fetching, in position order
}

// FirstRun reports whether there was no prior snapshot to diff against.
func (p *Plan) FirstRun() bool { return p.Previous == nil }

// Unchanged reports whether the cycle is a no-op.
func (p *Plan) Unchanged() bool { return p.Previous != nil && !p.Diff.HasChanges() }

// SyncEngine runs the per-playlist cycle: load, fetch, diff, download, persist.
//
// Playlists and tracks are processed sequentially. Only the snapshot of a cycle that
// reached Persisting is written; failed and cancelled cycles leave the stored state as is.
type SyncEngine struct {
	store   SnapshotStore
	catalog services.CatalogService
	matcher services.Matcher
	fetcher Fetcher
	covers  CoverStore
	runs    RunRecorder
	logger  *log.Logger

	exportDir    string
	minDelay     time.Duration
	maxDelay     time.Duration
	trackTimeout time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// EngineOption configures a [SyncEngine].
type EngineOption func(*SyncEngine)

// WithCovers caches cover art and embeds it into tagged files.
func WithCovers(c CoverStore) EngineOption {
	return func(e *SyncEngine) { e.covers = c }
}

// WithRunRecorder records every cycle.
func WithRunRecorder(r RunRecorder) EngineOption {
	return func(e *SyncEngine) { e.runs = r }
}

// WithExportDir writes the consumer export next to each persisted snapshot.
func WithExportDir(dir string) EngineOption {
	return func(e *SyncEngine) { e.exportDir = dir }
}

// WithDelay sets the jittered pause between downloads.
func WithDelay(minDelay, maxDelay time.Duration) EngineOption {
	return func(e *SyncEngine) {
		e.minDelay = max(minDelay, 0)
		e.maxDelay = max(maxDelay, e.minDelay)
	}
}

// WithTrackTimeout bounds the match and fetch of a single track.
func WithTrackTimeout(d time.Duration) EngineOption {
	return func(e *SyncEngine) {
		if d > 0 {
			e.trackTimeout = d
		}
	}
}

// NewSyncEngine creates a new SyncEngine with the provided collaborators.
func NewSyncEngine(
	store SnapshotStore,
	catalog services.CatalogService,
	matcher services.Matcher,
	fetcher Fetcher,
	logger *log.Logger,
	opts ...EngineOption,
) *SyncEngine {
	e := &SyncEngine{
		store:        store,
		catalog:      catalog,
		matcher:      matcher,
		fetcher:      fetcher,
		logger:       logger,
		minDelay:     DefaultMinDelay,
		maxDelay:     DefaultMaxDelay,
		trackTimeout: DefaultTrackTimeout,
		now:          time.Now,
		sleep:        sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compare fetches playlistID and diffs it against the stored snapshot without writing anything.
func (e *SyncEngine) Compare(ctx context.Context, playlistID string, opts SyncOpts) (*Plan, error) {
	if e.catalog == nil {
		return nil, fmt.Errorf("%w: catalog service not initialized", shared.ErrServiceUnavailable)
	}

	var previous *models.Snapshot
	if !opts.Force {
		prev, err := e.store.Load(playlistID)
		switch {
		case errors.Is(err, shared.ErrNoSnapshot):
		case err != nil:
			return nil, err
		default:
			previous = prev
		}
	}

	current, err := e.catalog.FetchPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	if len(current.Tracks) == 0 {
		return nil, fmt.Errorf("%w: %s", shared.ErrEmptyPlaylist, playlistID)
	}
	current.PlaylistID = playlistID
	if unique := lo.UniqBy(current.Tracks, func(t models.Track) string { return t.ID }); len(unique) != len(current.Tracks) {
		e.logger.Debug("dropping repeated tracks", "playlist", playlistID, "repeated", len(current.Tracks)-len(unique))
		current.Tracks = unique
	}
	current.Renumber()

	plan := &Plan{Previous: previous, Current: current}
	if previous == nil {
		plan.Diff = Diff(nil, current.Tracks)
		plan.Pending = current.Tracks
		return plan, nil
	}

	plan.Diff = Diff(previous.Tracks, current.Tracks)
	plan.Pending = plan.Diff.Added
	return plan, nil
}

// Scrape fetches and diffs playlistID and persists the snapshot, cover and export
// when anything changed. Nothing is downloaded.
func (e *SyncEngine) Scrape(ctx context.Context, playlistID string, opts SyncOpts, progress chan<- ProgressUpdate) (*Plan, error) {
	logger := e.logger.With("playlist", playlistID)

	sendProgress(progress, fetchingMetadataUpdate(playlistID))
	plan, err := e.Compare(ctx, playlistID, opts)
	if err != nil {
		e.fail(logger, progress, playlistID, "fetch", err)
		return nil, err
	}
	sendProgress(progress, diffingUpdate(plan.Current))

	if plan.Unchanged() {
		logger.Info("no changes", "tracks", len(plan.Current.Tracks))
		return plan, nil
	}

	e.attachCover(ctx, logger, plan.Current)

	sendProgress(progress, persistingUpdate(playlistID))
	if err := e.persist(logger, plan.Current); err != nil {
		e.fail(logger, progress, playlistID, "persist", err)
		return plan, err
	}
	return plan, nil
}

// Sync runs one full cycle of playlistID.
//
// The returned run is never nil. A cancelled context returns ctx.Err() and leaves the
// stored snapshot untouched; tracks already published stay on disk and are skipped next time.
func (e *SyncEngine) Sync(ctx context.Context, playlistID string, opts SyncOpts, progress chan<- ProgressUpdate) (*models.SyncRun, error) {
	logger := e.logger.With("playlist", playlistID)
	run := models.NewSyncRun(playlistID, opts.Force)
	run.StartedAt = e.now().UTC()
	defer e.record(logger, run)

	sendProgress(progress, fetchingMetadataUpdate(playlistID))
	plan, err := e.Compare(ctx, playlistID, opts)
	if err != nil {
		return run, e.finish(logger, progress, run, "fetch", err)
	}

	current := plan.Current
	run.PlaylistName = current.PlaylistName
	run.Added = len(plan.Diff.Added)
	run.Removed = len(plan.Diff.Removed)
	run.Moved = len(plan.Diff.Moved)
	run.Unchanged = plan.Diff.Unchanged
	sendProgress(progress, diffingUpdate(current))

	if plan.Unchanged() {
		logger.Info("no changes", "tracks", len(current.Tracks))
		run.Status = models.RunUnchanged
		return run, e.finish(logger, progress, run, "", nil)
	}

	logger.Info("changes detected",
		"added", run.Added, "removed", run.Removed, "moved", run.Moved, "first_run", plan.FirstRun())

	e.attachCover(ctx, logger, current)

	if err := e.downloadAll(ctx, logger, run, current, plan.Pending, progress); err != nil {
		return run, e.finish(logger, progress, run, "download", err)
	}

	sendProgress(progress, persistingUpdate(playlistID))
	if err := e.persist(logger, current); err != nil {
		return run, e.finish(logger, progress, run, "persist", err)
	}

	return run, e.finish(logger, progress, run, "", nil)
}

// Download fetches every track of the stored snapshot of playlistID, skipping
// tracks whose artifact already exists. The snapshot is not rewritten.
func (e *SyncEngine) Download(ctx context.Context, playlistID string, progress chan<- ProgressUpdate) (*models.SyncRun, error) {
	logger := e.logger.With("playlist", playlistID)
	run := models.NewSyncRun(playlistID, false)
	run.StartedAt = e.now().UTC()
	defer e.record(logger, run)

	snapshot, err := e.store.Load(playlistID)
	if err != nil {
		return run, e.finish(logger, progress, run, "load", err)
	}
	run.PlaylistName = snapshot.PlaylistName

	if err := e.downloadAll(ctx, logger, run, snapshot, snapshot.Tracks, progress); err != nil {
		return run, e.finish(logger, progress, run, "download", err)
	}
	return run, e.finish(logger, progress, run, "", nil)
}

// downloadAll processes tracks in order. It only returns an error when the loop
// could not run (cancellation, match session unavailable).
func (e *SyncEngine) downloadAll(
	ctx context.Context,
	logger *log.Logger,
	run *models.SyncRun,
	snapshot *models.Snapshot,
	tracks []models.Track,
	progress chan<- ProgressUpdate,
) error {
	total := len(tracks)
	sendProgress(progress, downloadingUpdate(snapshot.PlaylistID, 0, total, nil))

	var (
		session   services.MatchSession
		attempted int
	)
	defer func() {
		if session != nil {
			session.Close()
		}
	}()

	for i, track := range tracks {
		if err := ctx.Err(); err != nil {
			return err
		}

		step := i + 1
		if e.fetcher.Exists(snapshot.PlaylistID, track) {
			res := models.NewTrackResult(track, models.OutcomeSkipped)
			run.Record(res)
			logger.Debug("already downloaded", "track", track.DisplayName())
			sendProgress(progress, trackResultUpdate(snapshot.PlaylistID, step, total, res))
			continue
		}

		if session == nil {
			s, err := e.matcher.Open(ctx)
			if err != nil {
				return fmt.Errorf("failed to open match session: %w", err)
			}
			session = s
		}

		if attempted > 0 {
			if err := e.sleep(ctx, e.jitter()); err != nil {
				return err
			}
		}
		attempted++

		sendProgress(progress, downloadingUpdate(snapshot.PlaylistID, step, total, &track))
		res := e.fetchTrack(ctx, logger, session, snapshot, track)
		if err := ctx.Err(); err != nil {
			return err
		}
		run.Record(res)
		sendProgress(progress, trackResultUpdate(snapshot.PlaylistID, step, total, res))
	}
	return nil
}

// fetchTrack matches and fetches one track under the per-track timeout.
func (e *SyncEngine) fetchTrack(
	ctx context.Context,
	logger *log.Logger,
	session services.MatchSession,
	snapshot *models.Snapshot,
	track models.Track,
) *models.TrackResult {
	logger = logger.With("track", track.DisplayName())

	tctx, cancel := context.WithTimeout(ctx, e.trackTimeout)
	defer cancel()

	match, err := session.Match(tctx, track)
	if err != nil {
		return e.trackFailure(ctx, logger, track, err)
	}

	artifact, err := e.fetcher.Fetch(tctx, audio.FetchRequest{
		PlaylistID:   snapshot.PlaylistID,
		PlaylistName: snapshot.PlaylistName,
		CoverPath:    snapshot.PlaylistImagePath,
		Track:        track,
		Match:        match,
	})
	if err != nil {
		res := e.trackFailure(ctx, logger, track, err)
		res.VideoID = match.VideoID
		return res
	}

	logger.Info("downloaded", "path", artifact.Path)
	res := models.NewTrackResult(track, models.OutcomeDownloaded)
	res.VideoID = artifact.VideoID
	res.Path = artifact.Path
	return res
}

func (e *SyncEngine) trackFailure(ctx context.Context, logger *log.Logger, track models.Track, err error) *models.TrackResult {
	var res *models.TrackResult
	switch {
	case errors.Is(err, shared.ErrTrackNotFound):
		logger.Warn("no match found")
		res = models.NewTrackResult(track, models.OutcomeNotFound)
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		logger.Error("timed out", "timeout", e.trackTimeout)
		res = models.NewTrackResult(track, models.OutcomeTimedOut)
		shared.ReportError(fmt.Errorf("%w: %s: %v", shared.ErrTimeout, track.ID, err), map[string]string{"track": track.ID})
	default:
		logger.Error("failed", "error", err)
		res = models.NewTrackResult(track, models.OutcomeFailed)
		shared.ReportError(err, map[string]string{"track": track.ID})
	}
	res.Error = err.Error()
	return res
}

// attachCover refreshes the cached cover of s and stores its local path in s.
func (e *SyncEngine) attachCover(ctx context.Context, logger *log.Logger, s *models.Snapshot) {
	if e.covers == nil || s.PlaylistImage == "" {
		return
	}
	path, err := e.covers.Ensure(ctx, s.PlaylistID, s.PlaylistImage)
	if err != nil {
		logger.Warn("failed to refresh cover", "error", err)
	}
	s.PlaylistImagePath = path
}

// persist saves s and writes its export. Export failures are logged only.
func (e *SyncEngine) persist(logger *log.Logger, s *models.Snapshot) error {
	s.LastUpdate = e.now().UTC()
	if err := e.store.Save(s); err != nil {
		return err
	}
	logger.Info("snapshot saved", "tracks", s.TrackCount)

	if e.exportDir == "" {
		return nil
	}
	path, err := formatter.WriteExport(e.exportDir, s, formatter.FormatJSON, s.LastUpdate)
	if err != nil {
		logger.Warn("failed to write export", "error", err)
		shared.ReportError(err, map[string]string{"playlist": s.PlaylistID, "phase": "export"})
		return nil
	}
	logger.Debug("export written", "path", path)
	return nil
}

// finish sets the final status of run and emits the terminal progress update.
func (e *SyncEngine) finish(logger *log.Logger, progress chan<- ProgressUpdate, run *models.SyncRun, phase string, err error) error {
	switch {
	case err == nil:
		if run.Status == "" {
			run.Status = models.RunSynced
			if run.NotFound+run.Failed > 0 {
				run.Status = models.RunPartial
			}
		}
		logger.Info("cycle complete", "status", run.Status,
			"downloaded", run.Downloaded, "skipped", run.Skipped, "not_found", run.NotFound, "failed", run.Failed)
		sendProgress(progress, completeUpdate(run))
		return nil
	case errors.Is(err, context.Canceled):
		run.Status = models.RunCancelled
		run.Error = err.Error()
		logger.Warn("cycle cancelled", "phase", phase)
		sendProgress(progress, failedUpdate(run.PlaylistID, err))
		return err
	default:
		run.Status = models.RunFailed
		run.Error = err.Error()
		e.fail(logger, progress, run.PlaylistID, phase, err)
		return err
	}
}

func (e *SyncEngine) fail(logger *log.Logger, progress chan<- ProgressUpdate, playlistID, phase string, err error) {
	if !errors.Is(err, context.Canceled) {
		logger.Error("cycle failed", "phase", phase, "error", err)
		shared.ReportError(err, map[string]string{"playlist": playlistID, "phase": phase})
	}
	sendProgress(progress, failedUpdate(playlistID, err))
}

// record stores run. History is best effort.
func (e *SyncEngine) record(logger *log.Logger, run *models.SyncRun) {
	run.FinishedAt = e.now().UTC()
	if e.runs == nil {
		return
	}
	if err := e.runs.Create(run); err != nil {
		logger.Warn("failed to record run", "error", err)
		return
	}
	logger.Debug("run recorded", "run", run.Sequence())
}

func (e *SyncEngine) jitter() time.Duration {
	if e.maxDelay <= e.minDelay {
		return e.minDelay
	}
	return e.minDelay + rand.N(e.maxDelay-e.minDelay+1)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
