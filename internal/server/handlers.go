package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/peanuz/playlist-sync/internal/models"
	"github.com/peanuz/playlist-sync/internal/shared"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
)

// PlaylistSummary is one entry of GET /api/playlists.
type PlaylistSummary struct {
	PlaylistID        string    `json:"playlistId"`
	PlaylistName      string    `json:"playlistName"`
	PlaylistImagePath string    `json:"playlistImagePath,omitempty"`
	TrackCount        int       `json:"trackCount"`
	LastUpdate        time.Time `json:"lastUpdate"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"history": s.runs != nil,
	})
}

func (s *Server) handlePlaylists(w http.ResponseWriter, r *http.Request) {
	snapshots, errs := s.snapshots.List()
	for _, err := range errs {
		s.logger.Warn("skipping unreadable snapshot", "error", err)
	}

	out := make([]PlaylistSummary, len(snapshots))
	for i, snap := range snapshots {
		out[i] = PlaylistSummary{
			PlaylistID:        snap.PlaylistID,
			PlaylistName:      snap.PlaylistName,
			PlaylistImagePath: snap.PlaylistImagePath,
			TrackCount:        len(snap.Tracks),
			LastUpdate:        snap.LastUpdate,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"playlists": out, "unreadable": len(errs)})
}

func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.snapshots.Load(r.PathValue("id"))
	switch {
	case errors.Is(err, shared.ErrNoSnapshot):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, shared.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, snapshot)
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}

	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunLimit)
	}

	criteria := map[string]any{"limit": limit}
	if id := r.URL.Query().Get("playlist"); id != "" {
		criteria["playlist_id"] = id
	}
	if status := r.URL.Query().Get("status"); status != "" {
		criteria["status"] = models.RunStatus(status)
	}

	runs, err := s.runs.List(criteria)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*models.SyncRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}

	run, err := s.runs.Get(r.PathValue("id"))
	switch {
	case errors.Is(err, shared.ErrRunNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, run)
	}
}
