// package server contains the read-only HTTP status service
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/peanuz/playlist-sync/internal/models"
)

const shutdownTimeout = 5 * time.Second

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
// Common middleware includes logging, panic recovery, CORS, rate limiting, etc.
type Middleware func(http.Handler) http.Handler

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// SnapshotSource reads stored playlist snapshots. Implemented by repositories.SnapshotStore.
type SnapshotSource interface {
	Load(playlistID string) (*models.Snapshot, error)
	List() ([]*models.Snapshot, []error)
}

// RunSource reads sync history. Implemented by repositories.RunRepository.
type RunSource interface {
	Get(id string) (*models.SyncRun, error)
	List(criteria map[string]any) ([]*models.SyncRun, error)
}

// Server exposes the stored snapshots and run history over HTTP.
type Server struct {
	addr      string
	router    Router
	snapshots SnapshotSource
	runs      RunSource
	logger    *log.Logger
	started   time.Time
}

// New creates a server listening on addr. runs may be nil when history is disabled.
func New(addr string, snapshots SnapshotSource, runs RunSource, logger *log.Logger) *Server {
	s := &Server{
		addr:      addr,
		router:    NewBasicRouter(),
		snapshots: snapshots,
		runs:      runs,
		logger:    logger,
		started:   time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(Recover(s.logger), Logging(s.logger))

	s.router.Handle(http.MethodGet, "/health", http.HandlerFunc(s.handleHealth))
	s.router.Handle(http.MethodGet, "/api/playlists", http.HandlerFunc(s.handlePlaylists))
	s.router.Handle(http.MethodGet, "/api/playlists/{id}", http.HandlerFunc(s.handlePlaylist))
	s.router.Handle(http.MethodGet, "/api/runs", http.HandlerFunc(s.handleRuns))
	s.router.Handle(http.MethodGet, "/api/runs/{id}", http.HandlerFunc(s.handleRun))
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down status server: %w", err)
	}
	s.logger.Info("status server stopped")
	return nil
}
