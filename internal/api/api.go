// Package api provides the HTTP surface of the engine.
//
// # Endpoints
//
// Targets:
//   - GET    /api/v1/targets - List targets
//   - POST   /api/v1/targets - Create target
//   - GET    /api/v1/targets/{name} - Get target
//   - PUT    /api/v1/targets/{name} - Update target
//   - DELETE /api/v1/targets/{name} - Delete target
//   - POST   /api/v1/targets/{name}/check - Trigger an immediate check
//   - GET    /api/v1/targets/{name}/history - Persisted result history
//
// Notification channels:
//   - GET    /api/v1/channels - List channels
//   - POST   /api/v1/channels - Create channel
//   - GET    /api/v1/channels/{id} - Get channel
//   - PUT    /api/v1/channels/{id} - Update channel
//   - DELETE /api/v1/channels/{id} - Delete channel
//
// Log sources:
//   - GET    /api/v1/logsources - List log sources
//   - POST   /api/v1/logsources - Create log source
//   - GET    /api/v1/logsources/{id} - Get log source
//   - DELETE /api/v1/logsources/{id} - Delete log source
//
// Status pages:
//   - GET    /api/v1/pages - List page definitions
//   - POST   /api/v1/pages - Create page definition
//   - GET    /api/v1/pages/{slug} - Get page definition
//   - PUT    /api/v1/pages/{slug} - Update page definition
//   - DELETE /api/v1/pages/{slug} - Delete page definition
//   - GET    /api/v1/status/{slug} - Rendered public status page
//
// Fleet:
//   - GET /api/v1/overview - Fleet overview with engine self-stats
//
// Streaming:
//   - GET /api/v1/stream - Websocket for log tailing and status pushes
//
// Health:
//   - GET /api/v1/health - Health check
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/priyanshumodi22/kubiq-sub000/internal/aggregator"
	"github.com/priyanshumodi22/kubiq-sub000/internal/cache"
	"github.com/priyanshumodi22/kubiq-sub000/internal/tailer"
	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

// Store is the persistence surface the API depends on. *store.Store
// satisfies it; tests substitute an in-memory implementation.
type Store interface {
	CreateTarget(ctx context.Context, target *types.ServiceTarget) error
	GetTarget(ctx context.Context, name string) (*types.ServiceTarget, error)
	ListTargets(ctx context.Context) ([]types.ServiceTarget, error)
	UpdateTarget(ctx context.Context, target *types.ServiceTarget) error
	DeleteTarget(ctx context.Context, name string) error

	CreateChannel(ctx context.Context, ch *types.NotificationChannel) error
	GetChannel(ctx context.Context, id string) (*types.NotificationChannel, error)
	ListChannels(ctx context.Context) ([]types.NotificationChannel, error)
	UpdateChannel(ctx context.Context, ch *types.NotificationChannel) error
	DeleteChannel(ctx context.Context, id string) error

	CreateLogSource(ctx context.Context, src *types.LogSource) error
	GetLogSource(ctx context.Context, id string) (*types.LogSource, error)
	ListLogSources(ctx context.Context) ([]types.LogSource, error)
	DeleteLogSource(ctx context.Context, id string) error

	CreateStatusPage(ctx context.Context, page *types.StatusPage) error
	GetStatusPage(ctx context.Context, slug string) (*types.StatusPage, error)
	ListStatusPages(ctx context.Context) ([]types.StatusPage, error)
	UpdateStatusPage(ctx context.Context, page *types.StatusPage) error
	DeleteStatusPage(ctx context.Context, slug string) error

	GetResultHistory(ctx context.Context, target string, window time.Duration, limit int) ([]types.CheckResult, error)
}

// CheckScheduler triggers out-of-band checks and reports the number of
// scheduled targets.
type CheckScheduler interface {
	TriggerNow(target string) bool
	TargetCount() int
}

// StatusSource provides live service states for stream pushes.
type StatusSource interface {
	States() []types.ServiceState
}

// Server is the HTTP API server.
type Server struct {
	store     Store
	scheduler CheckScheduler
	agg       *aggregator.Aggregator
	tailer    *tailer.Tailer
	states    StatusSource
	cache     *cache.Cache // nil disables page invalidation
	logger    *slog.Logger
	mux       *http.ServeMux
}

// NewServer creates a new API server. pageCache may be nil.
func NewServer(st Store, sched CheckScheduler, agg *aggregator.Aggregator, tl *tailer.Tailer, states StatusSource, pageCache *cache.Cache, logger *slog.Logger) *Server {
	s := &Server{
		store:     st,
		scheduler: sched,
		agg:       agg,
		tailer:    tl,
		states:    states,
		cache:     pageCache,
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Mux returns the underlying ServeMux for registering additional routes.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Add CORS headers
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	// Log request
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.logger.Debug("request",
		"method", r.Method,
		"path", r.URL.Path,
		"duration", time.Since(start))
}

func (s *Server) registerRoutes() {
	// Health
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	// Fleet overview
	s.mux.HandleFunc("GET /api/v1/overview", s.handleOverview)

	// Targets
	s.mux.HandleFunc("GET /api/v1/targets", s.handleListTargets)
	s.mux.HandleFunc("POST /api/v1/targets", s.handleCreateTarget)
	s.mux.HandleFunc("GET /api/v1/targets/{name}", s.handleGetTarget)
	s.mux.HandleFunc("PUT /api/v1/targets/{name}", s.handleUpdateTarget)
	s.mux.HandleFunc("DELETE /api/v1/targets/{name}", s.handleDeleteTarget)
	s.mux.HandleFunc("POST /api/v1/targets/{name}/check", s.handleTriggerCheck)
	s.mux.HandleFunc("GET /api/v1/targets/{name}/history", s.handleTargetHistory)

	// Notification channels
	s.mux.HandleFunc("GET /api/v1/channels", s.handleListChannels)
	s.mux.HandleFunc("POST /api/v1/channels", s.handleCreateChannel)
	s.mux.HandleFunc("GET /api/v1/channels/{id}", s.handleGetChannel)
	s.mux.HandleFunc("PUT /api/v1/channels/{id}", s.handleUpdateChannel)
	s.mux.HandleFunc("DELETE /api/v1/channels/{id}", s.handleDeleteChannel)

	// Log sources
	s.mux.HandleFunc("GET /api/v1/logsources", s.handleListLogSources)
	s.mux.HandleFunc("POST /api/v1/logsources", s.handleCreateLogSource)
	s.mux.HandleFunc("GET /api/v1/logsources/{id}", s.handleGetLogSource)
	s.mux.HandleFunc("DELETE /api/v1/logsources/{id}", s.handleDeleteLogSource)

	// Status page definitions
	s.mux.HandleFunc("GET /api/v1/pages", s.handleListPages)
	s.mux.HandleFunc("POST /api/v1/pages", s.handleCreatePage)
	s.mux.HandleFunc("GET /api/v1/pages/{slug}", s.handleGetPage)
	s.mux.HandleFunc("PUT /api/v1/pages/{slug}", s.handleUpdatePage)
	s.mux.HandleFunc("DELETE /api/v1/pages/{slug}", s.handleDeletePage)

	// Rendered public page
	s.mux.HandleFunc("GET /api/v1/status/{slug}", s.handlePublicStatus)

	// Live streaming
	s.mux.HandleFunc("GET /api/v1/stream", s.handleStream)
}

// =============================================================================
// HEALTH
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"targets": s.scheduler.TargetCount(),
	})
}

// =============================================================================
// FLEET OVERVIEW
// =============================================================================

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.agg.Overview(r.Context()))
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Server) readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
