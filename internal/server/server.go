// Package server exposes the health-sync HTTP contract: per-metric daily
// history (GET), bulk daily uploads (POST), and the recovery snapshot sync
// endpoint. Upload endpoints require an API key; reads are left open for the
// tsnet-fronted dashboard.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/claude/vitalsync/internal/models"
	"github.com/claude/vitalsync/internal/storage"
	"github.com/go-chi/chi/v5"
)

// Store is the slice of the storage layer the handlers use.
type Store interface {
	InsertMetricDays(ctx context.Context, rows []storage.MetricDayRow) (int64, error)
	QueryMetricDays(ctx context.Context, metric string, since models.Day, userID int) ([]storage.MetricDayRow, error)
	InsertSleepDays(ctx context.Context, rows []storage.SleepDayRow) (int64, error)
	QuerySleepDays(ctx context.Context, since models.Day, userID int) ([]storage.SleepDayRow, error)
	UpsertRecoverySnapshot(ctx context.Context, row storage.RecoverySnapshotRow) error
	QueryRecoverySnapshots(ctx context.Context, since models.Day, userID int) ([]storage.RecoverySnapshotRow, error)
	LatestRecoverySnapshot(ctx context.Context, userID int) (*storage.RecoverySnapshotRow, error)
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store  Store
	log    *slog.Logger
	apiKey string
	router chi.Router
}

// New creates a new Server with all routes configured.
func New(store Store, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		store:  store,
		log:    log,
		apiKey: apiKey,
		router: chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	// History reads (no auth — tsnet handles access)
	s.router.Get("/health-sync/recovery", s.handleQueryRecovery)
	s.router.Get("/health-sync/recovery/latest", s.handleLatestRecovery)
	s.router.Get("/health-sync/{metric}", s.handleQueryMetric)

	// Sync endpoints (API key required)
	s.router.Group(func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Post("/health-sync/{metric}/bulk", s.handleBulkUpload)
		r.Post("/health-sync/sync", s.handleRecoverySync)
	})
}
