// Package mcp exposes the synced health history to language-model clients:
// daily metrics, sleep nights, and recovery snapshots, over stdio.
package mcp

import (
	"context"
	"log/slog"

	"github.com/claude/vitalsync/internal/models"
	"github.com/claude/vitalsync/internal/storage"
	"github.com/mark3labs/mcp-go/server"
)

// DataSource abstracts the data layer for MCP tools. *storage.DB satisfies it.
type DataSource interface {
	QueryMetricDays(ctx context.Context, metric string, since models.Day, userID int) ([]storage.MetricDayRow, error)
	QuerySleepDays(ctx context.Context, since models.Day, userID int) ([]storage.SleepDayRow, error)
	QueryRecoverySnapshots(ctx context.Context, since models.Day, userID int) ([]storage.RecoverySnapshotRow, error)
	LatestRecoverySnapshot(ctx context.Context, userID int) (*storage.RecoverySnapshotRow, error)
}

// Compile-time check: *storage.DB satisfies DataSource.
var _ DataSource = (*storage.DB)(nil)

type contextKey int

const userIDKey contextKey = iota

// UserIDFromContext extracts the user ID injected by the transport layer.
func UserIDFromContext(ctx context.Context) int {
	if id, ok := ctx.Value(userIDKey).(int); ok {
		return id
	}
	return 1
}

// WithUserID returns a context with the given user ID.
func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("VitalSync", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("VitalSync health history server. Query synced daily metrics (weight, HRV, resting heart rate), sleep nights, and recovery snapshots. All data is scoped to the authenticated user."),
	)

	h := &handlers{ds: ds, log: log}

	s.AddTools(
		server.ServerTool{Tool: toolGetDailyMetrics, Handler: h.getDailyMetrics},
		server.ServerTool{Tool: toolGetSleepDays, Handler: h.getSleepDays},
		server.ServerTool{Tool: toolGetRecoveryHistory, Handler: h.getRecoveryHistory},
		server.ServerTool{Tool: toolListSyncedDates, Handler: h.listSyncedDates},
	)

	s.AddResources(
		server.ServerResource{Resource: resLatestRecovery, Handler: h.latestRecovery},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds  DataSource
	log *slog.Logger
}
