package mcp

import (
	"context"
	"time"

	"github.com/claude/vitalsync/internal/models"
	"github.com/mark3labs/mcp-go/mcp"
)

// sinceDay converts a days-back window into the earliest day inside it,
// today included.
func sinceDay(days int) models.Day {
	if days < 1 {
		days = 1
	}
	return models.DayOf(time.Now().AddDate(0, 0, -(days - 1)))
}

func knownMetric(s string) bool {
	for _, m := range models.SyncedMetrics {
		if models.Metric(s) == m {
			return true
		}
	}
	return false
}

// --- Tool definitions ---

var toolGetDailyMetrics = mcp.NewTool("get_daily_metrics",
	mcp.WithDescription("Retrieve one metric's daily aggregates (avg/min/max/sample count per day). Weight days carry the day's weight in avg."),
	mcp.WithString("metric", mcp.Required(), mcp.Description("Metric name: weight, hrv, or rhr"), mcp.Enum("weight", "hrv", "rhr")),
	mcp.WithNumber("days", mcp.Description("Days back to include, today included. Defaults to 90.")),
)

var toolGetSleepDays = mcp.NewTool("get_sleep_days",
	mcp.WithDescription("Retrieve sleep nights with stage breakdowns (core/deep/REM/awake minutes), in-bed time, and efficiency. Each night is keyed to the morning's date."),
	mcp.WithNumber("days", mcp.Description("Days back to include. Defaults to 90.")),
)

var toolGetRecoveryHistory = mcp.NewTool("get_recovery_history",
	mcp.WithDescription("Retrieve daily recovery snapshots: composite score, state band, HRV/RHR vs baseline, and the baseline each day was scored against."),
	mcp.WithNumber("days", mcp.Description("Days back to include. Defaults to 90.")),
)

var toolListSyncedDates = mcp.NewTool("list_synced_dates",
	mcp.WithDescription("List the dates a metric already has records for. Useful to spot gaps in the synced history."),
	mcp.WithString("metric", mcp.Required(), mcp.Description("Metric name: weight, hrv, rhr, or sleep"), mcp.Enum("weight", "hrv", "rhr", "sleep")),
	mcp.WithNumber("days", mcp.Description("Days back to include. Defaults to 365.")),
)

// --- Tool handlers ---

func (h *handlers) getDailyMetrics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metric, err := req.RequireString("metric")
	if err != nil {
		return mcp.NewToolResultError("metric parameter is required"), nil
	}
	if !knownMetric(metric) || metric == string(models.MetricSleep) {
		return mcp.NewToolResultError("unknown metric: " + metric), nil
	}

	since := sinceDay(req.GetInt("days", 90))
	uid := UserIDFromContext(ctx)

	rows, err := h.ds.QueryMetricDays(ctx, metric, since, uid)
	if err != nil {
		h.log.Error("mcp get_daily_metrics", "metric", metric, "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(rows)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getSleepDays(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	since := sinceDay(req.GetInt("days", 90))
	uid := UserIDFromContext(ctx)

	rows, err := h.ds.QuerySleepDays(ctx, since, uid)
	if err != nil {
		h.log.Error("mcp get_sleep_days", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(rows)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getRecoveryHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	since := sinceDay(req.GetInt("days", 90))
	uid := UserIDFromContext(ctx)

	rows, err := h.ds.QueryRecoverySnapshots(ctx, since, uid)
	if err != nil {
		h.log.Error("mcp get_recovery_history", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(rows)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) listSyncedDates(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metric, err := req.RequireString("metric")
	if err != nil {
		return mcp.NewToolResultError("metric parameter is required"), nil
	}
	if !knownMetric(metric) {
		return mcp.NewToolResultError("unknown metric: " + metric), nil
	}

	since := sinceDay(req.GetInt("days", 365))
	uid := UserIDFromContext(ctx)

	var dates []models.Day
	if metric == string(models.MetricSleep) {
		rows, err := h.ds.QuerySleepDays(ctx, since, uid)
		if err != nil {
			h.log.Error("mcp list_synced_dates", "metric", metric, "error", err)
			return mcp.NewToolResultError("query failed: " + err.Error()), nil
		}
		for _, r := range rows {
			dates = append(dates, r.Date)
		}
	} else {
		rows, err := h.ds.QueryMetricDays(ctx, metric, since, uid)
		if err != nil {
			h.log.Error("mcp list_synced_dates", "metric", metric, "error", err)
			return mcp.NewToolResultError("query failed: " + err.Error()), nil
		}
		for _, r := range rows {
			dates = append(dates, r.Date)
		}
	}

	result, err := mcp.NewToolResultJSON(map[string]any{
		"metric": metric,
		"dates":  dates,
		"count":  len(dates),
	})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
