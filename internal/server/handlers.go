package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/claude/vitalsync/internal/models"
	"github.com/claude/vitalsync/internal/storage"
	"github.com/go-chi/chi/v5"
)

// defaultUserID covers the single-tenant deployment; multi-user routing is
// the tsnet identity's job, not this API's.
const defaultUserID = 1

const defaultQueryDays = 90

// handleQueryMetric serves GET /health-sync/{metric}?days=N: the metric's
// daily records inside the window, oldest first. Sync clients diff on the
// date field; the rest is for dashboards.
func (s *Server) handleQueryMetric(w http.ResponseWriter, r *http.Request) {
	metric, ok := parseMetric(chi.URLParam(r, "metric"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown metric"})
		return
	}
	since := sinceDay(r)

	if metric == models.MetricSleep {
		rows, err := s.store.QuerySleepDays(r.Context(), since, defaultUserID)
		if err != nil {
			s.log.Error("sleep query failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, sleepDaysFromRows(rows))
		return
	}

	rows, err := s.store.QueryMetricDays(r.Context(), string(metric), since, defaultUserID)
	if err != nil {
		s.log.Error("metric query failed", "metric", metric, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if metric == models.MetricWeight {
		writeJSON(w, http.StatusOK, weightDaysFromRows(rows))
		return
	}
	writeJSON(w, http.StatusOK, summariesFromRows(rows))
}

// handleBulkUpload serves POST /health-sync/{metric}/bulk. The response's
// added count reflects rows actually inserted; duplicates the store already
// holds are skipped and not counted.
func (s *Server) handleBulkUpload(w http.ResponseWriter, r *http.Request) {
	metric, ok := parseMetric(chi.URLParam(r, "metric"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown metric"})
		return
	}

	var added int64
	var err error
	switch metric {
	case models.MetricSleep:
		added, err = s.insertSleepEntries(r)
	case models.MetricWeight:
		added, err = s.insertWeightEntries(r)
	default:
		added, err = s.insertScalarEntries(r, metric)
	}
	if err != nil {
		var badReq *badRequestError
		if errors.As(err, &badReq) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		s.log.Error("bulk upload failed", "metric", metric, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"added": added})
}

// handleRecoverySync serves POST /health-sync/sync. synced:true is only
// written after the snapshot is durably stored; anything less reports
// synced:false so the client treats the run as failed.
func (s *Server) handleRecoverySync(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Recovery models.RecoverySnapshot `json:"recovery"`
		Baseline models.RecoveryBaseline `json:"baseline"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"synced": false, "error": "invalid JSON: " + err.Error()})
		return
	}
	if !payload.Recovery.Date.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]any{"synced": false, "error": "invalid recovery date"})
		return
	}

	row := storage.RecoverySnapshotRow{
		UserID:           defaultUserID,
		Date:             payload.Recovery.Date,
		HRVMs:            payload.Recovery.HRVMs,
		HRVVsBaseline:    payload.Recovery.HRVVsBaseline,
		RHRBpm:           payload.Recovery.RHRBpm,
		RHRVsBaseline:    payload.Recovery.RHRVsBaseline,
		SleepHours:       payload.Recovery.SleepHours,
		SleepEfficiency:  payload.Recovery.SleepEfficiency,
		DeepSleepPercent: payload.Recovery.DeepSleepPercent,
		Score:            payload.Recovery.Score,
		State:            string(payload.Recovery.State),
		BaselineHRV:      payload.Baseline.HRVMedian,
		BaselineHRVSD:    payload.Baseline.HRVStdDev,
		BaselineRHR:      payload.Baseline.RHRMedian,
		BaselineDays:     payload.Baseline.SampleCount,
	}
	if err := s.store.UpsertRecoverySnapshot(r.Context(), row); err != nil {
		s.log.Error("recovery sync failed", "date", payload.Recovery.Date, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"synced": false, "error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"synced": true})
}

func (s *Server) handleQueryRecovery(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.QueryRecoverySnapshots(r.Context(), sinceDay(r), defaultUserID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleLatestRecovery(w http.ResponseWriter, r *http.Request) {
	row, err := s.store.LatestRecoverySnapshot(r.Context(), defaultUserID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if row == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no recovery snapshots"})
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) insertScalarEntries(r *http.Request, metric models.Metric) (int64, error) {
	var payload struct {
		Entries []models.DailySummary `json:"entries"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return 0, &badRequestError{msg: "invalid JSON: " + err.Error()}
	}

	rows := make([]storage.MetricDayRow, 0, len(payload.Entries))
	for _, e := range payload.Entries {
		if !e.Date.Valid() {
			return 0, &badRequestError{msg: fmt.Sprintf("invalid date %q", e.Date)}
		}
		rows = append(rows, storage.MetricDayRow{
			UserID:      defaultUserID,
			Metric:      string(metric),
			Date:        e.Date,
			Avg:         e.Avg,
			Min:         e.Min,
			Max:         e.Max,
			SampleCount: e.SampleCount,
			Source:      e.Source,
		})
	}
	return s.store.InsertMetricDays(r.Context(), rows)
}

func (s *Server) insertWeightEntries(r *http.Request) (int64, error) {
	var payload struct {
		Entries []models.WeightDay `json:"entries"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return 0, &badRequestError{msg: "invalid JSON: " + err.Error()}
	}

	rows := make([]storage.MetricDayRow, 0, len(payload.Entries))
	for _, e := range payload.Entries {
		if !e.Date.Valid() {
			return 0, &badRequestError{msg: fmt.Sprintf("invalid date %q", e.Date)}
		}
		rows = append(rows, storage.MetricDayRow{
			UserID:      defaultUserID,
			Metric:      string(models.MetricWeight),
			Date:        e.Date,
			Avg:         e.WeightLbs,
			Min:         e.WeightLbs,
			Max:         e.WeightLbs,
			SampleCount: e.SampleCount,
			Source:      e.Source,
		})
	}
	return s.store.InsertMetricDays(r.Context(), rows)
}

func (s *Server) insertSleepEntries(r *http.Request) (int64, error) {
	var payload struct {
		Entries []models.SleepDay `json:"entries"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return 0, &badRequestError{msg: "invalid JSON: " + err.Error()}
	}

	rows := make([]storage.SleepDayRow, 0, len(payload.Entries))
	for _, e := range payload.Entries {
		if !e.Date.Valid() {
			return 0, &badRequestError{msg: fmt.Sprintf("invalid date %q", e.Date)}
		}
		rows = append(rows, storage.SleepDayRow{
			UserID:            defaultUserID,
			Date:              e.Date,
			TotalSleepMinutes: e.TotalSleepMinutes,
			InBedMinutes:      e.InBedMinutes,
			CoreMinutes:       e.CoreMinutes,
			DeepMinutes:       e.DeepMinutes,
			REMMinutes:        e.REMMinutes,
			AwakeMinutes:      e.AwakeMinutes,
			EfficiencyPercent: e.SleepEfficiencyPercent,
			Source:            e.Source,
		})
	}
	return s.store.InsertSleepDays(r.Context(), rows)
}

func summariesFromRows(rows []storage.MetricDayRow) []models.DailySummary {
	out := make([]models.DailySummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.DailySummary{
			Date:        r.Date,
			Avg:         r.Avg,
			Min:         r.Min,
			Max:         r.Max,
			SampleCount: r.SampleCount,
			Source:      r.Source,
		})
	}
	return out
}

func weightDaysFromRows(rows []storage.MetricDayRow) []models.WeightDay {
	out := make([]models.WeightDay, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.WeightDay{
			Date:        r.Date,
			WeightLbs:   r.Avg,
			SampleCount: r.SampleCount,
			Source:      r.Source,
		})
	}
	return out
}

func sleepDaysFromRows(rows []storage.SleepDayRow) []models.SleepDay {
	out := make([]models.SleepDay, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.SleepDay{
			Date:                   r.Date,
			TotalSleepMinutes:      r.TotalSleepMinutes,
			InBedMinutes:           r.InBedMinutes,
			CoreMinutes:            r.CoreMinutes,
			DeepMinutes:            r.DeepMinutes,
			REMMinutes:             r.REMMinutes,
			AwakeMinutes:           r.AwakeMinutes,
			SleepEfficiencyPercent: r.EfficiencyPercent,
			Source:                 r.Source,
		})
	}
	return out
}

func parseMetric(s string) (models.Metric, bool) {
	m := models.Metric(s)
	for _, known := range models.SyncedMetrics {
		if m == known {
			return m, true
		}
	}
	return "", false
}

// sinceDay converts the days query parameter into the earliest day inside
// the window, today included.
func sinceDay(r *http.Request) models.Day {
	days := defaultQueryDays
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}
	return models.DayOf(time.Now().AddDate(0, 0, -(days - 1)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }
