package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/claude/vitalsync/internal/models"
	"github.com/claude/vitalsync/internal/storage"
)

// fakeStore is an in-memory Store that deduplicates on date the way the
// real ON CONFLICT DO NOTHING inserts do.
type fakeStore struct {
	metricRows []storage.MetricDayRow
	sleepRows  []storage.SleepDayRow
	snapshots  map[models.Day]storage.RecoverySnapshotRow
	insertErr  error
	upsertErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{snapshots: make(map[models.Day]storage.RecoverySnapshotRow)}
}

func (f *fakeStore) InsertMetricDays(_ context.Context, rows []storage.MetricDayRow) (int64, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	var added int64
	for _, r := range rows {
		if f.hasMetricDay(r.Metric, r.Date) {
			continue
		}
		f.metricRows = append(f.metricRows, r)
		added++
	}
	return added, nil
}

func (f *fakeStore) hasMetricDay(metric string, date models.Day) bool {
	for _, r := range f.metricRows {
		if r.Metric == metric && r.Date == date {
			return true
		}
	}
	return false
}

func (f *fakeStore) QueryMetricDays(_ context.Context, metric string, since models.Day, _ int) ([]storage.MetricDayRow, error) {
	var out []storage.MetricDayRow
	for _, r := range f.metricRows {
		if r.Metric == metric && r.Date >= since {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertSleepDays(_ context.Context, rows []storage.SleepDayRow) (int64, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	var added int64
	for _, r := range rows {
		dup := false
		for _, have := range f.sleepRows {
			if have.Date == r.Date {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		f.sleepRows = append(f.sleepRows, r)
		added++
	}
	return added, nil
}

func (f *fakeStore) QuerySleepDays(_ context.Context, since models.Day, _ int) ([]storage.SleepDayRow, error) {
	var out []storage.SleepDayRow
	for _, r := range f.sleepRows {
		if r.Date >= since {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertRecoverySnapshot(_ context.Context, row storage.RecoverySnapshotRow) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.snapshots[row.Date] = row
	return nil
}

func (f *fakeStore) QueryRecoverySnapshots(_ context.Context, since models.Day, _ int) ([]storage.RecoverySnapshotRow, error) {
	var out []storage.RecoverySnapshotRow
	for _, r := range f.snapshots {
		if r.Date >= since {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) LatestRecoverySnapshot(_ context.Context, _ int) (*storage.RecoverySnapshotRow, error) {
	var latest *storage.RecoverySnapshotRow
	for date := range f.snapshots {
		if latest == nil || date > latest.Date {
			r := f.snapshots[date]
			latest = &r
		}
	}
	return latest, nil
}

func testServer(store Store) *Server {
	return New(store, "secret", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func doJSON(t *testing.T, s *Server, method, path, apiKey string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

// TestQueryUnknownMetric verifies that a metric outside the synced set is a 404.
func TestQueryUnknownMetric(t *testing.T) {
	s := testServer(newFakeStore())
	rec := doJSON(t, s, http.MethodGet, "/health-sync/steps?days=7", "", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// TestBulkUploadRequiresAPIKey verifies bulk uploads are rejected without the
// X-API-Key header while history reads stay open.
func TestBulkUploadRequiresAPIKey(t *testing.T) {
	s := testServer(newFakeStore())

	rec := doJSON(t, s, http.MethodPost, "/health-sync/hrv/bulk", "", `{"entries":[]}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bulk without key: status = %d, want 401", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/health-sync/hrv?days=7", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("read without key: status = %d, want 200", rec.Code)
	}
}

// TestBulkUploadAddedCount verifies the added count reflects only rows the
// store did not already hold.
func TestBulkUploadAddedCount(t *testing.T) {
	store := newFakeStore()
	store.metricRows = []storage.MetricDayRow{
		{UserID: 1, Metric: "hrv", Date: "2024-03-01", Avg: 50, SampleCount: 3, Source: models.SourceDevice},
	}
	s := testServer(store)

	body := `{"entries":[
		{"date":"2024-03-01","avg":50,"min":44,"max":58,"sampleCount":3,"source":"device-derived"},
		{"date":"2024-03-02","avg":52,"min":47,"max":60,"sampleCount":4,"source":"device-derived"}
	]}`
	rec := doJSON(t, s, http.MethodPost, "/health-sync/hrv/bulk", "secret", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Added int64 `json:"added"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Added != 1 {
		t.Errorf("added = %d, want 1 (duplicate day skipped)", resp.Added)
	}
}

// TestBulkUploadInvalidDate verifies a malformed date rejects the whole batch.
func TestBulkUploadInvalidDate(t *testing.T) {
	s := testServer(newFakeStore())
	body := `{"entries":[{"date":"2024-03-01","avg":50},{"date":"not-a-day","avg":51}]}`
	rec := doJSON(t, s, http.MethodPost, "/health-sync/rhr/bulk", "secret", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// TestWeightRoundTrip verifies the weight wire shape: uploads carry weightLbs
// and reads hand it back, backed by the shared metric_days storage.
func TestWeightRoundTrip(t *testing.T) {
	s := testServer(newFakeStore())

	body := `{"entries":[{"date":"2024-03-05","weightLbs":180.4,"sampleCount":2,"source":"manual"}]}`
	rec := doJSON(t, s, http.MethodPost, "/health-sync/weight/bulk", "secret", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodGet, "/health-sync/weight?days=3650", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("read status = %d", rec.Code)
	}
	var days []models.WeightDay
	if err := json.NewDecoder(rec.Body).Decode(&days); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(days) != 1 {
		t.Fatalf("got %d days, want 1", len(days))
	}
	if days[0].WeightLbs != 180.4 {
		t.Errorf("weightLbs = %v, want 180.4", days[0].WeightLbs)
	}
	if days[0].Source != models.SourceManual {
		t.Errorf("source = %q, want manual", days[0].Source)
	}
}

// TestSleepRoundTrip verifies sleep nights upload into sleep_days and read
// back with the stage breakdown intact.
func TestSleepRoundTrip(t *testing.T) {
	s := testServer(newFakeStore())

	body := `{"entries":[{
		"date":"2024-03-02","totalSleepMinutes":420,"inBedMinutes":450,
		"coreMinutes":240,"deepMinutes":90,"remMinutes":90,"awakeMinutes":30,
		"sleepEfficiencyPercent":93.3,"source":"device-derived"
	}]}`
	rec := doJSON(t, s, http.MethodPost, "/health-sync/sleep/bulk", "secret", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodGet, "/health-sync/sleep?days=3650", "", "")
	var nights []models.SleepDay
	if err := json.NewDecoder(rec.Body).Decode(&nights); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(nights) != 1 {
		t.Fatalf("got %d nights, want 1", len(nights))
	}
	if nights[0].DeepMinutes != 90 || nights[0].TotalSleepMinutes != 420 {
		t.Errorf("unexpected night: %+v", nights[0])
	}
}

// TestRecoverySyncStoresSnapshot verifies POST /health-sync/sync persists the
// snapshot and confirms with synced:true.
func TestRecoverySyncStoresSnapshot(t *testing.T) {
	store := newFakeStore()
	s := testServer(store)

	body := `{
		"recovery":{"date":"2024-03-02","hrvMs":55,"hrvVsBaseline":10,"rhrBpm":52,
			"rhrVsBaseline":-8,"sleepHours":7.5,"sleepEfficiency":93,"deepSleepPercent":21,
			"score":84,"state":"optimal"},
		"baseline":{"hrvMedian":50,"hrvStdDev":12,"rhrMedian":56,"sampleCount":60}
	}`
	rec := doJSON(t, s, http.MethodPost, "/health-sync/sync", "secret", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Synced bool `json:"synced"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !resp.Synced {
		t.Error("synced = false, want true")
	}

	row, ok := store.snapshots["2024-03-02"]
	if !ok {
		t.Fatal("snapshot not stored")
	}
	if row.Score != 84 || row.State != "optimal" {
		t.Errorf("stored snapshot = %+v", row)
	}
	if row.BaselineRHR != 56 {
		t.Errorf("baseline rhr = %v, want 56", row.BaselineRHR)
	}
}

// TestRecoverySyncStoreFailure verifies a storage failure reports synced:false
// so the client treats the run as failed.
func TestRecoverySyncStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.upsertErr = errors.New("db down")
	s := testServer(store)

	body := `{"recovery":{"date":"2024-03-02","score":50,"state":"fair"},"baseline":{}}`
	rec := doJSON(t, s, http.MethodPost, "/health-sync/sync", "secret", body)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}

	var resp struct {
		Synced bool `json:"synced"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Synced {
		t.Error("synced = true on failure")
	}
}

// TestRecoverySyncInvalidDate verifies a snapshot without a parseable date is
// rejected with synced:false.
func TestRecoverySyncInvalidDate(t *testing.T) {
	s := testServer(newFakeStore())
	body := `{"recovery":{"date":"","score":50,"state":"fair"},"baseline":{}}`
	rec := doJSON(t, s, http.MethodPost, "/health-sync/sync", "secret", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// TestLatestRecoveryEmpty verifies the latest-snapshot endpoint 404s before
// any sync has happened.
func TestLatestRecoveryEmpty(t *testing.T) {
	s := testServer(newFakeStore())
	rec := doJSON(t, s, http.MethodGet, "/health-sync/recovery/latest", "", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
