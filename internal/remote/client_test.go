package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/claude/vitalsync/internal/models"
)

func testClient(url string) *Client {
	return NewClient(url, "test-key", slog.New(slog.DiscardHandler))
}

// TestFetchExistingDates verifies the date set is built from the history
// endpoint's records.
func TestFetchExistingDates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health-sync/hrv" {
			t.Errorf("path = %s, want /health-sync/hrv", r.URL.Path)
		}
		if r.URL.Query().Get("days") != "7" {
			t.Errorf("days = %s, want 7", r.URL.Query().Get("days"))
		}
		fmt.Fprint(w, `[{"date":"2024-03-01","avg":50},{"date":"2024-03-02","avg":52}]`)
	}))
	defer srv.Close()

	got, err := testClient(srv.URL).FetchExistingDates(context.Background(), models.MetricHRV, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || !got["2024-03-01"] || !got["2024-03-02"] {
		t.Errorf("existing = %v", got)
	}
}

// TestFetchExistingDatesUndecodable verifies a contract-mismatched body falls
// through to an empty set instead of failing the metric.
func TestFetchExistingDatesUndecodable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"unexpected":"shape"}`)
	}))
	defer srv.Close()

	got, err := testClient(srv.URL).FetchExistingDates(context.Background(), models.MetricRHR, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("existing = %v, want empty", got)
	}
}

// TestFetchExistingDatesServerError verifies a non-2xx status is a real error.
func TestFetchExistingDatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchExistingDates(context.Background(), models.MetricRHR, 7)
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}

// TestUploadBulkChunking verifies N > 500 entries are sent as ceil(N/500)
// requests and the per-chunk added counts (with server-side dedup) sum up.
func TestUploadBulkChunking(t *testing.T) {
	var calls int
	var sizes []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-API-Key"); got != "test-key" {
			t.Errorf("api key = %q", got)
		}
		var body struct {
			Entries []models.DailySummary `json:"entries"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		calls++
		sizes = append(sizes, len(body.Entries))
		// Simulate independent server dedup: one duplicate per chunk.
		fmt.Fprintf(w, `{"added":%d}`, len(body.Entries)-1)
	}))
	defer srv.Close()

	entries := make([]Entry, 1101)
	for i := range entries {
		entries[i] = models.DailySummary{Date: "2024-01-01", Avg: 1, Min: 1, Max: 1, SampleCount: 1}
	}

	added, err := testClient(srv.URL).UploadBulk(context.Background(), models.MetricHRV, entries)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (ceil(1101/500))", calls)
	}
	if sizes[0] != 500 || sizes[1] != 500 || sizes[2] != 101 {
		t.Errorf("chunk sizes = %v, want [500 500 101]", sizes)
	}
	if added != 1098 {
		t.Errorf("added = %d, want 1098 (server dropped one per chunk)", added)
	}
}

// TestUploadBulkChunkFailureStops verifies a mid-batch failure abandons the
// remaining chunks but reports the count already accepted.
func TestUploadBulkChunkFailureStops(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 2 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"added":500}`)
	}))
	defer srv.Close()

	entries := make([]Entry, 1200)
	for i := range entries {
		entries[i] = models.WeightDay{Date: "2024-01-01", WeightLbs: 180}
	}

	added, err := testClient(srv.URL).UploadBulk(context.Background(), models.MetricWeight, entries)
	if err == nil {
		t.Fatal("expected error from failed chunk")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (third chunk not attempted)", calls)
	}
	if added != 500 {
		t.Errorf("added = %d, want 500 from the first chunk", added)
	}
}

// TestUploadRecovery verifies a confirmed sync passes and synced:false fails
// even with HTTP 200.
func TestUploadRecovery(t *testing.T) {
	var synced bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Recovery *models.RecoverySnapshot `json:"recovery"`
			Baseline *models.RecoveryBaseline `json:"baseline"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding: %v", err)
		}
		if body.Recovery == nil || body.Recovery.Score != 72 {
			t.Errorf("recovery = %+v", body.Recovery)
		}
		if body.Baseline == nil || body.Baseline.RHRMedian != 58 {
			t.Errorf("baseline = %+v", body.Baseline)
		}
		fmt.Fprintf(w, `{"synced":%v}`, synced)
	}))
	defer srv.Close()

	snap := &models.RecoverySnapshot{Date: "2024-03-02", Score: 72, State: models.RecoveryGood}
	baseline := &models.RecoveryBaseline{HRVMedian: 50, RHRMedian: 58, SampleCount: 30}
	client := testClient(srv.URL)

	synced = true
	if err := client.UploadRecovery(context.Background(), snap, baseline); err != nil {
		t.Fatalf("confirmed sync returned error: %v", err)
	}

	synced = false
	err := client.UploadRecovery(context.Background(), snap, baseline)
	if !errors.Is(err, ErrSyncNotConfirmed) {
		t.Fatalf("err = %v, want ErrSyncNotConfirmed", err)
	}
}

// TestUploadRecoveryUndecodable verifies a malformed recovery-sync response
// is fatal, unlike history endpoints.
func TestUploadRecoveryUndecodable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json`)
	}))
	defer srv.Close()

	err := testClient(srv.URL).UploadRecovery(context.Background(),
		&models.RecoverySnapshot{Date: "2024-03-02"}, nil)
	if err == nil {
		t.Fatal("expected error for undecodable response")
	}
}
