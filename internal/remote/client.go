// Package remote talks to the backend's /health-sync contract: fetch the
// daily records already present for a metric, bulk-upload new ones in bounded
// chunks, and push the recovery snapshot. No retries live here — a failed
// call is abandoned for this run and the next run's diff makes it idempotent.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/claude/vitalsync/internal/models"
)

// MaxChunkSize is the hard cap on entries per bulk upload request.
const MaxChunkSize = 500

// ErrSyncNotConfirmed means the recovery-sync endpoint answered with a
// success status but synced:false. Treated as a failure.
var ErrSyncNotConfirmed = errors.New("backend did not confirm recovery sync")

// Entry is anything uploadable as one daily record. The orchestrator diffs
// entries against remote dates by their Day.
type Entry interface {
	Day() models.Day
}

// Client sends health-sync requests to the backend over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient creates a backend client. baseURL is the server root without a
// trailing slash.
func NewClient(baseURL, apiKey string, log *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		log: log,
	}
}

// FetchExistingDates returns the set of days already stored remotely for a
// metric over the last `days` days. A malformed response body is treated as
// "no remote data" (logged, not fatal); transport and status errors are real
// errors.
func (c *Client) FetchExistingDates(ctx context.Context, metric models.Metric, days int) (map[models.Day]bool, error) {
	url := fmt.Sprintf("%s/health-sync/%s?days=%d", c.baseURL, metric, days)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating fetch request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching existing %s dates: %w", metric, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fetch %s failed (status %d): %s", metric, resp.StatusCode, body)
	}

	var records []struct {
		Date models.Day `json:"date"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		c.log.Warn("undecodable history response, treating as empty", "metric", metric, "error", err)
		return map[models.Day]bool{}, nil
	}

	existing := make(map[models.Day]bool, len(records))
	for _, r := range records {
		existing[r.Date] = true
	}
	return existing, nil
}

// UploadBulk uploads entries in chunks of at most MaxChunkSize, sequentially,
// and returns the summed server-reported added count. The server's dedup is
// authoritative: added may be less than len(entries). A chunk failure stops
// the remaining chunks; already-uploaded chunks stay uploaded.
func (c *Client) UploadBulk(ctx context.Context, metric models.Metric, entries []Entry) (int, error) {
	total := 0
	for i := 0; i < len(entries); i += MaxChunkSize {
		end := i + MaxChunkSize
		if end > len(entries) {
			end = len(entries)
		}

		added, err := c.uploadChunk(ctx, metric, entries[i:end])
		if err != nil {
			return total, fmt.Errorf("uploading %s chunk %d-%d: %w", metric, i, end, err)
		}
		total += added
	}
	return total, nil
}

func (c *Client) uploadChunk(ctx context.Context, metric models.Metric, chunk []Entry) (int, error) {
	payload, err := json.Marshal(map[string]any{"entries": chunk})
	if err != nil {
		return 0, fmt.Errorf("marshaling entries: %w", err)
	}

	url := fmt.Sprintf("%s/health-sync/%s/bulk", c.baseURL, metric)
	body, err := c.post(ctx, url, payload)
	if err != nil {
		return 0, err
	}

	var result struct {
		Added int `json:"added"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("decoding bulk response: %w", err)
	}
	return result.Added, nil
}

// UploadRecovery pushes the current recovery snapshot (and the baseline it
// was scored against). Unlike history endpoints, this response MUST parse
// and report synced:true; anything else fails the whole sync run.
func (c *Client) UploadRecovery(ctx context.Context, snap *models.RecoverySnapshot, baseline *models.RecoveryBaseline) error {
	body := map[string]any{"recovery": snap}
	if baseline != nil {
		body["baseline"] = baseline
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling recovery payload: %w", err)
	}

	respBody, err := c.post(ctx, c.baseURL+"/health-sync/sync", payload)
	if err != nil {
		return err
	}

	var result struct {
		Synced bool `json:"synced"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("decoding recovery sync response: %w", err)
	}
	if !result.Synced {
		return ErrSyncNotConfirmed
	}
	return nil
}

func (c *Client) post(ctx context.Context, url string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed (status %d): %s", resp.StatusCode, body)
	}
	return body, nil
}
