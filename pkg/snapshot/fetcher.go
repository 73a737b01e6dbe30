// Package snapshot implements the fetch-validate-cache pipeline that
// turns remote control-plane tenant state into a trustworthy local
// snapshot.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rzbill/gate/pkg/log"
	"github.com/rzbill/gate/pkg/types"
)

// Fetcher obtains one structurally validated snapshot from a source.
// A fetcher performs no caching and no retries; retry policy belongs to
// the cache's refresh loop.
type Fetcher interface {
	// Fetch performs a single fetch-validate round trip. The returned
	// snapshot has passed structural validation; any failure, network or
	// validation alike, is reported as a *types.FetchError.
	Fetch(ctx context.Context) (*types.Snapshot, error)

	// Stats returns fetch health counters for observability.
	Stats() FetchStats
}

// FetchStats captures fetch health for observability. It feeds health
// reporting, never admission decisions.
type FetchStats struct {
	Failures    int64
	LastAttempt time.Time
	LastSuccess time.Time
}

// fetchHealth is the shared failure/last-attempt bookkeeping embedded by
// fetcher implementations.
type fetchHealth struct {
	failures    atomic.Int64
	mu          sync.Mutex
	lastAttempt time.Time
	lastSuccess time.Time
}

func (h *fetchHealth) recordAttempt(now time.Time) {
	h.mu.Lock()
	h.lastAttempt = now
	h.mu.Unlock()
}

func (h *fetchHealth) recordSuccess(now time.Time) {
	h.failures.Store(0)
	h.mu.Lock()
	h.lastSuccess = now
	h.mu.Unlock()
}

func (h *fetchHealth) recordFailure() {
	h.failures.Add(1)
}

func (h *fetchHealth) stats() FetchStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return FetchStats{
		Failures:    h.failures.Load(),
		LastAttempt: h.lastAttempt,
		LastSuccess: h.lastSuccess,
	}
}

// envelope is the wire shape of the control plane's snapshot endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// HTTPFetcher fetches snapshots from the control plane over HTTP.
type HTTPFetcher struct {
	fetchHealth

	url    string
	client *http.Client
	logger log.Logger
	clock  func() time.Time
}

// HTTPFetcherOption configures an HTTPFetcher.
type HTTPFetcherOption func(*HTTPFetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) HTTPFetcherOption {
	return func(f *HTTPFetcher) {
		f.client = client
	}
}

// WithFetchTimeout bounds each fetch round trip.
func WithFetchTimeout(timeout time.Duration) HTTPFetcherOption {
	return func(f *HTTPFetcher) {
		f.client.Timeout = timeout
	}
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) HTTPFetcherOption {
	return func(f *HTTPFetcher) {
		f.clock = clock
	}
}

// NewHTTPFetcher creates a fetcher for the given snapshot endpoint.
func NewHTTPFetcher(url string, logger log.Logger, options ...HTTPFetcherOption) *HTTPFetcher {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	f := &HTTPFetcher{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.WithComponent("snapshot-fetcher"),
		clock:  time.Now,
	}
	for _, option := range options {
		option(f)
	}
	return f
}

// Fetch performs one fetch-validate round trip against the control
// plane.
func (f *HTTPFetcher) Fetch(ctx context.Context) (*types.Snapshot, error) {
	f.recordAttempt(f.clock())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, f.fail(types.NewFetchError("building request", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, f.fail(types.NewFetchError("request failed", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, f.fail(types.NewFetchError(fmt.Sprintf("unexpected status %d", resp.StatusCode), nil))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, f.fail(types.NewFetchError("reading response body", err))
	}

	snap, err := decodeSnapshot(body)
	if err != nil {
		return nil, f.fail(err)
	}

	f.recordSuccess(f.clock())
	return snap, nil
}

// Stats returns fetch health counters.
func (f *HTTPFetcher) Stats() FetchStats {
	return f.stats()
}

func (f *HTTPFetcher) fail(err error) error {
	f.recordFailure()
	if types.IsPoisonedPayload(err) {
		f.logger.Error("rejected poisoned snapshot payload", log.Err(err))
	} else {
		f.logger.Warn("snapshot fetch failed", log.Err(err))
	}
	return err
}

// maxSnapshotBytes caps how much of a snapshot response is read. A
// control plane that streams an unbounded body must not exhaust gateway
// memory.
const maxSnapshotBytes = 32 << 20

// decodeSnapshot parses and structurally validates a snapshot envelope.
// Every failure is reported as a *types.FetchError so callers treat
// malformed payloads exactly like network failures.
func decodeSnapshot(body []byte) (*types.Snapshot, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, types.NewFetchError("invalid JSON envelope", err)
	}
	if !env.Success {
		reason := "control plane reported failure"
		if env.Error != "" {
			reason = fmt.Sprintf("control plane reported failure: %s", env.Error)
		}
		return nil, types.NewFetchError(reason, nil)
	}
	if len(env.Data) == 0 || bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		return nil, types.NewFetchError("envelope data is null", nil)
	}

	var snap types.Snapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		// Catches non-mapping shapes for projects/services/rateLimits as
		// well as malformed versions and timestamps.
		return nil, types.NewFetchError("malformed snapshot data", err)
	}
	if err := snap.Validate(); err != nil {
		if types.IsPoisonedPayload(err) {
			return nil, err
		}
		return nil, types.NewFetchError("structural validation failed", err)
	}

	return &snap, nil
}
