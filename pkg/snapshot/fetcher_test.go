package snapshot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/gate/pkg/log"
	"github.com/rzbill/gate/pkg/types"
)

const validEnvelope = `{
	"success": true,
	"data": {
		"version": 3,
		"timestamp": "2026-08-01T12:00:00Z",
		"projects": {
			"p1": {"id": "p1", "name": "One", "status": "ACTIVE", "tenantId": "t1", "enabledServices": ["auth"]}
		},
		"services": {
			"auth": {"name": "auth", "enabled": true, "endpoint": "http://auth:8080"}
		},
		"rateLimits": {
			"p1": {"requestsPerMinute": 10, "requestsPerHour": 100, "burstAllowance": 2}
		}
	},
	"error": null
}`

func serveJSON(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestHTTPFetcher_Success(t *testing.T) {
	server := serveJSON(t, http.StatusOK, validEnvelope)
	fetcher := NewHTTPFetcher(server.URL, log.NewTestLogger())

	snap, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.Version)
	assert.Contains(t, snap.Projects, "p1")
	assert.Equal(t, types.ProjectStatusActive, snap.Projects["p1"].Status)

	stats := fetcher.Stats()
	assert.Equal(t, int64(0), stats.Failures)
	assert.False(t, stats.LastSuccess.IsZero())
}

func TestHTTPFetcher_Non2xx(t *testing.T) {
	server := serveJSON(t, http.StatusBadGateway, `{}`)
	fetcher := NewHTTPFetcher(server.URL, log.NewTestLogger())

	_, err := fetcher.Fetch(context.Background())
	require.Error(t, err)
	var fe *types.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, int64(1), fetcher.Stats().Failures)
}

func TestHTTPFetcher_SuccessFalse(t *testing.T) {
	server := serveJSON(t, http.StatusOK, `{"success": false, "data": null, "error": "backend down"}`)
	fetcher := NewHTTPFetcher(server.URL, log.NewTestLogger())

	_, err := fetcher.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")
}

func TestHTTPFetcher_NullData(t *testing.T) {
	server := serveJSON(t, http.StatusOK, `{"success": true, "data": null, "error": null}`)
	fetcher := NewHTTPFetcher(server.URL, log.NewTestLogger())

	_, err := fetcher.Fetch(context.Background())
	require.Error(t, err)
}

func TestHTTPFetcher_NonJSON(t *testing.T) {
	server := serveJSON(t, http.StatusOK, `<html>gateway timeout</html>`)
	fetcher := NewHTTPFetcher(server.URL, log.NewTestLogger())

	_, err := fetcher.Fetch(context.Background())
	require.Error(t, err)
}

func TestHTTPFetcher_MappingsMustNotBeArrays(t *testing.T) {
	server := serveJSON(t, http.StatusOK, `{
		"success": true,
		"data": {
			"version": 1,
			"timestamp": "2026-08-01T12:00:00Z",
			"projects": [],
			"services": {},
			"rateLimits": {}
		}
	}`)
	fetcher := NewHTTPFetcher(server.URL, log.NewTestLogger())

	_, err := fetcher.Fetch(context.Background())
	require.Error(t, err)
	var fe *types.FetchError
	assert.ErrorAs(t, err, &fe)
}

func TestHTTPFetcher_NegativeVersion(t *testing.T) {
	server := serveJSON(t, http.StatusOK, `{
		"success": true,
		"data": {
			"version": -2,
			"timestamp": "2026-08-01T12:00:00Z",
			"projects": {},
			"services": {},
			"rateLimits": {}
		}
	}`)
	fetcher := NewHTTPFetcher(server.URL, log.NewTestLogger())

	_, err := fetcher.Fetch(context.Background())
	require.Error(t, err)
}

func TestHTTPFetcher_PoisonedPayload(t *testing.T) {
	server := serveJSON(t, http.StatusOK, `{
		"success": true,
		"data": {
			"version": 1,
			"timestamp": "2026-08-01T12:00:00Z",
			"projects": {"__proto__": {"id": "x", "status": "ACTIVE"}},
			"services": {},
			"rateLimits": {}
		}
	}`)
	logger := log.NewTestLogger()
	fetcher := NewHTTPFetcher(server.URL, logger)

	_, err := fetcher.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsPoisonedPayload(err))

	// Poisoned payloads are logged at elevated severity.
	entries := logger.Entries()
	require.NotEmpty(t, entries)
	assert.Equal(t, log.ErrorLevel, entries[len(entries)-1].Level)
}

func TestHTTPFetcher_FailureCounterResetsOnSuccess(t *testing.T) {
	failing := serveJSON(t, http.StatusInternalServerError, `{}`)
	fetcher := NewHTTPFetcher(failing.URL, log.NewTestLogger())

	_, _ = fetcher.Fetch(context.Background())
	_, _ = fetcher.Fetch(context.Background())
	assert.Equal(t, int64(2), fetcher.Stats().Failures)

	healthy := serveJSON(t, http.StatusOK, validEnvelope)
	recovered := NewHTTPFetcher(healthy.URL, log.NewTestLogger())
	recovered.failures.Store(5)
	_, err := recovered.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), recovered.Stats().Failures)
}

func TestHTTPFetcher_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(server.Close)

	fetcher := NewHTTPFetcher(server.URL, log.NewTestLogger(), WithFetchTimeout(20*time.Millisecond))
	_, err := fetcher.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, int64(1), fetcher.Stats().Failures)
}

func TestFileFetcher_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	doc := `
version: 7
timestamp: 2026-08-01T12:00:00Z
projects:
  p1:
    id: p1
    status: ACTIVE
    enabled_services: [auth]
services:
  auth:
    name: auth
    enabled: true
rate_limits:
  p1:
    requests_per_minute: 10
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	fetcher := NewFileFetcher(path, log.NewTestLogger())
	snap, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), snap.Version)
	assert.True(t, snap.Projects["p1"].HasService("auth"))
}

func TestFileFetcher_PoisonedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	doc := `
version: 1
timestamp: 2026-08-01T12:00:00Z
projects:
  __proto__:
    id: bad
services: {}
rate_limits: {}
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	fetcher := NewFileFetcher(path, log.NewTestLogger())
	_, err := fetcher.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsPoisonedPayload(err))
}

func TestFileFetcher_JSONEnvelope(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte(validEnvelope), 0o644))

	fetcher := NewFileFetcher(path, log.NewTestLogger())
	snap, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.Version)
}

func TestFileFetcher_MissingFile(t *testing.T) {
	fetcher := NewFileFetcher(filepath.Join(t.TempDir(), "nope.json"), log.NewTestLogger())
	_, err := fetcher.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, int64(1), fetcher.Stats().Failures)
}
