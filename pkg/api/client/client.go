// Package client provides an HTTP client for the Gate admission API,
// used by gatectl and embeddable in services that probe admission
// out of process.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rzbill/gate/internal/config"
	"github.com/rzbill/gate/pkg/log"
	"github.com/rzbill/gate/pkg/snapshot"
)

// ClientOptions holds configuration options for the API client.
type ClientOptions struct {
	// Address of the admission server, host:port or full URL.
	Address string

	// CallTimeout bounds each request.
	CallTimeout time.Duration

	// Logger
	Logger log.Logger
}

// DefaultClientOptions returns the default client options.
func DefaultClientOptions() *ClientOptions {
	return &ClientOptions{
		Address:     fmt.Sprintf("localhost:%d", config.DefaultHTTPPort),
		CallTimeout: 30 * time.Second,
		Logger:      log.GetDefaultLogger().WithComponent("api-client"),
	}
}

// Client talks to a Gate admission server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     log.Logger
}

// NewClient creates a new API client with the given options.
func NewClient(options *ClientOptions) (*Client, error) {
	if options == nil {
		options = DefaultClientOptions()
	}
	if options.Address == "" {
		return nil, fmt.Errorf("client requires a server address")
	}
	logger := options.Logger
	if logger == nil {
		logger = log.GetDefaultLogger().WithComponent("api-client")
	}
	timeout := options.CallTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	baseURL := options.Address
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Health is the server's health report.
type Health struct {
	Status string              `json:"status"`
	Reason string              `json:"reason,omitempty"`
	Cache  snapshot.CacheStats `json:"cache"`
}

// GetHealth fetches the server health and snapshot cache state.
func (c *Client) GetHealth(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health request failed: %w", err)
	}
	defer resp.Body.Close()

	// /healthz answers with a body on both 200 and 503.
	var health Health
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	return &health, nil
}

// CheckRequest describes one admission probe.
type CheckRequest struct {
	ProjectID string `json:"projectId"`
	Service   string `json:"service,omitempty"`
	Origin    string `json:"origin,omitempty"`
}

// CheckResult is the server's admission verdict.
type CheckResult struct {
	Allowed bool `json:"allowed"`
	Project *struct {
		ID   string `json:"id"`
		Name string `json:"name,omitempty"`
	} `json:"project,omitempty"`
	RateLimit *struct {
		Limit     int       `json:"limit"`
		Remaining int       `json:"remaining"`
		Window    string    `json:"window"`
		ResetTime time.Time `json:"resetTime"`
	} `json:"rateLimit,omitempty"`
	Error *struct {
		Code              string `json:"code"`
		Message           string `json:"message"`
		Retryable         bool   `json:"retryable"`
		RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
	} `json:"error,omitempty"`

	// HTTPStatus is the status code the server answered with.
	HTTPStatus int `json:"-"`
}

// Check runs an admission probe against the server. A denial is not an
// error; the verdict carries the deny detail. The returned error covers
// transport and decoding failures only.
func (c *Client) Check(ctx context.Context, check CheckRequest) (*CheckResult, error) {
	body, err := json.Marshal(check)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/admission/check", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("admission check failed: %w", err)
	}
	defer resp.Body.Close()

	var result CheckResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode check response: %w", err)
	}
	result.HTTPStatus = resp.StatusCode
	return &result, nil
}
