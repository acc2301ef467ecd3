// Package client provides a Go client for a remote job-manager instance over
// its HTTP API.
//
// Usage:
//
//	c := client.New("http://job-manager:8080")
//
//	created, err := c.CreateJob(ctx, api.CreateJobRequest{
//	    ResourceID: "bluemarble",
//	    Version:    "1.0",
//	    Type:       "ingestion",
//	    Parameters: params,
//	})
//
//	// Worker side: claim the next pending task of a type.
//	t, err := c.ClaimTask(ctx, "ingestion", "tiling")
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	jobmanager "github.com/MapColonies/job-manager"
	"github.com/MapColonies/job-manager/backoff"
)

// Client talks to a job-manager server. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	// Idempotent requests are retried on transport errors and 5xx.
	retry      backoff.Strategy
	maxRetries int
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		retry:      backoff.DefaultStrategy(),
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiError is the server's error body.
type apiError struct {
	Message string `json:"message"`
}

// do sends one request and decodes the JSON response into out (when non-nil).
// Idempotent requests are retried per the client's backoff strategy; anything
// else is sent exactly once.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: marshal request: %w", err)
		}
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	idempotent := method == http.MethodGet || method == http.MethodDelete

	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.retry.Delay(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
			c.logger.Debug("retrying request", "method", method, "path", path, "attempt", attempt)
		}

		retryable, err := c.send(ctx, method, u, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if !idempotent || !retryable || attempt >= c.maxRetries {
			return lastErr
		}
	}
}

// send performs a single HTTP round trip. The bool reports whether the
// failure is worth retrying.
func (c *Client) send(ctx context.Context, method, u string, payload []byte, out any) (bool, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return false, fmt.Errorf("client: build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("client: %s %s: %w", method, u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return resp.StatusCode >= 500, c.errorFromResponse(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("client: decode response: %w", err)
		}
	}
	return false, nil
}

// errorFromResponse maps an error response back to the sentinel taxonomy so
// callers can use errors.Is exactly as they would against the stores.
func (c *Client) errorFromResponse(resp *http.Response) error {
	var e apiError
	msg := resp.Status
	if decodeErr := json.NewDecoder(resp.Body).Decode(&e); decodeErr == nil && e.Message != "" {
		msg = e.Message
	}

	if sentinel := sentinelFromMessage(resp.StatusCode, msg); sentinel != nil {
		return sentinel
	}
	return fmt.Errorf("client: server returned %d: %s", resp.StatusCode, msg)
}

// sentinelFromMessage recovers the sentinel error a status code and message
// encode. The server writes sentinel texts verbatim, so a prefix match on the
// known texts is exact, not heuristic.
func sentinelFromMessage(status int, msg string) error {
	var candidates []error
	switch status {
	case http.StatusNotFound:
		candidates = []error{
			jobmanager.ErrJobNotFound,
			jobmanager.ErrTaskNotFound,
			jobmanager.ErrNoPendingTasks,
		}
	case http.StatusConflict:
		candidates = []error{
			jobmanager.ErrActiveJobExists,
			jobmanager.ErrDuplicateTask,
		}
	case http.StatusUnprocessableEntity:
		candidates = []error{jobmanager.ErrJobHasTasks}
	case http.StatusBadRequest:
		candidates = []error{
			jobmanager.ErrJobNotResettable,
			jobmanager.ErrJobNotAbortable,
		}
	}
	for _, sentinel := range candidates {
		if len(msg) >= len(sentinel.Error()) && msg[:len(sentinel.Error())] == sentinel.Error() {
			return sentinel
		}
	}
	return nil
}
