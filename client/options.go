package client

import (
	"log/slog"
	"net/http"

	"github.com/MapColonies/job-manager/backoff"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRetry sets the backoff strategy and retry cap for idempotent requests.
// maxRetries 0 disables retrying.
func WithRetry(s backoff.Strategy, maxRetries int) Option {
	return func(c *Client) {
		c.retry = s
		c.maxRetries = maxRetries
	}
}
