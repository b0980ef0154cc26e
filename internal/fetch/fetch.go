// Package fetch retrieves telemetry snapshots over HTTP.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrNotFound is wrapped when the upstream answers 404, meaning the endpoint
// does not exist on that node rather than a transient failure.
var ErrNotFound = errors.New("endpoint not found")

const (
	DefaultTimeout      = 5 * time.Second
	DefaultMaxBodyBytes = 16 << 20
)

// Client performs GET requests and returns the raw body of 2xx responses.
type Client struct {
	http    *http.Client
	maxBody int64
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithMaxBodyBytes bounds how much of a response body is read.
func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// NewClient builds a Client whose transport is instrumented with otelhttp.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		maxBody: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches url. Non-2xx responses are errors; 404 wraps ErrNotFound.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("HTTP %d from %s: %w", resp.StatusCode, url, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", url, c.maxBody)
	}
	return body, nil
}

// Fetcher is the transport contract used by poll loops.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Endpoint binds a Client to a fixed URL.
type Endpoint struct {
	Client *Client
	URL    string
}

// Fetch implements Fetcher.
func (e Endpoint) Fetch(ctx context.Context) ([]byte, error) {
	return e.Client.Get(ctx, e.URL)
}
