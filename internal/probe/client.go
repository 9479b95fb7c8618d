// SPDX-License-Identifier: MIT

// Package probe issues HTTP requests against the application pools and
// the reverse proxy: it toggles per-pool chaos mode and observes which
// pool a request through the proxy is actually served by.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// ServedByHeader is the response header the application pools set to
// identify themselves.
const ServedByHeader = "X-Served-By"

// DefaultTimeout bounds every probe so a hung pool or proxy does not
// stall the control command indefinitely.
const DefaultTimeout = 5 * time.Second

// Client issues probes against a single host.
type Client struct {
	host string
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the default probe timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHTTPClient substitutes the underlying HTTP client, primarily for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New returns a Client probing ports on host (typically 127.0.0.1).
func New(host string, opts ...Option) *Client {
	c := &Client{
		host: host,
		http: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartChaos asks the pool listening on port to enter error mode. The
// remote contract is best-effort acknowledge: any 2xx is success.
func (c *Client) StartChaos(ctx context.Context, port int) error {
	return c.post(ctx, "start chaos", port, "/chaos/start")
}

// StopChaos asks the pool listening on port to leave error mode.
func (c *Client) StopChaos(ctx context.Context, port int) error {
	return c.post(ctx, "stop chaos", port, "/chaos/stop")
}

// ServedBy requests the proxy's public endpoint and returns the value of
// the X-Served-By response header, identifying the pool that actually
// served the request.
func (c *Client) ServedBy(ctx context.Context, port int) (string, error) {
	target := c.url(port, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("probe: build request: %w", err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return "", c.transportError("served-by", target, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()
	}()

	if res.StatusCode >= http.StatusInternalServerError {
		return "", &ProbeError{Sentinel: ErrBadStatus, Operation: "served-by", Target: target, Status: res.StatusCode}
	}
	return res.Header.Get(ServedByHeader), nil
}

func (c *Client) post(ctx context.Context, op string, port int, path string) error {
	target := c.url(port, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return fmt.Errorf("probe: build request: %w", err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return c.transportError(op, target, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()
	}()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &ProbeError{Sentinel: ErrBadStatus, Operation: op, Target: target, Status: res.StatusCode}
	}
	return nil
}

func (c *Client) url(port int, path string) string {
	return fmt.Sprintf("http://%s%s", net.JoinHostPort(c.host, fmt.Sprintf("%d", port)), path)
}

func (c *Client) transportError(op, target string, err error) error {
	sentinel := ErrUnreachable
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() || errors.Is(err, context.DeadlineExceeded) {
		sentinel = ErrTimeout
	}
	return &ProbeError{Sentinel: sentinel, Operation: op, Target: target, Err: err}
}
