// SPDX-License-Identifier: MIT

package nginx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"time"
)

// ExecReloader sends a graceful reload signal to the nginx process
// running inside a container.
type ExecReloader struct {
	Runtime   string // container runtime binary, e.g. "docker" or "podman"
	Container string // name of the proxy container
}

// Reload runs `<runtime> exec <container> nginx -s reload`.
func (r *ExecReloader) Reload(ctx context.Context) error {
	runtime := r.Runtime
	if runtime == "" {
		runtime = "docker"
	}
	// #nosec G204 -- runtime and container come from operator configuration
	cmd := exec.CommandContext(ctx, runtime, "exec", r.Container, "nginx", "-s", "reload")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %s exec %s: %v: %s", ErrProxyUnreachable, runtime, r.Container, err, out)
	}
	return nil
}

// HTTPReloader posts a regenerate-and-reload command to a proxy control
// sidecar reachable at a known network address.
type HTTPReloader struct {
	URL    string // control endpoint, e.g. http://127.0.0.1:8081/reload
	Client *http.Client
}

// Reload triggers the control endpoint.
func (r *HTTPReloader) Reload(ctx context.Context) error {
	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, nil)
	if err != nil {
		return fmt.Errorf("nginx: build reload request: %w", err)
	}
	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrProxyUnreachable, r.URL, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()
	}()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("%w: %s returned HTTP %d", ErrProxyUnreachable, r.URL, res.StatusCode)
	}
	return nil
}
