// SPDX-License-Identifier: MIT

// Package health provides liveness and readiness checks for bgctl's
// serve mode with detailed component status.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/ManuGH/bgctl/internal/log"
)

// Status represents the overall health/readiness status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult represents the result of a component health check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Response represents the full health check response
type Response struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Ready     bool                   `json:"ready"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker defines the interface for health checks
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager manages health and readiness checks
type Manager struct {
	version  string
	checkers []Checker
}

// NewManager creates a new health check manager
func NewManager(version string) *Manager {
	return &Manager{version: version}
}

// RegisterChecker adds a health checker to the manager
func (m *Manager) RegisterChecker(checker Checker) {
	m.checkers = append(m.checkers, checker)
}

// Health performs a liveness check: 200 as long as the process is alive.
func (m *Manager) Health() Response {
	return Response{
		Status:    StatusHealthy,
		Version:   m.version,
		Ready:     true,
		Timestamp: time.Now(),
	}
}

// Ready performs a readiness check over all registered checkers.
func (m *Manager) Ready(ctx context.Context) Response {
	resp := Response{
		Status:    StatusHealthy,
		Version:   m.version,
		Ready:     true,
		Timestamp: time.Now(),
	}
	if len(m.checkers) == 0 {
		return resp
	}

	resp.Checks = make(map[string]CheckResult, len(m.checkers))
	for _, checker := range m.checkers {
		result := checker.Check(ctx)
		resp.Checks[checker.Name()] = result

		switch result.Status {
		case StatusUnhealthy:
			resp.Status = StatusUnhealthy
			resp.Ready = false
		case StatusDegraded:
			if resp.Status == StatusHealthy {
				resp.Status = StatusDegraded
			}
		}
	}
	return resp
}

// ServeHealth handles HTTP liveness requests.
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, m.Health())
}

// ServeReady handles HTTP readiness requests.
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	resp := m.Ready(r.Context())
	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, resp)
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "health")
		logger.Error().Err(err).Str("event", "health.encode_error").Msg("failed to encode health response")
	}
}

// FileChecker verifies the deployment record exists and is non-empty.
type FileChecker struct {
	name string
	path string
}

// NewFileChecker creates a checker for the deployment record.
func NewFileChecker(name, path string) *FileChecker {
	return &FileChecker{name: name, path: path}
}

func (c *FileChecker) Name() string { return c.name }

func (c *FileChecker) Check(_ context.Context) CheckResult {
	info, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return CheckResult{Status: StatusUnhealthy, Error: "file not found", Message: c.path}
		}
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if info.IsDir() {
		return CheckResult{Status: StatusUnhealthy, Error: "expected file, got directory"}
	}
	if info.Size() == 0 {
		return CheckResult{Status: StatusDegraded, Message: "file is empty"}
	}
	return CheckResult{Status: StatusHealthy, Message: "file exists and readable"}
}

// ProxyChecker verifies the reverse proxy answers on its public port.
type ProxyChecker struct {
	prober interface {
		ServedBy(ctx context.Context, port int) (string, error)
	}
	port func() (int, error)
}

// NewProxyChecker creates a checker probing the proxy's public endpoint.
// port is resolved per check so record edits are picked up.
func NewProxyChecker(prober interface {
	ServedBy(ctx context.Context, port int) (string, error)
}, port func() (int, error)) *ProxyChecker {
	return &ProxyChecker{prober: prober, port: port}
}

func (c *ProxyChecker) Name() string { return "proxy" }

func (c *ProxyChecker) Check(ctx context.Context) CheckResult {
	port, err := c.port()
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	served, err := c.prober.ServedBy(ctx, port)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if served == "" {
		return CheckResult{Status: StatusDegraded, Message: "proxy reachable but no pool header"}
	}
	return CheckResult{Status: StatusHealthy, Message: "serving " + served}
}
