// SPDX-License-Identifier: MIT

// Package lifecycle brings the deployment's container set up and down.
// It is a thin delegation layer over the compose CLI; the container
// runtime is an external collaborator with no interesting logic here.
package lifecycle

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	xlog "github.com/ManuGH/bgctl/internal/log"
)

// Runner executes an external command and returns its combined output.
// Injected so the orchestration logic tests against fakes without a live
// container runtime.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	// #nosec G204 -- command and args come from operator configuration
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// Compose delegates to `<binary> compose -f <file>`.
type Compose struct {
	runner Runner
	binary string // "docker" or "podman"
	file   string // compose file path
	dir    string // working directory
}

// NewCompose returns a Compose lifecycle for the given compose file.
func NewCompose(runner Runner, binary, file, dir string) *Compose {
	if binary == "" {
		binary = "docker"
	}
	return &Compose{runner: runner, binary: binary, file: file, dir: dir}
}

// Up starts the container set detached.
func (c *Compose) Up(ctx context.Context) error {
	return c.run(ctx, "lifecycle.up", "up", "-d")
}

// Down stops and removes the container set.
func (c *Compose) Down(ctx context.Context) error {
	return c.run(ctx, "lifecycle.down", "down")
}

// Status lists container states as opaque lines from the runtime.
func (c *Compose) Status(ctx context.Context) ([]string, error) {
	out, err := c.runner.Run(ctx, c.dir, c.binary, c.args("ps", "--format", "{{.Name}}\t{{.Status}}")...)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: compose ps: %w: %s", err, strings.TrimSpace(string(out)))
	}
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func (c *Compose) run(ctx context.Context, event string, args ...string) error {
	logger := xlog.WithComponentFromContext(ctx, "lifecycle")
	logger.Info().
		Str("event", event).
		Str("compose_file", c.file).
		Msg("executing compose")

	out, err := c.runner.Run(ctx, c.dir, c.binary, c.args(args...)...)
	if err != nil {
		return fmt.Errorf("lifecycle: %s compose %s: %w: %s", c.binary, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (c *Compose) args(args ...string) []string {
	full := []string{"compose"}
	if c.file != "" {
		full = append(full, "-f", c.file)
	}
	return append(full, args...)
}
