// SPDX-License-Identifier: MIT

// bgctl drives a local blue/green deployment: two app pools behind an
// nginx reverse proxy, with the active pool recorded in a KEY=VALUE
// file that survives restarts.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ManuGH/bgctl/internal/log"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Safe defaults until the config file is loaded.
	log.Configure(log.Config{
		Level:   "info",
		Service: "bgctl",
		Version: version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx))
}

func run(ctx context.Context) int {
	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}
