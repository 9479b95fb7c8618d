// SPDX-License-Identifier: MIT

// Package server exposes the deployment controls over HTTP for the
// long-running serve mode. Every endpoint maps onto the same components
// the one-shot CLI commands use.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/bgctl/internal/chaos"
	"github.com/ManuGH/bgctl/internal/envfile"
	"github.com/ManuGH/bgctl/internal/health"
	"github.com/ManuGH/bgctl/internal/history"
	"github.com/ManuGH/bgctl/internal/log"
	"github.com/ManuGH/bgctl/internal/status"
	"github.com/ManuGH/bgctl/internal/switcher"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second

	// Mutating endpoints share one limit; switches are not something a
	// healthy operator does hundreds of times a minute.
	mutateLimit  = 30
	mutateWindow = time.Minute
)

// Server wires the deployment components behind a chi router.
type Server struct {
	listen   string
	store    *envfile.Store
	switcher *switcher.Switcher
	chaos    *chaos.Driver
	reporter *status.Reporter
	journal  *history.Store // optional
	health   *health.Manager
}

// Options carries the component set for New. Journal may be nil.
type Options struct {
	Listen   string
	Store    *envfile.Store
	Switcher *switcher.Switcher
	Chaos    *chaos.Driver
	Reporter *status.Reporter
	Journal  *history.Store
	Health   *health.Manager
}

func New(opts Options) *Server {
	return &Server{
		listen:   opts.Listen,
		store:    opts.Store,
		switcher: opts.Switcher,
		chaos:    opts.Chaos,
		reporter: opts.Reporter,
		journal:  opts.Journal,
		health:   opts.Health,
	}
}

// Router builds the HTTP surface. Split out from Run so tests can drive
// it through httptest.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(requestID)
	r.Use(requestLogger)

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/history", s.handleHistory)

		r.Group(func(r chi.Router) {
			r.Use(httprate.Limit(
				mutateLimit,
				mutateWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, req *http.Request) {
					writeError(w, req, http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests")
				}),
			))
			r.Post("/switch/{pool}", s.handleSwitch)
			r.Post("/chaos", s.handleChaos)
			r.Post("/heal", s.handleHeal)
		})
	})

	return r
}

// Run serves until ctx is cancelled, then drains connections. It also
// watches the deployment record so externally edited state shows up in
// the logs and gauges without waiting for the next API call.
func (s *Server) Run(ctx context.Context) error {
	logger := log.WithComponent("server")

	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go s.watchRecord(ctx, logger)

	errChan := make(chan error, 1)
	go func() {
		logger.Info().Str("event", "server.listen").Str("addr", s.listen).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server: listen on %s: %w", s.listen, err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Str("event", "server.shutdown").Msg("shutdown error")
		return err
	}
	logger.Info().Str("event", "server.stopped").Msg("http server stopped")
	return nil
}

// watchRecord logs external edits to the deployment record and refreshes
// the status gauges so drift introduced behind bgctl's back is visible.
func (s *Server) watchRecord(ctx context.Context, logger zerolog.Logger) {
	changes, err := s.store.Watch(ctx, logger)
	if err != nil {
		logger.Warn().Err(err).Str("event", "server.watch").Msg("record watch unavailable")
		return
	}
	for range changes {
		logger.Info().Str("event", "record.changed").Str("path", s.store.Path()).
			Msg("deployment record changed on disk")
		snapCtx, cancel := context.WithTimeout(ctx, readHeaderTimeout)
		if _, err := s.reporter.Snapshot(snapCtx); err != nil {
			logger.Warn().Err(err).Str("event", "record.changed").Msg("status refresh failed")
		}
		cancel()
	}
}
