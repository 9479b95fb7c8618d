// SPDX-License-Identifier: MIT

package main

import (
	"fmt"

	"github.com/ManuGH/bgctl/internal/audit"
	"github.com/ManuGH/bgctl/internal/chaos"
	"github.com/ManuGH/bgctl/internal/config"
	"github.com/ManuGH/bgctl/internal/envfile"
	"github.com/ManuGH/bgctl/internal/health"
	"github.com/ManuGH/bgctl/internal/history"
	"github.com/ManuGH/bgctl/internal/lifecycle"
	"github.com/ManuGH/bgctl/internal/log"
	"github.com/ManuGH/bgctl/internal/nginx"
	"github.com/ManuGH/bgctl/internal/probe"
	"github.com/ManuGH/bgctl/internal/status"
	"github.com/ManuGH/bgctl/internal/switcher"
)

// app is the wired component set every command runs against.
type app struct {
	cfg      config.Config
	store    *envfile.Store
	prober   *probe.Client
	proxy    *nginx.Controller
	compose  *lifecycle.Compose
	auditor  *audit.Logger
	journal  *history.Store // nil when history_db is empty
	switcher *switcher.Switcher
	chaos    *chaos.Driver
	reporter *status.Reporter
}

func buildApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Service: "bgctl",
		Version: version,
	})

	store := envfile.New(cfg.DeployEnvFile)
	prober := probe.New(cfg.ProbeHost, probe.WithTimeout(cfg.ProbeTimeout))
	auditor := audit.NewLogger()

	var reloader nginx.Reloader
	if cfg.ProxyControlURL != "" {
		reloader = &nginx.HTTPReloader{URL: cfg.ProxyControlURL}
	} else {
		reloader = &nginx.ExecReloader{Runtime: cfg.ContainerRuntime, Container: cfg.ProxyContainer}
	}
	proxy := nginx.NewController(store, reloader, cfg.NginxConfPath, cfg.NginxTemplate)

	var journal *history.Store
	if cfg.HistoryDB != "" {
		journal, err = history.Open(cfg.HistoryDB)
		if err != nil {
			// The journal is best effort everywhere else too; a broken
			// database must not block a traffic switch.
			logger := log.WithComponent("cli")
			logger.Warn().Err(err).
				Str("path", cfg.HistoryDB).Msg("history journal unavailable")
			journal = nil
		}
	}

	compose := lifecycle.NewCompose(lifecycle.ExecRunner{}, cfg.ContainerRuntime, cfg.ComposeFile, cfg.ComposeDir)

	return &app{
		cfg:      cfg,
		store:    store,
		prober:   prober,
		proxy:    proxy,
		compose:  compose,
		auditor:  auditor,
		journal:  journal,
		switcher: switcher.New(store, proxy, auditor, journal),
		chaos:    chaos.New(store, prober, auditor, journal),
		reporter: status.New(store, prober, compose),
	}, nil
}

func (a *app) close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			logger := log.WithComponent("cli")
			logger.Warn().Err(err).Msg("closing history journal")
		}
	}
}

// healthManager builds the serve-mode health surface: the deployment
// record must exist, and the proxy should answer on its public port.
func (a *app) healthManager() *health.Manager {
	hm := health.NewManager(version)
	hm.RegisterChecker(health.NewFileChecker("deployment-record", a.store.Path()))
	hm.RegisterChecker(health.NewProxyChecker(a.prober, func() (int, error) {
		port, err := a.store.NginxPort()
		if err != nil {
			return 0, fmt.Errorf("read nginx port: %w", err)
		}
		return port, nil
	}))
	return hm
}
