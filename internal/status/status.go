// SPDX-License-Identifier: MIT

// Package status aggregates persisted deployment intent with observed
// live routing into one snapshot. Partial status is more useful than
// none: probe and container-listing failures degrade the view instead of
// failing it.
package status

import (
	"context"
	"time"

	"github.com/ManuGH/bgctl/internal/envfile"
	xlog "github.com/ManuGH/bgctl/internal/log"
	"github.com/ManuGH/bgctl/internal/metrics"
	"github.com/ManuGH/bgctl/internal/pool"
	"golang.org/x/sync/errgroup"
)

// Unknown marks an observation the reporter could not make.
const Unknown = "unknown"

// View is a point-in-time snapshot of the deployment.
type View struct {
	ActivePool   pool.Pool `json:"active_pool"`   // persisted intent
	NginxPort    int       `json:"nginx_port"`    // public proxy port
	Containers   []string  `json:"containers"`    // opaque runtime states
	ObservedPool string    `json:"observed_pool"` // pool the proxy actually served, or "unknown"
	Drift        bool      `json:"drift"`         // persisted and observed disagree
}

// Prober observes which pool serves traffic through the proxy.
type Prober interface {
	ServedBy(ctx context.Context, port int) (string, error)
}

// Lifecycle lists container states.
type Lifecycle interface {
	Status(ctx context.Context) ([]string, error)
}

// Reporter builds deployment snapshots.
type Reporter struct {
	store     *envfile.Store
	prober    Prober
	lifecycle Lifecycle
}

// New returns a Reporter.
func New(store *envfile.Store, prober Prober, lifecycle Lifecycle) *Reporter {
	return &Reporter{store: store, prober: prober, lifecycle: lifecycle}
}

// Snapshot reads persisted intent and probes live state. Only a missing
// or unreadable deployment record fails the snapshot; every live
// observation degrades to its zero value with a logged warning.
func (r *Reporter) Snapshot(ctx context.Context) (View, error) {
	logger := xlog.WithComponentFromContext(ctx, "status")

	active, err := r.store.ActivePool()
	if err != nil {
		return View{}, err
	}
	nginxPort, err := r.store.NginxPort()
	if err != nil {
		return View{}, err
	}

	view := View{
		ActivePool:   active,
		NginxPort:    nginxPort,
		ObservedPool: Unknown,
	}

	// Live observations run in parallel and degrade independently.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		start := time.Now()
		served, probeErr := r.prober.ServedBy(gctx, nginxPort)
		metrics.ObserveProbe(time.Since(start))
		if probeErr != nil {
			logger.Warn().
				Err(probeErr).
				Str("event", "status.probe_failed").
				Msg("live routing probe failed; reporting unknown")
			return nil
		}
		if served != "" {
			view.ObservedPool = served
		}
		return nil
	})

	g.Go(func() error {
		states, lcErr := r.lifecycle.Status(gctx)
		if lcErr != nil {
			logger.Warn().
				Err(lcErr).
				Str("event", "status.containers_failed").
				Msg("could not list container states")
			return nil
		}
		view.Containers = states
		return nil
	})

	// The goroutines never return errors; Wait only orders the writes.
	_ = g.Wait()

	view.Drift = view.ObservedPool != Unknown && view.ObservedPool != active.String()

	metrics.SetActivePool(active.String())
	if view.Drift {
		metrics.RoutingDrift.Set(1)
		logger.Warn().
			Str("event", "status.drift").
			Str("persisted", active.String()).
			Str("observed", view.ObservedPool).
			Msg("persisted intent and live routing disagree")
	} else {
		metrics.RoutingDrift.Set(0)
	}

	return view, nil
}
