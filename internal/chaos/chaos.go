// SPDX-License-Identifier: MIT

// Package chaos injects and clears synthetic failures in the application
// pools to exercise the proxy's failover behavior.
//
// The failure policy is deliberately asymmetric: a failed injection is
// fatal to the invoking command, because a silent no-op would invalidate
// the test run; a failed heal is a warning, because the target may simply
// not have been in chaos mode and the system self-corrects on retry.
package chaos

import (
	"context"
	"fmt"

	"github.com/ManuGH/bgctl/internal/audit"
	"github.com/ManuGH/bgctl/internal/envfile"
	"github.com/ManuGH/bgctl/internal/history"
	xlog "github.com/ManuGH/bgctl/internal/log"
	"github.com/ManuGH/bgctl/internal/metrics"
	"github.com/ManuGH/bgctl/internal/pool"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Prober is the subset of the probe client the driver needs.
type Prober interface {
	StartChaos(ctx context.Context, port int) error
	StopChaos(ctx context.Context, port int) error
	ServedBy(ctx context.Context, port int) (string, error)
}

// InjectionError reports a chaos injection that did not take effect.
// It halts the invoking command.
type InjectionError struct {
	Pool pool.Pool
	Err  error
}

func (e *InjectionError) Error() string {
	return fmt.Sprintf("chaos: inject into %q failed, test run is invalid: %v", e.Pool, e.Err)
}

func (e *InjectionError) Unwrap() error { return e.Err }

// HealResult reports which pools a heal attempt addressed.
type HealResult struct {
	Targets []pool.Pool // pools a clear request was sent to
	Failed  []pool.Pool // subset whose clear request failed (warned, not fatal)
}

// Driver orchestrates failure injection and recovery against the pools.
type Driver struct {
	store   *envfile.Store
	prober  Prober
	auditor *audit.Logger
	journal *history.Store // optional
}

// New returns a Driver. journal may be nil.
func New(store *envfile.Store, prober Prober, auditor *audit.Logger, journal *history.Store) *Driver {
	return &Driver{store: store, prober: prober, auditor: auditor, journal: journal}
}

// Induce puts the currently active pool into error mode. Any failure is
// fatal: an operator relying on chaos injection must know immediately if
// it did not take effect.
func (d *Driver) Induce(ctx context.Context) (pool.Pool, error) {
	ctx = withOperationID(ctx)
	opID := xlog.OperationIDFromContext(ctx)
	logger := xlog.WithComponentFromContext(ctx, "chaos")

	active, err := d.store.ActivePool()
	if err != nil {
		return "", fmt.Errorf("chaos: resolve active pool: %w", err)
	}
	port, err := d.store.AppPort(active)
	if err != nil {
		return "", fmt.Errorf("chaos: resolve %s port: %w", active, err)
	}

	logger.Info().
		Str("event", "chaos.induce").
		Str("pool", active.String()).
		Int("port", port).
		Msg("inducing chaos in active pool")

	if err := d.prober.StartChaos(ctx, port); err != nil {
		d.auditor.Chaos(audit.EventChaosInduce, opID, active.String(), "failure")
		metrics.RecordChaos("induce", "failure")
		d.record(ctx, history.Record{
			OperationID: opID, Kind: history.KindChaosInduce,
			ToPool: active.String(), Result: "failure", Detail: err.Error(),
		})
		return active, &InjectionError{Pool: active, Err: err}
	}

	d.auditor.Chaos(audit.EventChaosInduce, opID, active.String(), "success")
	metrics.RecordChaos("induce", "success")
	d.record(ctx, history.Record{
		OperationID: opID, Kind: history.KindChaosInduce,
		ToPool: active.String(), Result: "success",
	})
	return active, nil
}

// Heal clears chaos mode. With fixed empty, the target is resolved
// dynamically: the pool the proxy is currently serving is the failover
// survivor, so its counterpart is the one that was put into chaos. When
// the routing probe cannot tell, both pools are cleared best effort.
// Passing a fixed pool preserves the legacy fixed-target behavior.
//
// Failures are warnings: Heal never returns a transport error.
func (d *Driver) Heal(ctx context.Context, fixed pool.Pool) HealResult {
	ctx = withOperationID(ctx)
	opID := xlog.OperationIDFromContext(ctx)
	logger := xlog.WithComponentFromContext(ctx, "chaos")

	targets := d.healTargets(ctx, logger, fixed)

	var res HealResult
	for _, target := range targets {
		res.Targets = append(res.Targets, target)

		port, err := d.store.AppPort(target)
		if err != nil {
			logger.Warn().
				Err(err).
				Str("event", "chaos.heal_skipped").
				Str("pool", target.String()).
				Msg("could not resolve pool port for healing")
			res.Failed = append(res.Failed, target)
			continue
		}

		if err := d.prober.StopChaos(ctx, port); err != nil {
			logger.Warn().
				Err(err).
				Str("event", "chaos.heal_unconfirmed").
				Str("pool", target.String()).
				Msg("could not confirm healing; pool may not have been in chaos mode")
			d.auditor.Chaos(audit.EventChaosHeal, opID, target.String(), "warning")
			metrics.RecordChaos("heal", "warning")
			res.Failed = append(res.Failed, target)
			continue
		}

		logger.Info().
			Str("event", "chaos.heal").
			Str("pool", target.String()).
			Msg("chaos cleared")
		d.auditor.Chaos(audit.EventChaosHeal, opID, target.String(), "success")
		metrics.RecordChaos("heal", "success")
		d.record(ctx, history.Record{
			OperationID: opID, Kind: history.KindChaosHeal,
			ToPool: target.String(), Result: "success",
		})
	}
	return res
}

// healTargets picks the pools to clear.
func (d *Driver) healTargets(ctx context.Context, logger zerolog.Logger, fixed pool.Pool) []pool.Pool {
	if fixed.Valid() {
		logger.Debug().
			Str("event", "chaos.heal_target").
			Str("pool", fixed.String()).
			Str("mode", "fixed").
			Msg("legacy fixed heal target")
		return []pool.Pool{fixed}
	}

	both := []pool.Pool{pool.Blue, pool.Green}

	nginxPort, err := d.store.NginxPort()
	if err != nil {
		logger.Warn().Err(err).
			Str("event", "chaos.heal_target_unknown").
			Msg("could not resolve proxy port; clearing both pools")
		return both
	}
	served, err := d.prober.ServedBy(ctx, nginxPort)
	if err != nil {
		logger.Warn().Err(err).
			Str("event", "chaos.heal_target_unknown").
			Msg("routing probe failed; clearing both pools")
		return both
	}
	survivor, err := pool.Parse(served)
	if err != nil {
		logger.Warn().
			Str("event", "chaos.heal_target_unknown").
			Str("served_by", served).
			Msg("routing header names no known pool; clearing both pools")
		return both
	}

	// The pool still serving survived the failover; its counterpart is
	// the one that was put into chaos.
	target := survivor.Other()
	logger.Debug().
		Str("event", "chaos.heal_target").
		Str("pool", target.String()).
		Str("mode", "dynamic").
		Str("serving", survivor.String()).
		Msg("resolved heal target from observed routing")
	return []pool.Pool{target}
}

func (d *Driver) record(ctx context.Context, r history.Record) {
	if d.journal == nil {
		return
	}
	if err := d.journal.Append(ctx, r); err != nil {
		logger := xlog.WithComponentFromContext(ctx, "chaos")
		logger.Warn().
			Err(err).
			Str("event", "chaos.journal_failed").
			Msg("could not journal chaos event")
	}
}

func withOperationID(ctx context.Context) context.Context {
	if xlog.OperationIDFromContext(ctx) != "" {
		return ctx
	}
	return xlog.ContextWithOperationID(ctx, uuid.NewString())
}
