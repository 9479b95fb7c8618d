// SPDX-License-Identifier: MIT

// Package switcher moves live traffic between the blue and green pools.
// It owns the switch invariants: at most one pool is active at any
// persisted instant, switching to the already-active pool is a safe
// no-op, and a reload failure after a successful write is reported as a
// distinct, actionable stale-routing condition.
package switcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ManuGH/bgctl/internal/audit"
	"github.com/ManuGH/bgctl/internal/envfile"
	"github.com/ManuGH/bgctl/internal/history"
	xlog "github.com/ManuGH/bgctl/internal/log"
	"github.com/ManuGH/bgctl/internal/metrics"
	"github.com/ManuGH/bgctl/internal/pool"
	"github.com/google/uuid"
)

// ProxyController regenerates and hot-reloads the proxy routing config.
type ProxyController interface {
	Reload(ctx context.Context) error
}

// Result reports the outcome of a switch.
type Result struct {
	Changed bool
	From    pool.Pool
	To      pool.Pool
}

// StaleRoutingError reports the recognized inconsistency window: the
// record already names the new pool but the proxy still routes by the
// old configuration. A reload-only retry resolves it; the write must
// not be repeated.
type StaleRoutingError struct {
	Persisted pool.Pool
	Err       error
}

func (e *StaleRoutingError) Error() string {
	return fmt.Sprintf("switcher: active_pool updated to %q but proxy reload failed; routing is stale until a reload succeeds: %v", e.Persisted, e.Err)
}

func (e *StaleRoutingError) Unwrap() error { return e.Err }

// Switcher orchestrates pool transitions. The mutex serializes mutations
// when bgctl runs as a long-lived service; the one-shot CLI never
// contends on it.
type Switcher struct {
	mu      sync.Mutex
	store   *envfile.Store
	proxy   ProxyController
	auditor *audit.Logger
	journal *history.Store // optional
}

// New returns a Switcher. journal may be nil.
func New(store *envfile.Store, proxy ProxyController, auditor *audit.Logger, journal *history.Store) *Switcher {
	return &Switcher{store: store, proxy: proxy, auditor: auditor, journal: journal}
}

// SwitchTo validates the requested pool, persists it and propagates the
// change to the proxy. The persist step is a single atomic write; the
// reload step is best-effort propagation. The two are deliberately not
// transactional, and a reload failure surfaces as *StaleRoutingError.
func (s *Switcher) SwitchTo(ctx context.Context, requested pool.Pool) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx = withOperationID(ctx)
	opID := xlog.OperationIDFromContext(ctx)
	logger := xlog.WithComponentFromContext(ctx, "switcher")

	if !requested.Valid() {
		metrics.RecordSwitch(requested.String(), "invalid")
		return Result{}, fmt.Errorf("%w: %q", pool.ErrInvalidPool, requested)
	}

	current, err := s.store.ActivePool()
	if err != nil {
		// A record without active_pool is a fatal misconfiguration,
		// not something a switch should paper over.
		metrics.RecordSwitch(requested.String(), "error")
		return Result{}, fmt.Errorf("switcher: read current pool: %w", err)
	}

	if current == requested {
		logger.Warn().
			Str("event", "switch.noop").
			Str("pool", requested.String()).
			Msg("requested pool is already active")
		s.auditor.Switch(audit.EventSwitchNoop, opID, current.String(), requested.String(), "noop")
		metrics.RecordSwitch(requested.String(), "noop")
		s.record(ctx, history.Record{
			OperationID: opID, Kind: history.KindSwitch,
			FromPool: current.String(), ToPool: requested.String(),
			Changed: false, Result: "noop",
		})
		return Result{Changed: false, From: current, To: requested}, nil
	}

	s.auditor.Switch(audit.EventSwitchStart, opID, current.String(), requested.String(), "started")
	logger.Info().
		Str("event", "switch.start").
		Str("from", current.String()).
		Str("to", requested.String()).
		Msg("switching active pool")

	if err := s.store.SetActivePool(requested); err != nil {
		s.auditor.Switch(audit.EventSwitchError, opID, current.String(), requested.String(), "failure")
		metrics.RecordSwitch(requested.String(), "error")
		return Result{}, fmt.Errorf("switcher: persist active pool: %w", err)
	}
	metrics.SetActivePool(requested.String())

	if err := s.proxy.Reload(ctx); err != nil {
		stale := &StaleRoutingError{Persisted: requested, Err: err}
		logger.Error().
			Err(err).
			Str("event", "switch.stale_routing").
			Str("persisted_pool", requested.String()).
			Msg("config updated but proxy reload failed; retry the reload to reconcile")
		s.auditor.Switch(audit.EventSwitchStaleRouting, opID, current.String(), requested.String(), "stale_routing")
		metrics.RecordSwitch(requested.String(), "stale_routing")
		metrics.ReloadFailuresTotal.Inc()
		s.record(ctx, history.Record{
			OperationID: opID, Kind: history.KindSwitch,
			FromPool: current.String(), ToPool: requested.String(),
			Changed: true, Result: "stale_routing", Detail: err.Error(),
		})
		return Result{Changed: true, From: current, To: requested}, stale
	}

	logger.Info().
		Str("event", "switch.success").
		Str("from", current.String()).
		Str("to", requested.String()).
		Msg("active pool switched")
	s.auditor.Switch(audit.EventSwitchSuccess, opID, current.String(), requested.String(), "success")
	metrics.RecordSwitch(requested.String(), "changed")
	s.record(ctx, history.Record{
		OperationID: opID, Kind: history.KindSwitch,
		FromPool: current.String(), ToPool: requested.String(),
		Changed: true, Result: "success",
	})
	return Result{Changed: true, From: current, To: requested}, nil
}

// Reconcile re-runs the render-and-reload leg without touching the
// record. It is the retry an operator issues after a stale-routing
// failure.
func (s *Switcher) Reconcile(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx = withOperationID(ctx)
	logger := xlog.WithComponentFromContext(ctx, "switcher")

	if err := s.proxy.Reload(ctx); err != nil {
		metrics.ReloadFailuresTotal.Inc()
		return fmt.Errorf("switcher: reconcile reload: %w", err)
	}
	logger.Info().Str("event", "switch.reconciled").Msg("proxy routing reconciled with persisted record")
	return nil
}

// IsStaleRouting reports whether err is the persisted-but-not-live
// inconsistency.
func IsStaleRouting(err error) bool {
	var stale *StaleRoutingError
	return errors.As(err, &stale)
}

func (s *Switcher) record(ctx context.Context, r history.Record) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(ctx, r); err != nil {
		logger := xlog.WithComponentFromContext(ctx, "switcher")
		logger.Warn().
			Err(err).
			Str("event", "switch.journal_failed").
			Msg("could not journal switch event")
	}
}

func withOperationID(ctx context.Context) context.Context {
	if xlog.OperationIDFromContext(ctx) != "" {
		return ctx
	}
	return xlog.ContextWithOperationID(ctx, uuid.NewString())
}
