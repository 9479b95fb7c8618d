// Package metrics provides Prometheus metrics for bgctl switch, reload
// and chaos operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SwitchTotal counts pool switch attempts by outcome.
	// Outcomes: changed, noop, invalid, stale_routing, error.
	SwitchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bgctl_switch_total",
		Help: "Total number of pool switch attempts, by target pool and outcome.",
	}, []string{"pool", "outcome"})

	// ReloadFailuresTotal counts proxy reload failures.
	ReloadFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bgctl_reload_failures_total",
		Help: "Total number of proxy reload failures.",
	})

	// ChaosOperationsTotal counts chaos operations by kind and result.
	ChaosOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bgctl_chaos_operations_total",
		Help: "Total number of chaos operations, by kind (induce/heal) and result.",
	}, []string{"kind", "result"})

	// ProbeDuration observes routing probe latency.
	ProbeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bgctl_probe_duration_seconds",
		Help:    "Latency of routing probes against the proxy.",
		Buckets: prometheus.DefBuckets,
	})

	// ActivePool reports the persisted active pool as a one-hot gauge.
	ActivePool = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bgctl_active_pool",
		Help: "Persisted active pool (1 for the active pool, 0 otherwise).",
	}, []string{"pool"})

	// RoutingDrift reports whether persisted intent and observed routing
	// currently disagree.
	RoutingDrift = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bgctl_routing_drift",
		Help: "1 when persisted active pool and observed routing disagree, else 0.",
	})
)

// RecordSwitch increments the switch counter.
func RecordSwitch(pool, outcome string) {
	SwitchTotal.WithLabelValues(pool, outcome).Inc()
}

// RecordChaos increments the chaos operation counter.
func RecordChaos(kind, result string) {
	ChaosOperationsTotal.WithLabelValues(kind, result).Inc()
}

// SetActivePool flips the one-hot active pool gauge.
func SetActivePool(active string) {
	for _, p := range []string{"blue", "green"} {
		v := 0.0
		if p == active {
			v = 1.0
		}
		ActivePool.WithLabelValues(p).Set(v)
	}
}

// ObserveProbe records a routing probe duration.
func ObserveProbe(d time.Duration) {
	ProbeDuration.Observe(d.Seconds())
}
