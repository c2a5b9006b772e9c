// Package telemetry exposes Prometheus counters for the arbitrage engine,
// grounded on the teacher's own metrics.go registration pattern:
// package-level collectors registered in init() and incremented directly by
// the component that owns the event. Non-goals
// exclude human-facing dashboards, not numeric observability — these
// series are meant to be scraped, not rendered.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	// MarketDataStaleTotal counts times a venue's book exceeded stale_ms.
	MarketDataStaleTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketdata_stale_total",
			Help: "Times a venue book was found stale, by venue.",
		},
		[]string{"venue"},
	)

	// MarketDataRESTFallbackApplied counts accepted REST fallback snapshots.
	MarketDataRESTFallbackApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketdata_rest_fallback_applied_total",
			Help: "REST fallback snapshots applied after passing the deviation check.",
		},
		[]string{"venue"},
	)

	// MarketDataRESTFallbackDiscarded counts rejected REST fallback snapshots.
	MarketDataRESTFallbackDiscarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketdata_rest_fallback_discarded_total",
			Help: "REST fallback snapshots discarded for exceeding the deviation tolerance.",
		},
		[]string{"venue"},
	)

	// MarketDataCrossedBook counts discarded crossed-book snapshots.
	MarketDataCrossedBook = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketdata_crossed_book_total",
			Help: "Order-book snapshots discarded for being crossed (best bid >= best ask).",
		},
		[]string{"venue"},
	)

	// CoordinatorRecoveryTotal counts recovery-planner actions by situation.
	CoordinatorRecoveryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coordinator_recovery_total",
			Help: "Recovery-planner actions taken, labeled by situation.",
		},
		[]string{"situation"},
	)

	// CoordinatorStuckTotal counts cycles that ended with a stuck position marker set.
	CoordinatorStuckTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coordinator_stuck_total",
			Help: "Cycles that ended with a stuck-position marker set.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		MarketDataStaleTotal,
		MarketDataRESTFallbackApplied,
		MarketDataRESTFallbackDiscarded,
		MarketDataCrossedBook,
		CoordinatorRecoveryTotal,
		CoordinatorStuckTotal,
	)
}
