// Package metrics exposes the engine's running state as Prometheus gauges
// and counters (spec §6 expansion: "engine/queue/breaker/reconciler metrics
// exposed on /metrics"). The package declares the collectors; cmd/engine
// sets them by polling the existing in-process getters (queue.Metrics, the
// breaker's State, the reconciler's RetryQueueDepth,
// mtm.PortfolioSnapshotFor) rather than reaching into their internals, the
// same arm's-length pattern the teacher uses for its own scanner stats.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder owns the process's Prometheus collectors. One Recorder per
// cmd/engine process; Register it against the default registry at startup.
type Recorder struct {
	QueueDepth       *prometheus.GaugeVec
	QueueEnqueued    *prometheus.GaugeVec
	QueueProcessed   *prometheus.GaugeVec
	QueueErrors      *prometheus.GaugeVec
	BreakerState     *prometheus.GaugeVec
	ReconcileRetries prometheus.Gauge
	PortfolioPnL     *prometheus.GaugeVec
}

// NewRecorder builds and registers every collector against reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradecore_queue_depth",
			Help: "Current per-user order queue depth.",
		}, []string{"user"}),
		QueueEnqueued: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradecore_queue_enqueued_total",
			Help: "Cumulative orders enqueued per user.",
		}, []string{"user"}),
		QueueProcessed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradecore_queue_processed_total",
			Help: "Cumulative orders processed per user.",
		}, []string{"user"}),
		QueueErrors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradecore_queue_errors_total",
			Help: "Cumulative handler errors per user.",
		}, []string{"user"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradecore_breaker_state",
			Help: "Circuit breaker state: 0=CLOSED, 1=HALF_OPEN, 2=OPEN.",
		}, []string{"name"}),
		ReconcileRetries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradecore_reconcile_retry_queue_depth",
			Help: "Orders currently awaiting a retry attempt.",
		}),
		PortfolioPnL: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradecore_portfolio_unrealised_pnl",
			Help: "Live unrealised PnL per user.",
		}, []string{"user"}),
	}

	reg.MustRegister(
		r.QueueDepth, r.QueueEnqueued, r.QueueProcessed, r.QueueErrors,
		r.BreakerState, r.ReconcileRetries, r.PortfolioPnL,
	)
	return r
}

// BreakerStateValue maps a circuit state name onto the gauge's numeric scale.
func BreakerStateValue(state string) float64 {
	switch state {
	case "HALF_OPEN":
		return 1
	case "OPEN":
		return 2
	default: // CLOSED
		return 0
	}
}
