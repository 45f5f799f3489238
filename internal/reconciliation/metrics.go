package reconciliation

import "github.com/prometheus/client_golang/prometheus"

var (
	reconcileEscrowDrift = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "matchpit",
		Subsystem: "reconciliation",
		Name:      "escrow_drift",
		Help:      "Escrowed wallet total minus active stake total, in minor units. Nonzero means money and wager state disagree.",
	})

	reconcileStaleOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "matchpit",
		Subsystem: "reconciliation",
		Name:      "stale_open_wagers",
		Help:      "Open wagers past their acceptance deadline awaiting the sweeper.",
	})

	reconcileOverduePending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "matchpit",
		Subsystem: "reconciliation",
		Name:      "overdue_pending_wagers",
		Help:      "Undisputed pending wagers past their dispute window awaiting finalization.",
	})

	reconcileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "matchpit",
		Subsystem: "reconciliation",
		Name:      "run_duration_seconds",
		Help:      "Duration of reconciliation runs in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	reconcileErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "matchpit",
		Subsystem: "reconciliation",
		Name:      "errors_total",
		Help:      "Total reconciliation check errors.",
	})
)

func init() {
	prometheus.MustRegister(
		reconcileEscrowDrift,
		reconcileStaleOpen,
		reconcileOverduePending,
		reconcileDuration,
		reconcileErrors,
	)
}
