// Package metrics provides Prometheus instrumentation for the Matchpit wager service.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchpit",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "matchpit",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// WagersCreatedTotal counts wagers created.
	WagersCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "matchpit",
		Name:      "wagers_created_total",
		Help:      "Total wagers created.",
	})

	// WagersAcceptedTotal counts wagers accepted by an opponent.
	WagersAcceptedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "matchpit",
		Name:      "wagers_accepted_total",
		Help:      "Total wagers accepted.",
	})

	// WagersSettledTotal counts settled wagers by outcome.
	WagersSettledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchpit",
			Name:      "wagers_settled_total",
			Help:      "Total wagers settled by outcome (won, voided).",
		},
		[]string{"outcome"},
	)

	// WagersDisputedTotal counts disputes opened.
	WagersDisputedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "matchpit",
		Name:      "wagers_disputed_total",
		Help:      "Total disputes opened.",
	})

	// WagersExpiredTotal counts wagers expired by path (sweep or lazy read).
	WagersExpiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchpit",
			Name:      "wagers_expired_total",
			Help:      "Total wagers expired by path.",
		},
		[]string{"path"},
	)

	// WagersCancelledTotal counts wagers cancelled by their creator.
	WagersCancelledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "matchpit",
		Name:      "wagers_cancelled_total",
		Help:      "Total wagers cancelled before acceptance.",
	})

	// LedgerOpsTotal counts escrow ledger operations by kind and result.
	LedgerOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchpit",
			Name:      "ledger_ops_total",
			Help:      "Total escrow ledger operations by kind and result.",
		},
		[]string{"kind", "result"},
	)

	// SettlementDuration observes time from wager start to settlement.
	SettlementDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "matchpit",
		Name:      "settlement_duration_seconds",
		Help:      "Time from wager start to settlement in seconds.",
		Buckets:   []float64{60, 300, 900, 1800, 3600, 7200, 21600, 86400, 259200},
	})

	// EventDeliveriesTotal counts webhook event deliveries by result.
	EventDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchpit",
			Name:      "event_deliveries_total",
			Help:      "Total webhook event deliveries by result.",
		},
		[]string{"result"},
	)

	// OpenDisputes tracks disputes currently awaiting a moderator ruling.
	OpenDisputes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "matchpit",
			Name:      "open_disputes",
			Help:      "Number of disputes currently awaiting resolution.",
		},
	)

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "matchpit",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "matchpit", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "matchpit", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "matchpit", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// DBWaitCount tracks the total number of connections waited for.
	DBWaitCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "matchpit", Name: "db_wait_count_total",
		Help: "Total number of connections waited for.",
	})
	// DBWaitDuration tracks total time waited for connections.
	DBWaitDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "matchpit", Name: "db_wait_duration_seconds_total",
		Help: "Total time waited for connections in seconds.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "matchpit", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		WagersCreatedTotal,
		WagersAcceptedTotal,
		WagersSettledTotal,
		WagersDisputedTotal,
		WagersExpiredTotal,
		WagersCancelledTotal,
		LedgerOpsTotal,
		SettlementDuration,
		EventDeliveriesTotal,
		OpenDisputes,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		DBWaitCount,
		DBWaitDuration,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			DBWaitCount.Set(float64(stats.WaitCount))
			DBWaitDuration.Set(stats.WaitDuration.Seconds())
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
