// Package metrics provides Prometheus instrumentation for the credit
// engine: HTTP traffic, agent/orchestrator latency, and the lending
// domain counters (loans, vouches, repayments).
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
			Namespace: "saathi",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "saathi",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AgentInvocationsTotal counts agent runs by name and outcome.
	AgentInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "saathi",
			Name:      "agent_invocations_total",
			Help:      "Total agent invocations by agent name and outcome.",
		},
		[]string{"agent", "outcome"},
	)

	// AgentDuration observes how long each agent takes to produce a result.
	AgentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "saathi",
			Name:      "agent_duration_seconds",
			Help:      "Agent execution duration in seconds.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"agent"},
	)

	// OrchestratorDecisionDuration observes end-to-end decision latency
	// for a full loan or vouch workflow run.
	OrchestratorDecisionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "saathi",
			Name:      "orchestrator_decision_duration_seconds",
			Help:      "Time to produce a final orchestrator decision, by workflow.",
			Buckets:   []float64{.1, .25, .5, 1, 2, 5, 10, 30},
		},
		[]string{"workflow"},
	)

	// LoansTotal counts loans by outcome: the decision (approved,
	// rejected) or a later default (defaulted).
	LoansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "saathi",
			Name:      "loans_total",
			Help:      "Total loans by outcome (approved, rejected, defaulted).",
		},
		[]string{"outcome"},
	)

	// VouchesTotal counts vouches by outcome (created, blocked).
	VouchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "saathi",
			Name:      "vouches_total",
			Help:      "Total vouch requests by outcome.",
		},
		[]string{"outcome"},
	)

	// RepaymentsTotal counts recorded repayments by punctuality.
	RepaymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "saathi",
			Name:      "repayments_total",
			Help:      "Total repayments recorded, split by on_time/late.",
		},
		[]string{"punctuality"},
	)

	// RateLimitRejectionsTotal counts requests rejected by the rate limiter.
	RateLimitRejectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "saathi",
		Name:      "rate_limit_rejections_total",
		Help:      "Total requests rejected by the rate limiter.",
	})

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "saathi", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "saathi", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "saathi", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// DBWaitCount tracks the total number of connections waited for.
	DBWaitCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "saathi", Name: "db_wait_count_total",
		Help: "Total number of connections waited for.",
	})
	// DBWaitDuration tracks total time waited for connections.
	DBWaitDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "saathi", Name: "db_wait_duration_seconds_total",
		Help: "Total time waited for connections in seconds.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "saathi", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AgentInvocationsTotal,
		AgentDuration,
		OrchestratorDecisionDuration,
		LoansTotal,
		VouchesTotal,
		RepaymentsTotal,
		RateLimitRejectionsTotal,
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
			c.FullPath(), // route pattern, not actual path: avoids cardinality explosion
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
