package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybridge_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "querybridge_http_request_latency_ms",
			Help: "HTTP request latency in milliseconds. Ask and query routes include model and engine time.",
			// Model round trips and MCP container start-up dominate the upper buckets.
			Buckets: []float64{5, 25, 100, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000},
		},
		[]string{"method", "route"},
	)

	conversionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybridge_conversions_total",
			Help: "Total number of natural-language to SQL conversions by outcome.",
		},
		[]string{"outcome"},
	)
	conversionLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querybridge_conversion_latency_ms",
			Help:    "Model conversion latency in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 20000, 30000},
		},
	)
	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybridge_executions_total",
			Help: "Total number of SQL executions by backend and outcome.",
		},
		[]string{"backend", "outcome"},
	)
	executionLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querybridge_execution_latency_ms",
			Help:    "Client-observed SQL execution latency in milliseconds.",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
		[]string{"backend"},
	)
	rowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querybridge_rows_returned",
			Help:    "Number of rows returned per successful execution.",
			Buckets: []float64{0, 1, 10, 100, 1000, 10000, 100000},
		},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "querybridge_active_sessions",
			Help: "Current number of connected sessions.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestLatencyMs,
		conversionsTotal,
		conversionLatencyMs,
		executionsTotal,
		executionLatencyMs,
		rowsReturned,
		activeSessions,
	)
}

func observeHTTP(method, route string, status int, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestLatencyMs.WithLabelValues(method, route).Observe(float64(elapsed.Milliseconds()))
}

func ObserveConversion(err error, elapsed time.Duration) {
	conversionsTotal.WithLabelValues(outcomeOf(err)).Inc()
	conversionLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveExecution(backend string, rows int, err error, elapsed time.Duration) {
	executionsTotal.WithLabelValues(backend, outcomeOf(err)).Inc()
	executionLatencyMs.WithLabelValues(backend).Observe(float64(elapsed.Milliseconds()))
	if err == nil {
		rowsReturned.Observe(float64(rows))
	}
}

func SetActiveSessions(count int) {
	activeSessions.Set(float64(max(count, 0)))
}

func outcomeOf(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}
