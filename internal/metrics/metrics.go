// Package metrics provides Prometheus instrumentation for the odds service.
// It exposes counters for session lifecycle transitions and per-route request
// counts and latency histograms.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SessionsCreated counts sessions written by create.
	SessionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odds_sessions_created_total",
		Help: "Total number of sessions created",
	})

	// SessionsLocked counts successful submits.
	SessionsLocked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odds_sessions_locked_total",
		Help: "Total number of sessions locked by a pick",
	})

	// SubmitConflicts counts submits rejected because the session was
	// already locked, labeled by where the conflict was detected:
	// "read" (locked on lookup) or "swap" (lost a compare-and-swap).
	SubmitConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odds_submit_conflicts_total",
		Help: "Total number of submits rejected on a locked session",
	}, []string{"stage"})

	// RequestsTotal counts HTTP requests by route pattern and status code.
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odds_http_requests_total",
		Help: "Total number of HTTP requests handled",
	}, []string{"route", "method", "status"})

	// RequestDuration records request latency in seconds by route pattern.
	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odds_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"route"})

	// RateLimited counts requests rejected by the rate limiter.
	RateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odds_rate_limited_total",
		Help: "Total number of requests rejected by rate limiting",
	}, []string{"rule"})
)

func init() {
	prometheus.MustRegister(
		SessionsCreated,
		SessionsLocked,
		SubmitConflicts,
		RequestsTotal,
		RequestDuration,
		RateLimited,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
