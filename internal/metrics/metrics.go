// Package metrics provides Prometheus instrumentation for the gateway:
// request outcomes, delivery latency, ban issuance, and housekeeping
// failures.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts processed requests labeled by terminal outcome:
	// "accepted", "banned", "malformed", "duplicate_banned",
	// "delivery_failed".
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatewall_requests_total",
		Help: "Total number of requests processed, by terminal outcome",
	}, []string{"outcome"})

	// BansIssued counts duplicate-triggered bans.
	BansIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gatewall_bans_issued_total",
		Help: "Total number of bans issued by the duplicate detector",
	})

	// DeliveryLatency records downstream webhook delivery latency in
	// seconds, labeled by result ("ok" or "error").
	DeliveryLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gatewall_delivery_latency_seconds",
		Help:    "Downstream delivery latency in seconds",
		Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"result"})

	// HousekeepingFailures counts non-fatal maintenance errors, labeled by
	// task: "cap", "sweep", or "purge".
	HousekeepingFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatewall_housekeeping_failures_total",
		Help: "Total number of non-fatal retention/purge failures",
	}, []string{"task"})

	// GuardFallbacks counts requests where the atomic duplicate guard was
	// unavailable and the engine fell back to the store count.
	GuardFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gatewall_guard_fallbacks_total",
		Help: "Total number of duplicate-guard fallbacks to the store count",
	})

	// Throttled counts requests rejected by the inbound per-address
	// throttle before reaching the engine.
	Throttled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gatewall_throttled_total",
		Help: "Total number of requests rejected by the inbound throttle",
	})
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		BansIssued,
		DeliveryLatency,
		HousekeepingFailures,
		GuardFallbacks,
		Throttled,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
