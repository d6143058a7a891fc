// Package metrics exposes prometheus collectors for agent decisions and the
// hosted session API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "concession"

var (
	// Decisions counts agent responses by action (offer, accept).
	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "agent_decisions_total",
		Help:      "Agent responses by action.",
	}, []string{"action"})

	// SessionsStarted counts hosted sessions created, by scenario.
	SessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_started_total",
		Help:      "Hosted sessions created by scenario.",
	}, []string{"scenario"})

	// SessionsFinished counts hosted sessions ended, by final status.
	SessionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_finished_total",
		Help:      "Hosted sessions ended by final status.",
	}, []string{"status"})

	// TargetUtility records the concession target behind every agent offer.
	TargetUtility = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "agent_target_utility",
		Help:      "Target utility of agent offers.",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
	})

	// DecisionLatency records how long one agent response takes.
	DecisionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "agent_decision_seconds",
		Help:      "Time to compute one agent response.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	// HTTPRequests counts API requests by method, route pattern and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	// HTTPDuration records API request latency by route pattern.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
)

// ObserveDecision records one agent response.
func ObserveDecision(action string, target float64, elapsed time.Duration) {
	Decisions.WithLabelValues(action).Inc()
	if action == "offer" {
		TargetUtility.Observe(target)
	}
	DecisionLatency.Observe(elapsed.Seconds())
}

// ObserveRequest records one HTTP request. route should be the mux pattern,
// not the raw path, to keep label cardinality bounded.
func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Handler returns the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
