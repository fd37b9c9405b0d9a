package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CoordinatorMetrics records escrow coordinator activity: one sample per
// operation attempt, segmented by operation name and outcome.
type CoordinatorMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	events     *prometheus.CounterVec
}

type gatewayMetrics struct {
	calls   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

type httpMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	coordinatorOnce     sync.Once
	coordinatorRegistry *CoordinatorMetrics

	gatewayOnce     sync.Once
	gatewayRegistry *gatewayMetrics

	httpOnce     sync.Once
	httpRegistry *httpMetrics
)

// Coordinator returns the lazily-initialised coordinator metrics registry.
func Coordinator() *CoordinatorMetrics {
	coordinatorOnce.Do(func() {
		coordinatorRegistry = &CoordinatorMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "workledger",
				Subsystem: "escrow",
				Name:      "operations_total",
				Help:      "Total coordinator operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "workledger",
				Subsystem: "escrow",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for coordinator operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "workledger",
				Subsystem: "escrow",
				Name:      "events_total",
				Help:      "Count of coordinator events segmented by event type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(
			coordinatorRegistry.operations,
			coordinatorRegistry.latency,
			coordinatorRegistry.events,
		)
	})
	return coordinatorRegistry
}

// ObserveOperation records one coordinator operation attempt.
func (m *CoordinatorMetrics) ObserveOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordEvent increments the event counter for the supplied event type.
func (m *CoordinatorMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.events.WithLabelValues(eventType).Inc()
}

// LedgerGateway returns the metrics registry tracking remote ledger calls.
func LedgerGateway() *gatewayMetrics {
	gatewayOnce.Do(func() {
		gatewayRegistry = &gatewayMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "workledger",
				Subsystem: "ledger",
				Name:      "calls_total",
				Help:      "Total remote ledger calls segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "workledger",
				Subsystem: "ledger",
				Name:      "call_duration_seconds",
				Help:      "Latency distribution for remote ledger calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(gatewayRegistry.calls, gatewayRegistry.latency)
	})
	return gatewayRegistry
}

// ObserveCall records one remote ledger call.
func (m *gatewayMetrics) ObserveCall(method string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.calls.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// HTTP returns the metrics registry used by the escrowd HTTP surface.
func HTTP() *httpMetrics {
	httpOnce.Do(func() {
		httpRegistry = &httpMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "workledger",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests segmented by method, route, and status.",
			}, []string{"method", "route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "workledger",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method", "route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "workledger",
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by rate limiting.",
			}, []string{"route"}),
		}
		prometheus.MustRegister(httpRegistry.requests, httpRegistry.latency, httpRegistry.throttles)
	})
	return httpRegistry
}

// ObserveRequest records one completed HTTP request.
func (m *httpMetrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.requests.WithLabelValues(method, route, fmt.Sprintf("%d", status)).Inc()
	m.latency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied route.
func (m *httpMetrics) RecordThrottle(route string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.throttles.WithLabelValues(route).Inc()
}
