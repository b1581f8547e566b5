// Package metrics exposes the Prometheus collectors of the API on a private registry.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "blockflow"

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	permissionLookups *prometheus.CounterVec
	syncOperations    *prometheus.CounterVec
	duplications      *prometheus.CounterVec
	layoutDuration    *prometheus.HistogramVec
	checkpointReverts *prometheus.CounterVec
	notifications     *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		permissionLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "permission_cache_lookups_total",
				Help:      "Permission cache lookups by result",
			},
			[]string{"result"},
		),
		syncOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_operations_total",
				Help:      "Workflow operations applied by sync, by kind",
			},
			[]string{"kind"},
		),
		duplications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "duplications_total",
				Help:      "Workflow duplications by outcome",
			},
			[]string{"outcome"},
		),
		layoutDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "layout_duration_seconds",
				Help:      "Time spent computing a layout",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"strategy"},
		),
		checkpointReverts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checkpoint_reverts_total",
				Help:      "Checkpoint reverts by outcome",
			},
			[]string{"outcome"},
		),
		notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "realtime_notifications_total",
				Help:      "Realtime notifications by event and result",
			},
			[]string{"event", "result"},
		),
	}
}

// Registry returns the registry to expose on the metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}

	return m.registry
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordPermissionLookup counts a permission cache hit or miss.
func (m *Metrics) RecordPermissionLookup(hit bool) {
	if m == nil {
		return
	}

	result := "miss"
	if hit {
		result = "hit"
	}

	m.permissionLookups.WithLabelValues(result).Inc()
}

// RecordSyncOperations adds n operations of the given kind (created, updated, deleted, skipped).
func (m *Metrics) RecordSyncOperations(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}

	m.syncOperations.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) RecordDuplication(outcome string) {
	if m == nil {
		return
	}

	m.duplications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveLayout(strategy string, duration time.Duration) {
	if m == nil {
		return
	}

	m.layoutDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

func (m *Metrics) RecordCheckpointRevert(outcome string) {
	if m == nil {
		return
	}

	m.checkpointReverts.WithLabelValues(outcome).Inc()
}

// RecordNotification counts a realtime notification as sent or dropped.
func (m *Metrics) RecordNotification(event string, delivered bool) {
	if m == nil {
		return
	}

	result := "dropped"
	if delivered {
		result = "sent"
	}

	m.notifications.WithLabelValues(event, result).Inc()
}
