package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Authorization metrics
	PermissionChecksTotal   *prometheus.CounterVec
	PermissionCheckDuration *prometheus.HistogramVec
	ScopeResolutionsTotal   prometheus.Counter

	// Cache metrics
	CacheHitsTotal          *prometheus.CounterVec
	CacheMissesTotal        *prometheus.CounterVec
	CacheInvalidationsTotal *prometheus.CounterVec

	// Mutation metrics
	AssignmentsTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskforge_permission_checks_total",
				Help: "Total number of permission checks by resource, action and outcome",
			},
			[]string{"resource", "action", "outcome"},
		),
		PermissionCheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deskforge_permission_check_duration_seconds",
				Help:    "Duration of permission checks in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"resource", "action"},
		),
		ScopeResolutionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "deskforge_scope_resolutions_total",
				Help: "Total number of access scope resolutions",
			},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskforge_cache_hits_total",
				Help: "Total number of resolution cache hits by entry kind",
			},
			[]string{"kind"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskforge_cache_misses_total",
				Help: "Total number of resolution cache misses by entry kind",
			},
			[]string{"kind"},
		),
		CacheInvalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskforge_cache_invalidations_total",
				Help: "Total number of explicit cache invalidations by entry kind",
			},
			[]string{"kind"},
		),
		AssignmentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskforge_assignments_total",
				Help: "Total number of role/team assignment mutations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "deskforge_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "deskforge_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.PermissionChecksTotal,
		m.PermissionCheckDuration,
		m.ScopeResolutionsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheInvalidationsTotal,
		m.AssignmentsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns an HTTP handler serving the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordPermissionCheck records the outcome of a permission check
func (m *Metrics) RecordPermissionCheck(resource, action string, allowed bool, seconds float64) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.PermissionChecksTotal.WithLabelValues(resource, action, outcome).Inc()
	m.PermissionCheckDuration.WithLabelValues(resource, action).Observe(seconds)
}

// RecordCacheHit records a cache hit for an entry kind
func (m *Metrics) RecordCacheHit(kind string) {
	m.CacheHitsTotal.WithLabelValues(kind).Inc()
}

// RecordCacheMiss records a cache miss for an entry kind
func (m *Metrics) RecordCacheMiss(kind string) {
	m.CacheMissesTotal.WithLabelValues(kind).Inc()
}

// RecordInvalidation records an explicit invalidation for an entry kind
func (m *Metrics) RecordInvalidation(kind string) {
	m.CacheInvalidationsTotal.WithLabelValues(kind).Inc()
}

// RecordAssignment records a role/team assignment mutation outcome
func (m *Metrics) RecordAssignment(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.AssignmentsTotal.WithLabelValues(operation, outcome).Inc()
}
