package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Storage metrics
	StorageOperationsTotal   *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec
	StorageErrorsTotal       *prometheus.CounterVec

	// Authorization metrics
	AuthzDecisionsTotal *prometheus.CounterVec

	// Username allocation metrics
	UsernameAllocationsTotal *prometheus.CounterVec
	UsernameProbeAttempts    prometheus.Histogram

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	// Business metrics
	OrganizationsTotal prometheus.Gauge
	MembershipsTotal   prometheus.Gauge
	ActiveSessionsTotal prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plumbline_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plumbline_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		StorageOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plumbline_storage_operations_total",
				Help: "Total number of storage operations",
			},
			[]string{"operation"},
		),
		StorageOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plumbline_storage_operation_duration_seconds",
				Help:    "Storage operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		StorageErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plumbline_storage_errors_total",
				Help: "Total number of storage errors",
			},
			[]string{"operation"},
		),
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plumbline_authz_decisions_total",
				Help: "Authorization gate decisions by outcome",
			},
			[]string{"decision", "reason"},
		),
		UsernameAllocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plumbline_username_allocations_total",
				Help: "Username allocations by derivation source",
			},
			[]string{"source"},
		),
		UsernameProbeAttempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "plumbline_username_probe_attempts",
				Help:    "Number of suffix probes needed per username allocation",
				Buckets: []float64{1, 2, 3, 5, 10, 25, 100, 500},
			},
		),
		DBConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plumbline_db_connections_active",
			Help: "Number of active database connections",
		}),
		DBConnectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plumbline_db_connections_idle",
			Help: "Number of idle database connections",
		}),
		OrganizationsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plumbline_organizations_total",
			Help: "Total number of active organizations",
		}),
		MembershipsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plumbline_memberships_total",
			Help: "Total number of memberships",
		}),
		ActiveSessionsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plumbline_active_sessions_total",
			Help: "Number of live sessions in the session store",
		}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.StorageOperationsTotal,
		m.StorageOperationDuration,
		m.StorageErrorsTotal,
		m.AuthzDecisionsTotal,
		m.UsernameAllocationsTotal,
		m.UsernameProbeAttempts,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.OrganizationsTotal,
		m.MembershipsTotal,
		m.ActiveSessionsTotal,
	)

	return m
}

// ObserveHTTPRequest records metrics for a completed HTTP request
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveAuthzDecision records an authorization gate outcome
func (m *Metrics) ObserveAuthzDecision(allowed bool, reason string) {
	decision := "denied"
	if allowed {
		decision = "allowed"
		reason = ""
	}
	m.AuthzDecisionsTotal.WithLabelValues(decision, reason).Inc()
}

// MetricsHandler returns an HTTP handler serving the registry
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// MetricsMiddleware instruments an HTTP handler with request metrics
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		m.ObserveHTTPRequest(r.Method, r.URL.Path, sw.status, time.Since(start))
	})
}

// statusWriter captures the response status code
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}
