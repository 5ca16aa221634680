package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the Prometheus collectors for the service.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrorsTotal     *prometheus.CounterVec

	loginAttemptsTotal  *prometheus.CounterVec
	logoutsTotal        prometheus.Counter
	rateLimitedTotal    prometheus.Counter
	authzDeniedTotal    *prometheus.CounterVec
	auditWriteFailures  prometheus.Counter
	auditAbandoned      prometheus.Counter
	auditQueueDepth     prometheus.Gauge
	rateLimiterFallback prometheus.Counter
}

// NewMetrics creates and registers all collectors on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chantiers_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chantiers_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		httpErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chantiers_http_errors_total",
				Help: "HTTP error responses by domain error code",
			},
			[]string{"method", "path", "code"},
		),
		loginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chantiers_auth_login_attempts_total",
				Help: "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		logoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chantiers_auth_logouts_total",
			Help: "Completed logouts",
		}),
		rateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chantiers_auth_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}),
		authzDeniedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chantiers_authz_denied_total",
				Help: "Requests rejected by role checks",
			},
			[]string{"role"},
		),
		auditWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chantiers_audit_write_failures_total",
			Help: "Login history writes that failed or timed out",
		}),
		auditAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chantiers_audit_abandoned_total",
			Help: "Login history entries abandoned at shutdown",
		}),
		auditQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chantiers_audit_queue_depth",
			Help: "Login history entries waiting to be written",
		}),
		rateLimiterFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chantiers_rate_limiter_fallback_total",
			Help: "Decisions taken by the local limiter because the shared store failed",
		}),
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpErrorsTotal,
		m.loginAttemptsTotal,
		m.logoutsTotal,
		m.rateLimitedTotal,
		m.authzDeniedTotal,
		m.auditWriteFailures,
		m.auditAbandoned,
		m.auditQueueDepth,
		m.rateLimiterFallback,
	)
	return m
}

// Registry exposes the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.httpErrorsTotal.WithLabelValues(method, path, code).Inc()
}

// RecordLogin counts a login attempt by outcome.
func (m *Metrics) RecordLogin(outcome string) {
	if m == nil {
		return
	}
	m.loginAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordLogout counts a completed logout.
func (m *Metrics) RecordLogout() {
	if m == nil {
		return
	}
	m.logoutsTotal.Inc()
}

// RecordRateLimited counts a throttled request.
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.rateLimitedTotal.Inc()
}

// RecordAccessDenied counts a role check rejection.
func (m *Metrics) RecordAccessDenied(role string) {
	if m == nil {
		return
	}
	m.authzDeniedTotal.WithLabelValues(role).Inc()
}

// RecordAuditFailure counts a failed login history write.
func (m *Metrics) RecordAuditFailure() {
	if m == nil {
		return
	}
	m.auditWriteFailures.Inc()
}

// RecordAuditAbandoned counts entries dropped by a bounded shutdown or a
// queue that stayed full past the write timeout.
func (m *Metrics) RecordAuditAbandoned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.auditAbandoned.Add(float64(n))
}

// SetAuditQueueDepth reports pending login history entries.
func (m *Metrics) SetAuditQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.auditQueueDepth.Set(float64(depth))
}

// RecordRateLimiterFallback counts decisions served by the local limiter.
func (m *Metrics) RecordRateLimiterFallback() {
	if m == nil {
		return
	}
	m.rateLimiterFallback.Inc()
}
