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

	// Entity metrics
	EntityOperationsTotal   *prometheus.CounterVec
	EntityOperationDuration *prometheus.HistogramVec

	// Token metrics
	TokensIssuedTotal  *prometheus.CounterVec
	TokenVerdictsTotal *prometheus.CounterVec
	TokensSweptTotal   prometheus.Counter

	// Access engine metrics
	ACLCacheHitsTotal   *prometheus.CounterVec
	ACLCacheMissesTotal *prometheus.CounterVec

	// Module registry metrics
	ModuleInstallsTotal *prometheus.CounterVec
	ModulesInstalled    prometheus.Gauge

	// Throttling metrics
	FailedAuthorizationsTotal prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corefacility_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "corefacility_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		EntityOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corefacility_entity_operations_total",
				Help: "Total number of entity create, update and delete operations",
			},
			[]string{"schema", "operation", "status"},
		),
		EntityOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "corefacility_entity_operation_duration_seconds",
				Help:    "Entity operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"schema", "operation"},
		),

		TokensIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corefacility_tokens_issued_total",
				Help: "Total number of issued credentials",
			},
			[]string{"engine"},
		),
		TokenVerdictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corefacility_token_verdicts_total",
				Help: "Total number of credential verifications by verdict",
			},
			[]string{"engine", "verdict"},
		),
		TokensSweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "corefacility_tokens_swept_total",
				Help: "Total number of expired credentials removed by the sweeper",
			},
		),

		ACLCacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corefacility_acl_cache_hits_total",
				Help: "Total number of resolved access lists served from cache",
			},
			[]string{"scope"},
		),
		ACLCacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corefacility_acl_cache_misses_total",
				Help: "Total number of resolved access lists computed from storage",
			},
			[]string{"scope"},
		),

		ModuleInstallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corefacility_module_installs_total",
				Help: "Total number of module install attempts",
			},
			[]string{"module", "status"},
		),
		ModulesInstalled: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "corefacility_modules_installed",
				Help: "Number of installed modules",
			},
		),

		FailedAuthorizationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "corefacility_failed_authorizations_total",
				Help: "Total number of recorded failed authorization attempts",
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "corefacility_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "corefacility_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.EntityOperationsTotal,
		m.EntityOperationDuration,
		m.TokensIssuedTotal,
		m.TokenVerdictsTotal,
		m.TokensSweptTotal,
		m.ACLCacheHitsTotal,
		m.ACLCacheMissesTotal,
		m.ModuleInstallsTotal,
		m.ModulesInstalled,
		m.FailedAuthorizationsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
		})
	}
}

// ObserveDBPool copies connection pool gauges from sql.DB stats.
func (m *Metrics) ObserveDBPool(inUse, idle int) {
	m.DBConnectionsActive.Set(float64(inUse))
	m.DBConnectionsIdle.Set(float64(idle))
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
