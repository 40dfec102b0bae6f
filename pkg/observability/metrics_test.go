package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	t.Run("creates and registers all metrics", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		if metrics == nil {
			t.Fatal("NewMetrics returned nil")
		}

		// Verify HTTP metrics are initialized
		if metrics.HTTPRequestsTotal == nil {
			t.Error("HTTPRequestsTotal is nil")
		}
		if metrics.HTTPRequestDuration == nil {
			t.Error("HTTPRequestDuration is nil")
		}

		// Verify entity metrics are initialized
		if metrics.EntityOperationsTotal == nil {
			t.Error("EntityOperationsTotal is nil")
		}
		if metrics.EntityOperationDuration == nil {
			t.Error("EntityOperationDuration is nil")
		}

		// Verify token metrics are initialized
		if metrics.TokensIssuedTotal == nil {
			t.Error("TokensIssuedTotal is nil")
		}
		if metrics.TokenVerdictsTotal == nil {
			t.Error("TokenVerdictsTotal is nil")
		}
		if metrics.TokensSweptTotal == nil {
			t.Error("TokensSweptTotal is nil")
		}

		// Verify access engine metrics are initialized
		if metrics.ACLCacheHitsTotal == nil {
			t.Error("ACLCacheHitsTotal is nil")
		}
		if metrics.ACLCacheMissesTotal == nil {
			t.Error("ACLCacheMissesTotal is nil")
		}

		// Verify module registry metrics are initialized
		if metrics.ModuleInstallsTotal == nil {
			t.Error("ModuleInstallsTotal is nil")
		}
		if metrics.ModulesInstalled == nil {
			t.Error("ModulesInstalled is nil")
		}

		// Verify throttling metrics are initialized
		if metrics.FailedAuthorizationsTotal == nil {
			t.Error("FailedAuthorizationsTotal is nil")
		}

		// Verify database metrics are initialized
		if metrics.DBConnectionsActive == nil {
			t.Error("DBConnectionsActive is nil")
		}
		if metrics.DBConnectionsIdle == nil {
			t.Error("DBConnectionsIdle is nil")
		}
	})

	t.Run("metrics are registered with registry", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		// Initialize some metrics to make them appear in Gather()
		metrics.HTTPRequestsTotal.WithLabelValues("GET", "/test", "200").Add(0)
		metrics.EntityOperationsTotal.WithLabelValues("core_user", "create", "success").Add(0)
		metrics.TokensIssuedTotal.WithLabelValues("authentication").Add(0)
		metrics.ACLCacheHitsTotal.WithLabelValues("project").Add(0)
		metrics.DBConnectionsActive.Set(0)
		metrics.ModulesInstalled.Set(0)

		families, err := registry.Gather()
		if err != nil {
			t.Fatalf("Failed to gather metrics: %v", err)
		}

		if len(families) == 0 {
			t.Error("No metrics registered in registry")
		}

		metricNames := make(map[string]bool)
		for _, family := range families {
			metricNames[family.GetName()] = true
		}

		expectedMetrics := []string{
			"corefacility_http_requests_total",
			"corefacility_entity_operations_total",
			"corefacility_tokens_issued_total",
			"corefacility_acl_cache_hits_total",
			"corefacility_db_connections_active",
			"corefacility_modules_installed",
		}

		for _, name := range expectedMetrics {
			if !metricNames[name] {
				t.Errorf("Expected metric %s not found in registry", name)
			}
		}
	})

	t.Run("panics on duplicate registration", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		NewMetrics(registry)

		defer func() {
			if r := recover(); r == nil {
				t.Error("Expected panic on duplicate registration, but didn't panic")
			}
		}()

		NewMetrics(registry)
	})
}

func TestMetrics_HTTPMetrics(t *testing.T) {
	t.Run("increment HTTP request counter", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/test", "200").Inc()

		count := testutil.CollectAndCount(metrics.HTTPRequestsTotal)
		if count != 1 {
			t.Errorf("Expected 1 metric, got %d", count)
		}

		expected := `
# HELP corefacility_http_requests_total Total number of HTTP requests
# TYPE corefacility_http_requests_total counter
corefacility_http_requests_total{method="GET",path="/api/test",status="200"} 1
`
		if err := testutil.CollectAndCompare(metrics.HTTPRequestsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected metric value: %v", err)
		}
	})

	t.Run("observe HTTP request duration", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.HTTPRequestDuration.WithLabelValues("POST", "/api/create").Observe(0.5)
		metrics.HTTPRequestDuration.WithLabelValues("POST", "/api/create").Observe(1.5)

		count := testutil.CollectAndCount(metrics.HTTPRequestDuration)
		if count != 1 {
			t.Errorf("Expected 1 metric family, got %d", count)
		}
	})
}

func TestMetrics_EntityMetrics(t *testing.T) {
	t.Run("record entity operations", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.EntityOperationsTotal.WithLabelValues("core_user", "create", "success").Inc()
		metrics.EntityOperationsTotal.WithLabelValues("core_project", "delete", "error").Inc()

		expected := `
# HELP corefacility_entity_operations_total Total number of entity create, update and delete operations
# TYPE corefacility_entity_operations_total counter
corefacility_entity_operations_total{operation="create",schema="core_user",status="success"} 1
corefacility_entity_operations_total{operation="delete",schema="core_project",status="error"} 1
`
		if err := testutil.CollectAndCompare(metrics.EntityOperationsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected metric value: %v", err)
		}
	})

	t.Run("observe entity operation duration", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.EntityOperationDuration.WithLabelValues("core_user", "create").Observe(0.01)

		count := testutil.CollectAndCount(metrics.EntityOperationDuration)
		if count != 1 {
			t.Errorf("Expected 1 metric family, got %d", count)
		}
	})
}

func TestMetrics_TokenMetrics(t *testing.T) {
	t.Run("record issued credentials and verdicts", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.TokensIssuedTotal.WithLabelValues("authentication").Inc()
		metrics.TokenVerdictsTotal.WithLabelValues("authentication", "accepted").Inc()
		metrics.TokenVerdictsTotal.WithLabelValues("cookie", "rejected").Inc()

		expected := `
# HELP corefacility_token_verdicts_total Total number of credential verifications by verdict
# TYPE corefacility_token_verdicts_total counter
corefacility_token_verdicts_total{engine="authentication",verdict="accepted"} 1
corefacility_token_verdicts_total{engine="cookie",verdict="rejected"} 1
`
		if err := testutil.CollectAndCompare(metrics.TokenVerdictsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected metric value: %v", err)
		}
	})

	t.Run("count swept credentials", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.TokensSweptTotal.Add(7)

		expected := `
# HELP corefacility_tokens_swept_total Total number of expired credentials removed by the sweeper
# TYPE corefacility_tokens_swept_total counter
corefacility_tokens_swept_total 7
`
		if err := testutil.CollectAndCompare(metrics.TokensSweptTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected metric value: %v", err)
		}
	})
}

func TestMetrics_ACLCacheMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.ACLCacheHitsTotal.WithLabelValues("project").Inc()
	metrics.ACLCacheMissesTotal.WithLabelValues("project").Inc()
	metrics.ACLCacheMissesTotal.WithLabelValues("project").Inc()

	expected := `
# HELP corefacility_acl_cache_misses_total Total number of resolved access lists computed from storage
# TYPE corefacility_acl_cache_misses_total counter
corefacility_acl_cache_misses_total{scope="project"} 2
`
	if err := testutil.CollectAndCompare(metrics.ACLCacheMissesTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
}

func TestMetrics_ModuleMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.ModuleInstallsTotal.WithLabelValues("core", "success").Inc()
	metrics.ModulesInstalled.Set(3)

	expected := `
# HELP corefacility_modules_installed Number of installed modules
# TYPE corefacility_modules_installed gauge
corefacility_modules_installed 3
`
	if err := testutil.CollectAndCompare(metrics.ModulesInstalled, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
}

func TestMetrics_ObserveDBPool(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.ObserveDBPool(7, 3)

	expected := `
# HELP corefacility_db_connections_active Number of active database connections
# TYPE corefacility_db_connections_active gauge
corefacility_db_connections_active 7
`
	if err := testutil.CollectAndCompare(metrics.DBConnectionsActive, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}

	expected = `
# HELP corefacility_db_connections_idle Number of idle database connections
# TYPE corefacility_db_connections_idle gauge
corefacility_db_connections_idle 3
`
	if err := testutil.CollectAndCompare(metrics.DBConnectionsIdle, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
}

func TestResponseWriter(t *testing.T) {
	t.Run("captures status code", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		rw := &responseWriter{
			ResponseWriter: recorder,
			statusCode:     http.StatusOK,
		}

		rw.WriteHeader(http.StatusCreated)

		if rw.statusCode != http.StatusCreated {
			t.Errorf("Expected status code %d, got %d", http.StatusCreated, rw.statusCode)
		}

		if recorder.Code != http.StatusCreated {
			t.Errorf("Expected recorder status code %d, got %d", http.StatusCreated, recorder.Code)
		}
	})

	t.Run("captures bytes written", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		rw := &responseWriter{
			ResponseWriter: recorder,
			statusCode:     http.StatusOK,
		}

		data := []byte("Hello, World!")
		n, err := rw.Write(data)

		if err != nil {
			t.Errorf("Unexpected error: %v", err)
		}

		if n != len(data) {
			t.Errorf("Expected %d bytes written, got %d", len(data), n)
		}

		if rw.bytesWritten != len(data) {
			t.Errorf("Expected %d bytes tracked, got %d", len(data), rw.bytesWritten)
		}
	})

	t.Run("defaults to 200 status code", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		rw := &responseWriter{
			ResponseWriter: recorder,
			statusCode:     http.StatusOK,
		}

		// Write without calling WriteHeader
		rw.Write([]byte("test"))

		if rw.statusCode != http.StatusOK {
			t.Errorf("Expected default status code %d, got %d", http.StatusOK, rw.statusCode)
		}
	})
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	t.Run("records HTTP metrics", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})

		middleware := HTTPMetricsMiddleware(metrics)
		wrappedHandler := middleware(handler)

		req := httptest.NewRequest("GET", "/test", nil)
		rec := httptest.NewRecorder()

		wrappedHandler.ServeHTTP(rec, req)

		expected := `
# HELP corefacility_http_requests_total Total number of HTTP requests
# TYPE corefacility_http_requests_total counter
corefacility_http_requests_total{method="GET",path="/test",status="200"} 1
`
		if err := testutil.CollectAndCompare(metrics.HTTPRequestsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected counter value: %v", err)
		}

		count := testutil.CollectAndCount(metrics.HTTPRequestDuration)
		if count != 1 {
			t.Errorf("Expected 1 duration metric, got %d", count)
		}
	})

	t.Run("records different status codes", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		testCases := []struct {
			statusCode int
			path       string
		}{
			{http.StatusOK, "/ok"},
			{http.StatusNotFound, "/notfound"},
			{http.StatusInternalServerError, "/error"},
		}

		middleware := HTTPMetricsMiddleware(metrics)

		for _, tc := range testCases {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
			})

			wrappedHandler := middleware(handler)
			req := httptest.NewRequest("GET", tc.path, nil)
			rec := httptest.NewRecorder()

			wrappedHandler.ServeHTTP(rec, req)
		}

		count := testutil.CollectAndCount(metrics.HTTPRequestsTotal)
		if count != 3 {
			t.Errorf("Expected 3 metrics, got %d", count)
		}
	})

	t.Run("handles multiple requests", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		middleware := HTTPMetricsMiddleware(metrics)
		wrappedHandler := middleware(handler)

		for i := 0; i < 5; i++ {
			req := httptest.NewRequest("GET", "/test", nil)
			rec := httptest.NewRecorder()
			wrappedHandler.ServeHTTP(rec, req)
		}

		expected := `
# HELP corefacility_http_requests_total Total number of HTTP requests
# TYPE corefacility_http_requests_total counter
corefacility_http_requests_total{method="GET",path="/test",status="200"} 5
`
		if err := testutil.CollectAndCompare(metrics.HTTPRequestsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected counter value: %v", err)
		}
	})
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	t.Run("registers metrics endpoint", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.ModulesInstalled.Set(42)
		metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api", "200").Inc()

		mux := http.NewServeMux()
		RegisterMetricsEndpoint(mux, registry)

		req := httptest.NewRequest("GET", "/metrics", nil)
		rec := httptest.NewRecorder()

		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("Expected status code %d, got %d", http.StatusOK, rec.Code)
		}

		body := rec.Body.String()

		if !strings.Contains(body, "corefacility_modules_installed 42") {
			t.Error("Expected corefacility_modules_installed value to be 42")
		}

		if !strings.Contains(body, "corefacility_http_requests_total") {
			t.Error("Expected corefacility_http_requests_total in metrics output")
		}
	})

	t.Run("metrics endpoint returns prometheus format", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)
		metrics.ModulesInstalled.Set(1)

		mux := http.NewServeMux()
		RegisterMetricsEndpoint(mux, registry)

		req := httptest.NewRequest("GET", "/metrics", nil)
		rec := httptest.NewRecorder()

		mux.ServeHTTP(rec, req)

		contentType := rec.Header().Get("Content-Type")
		if !strings.Contains(contentType, "text/plain") {
			t.Errorf("Expected Content-Type to contain text/plain, got %s", contentType)
		}

		body := rec.Body.String()

		if !strings.Contains(body, "# HELP") {
			t.Error("Expected # HELP lines in output")
		}

		if !strings.Contains(body, "# TYPE") {
			t.Error("Expected # TYPE lines in output")
		}
	})

	t.Run("metrics endpoint only responds to /metrics path", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		NewMetrics(registry)

		mux := http.NewServeMux()
		RegisterMetricsEndpoint(mux, registry)

		req := httptest.NewRequest("GET", "/other", nil)
		rec := httptest.NewRecorder()

		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected status code %d for non-metrics path, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestMetrics_Integration(t *testing.T) {
	t.Run("full workflow with middleware and exposition", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		appHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("Hello, World!"))
		})

		middleware := HTTPMetricsMiddleware(metrics)
		wrappedHandler := middleware(appHandler)

		mux := http.NewServeMux()
		mux.Handle("/api/hello", wrappedHandler)
		RegisterMetricsEndpoint(mux, registry)

		req := httptest.NewRequest("GET", "/api/hello", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("Expected status code %d, got %d", http.StatusOK, rec.Code)
		}

		metricsReq := httptest.NewRequest("GET", "/metrics", nil)
		metricsRec := httptest.NewRecorder()
		mux.ServeHTTP(metricsRec, metricsReq)

		if metricsRec.Code != http.StatusOK {
			t.Errorf("Expected metrics status code %d, got %d", http.StatusOK, metricsRec.Code)
		}

		body := metricsRec.Body.String()

		if !strings.Contains(body, "corefacility_http_requests_total") {
			t.Error("Expected corefacility_http_requests_total in metrics")
		}

		if !strings.Contains(body, `path="/api/hello"`) {
			t.Error("Expected /api/hello path label in metrics")
		}

		if !strings.Contains(body, `status="200"`) {
			t.Error("Expected 200 status label in metrics")
		}
	})
}

func BenchmarkHTTPMetricsMiddleware(b *testing.B) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	middleware := HTTPMetricsMiddleware(metrics)
	wrappedHandler := middleware(handler)

	req := httptest.NewRequest("GET", "/test", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := httptest.NewRecorder()
		wrappedHandler.ServeHTTP(rec, req)
	}
}
