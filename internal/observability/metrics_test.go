package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := InitMetrics(reg)
	return m, reg
}

func TestInitMetrics_registersAllMetrics(t *testing.T) {
	m, reg := newTestMetrics(t)
	if m == nil {
		t.Fatal("InitMetrics returned nil")
	}

	expected := []string{
		"opsdesk_http_requests_total",
		"opsdesk_http_request_duration_seconds",
		"opsdesk_http_response_size_bytes",
		"opsdesk_transport_requests_total",
		"opsdesk_transport_request_duration_seconds",
		"opsdesk_transport_retries_total",
		"opsdesk_endpoint_calls_total",
		"opsdesk_store_actions_total",
		"opsdesk_store_action_duration_seconds",
		"opsdesk_store_stale_discarded_total",
		"opsdesk_batch_part_failures_total",
		"opsdesk_exports_total",
	}

	// Record a value for each metric so they appear in Gather.
	m.RecordHTTPRequest("GET", "/api/brands", 200, time.Millisecond, 100)
	m.RecordTransportRequest("GET", 200, time.Millisecond)
	m.RecordTransportRetry("GET")
	m.RecordEndpointCall("brands.list", true)
	m.RecordStoreAction("brands", "fetch_all", true, time.Millisecond)
	m.RecordStaleDiscarded("brands")
	m.RecordBatchPartFailure("delivery", "history")
	m.RecordExport("file", true)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not registered", name)
		}
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordHTTPRequest("GET", "/api/{collection}", 200, 50*time.Millisecond, 1024)
	m.RecordHTTPRequest("GET", "/api/{collection}", 200, 100*time.Millisecond, 2048)
	m.RecordHTTPRequest("POST", "/api/delivery/refresh", 500, 200*time.Millisecond, 256)

	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/{collection}", "200"))
	if val != 2 {
		t.Errorf("GET requests = %v, want 2", val)
	}
	val = testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/delivery/refresh", "500"))
	if val != 1 {
		t.Errorf("POST requests = %v, want 1", val)
	}
}

func TestRecordTransportRequest_noResponseIsError(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordTransportRequest("GET", 0, time.Second)
	m.RecordTransportRequest("POST", 422, time.Millisecond)

	if v := testutil.ToFloat64(m.TransportRequestsTotal.WithLabelValues("GET", "error")); v != 1 {
		t.Errorf("GET error = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.TransportRequestsTotal.WithLabelValues("POST", "422")); v != 1 {
		t.Errorf("POST 422 = %v, want 1", v)
	}
}

func TestRecordEndpointCall(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordEndpointCall("attributes.create", true)
	m.RecordEndpointCall("attributes.create", false)
	m.RecordEndpointCall("attributes.create", false)

	if v := testutil.ToFloat64(m.EndpointCallsTotal.WithLabelValues("attributes.create", OutcomeSuccess)); v != 1 {
		t.Errorf("success = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.EndpointCallsTotal.WithLabelValues("attributes.create", OutcomeFailure)); v != 2 {
		t.Errorf("failure = %v, want 2", v)
	}
}

func TestRecordStoreAction(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordStoreAction("offers", "delete", true, 10*time.Millisecond)
	m.RecordStaleDiscarded("offers")
	m.RecordBatchPartFailure("delivery", "earnings")

	if v := testutil.ToFloat64(m.StoreActionsTotal.WithLabelValues("offers", "delete", OutcomeSuccess)); v != 1 {
		t.Errorf("offers delete = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.StoreStaleDiscardedTotal.WithLabelValues("offers")); v != 1 {
		t.Errorf("stale discarded = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.BatchPartFailuresTotal.WithLabelValues("delivery", "earnings")); v != 1 {
		t.Errorf("batch part failures = %v, want 1", v)
	}
}

func TestRecordHelpers_nilMetrics(t *testing.T) {
	var m *Metrics
	m.RecordHTTPRequest("GET", "/", 200, time.Millisecond, 0)
	m.RecordTransportRequest("GET", 200, time.Millisecond)
	m.RecordTransportRetry("GET")
	m.RecordEndpointCall("op", true)
	m.RecordStoreAction("s", "a", true, time.Millisecond)
	m.RecordStaleDiscarded("s")
	m.RecordBatchPartFailure("s", "p")
	m.RecordExport("file", false)
}

func TestMetricsMiddleware_recordsRequestMetrics(t *testing.T) {
	m, _ := newTestMetrics(t)

	// Build a chi router so route patterns are captured.
	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Get("/api/{collection}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/brands", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	// Verify metrics were recorded with the route pattern, not the actual path.
	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/{collection}", "200"))
	if val != 1 {
		t.Errorf("requests total = %v, want 1", val)
	}
}

func TestMetricsMiddleware_capturesResponseSize(t *testing.T) {
	m, _ := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("healthy"))
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	count := testutil.CollectAndCount(m.HTTPResponseSizeBytes)
	if count == 0 {
		t.Error("expected response size histogram to have observations")
	}
}

func TestMetricsMiddleware_capturesStatusCode(t *testing.T) {
	m, _ := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Delete("/api/{collection}/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	req := httptest.NewRequest(http.MethodDelete, "/api/offers/7", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("DELETE", "/api/{collection}/{id}", "502"))
	if val != 1 {
		t.Errorf("502 requests = %v, want 1", val)
	}
}

func TestMetricsMiddleware_fallsBackToPath(t *testing.T) {
	m, _ := newTestMetrics(t)

	// Use middleware directly without chi router.
	handler := m.MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/raw/path", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/raw/path", "200"))
	if val != 1 {
		t.Errorf("raw path requests = %v, want 1", val)
	}
}

func TestHandler_servesDefaultRegistry(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler(nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	// Prometheus handler should return at least go runtime metrics.
	if !strings.Contains(rec.Body.String(), "go_") {
		t.Error("metrics response should contain go runtime metrics")
	}
}

func TestHandler_servesCustomRegistry(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.RecordEndpointCall("health", true)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), "opsdesk_endpoint_calls_total") {
		t.Error("metrics response should contain opsdesk_endpoint_calls_total")
	}
}

func TestHistogramBuckets(t *testing.T) {
	for name, buckets := range map[string][]float64{
		"http":      httpDurationBuckets,
		"transport": transportDurationBuckets,
		"body":      bodySizeBuckets,
	} {
		for i := 1; i < len(buckets); i++ {
			if buckets[i] <= buckets[i-1] {
				t.Errorf("%s buckets not sorted at index %d", name, i)
			}
		}
	}
	// The largest transport bucket covers the default 20s request timeout.
	if last := transportDurationBuckets[len(transportDurationBuckets)-1]; last < 20 {
		t.Errorf("largest transport bucket = %v, want >= 20", last)
	}
}
