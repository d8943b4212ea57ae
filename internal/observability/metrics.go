package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets      = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	transportDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20}
	bodySizeBuckets          = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for opsdesk.
type Metrics struct {
	// Portal HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Transport metrics
	TransportRequestsTotal   *prometheus.CounterVec
	TransportRequestDuration *prometheus.HistogramVec
	TransportRetriesTotal    *prometheus.CounterVec

	// Endpoint wrapper metrics
	EndpointCallsTotal *prometheus.CounterVec

	// State container metrics
	StoreActionsTotal        *prometheus.CounterVec
	StoreActionDuration      *prometheus.HistogramVec
	StoreStaleDiscardedTotal *prometheus.CounterVec
	BatchPartFailuresTotal   *prometheus.CounterVec

	// Export metrics
	ExportsTotal *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// Portal HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdesk_http_requests_total",
			Help: "Total number of portal HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opsdesk_http_request_duration_seconds",
			Help:    "Portal HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opsdesk_http_response_size_bytes",
			Help:    "Portal HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Transport
		TransportRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdesk_transport_requests_total",
			Help: "Total number of requests sent to the backend, per attempt.",
		}, []string{"method", "status"}),
		TransportRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opsdesk_transport_request_duration_seconds",
			Help:    "Backend request duration in seconds.",
			Buckets: transportDurationBuckets,
		}, []string{"method"}),
		TransportRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdesk_transport_retries_total",
			Help: "Total number of backend request retries.",
		}, []string{"method"}),

		// Endpoint
		EndpointCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdesk_endpoint_calls_total",
			Help: "Total number of endpoint wrapper calls by outcome.",
		}, []string{"operation", "outcome"}),

		// Store
		StoreActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdesk_store_actions_total",
			Help: "Total number of state container actions by outcome.",
		}, []string{"store", "action", "outcome"}),
		StoreActionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opsdesk_store_action_duration_seconds",
			Help:    "State container action duration in seconds.",
			Buckets: transportDurationBuckets,
		}, []string{"store", "action"}),
		StoreStaleDiscardedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdesk_store_stale_discarded_total",
			Help: "Total number of fetch responses discarded as stale.",
		}, []string{"store"}),
		BatchPartFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdesk_batch_part_failures_total",
			Help: "Total number of failed sub-fetches in batch refreshes.",
		}, []string{"store", "part"}),

		// Export
		ExportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdesk_exports_total",
			Help: "Total number of statement exports by sink and outcome.",
		}, []string{"sink", "outcome"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSizeBytes,
		m.TransportRequestsTotal,
		m.TransportRequestDuration,
		m.TransportRetriesTotal,
		m.EndpointCallsTotal,
		m.StoreActionsTotal,
		m.StoreActionDuration,
		m.StoreStaleDiscardedTotal,
		m.BatchPartFailuresTotal,
		m.ExportsTotal,
	)

	return m
}

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Outcome maps a success flag to its label value.
func Outcome(ok bool) string {
	if ok {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

// --- Recording helpers ---
//
// All helpers are safe to call on a nil *Metrics so that components can be
// built without a registry.

// RecordHTTPRequest records portal HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, respSize int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordTransportRequest records one backend request attempt. A status of 0
// means no response was received and is recorded as "error".
func (m *Metrics) RecordTransportRequest(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.TransportRequestsTotal.WithLabelValues(method, label).Inc()
	m.TransportRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordTransportRetry records a backend request retry.
func (m *Metrics) RecordTransportRetry(method string) {
	if m == nil {
		return
	}
	m.TransportRetriesTotal.WithLabelValues(method).Inc()
}

// RecordEndpointCall records the outcome of an endpoint wrapper call.
func (m *Metrics) RecordEndpointCall(operation string, ok bool) {
	if m == nil {
		return
	}
	m.EndpointCallsTotal.WithLabelValues(operation, Outcome(ok)).Inc()
}

// RecordStoreAction records a state container action.
func (m *Metrics) RecordStoreAction(store, action string, ok bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.StoreActionsTotal.WithLabelValues(store, action, Outcome(ok)).Inc()
	m.StoreActionDuration.WithLabelValues(store, action).Observe(duration.Seconds())
}

// RecordStaleDiscarded records a fetch response dropped by the stale guard.
func (m *Metrics) RecordStaleDiscarded(store string) {
	if m == nil {
		return
	}
	m.StoreStaleDiscardedTotal.WithLabelValues(store).Inc()
}

// RecordBatchPartFailure records a failed sub-fetch of a batch refresh.
func (m *Metrics) RecordBatchPartFailure(store, part string) {
	if m == nil {
		return
	}
	m.BatchPartFailuresTotal.WithLabelValues(store, part).Inc()
}

// RecordExport records a statement export.
func (m *Metrics) RecordExport(sink string, ok bool) {
	if m == nil {
		return
	}
	m.ExportsTotal.WithLabelValues(sink, Outcome(ok)).Inc()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		m.RecordHTTPRequest(r.Method, routePattern(r), sw.status, time.Since(start), sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint. A
// nil gatherer serves the default registry.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
