package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/pitabwire/opsdesk/internal/config"
)

func recordSpans(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return exporter
}

func TestInitTracing(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.TracingConfig
		wantErr bool
	}{
		{"disabled", config.TracingConfig{Exporter: "zipkin"}, false},
		{"stdout", config.TracingConfig{Enabled: true, Exporter: "stdout", SamplingRate: 1}, false},
		{"unsupported", config.TracingConfig{Enabled: true, Exporter: "zipkin"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := otel.GetTracerProvider()
			t.Cleanup(func() { otel.SetTracerProvider(prev) })

			shutdown, err := InitTracing(context.Background(), tt.cfg, "opsdesk-test", "dev")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("InitTracing() error = %v", err)
			}
			if err := shutdown(context.Background()); err != nil {
				t.Errorf("shutdown() error = %v", err)
			}
		})
	}
}

func TestSamplingRate(t *testing.T) {
	for in, want := range map[float64]float64{0: 0.1, -1: 0.1, 0.5: 0.5, 1: 1, 3: 1} {
		if got := samplingRate(in); got != want {
			t.Errorf("samplingRate(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestStartSpan_attributesAndAnnotations(t *testing.T) {
	exporter := recordSpans(t)

	ctx, span := StartSpan(context.Background(), "store.delivery.refresh", AttrStore.String("delivery"))
	AnnotateSpan(ctx, AttrBatchSize.Int(5))
	if trace.SpanFromContext(ctx) != span {
		t.Error("context should carry the span")
	}
	EndSpanWithError(span, nil)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	attrs := spanAttrs(spans[0])
	if attrs["opsdesk.store"] != "delivery" || attrs["opsdesk.batch_size"] != "5" {
		t.Errorf("attributes = %v", attrs)
	}
	if spans[0].Status.Code == codes.Error {
		t.Error("span without error should not be marked failed")
	}
}

func TestEndSpanWithError(t *testing.T) {
	exporter := recordSpans(t)

	_, span := StartSpan(context.Background(), "endpoint.brands.list")
	EndSpanWithError(span, errors.New("Database unavailable"))

	s := exporter.GetSpans()[0]
	if s.Status.Code != codes.Error || s.Status.Description != "Database unavailable" {
		t.Errorf("status = %+v", s.Status)
	}
	if len(s.Events) == 0 {
		t.Error("error should be recorded as an event")
	}
}

func TestTraceIDFromContext(t *testing.T) {
	if id := TraceIDFromContext(context.Background()); id != "" {
		t.Errorf("without span = %q, want empty", id)
	}

	recordSpans(t)
	ctx, span := StartSpan(context.Background(), "op")
	defer span.End()
	if id := TraceIDFromContext(ctx); id != span.SpanContext().TraceID().String() {
		t.Errorf("TraceIDFromContext = %q", id)
	}
}

func TestTracingMiddleware(t *testing.T) {
	exporter := recordSpans(t)

	handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !trace.SpanFromContext(r.Context()).SpanContext().IsValid() {
			t.Error("handler context should carry the server span")
		}
		w.WriteHeader(http.StatusBadGateway)
	}))

	traceID, parentID := "0af7651916cd43dd8448eb211c80319c", "b7ad6b7169203331"
	req := httptest.NewRequest(http.MethodPost, "/api/brands/refresh", nil)
	req.Header.Set("Traceparent", "00-"+traceID+"-"+parentID+"-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	s := spans[0]
	if s.Name != "POST /api/brands/refresh" {
		t.Errorf("name = %q", s.Name)
	}
	if s.SpanKind != trace.SpanKindServer {
		t.Errorf("kind = %v, want server", s.SpanKind)
	}
	if s.SpanContext.TraceID().String() != traceID || s.Parent.SpanID().String() != parentID {
		t.Errorf("span did not continue the propagated trace: %s / %s", s.SpanContext.TraceID(), s.Parent.SpanID())
	}
	if s.Status.Code != codes.Error {
		t.Errorf("status = %v, want error for a 502", s.Status.Code)
	}
}

func spanAttrs(s tracetest.SpanStub) map[string]string {
	m := make(map[string]string, len(s.Attributes))
	for _, a := range s.Attributes {
		m[string(a.Key)] = a.Value.Emit()
	}
	return m
}
