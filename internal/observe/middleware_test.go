package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// middlewareSetup creates the metric and trace pipelines middleware tests
// inspect.
func middlewareSetup(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	return m, reader, exp
}

// serve runs one request through the instrumented handler and returns the
// recorder plus the correlation ID the handler observed.
func serve(mw func(http.Handler) http.Handler, req *http.Request, status int) (*httptest.ResponseRecorder, string) {
	var cid string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid = CorrelationID(r.Context())
		w.WriteHeader(status)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, cid
}

func TestMiddleware_CorrelationIDOnResponse(t *testing.T) {
	m, _, _ := middlewareSetup(t)

	req := httptest.NewRequest("GET", "/agent/reception", nil)
	rec, cid := serve(Middleware(m), req, http.StatusOK)

	if len(cid) != 32 {
		t.Errorf("correlation ID = %q, want a 32-char trace ID", cid)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != cid {
		t.Errorf("response X-Correlation-ID = %q, want %q", got, cid)
	}
}

func TestMiddleware_SpanPerRequest(t *testing.T) {
	m, _, exp := middlewareSetup(t)

	req := httptest.NewRequest("GET", "/agent/reception", nil)
	serve(Middleware(m), req, http.StatusOK)

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "HTTP GET /agent/reception" {
		t.Errorf("span name = %q", spans[0].Name)
	}
}

func TestMiddleware_RecordsRequestDuration(t *testing.T) {
	m, reader, _ := middlewareSetup(t)

	req := httptest.NewRequest("GET", "/readyz", nil)
	serve(Middleware(m), req, http.StatusOK)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	met := findMetric(rm, "voxgate.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1", len(hist.DataPoints))
	}

	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("sample count = %d, want 1", dp.Count)
	}
	want := map[string]string{"method": "GET", "path": "/readyz"}
	for _, kv := range dp.Attributes.ToSlice() {
		if v, ok := want[string(kv.Key)]; ok && kv.Value.AsString() == v {
			delete(want, string(kv.Key))
		}
	}
	if len(want) != 0 {
		t.Errorf("missing attributes: %v", want)
	}
}

func TestMiddleware_StatusCodeOnSpan(t *testing.T) {
	m, _, exp := middlewareSetup(t)

	req := httptest.NewRequest("GET", "/agent/ghost", nil)
	rec, _ := serve(Middleware(m), req, http.StatusNotFound)

	if rec.Code != http.StatusNotFound {
		t.Errorf("response status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	spans := exp.GetSpans()
	if len(spans) == 0 {
		t.Fatal("no spans recorded")
	}
	found := false
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "http.response.status_code" && a.Value.AsInt64() == 404 {
			found = true
		}
	}
	if !found {
		t.Error("span missing http.response.status_code attribute")
	}
}

func TestMiddleware_PropagatesW3CTraceContext(t *testing.T) {
	m, _, _ := middlewareSetup(t)
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"

	req := httptest.NewRequest("GET", "/agent/reception", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec, cid := serve(Middleware(m), req, http.StatusOK)

	// The trunk's trace ID carries through as the correlation ID.
	if cid != traceID {
		t.Errorf("correlation ID = %q, want %q", cid, traceID)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("response X-Correlation-ID = %q, want %q", got, traceID)
	}
}

func TestMiddleware_WriterUnwrapsForHijack(t *testing.T) {
	m, _, _ := middlewareSetup(t)

	// The media endpoint upgrades to WebSocket through the middleware, so
	// http.ResponseController must be able to reach the underlying writer.
	var unwrapped http.ResponseWriter
	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		rec, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			t.Fatal("instrumented writer does not support Unwrap")
		}
		unwrapped = rec.Unwrap()
		w.WriteHeader(http.StatusSwitchingProtocols)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/agent/reception", nil))

	if unwrapped == nil {
		t.Fatal("Unwrap returned nil")
	}
}
