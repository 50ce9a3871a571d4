package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// instrumented wraps h in the middleware with private metric and trace
// pipelines.
func instrumented(t *testing.T, h http.HandlerFunc) (http.Handler, *tracetest.InMemoryExporter, func() metricdata.ResourceMetrics) {
	t.Helper()
	m, reader := newTestMetrics(t)
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	return Middleware(m, WithTracerProvider(tp))(h), exp, func() metricdata.ResourceMetrics {
		return collect(t, reader)
	}
}

func spanAttr(s tracetest.SpanStub, key string) (attribute.Value, bool) {
	for _, kv := range s.Attributes {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func okHandler(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

// ── Routes ───────────────────────────────────────────────────────────────────

func TestRoute(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"/mcp":          "/mcp",
		"/sse":          "/sse",
		"/stats":        "/stats",
		"/readyz":       "/readyz",
		"/":             "other",
		"/mcp/extra":    "other",
		"/wp-login.php": "other",
	}
	for path, want := range tests {
		if got := Route(path); got != want {
			t.Errorf("Route(%q) = %q, want %q", path, got, want)
		}
	}
}

// ── Tracing ──────────────────────────────────────────────────────────────────

func TestMiddleware_ServerSpanAndTraceHeader(t *testing.T) {
	t.Parallel()
	h, exp, _ := instrumented(t, okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))

	traceID := rec.Header().Get(TraceIDHeader)
	if len(traceID) != 32 {
		t.Fatalf("%s = %q, want 32 hex digits", TraceIDHeader, traceID)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	s := spans[0]
	if s.Name != "POST /mcp" {
		t.Errorf("span name = %q", s.Name)
	}
	if s.SpanContext.TraceID().String() != traceID {
		t.Errorf("span trace %s does not match header %s", s.SpanContext.TraceID(), traceID)
	}
	if v, _ := spanAttr(s, "http.route"); v.AsString() != "/mcp" {
		t.Errorf("http.route = %q", v.AsString())
	}
	if v, _ := spanAttr(s, "http.response.status_code"); v.AsInt64() != http.StatusOK {
		t.Errorf("status attribute = %d", v.AsInt64())
	}
}

func TestMiddleware_ContinuesCallerTrace(t *testing.T) {
	t.Parallel()
	const (
		traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
		spanID  = "00f067aa0ba902b7"
	)
	h, exp, _ := instrumented(t, okHandler)

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-"+spanID+"-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get(TraceIDHeader); got != traceID {
		t.Errorf("%s = %q, want caller trace %q", TraceIDHeader, got, traceID)
	}
	s := exp.GetSpans()[0]
	if got := s.Parent.SpanID().String(); got != spanID {
		t.Errorf("parent span = %s, want %s", got, spanID)
	}
}

func TestMiddleware_TagsMCPSession(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		request string
		assign  string
	}{
		{name: "from request", request: "sess-1"},
		{name: "assigned by initialize", assign: "sess-2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, exp, _ := instrumented(t, func(w http.ResponseWriter, _ *http.Request) {
				if tt.assign != "" {
					w.Header().Set(SessionHeader, tt.assign)
				}
				w.WriteHeader(http.StatusOK)
			})
			req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			if tt.request != "" {
				req.Header.Set(SessionHeader, tt.request)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			want := tt.request + tt.assign
			if v, _ := spanAttr(exp.GetSpans()[0], "mcp.session.id"); v.AsString() != want {
				t.Errorf("mcp.session.id = %q, want %q", v.AsString(), want)
			}
		})
	}
}

// ── Metrics ──────────────────────────────────────────────────────────────────

func TestMiddleware_RecordsRouteAndStatus(t *testing.T) {
	t.Parallel()
	h, _, collectNow := instrumented(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/readyz" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("OK"))
	})

	for _, path := range []string{"/readyz", "/health", "/no/such/page", "/another/unknown"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	met := findMetric(collectNow(), "finengine.http.request.duration")
	if met == nil {
		t.Fatal("finengine.http.request.duration not recorded")
	}
	hist, isHist := met.Data.(metricdata.Histogram[float64])
	if !isHist {
		t.Fatalf("data type %T", met.Data)
	}
	got := make(map[string]uint64)
	for _, dp := range hist.DataPoints {
		route, _ := dp.Attributes.Value("route")
		status, _ := dp.Attributes.Value("status")
		got[route.AsString()+" "+status.AsString()] += dp.Count
	}
	want := map[string]uint64{
		"/readyz 503": 1,
		"/health 200": 1,
		"other 200":   2,
	}
	for k, n := range want {
		if got[k] != n {
			t.Errorf("count[%s] = %d, want %d (all: %v)", k, got[k], n, got)
		}
	}
}

func TestMiddleware_NilMetrics(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	Middleware(nil)(http.HandlerFunc(okHandler)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

// ── Streaming ────────────────────────────────────────────────────────────────

func TestMiddleware_KeepsStreamingCapabilities(t *testing.T) {
	t.Parallel()
	h, _, _ := instrumented(t, func(w http.ResponseWriter, _ *http.Request) {
		if _, isFlusher := w.(http.Flusher); !isFlusher {
			t.Error("wrapped writer is not an http.Flusher")
		}
		if err := http.NewResponseController(w).Flush(); err != nil {
			t.Errorf("ResponseController.Flush: %v", err)
		}
		_, _ = w.Write([]byte("event: endpoint\n\n"))
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sse", nil))
	if !rec.Flushed {
		t.Error("response was not flushed")
	}
}
