package observe

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Response headers set by [Middleware].
const (
	// TraceIDHeader echoes the trace ID of the request so that clients can
	// quote it when reporting a failed tool call.
	TraceIDHeader = "X-Trace-ID"

	// SessionHeader carries the streamable HTTP session of an MCP client.
	SessionHeader = "Mcp-Session-Id"
)

// routes are the paths served by the HTTP transports. Anything else is
// reported as "other" to keep metric cardinality bounded.
var routes = map[string]bool{
	"/mcp":     true,
	"/sse":     true,
	"/stats":   true,
	"/metrics": true,
	"/health":  true,
	"/healthz": true,
	"/readyz":  true,
}

// quietRoutes are polled by orchestrators and scrapers; their completion is
// logged at debug level.
var quietRoutes = map[string]bool{
	"/metrics": true,
	"/health":  true,
	"/healthz": true,
	"/readyz":  true,
}

// Route returns the metric label for path.
func Route(path string) string {
	if routes[path] {
		return path
	}
	return "other"
}

type middlewareConfig struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// MiddlewareOption configures [Middleware].
type MiddlewareOption func(*middlewareConfig)

// WithTracerProvider makes the middleware start spans on tp instead of the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) MiddlewareOption {
	return func(c *middlewareConfig) { c.tracer = tp.Tracer(tracerName) }
}

// statusWriter records the response status. It forwards Flush because the
// SSE transport refuses writers that cannot flush, and Unwrap for
// [http.ResponseController].
type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.written {
		w.status, w.written = code, true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.status, w.written = http.StatusOK, true
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Middleware instruments the HTTP transports. Each request continues the
// W3C trace context and baggage of the caller and runs in a server span
// tagged with the MCP session, if any. The response carries
// [TraceIDHeader]; the duration goes to [Metrics.HTTPRequestDuration] by
// method, route and status. m may be nil.
func Middleware(m *Metrics, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := middlewareConfig{
		propagator: propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
	}
	for _, o := range opts {
		o(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := Route(r.URL.Path)
			tracer := cfg.tracer
			if tracer == nil {
				tracer = otel.Tracer(tracerName)
			}

			ctx := cfg.propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.HTTPRoute(route),
				),
			)
			defer span.End()

			traceID := TraceID(ctx)
			if traceID != "" {
				w.Header().Set(TraceIDHeader, traceID)
			}

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r.WithContext(ctx))
			elapsed := time.Since(start)

			span.SetAttributes(semconv.HTTPResponseStatusCode(sw.status))
			// The session is assigned in the response to initialize.
			session := r.Header.Get(SessionHeader)
			if session == "" {
				session = w.Header().Get(SessionHeader)
			}
			if session != "" {
				span.SetAttributes(attribute.String("mcp.session.id", session))
			}
			if m != nil {
				m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
					attribute.String("method", r.Method),
					attribute.String("route", route),
					attribute.String("status", strconv.Itoa(sw.status)),
				))
			}

			level := slog.LevelInfo
			switch {
			case sw.status >= http.StatusInternalServerError:
				level = slog.LevelWarn
			case quietRoutes[route]:
				level = slog.LevelDebug
			}
			logAttrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", sw.status),
				slog.Duration("duration", elapsed),
			}
			if traceID != "" {
				logAttrs = append(logAttrs, slog.String("trace_id", traceID))
			}
			if session != "" {
				logAttrs = append(logAttrs, slog.String("session", session))
			}
			slog.LogAttrs(ctx, level, "http request", logAttrs...)
		})
	}
}
