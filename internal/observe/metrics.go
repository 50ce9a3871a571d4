// Package observe wires OpenTelemetry into finengine. [InitProvider]
// installs the global providers and bridges metrics to a Prometheus
// registry; [Metrics] holds the instruments recorded by the dispatcher, the
// retriever and the HTTP [Middleware]; [StartSpan] and [Logger] tie spans to
// log lines.
//
// Tests build their own instruments with [NewMetrics] and a private
// [metric.MeterProvider]; [DefaultMetrics] is for the binary.
package observe

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all finengine metrics.
const meterName = "github.com/MrWong99/finengine"

// Metrics holds the instruments finengine records. Fields are safe for
// concurrent use; the Record helpers attach the expected attributes.
type Metrics struct {
	ToolCalls    metric.Int64Counter       // tool, status
	ToolErrors   metric.Int64Counter       // tool, kind
	ToolDuration metric.Float64Histogram   // tool; validation included
	ActiveCalls  metric.Int64UpDownCounter // in-flight invocations

	RetrieverRequests  metric.Int64Counter     // backend, status
	RetrieverDuration  metric.Float64Histogram // backend
	BreakerTransitions metric.Int64Counter     // backend, state

	HTTPRequestDuration metric.Float64Histogram // method, route, status
}

// toolBuckets covers in-process calculations (sub-millisecond) up to
// vector-store lookups (seconds).
var toolBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// builder creates instruments on one meter and keeps the first error.
type builder struct {
	meter metric.Meter
	err   error
}

func (b *builder) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.keep(err)
	return c
}

func (b *builder) gauge(name, desc string) metric.Int64UpDownCounter {
	g, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	b.keep(err)
	return g
}

func (b *builder) seconds(name, desc string, bounds ...float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit("s")}
	if len(bounds) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(bounds...))
	}
	h, err := b.meter.Float64Histogram(name, opts...)
	b.keep(err)
	return h
}

func (b *builder) keep(err error) {
	if b.err == nil && err != nil {
		b.err = err
	}
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := &builder{meter: mp.Meter(meterName)}
	m := &Metrics{
		ToolCalls:    b.counter("finengine.tool.calls", "Tool invocations by tool and status."),
		ToolErrors:   b.counter("finengine.tool.errors", "Failed tool invocations by tool and error kind."),
		ToolDuration: b.seconds("finengine.tool.duration", "Tool invocation latency.", toolBuckets...),
		ActiveCalls:  b.gauge("finengine.tool.active_calls", "Tool invocations in flight."),

		RetrieverRequests:  b.counter("finengine.retriever.requests", "Vector store searches by backend and status."),
		RetrieverDuration:  b.seconds("finengine.retriever.duration", "Vector store search latency.", toolBuckets...),
		BreakerTransitions: b.counter("finengine.retriever.breaker_transitions", "Circuit breaker state changes by backend and state."),

		HTTPRequestDuration: b.seconds("finengine.http.request.duration", "HTTP request latency by method, route and status."),
	}
	if b.err != nil {
		return nil, fmt.Errorf("observe: create instrument: %w", b.err)
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns process-wide instruments on [otel.GetMeterProvider].
// Call it after [InitProvider] so they are exported.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic(err)
		}
	})
	return defaultMetrics
}

// RecordToolCall records one finished invocation. kind is empty on success.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, kind string, seconds float64) {
	status := "ok"
	if kind != "" {
		status = "error"
		m.ToolErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("kind", kind),
		))
	}
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	))
	m.ToolDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("tool", tool)))
}

// RecordRetrieverRequest records one backend search.
func (m *Metrics) RecordRetrieverRequest(ctx context.Context, backend, status string, seconds float64) {
	m.RetrieverRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("status", status),
	))
	m.RetrieverDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("backend", backend)))
}

// RecordBreakerTransition records a circuit breaker entering state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, backend, state string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("state", state),
	))
}
