package observe

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

// restoreGlobals puts back the OTel globals that InitProvider replaces.
func restoreGlobals(t *testing.T) {
	t.Helper()
	mp, tp, prop := otel.GetMeterProvider(), otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetMeterProvider(mp)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func TestInitProvider_BridgesMetricsToRegistry(t *testing.T) {
	restoreGlobals(t)
	reg := prometheus.NewRegistry()
	shutdown, err := InitProvider(context.Background(), ProviderConfig{
		ServiceVersion: "test",
		Registerer:     reg,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordToolCall(context.Background(), "gini_coefficient", "", 0.002)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	if !slices.ContainsFunc(names, func(n string) bool { return strings.HasPrefix(n, "finengine_tool_calls") }) {
		t.Errorf("finengine_tool_calls not exported; families: %v", names)
	}
}

func TestInitProvider_InstallsPropagator(t *testing.T) {
	restoreGlobals(t)
	shutdown, err := InitProvider(context.Background(), ProviderConfig{Registerer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	fields := otel.GetTextMapPropagator().Fields()
	for _, want := range []string{"traceparent", "baggage"} {
		if !slices.Contains(fields, want) {
			t.Errorf("propagator fields %v missing %q", fields, want)
		}
	}

	_, span := StartSpan(context.Background(), "sampled")
	defer span.End()
	if !span.SpanContext().IsSampled() {
		t.Error("default sampler dropped a root span")
	}
}

func TestInitProvider_RejectsSampleRatio(t *testing.T) {
	t.Parallel()
	for _, ratio := range []float64{-0.1, 1.5} {
		if _, err := InitProvider(context.Background(), ProviderConfig{SampleRatio: ratio}); err == nil {
			t.Errorf("ratio %g accepted", ratio)
		}
	}
}
