package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns instruments on a private provider read through
// reader.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the value of the int64 sum data point carrying key=value.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) (int64, bool) {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				return dp.Value, true
			}
		}
	}
	return 0, false
}

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordToolCall(ctx, "gini_coefficient", "", 0.0004)
	m.RecordToolCall(ctx, "gini_coefficient", "", 0.0002)
	m.RecordToolCall(ctx, "gini_coefficient", "invalid_argument", 0.0001)
	m.RecordRetrieverRequest(ctx, "openai", "ok", 0.8)
	m.RecordRetrieverRequest(ctx, "openai", "error", 2.1)
	m.RecordRetrieverRequest(ctx, "pgvector", "ok", 0.05)
	m.RecordBreakerTransition(ctx, "openai", "open")
	m.ActiveCalls.Add(ctx, 1)
	m.ActiveCalls.Add(ctx, 1)
	m.ActiveCalls.Add(ctx, -1)

	rm := collect(t, reader)
	tests := []struct {
		metric, key, value string
		want               int64
	}{
		{"finengine.tool.calls", "status", "ok", 2},
		{"finengine.tool.calls", "status", "error", 1},
		{"finengine.tool.errors", "kind", "invalid_argument", 1},
		{"finengine.retriever.requests", "backend", "pgvector", 1},
		{"finengine.retriever.requests", "status", "error", 1},
		{"finengine.retriever.breaker_transitions", "state", "open", 1},
	}
	for _, tt := range tests {
		if got, found := sumFor(t, rm, tt.metric, tt.key, tt.value); !found || got != tt.want {
			t.Errorf("%s{%s=%q} = %d (found %v), want %d", tt.metric, tt.key, tt.value, got, found, tt.want)
		}
	}

	active := findMetric(rm, "finengine.tool.active_calls").Data.(metricdata.Sum[int64])
	if len(active.DataPoints) != 1 || active.DataPoints[0].Value != 1 {
		t.Errorf("active calls = %+v, want 1", active.DataPoints)
	}
}

func TestMetrics_Histograms(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	for range 3 {
		m.RecordToolCall(ctx, "operating_leverage", "", 0.002)
	}
	m.RecordRetrieverRequest(ctx, "openai", "ok", 0.8)
	m.RecordRetrieverRequest(ctx, "pgvector", "ok", 0.05)

	rm := collect(t, reader)
	tests := []struct {
		metric  string
		samples uint64
	}{
		{"finengine.tool.duration", 3},
		{"finengine.retriever.duration", 2},
	}
	for _, tt := range tests {
		met := findMetric(rm, tt.metric)
		if met == nil {
			t.Errorf("%s not recorded", tt.metric)
			continue
		}
		hist := met.Data.(metricdata.Histogram[float64])
		var n uint64
		for _, dp := range hist.DataPoints {
			n += dp.Count
			if len(dp.Bounds) != len(toolBuckets) || dp.Bounds[0] != toolBuckets[0] {
				t.Errorf("%s bounds = %v", tt.metric, dp.Bounds)
			}
		}
		if n != tt.samples {
			t.Errorf("%s samples = %d, want %d", tt.metric, n, tt.samples)
		}
	}
}

func TestRecordToolCall_SuccessLeavesErrorsEmpty(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	m.RecordToolCall(context.Background(), "operating_leverage", "", 0.001)

	if met := findMetric(collect(t, reader), "finengine.tool.errors"); met != nil {
		if sum := met.Data.(metricdata.Sum[int64]); len(sum.DataPoints) > 0 {
			t.Errorf("errors recorded after success: %+v", sum.DataPoints)
		}
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
