package retriever

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/finengine/internal/finance"
	"github.com/MrWong99/finengine/internal/observe"
	"github.com/MrWong99/finengine/internal/resilience"
)

// fakeSearcher returns canned results and counts calls.
type fakeSearcher struct {
	chunks []Chunk
	err    error
	block  bool // wait for ctx to end
	pingFn func(context.Context) error

	calls atomic.Int32
	last  atomic.Pointer[Query]
}

func (f *fakeSearcher) Search(ctx context.Context, q Query) ([]Chunk, error) {
	f.calls.Add(1)
	f.last.Store(&q)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.chunks, f.err
}

// pingSearcher adds a Ping method to a fakeSearcher.
type pingSearcher struct{ *fakeSearcher }

func (p pingSearcher) Ping(ctx context.Context) error { return p.pingFn(ctx) }

var sampleChunk = Chunk{
	FileID:     "file-1",
	Filename:   "acme.pdf",
	Score:      0.8,
	Content:    []Content{{Type: "text", Text: "Revenue 120M"}},
	Attributes: map[string]any{"year": 2024.0},
}

// ─────────────────────────────────────────────────────────────────────────────
// Retriever
// ─────────────────────────────────────────────────────────────────────────────

func TestRetriever_NotConfigured(t *testing.T) {
	t.Parallel()
	r := New(Config{})
	if r.Configured() {
		t.Error("Configured() = true with no backends")
	}
	if _, err := r.Search(context.Background(), Query{Text: "x"}, 0); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Search error = %v, want ErrNotConfigured", err)
	}
	if err := r.Ready(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Ready error = %v, want ErrNotConfigured", err)
	}
}

func TestRetriever_PassesQueryAndResultsThrough(t *testing.T) {
	t.Parallel()
	primary := &fakeSearcher{chunks: []Chunk{sampleChunk}}
	r := New(Config{}, Backend{Name: "openai", Searcher: primary})

	q := Query{Text: "acme revenue", MaxResults: 3, ScoreThreshold: 0.2, Ranker: "auto",
		Filters: []Filter{{Key: "year", Value: 2024.0}}}
	got, err := r.Search(context.Background(), q, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].FileID != "file-1" || got[0].Content[0].Text != "Revenue 120M" {
		t.Errorf("results = %+v", got)
	}
	last := primary.last.Load()
	if last.Text != q.Text || last.MaxResults != 3 || len(last.Filters) != 1 {
		t.Errorf("backend received %+v", *last)
	}
}

func TestRetriever_EmptyResultIsNotNil(t *testing.T) {
	t.Parallel()
	r := New(Config{}, Backend{Name: "openai", Searcher: &fakeSearcher{}})
	got, err := r.Search(context.Background(), Query{Text: "x"}, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got == nil {
		t.Error("results are nil, want empty slice")
	}
}

func TestRetriever_FailureIsAnError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	r := New(Config{}, Backend{Name: "openai", Searcher: &fakeSearcher{err: boom}})
	got, err := r.Search(context.Background(), Query{Text: "x"}, 0)
	if !errors.Is(err, boom) || !errors.Is(err, resilience.ErrAllFailed) {
		t.Errorf("error = %v, want it to wrap the backend error", err)
	}
	if got != nil {
		t.Errorf("results = %v, want none on failure", got)
	}
	if !strings.HasPrefix(err.Error(), "retriever: ") {
		t.Errorf("error %q lacks the package prefix", err)
	}
}

func TestRetriever_FailsOverToFallback(t *testing.T) {
	t.Parallel()
	primary := &fakeSearcher{err: errors.New("down")}
	fallback := &fakeSearcher{chunks: []Chunk{sampleChunk}}
	r := New(Config{},
		Backend{Name: "openai", Searcher: primary},
		Backend{Name: "pgvector", Searcher: fallback},
	)
	got, err := r.Search(context.Background(), Query{Text: "x"}, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("results = %v", got)
	}
	if primary.calls.Load() != 1 || fallback.calls.Load() != 1 {
		t.Errorf("calls primary=%d fallback=%d, want 1/1", primary.calls.Load(), fallback.calls.Load())
	}
}

func TestRetriever_Timeout(t *testing.T) {
	t.Parallel()
	slow := &fakeSearcher{block: true}
	r := New(Config{Timeout: time.Hour}, Backend{Name: "openai", Searcher: slow})

	start := time.Now()
	_, err := r.Search(context.Background(), Query{Text: "x"}, 20*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want DeadlineExceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("per-call timeout was not applied")
	}
}

func TestRetriever_DefaultTimeout(t *testing.T) {
	t.Parallel()
	slow := &fakeSearcher{block: true}
	r := New(Config{Timeout: 20 * time.Millisecond}, Backend{Name: "openai", Searcher: slow})
	if _, err := r.Search(context.Background(), Query{Text: "x"}, 0); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want DeadlineExceeded", err)
	}
}

func TestRetriever_CallerCancellation(t *testing.T) {
	t.Parallel()
	slow := &fakeSearcher{block: true}
	r := New(Config{}, Backend{Name: "openai", Searcher: slow})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	if _, err := r.Search(ctx, Query{Text: "x"}, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want Canceled", err)
	}
}

func TestRetriever_OpenBreakerSkipsBackend(t *testing.T) {
	t.Parallel()
	primary := &fakeSearcher{err: errors.New("down")}
	r := New(Config{Breaker: resilience.CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour}},
		Backend{Name: "openai", Searcher: primary})

	_, _ = r.Search(context.Background(), Query{Text: "x"}, 0)
	_, err := r.Search(context.Background(), Query{Text: "x"}, 0)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("error = %v, want ErrCircuitOpen", err)
	}
	if primary.calls.Load() != 1 {
		t.Errorf("backend called %d times, want 1", primary.calls.Load())
	}
	if err := r.Ready(context.Background()); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("Ready = %v, want ErrCircuitOpen", err)
	}
}

func TestRetriever_Ready(t *testing.T) {
	t.Parallel()
	pingErr := errors.New("connection refused")
	tests := []struct {
		name     string
		backends []Backend
		wantErr  error
	}{
		{
			name:     "no pinger",
			backends: []Backend{{Name: "openai", Searcher: &fakeSearcher{}}},
		},
		{
			name: "ping ok",
			backends: []Backend{{Name: "pgvector", Searcher: pingSearcher{&fakeSearcher{
				pingFn: func(context.Context) error { return nil },
			}}}},
		},
		{
			name: "ping fails",
			backends: []Backend{{Name: "pgvector", Searcher: pingSearcher{&fakeSearcher{
				pingFn: func(context.Context) error { return pingErr },
			}}}},
			wantErr: pingErr,
		},
		{
			name: "fallback ready",
			backends: []Backend{
				{Name: "pgvector", Searcher: pingSearcher{&fakeSearcher{
					pingFn: func(context.Context) error { return pingErr },
				}}},
				{Name: "openai", Searcher: &fakeSearcher{}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := New(Config{}, tt.backends...).Ready(context.Background())
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Ready = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Ready = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetriever_RecordsMetrics(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	r := New(Config{Metrics: m, Breaker: resilience.CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour}},
		Backend{Name: "openai", Searcher: &fakeSearcher{err: errors.New("down")}},
		Backend{Name: "pgvector", Searcher: &fakeSearcher{chunks: []Chunk{sampleChunk}}},
	)
	if _, err := r.Search(context.Background(), Query{Text: "x"}, 0); err != nil {
		t.Fatalf("Search: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	requests := map[string]int64{}
	var opened bool
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				backend, _ := dp.Attributes.Value("backend")
				switch md.Name {
				case "finengine.retriever.requests":
					status, _ := dp.Attributes.Value("status")
					requests[backend.AsString()+"/"+status.AsString()] += dp.Value
				case "finengine.retriever.breaker_transitions":
					state, _ := dp.Attributes.Value("state")
					if backend.AsString() == "openai" && state.AsString() == "open" {
						opened = true
					}
				}
			}
		}
	}
	if requests["openai/error"] != 1 || requests["pgvector/ok"] != 1 {
		t.Errorf("retriever requests = %v", requests)
	}
	if !opened {
		t.Error("breaker transition to open not recorded")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Query templates
// ─────────────────────────────────────────────────────────────────────────────

func TestFunctions_CoverEveryCalculator(t *testing.T) {
	t.Parallel()
	got := Functions()
	if len(got) != 11 {
		t.Fatalf("got %d functions, want 11: %v", len(got), got)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1] >= got[i] {
			t.Errorf("Functions() not sorted: %v", got)
		}
	}
}

func TestCanonicalFunction(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"organic_growth", "organic_growth", true},
		{"calculate_organic_growth", "organic_growth", true},
		{" gini_coefficient ", "gini_coefficient", true},
		{"calculate_", "", false},
		{"get_metrics_from_vector_store", "get_metrics_from_vector_store", false},
		{"ORGANIC_GROWTH", "ORGANIC_GROWTH", false},
	}
	for _, tt := range tests {
		got, ok := CanonicalFunction(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("CanonicalFunction(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestBuildQuery(t *testing.T) {
	t.Parallel()
	q, err := BuildQuery("calculate_operating_leverage", "  Acme Corp ")
	if err != nil {
		t.Fatalf("BuildQuery: %v", err)
	}
	if !strings.HasPrefix(q, "Acme Corp ") || !strings.Contains(q, "cost growth") {
		t.Errorf("query = %q", q)
	}

	q, err = BuildQuery("organic_growth", "100%s Co")
	if err != nil {
		t.Fatalf("BuildQuery: %v", err)
	}
	if !strings.HasPrefix(q, "100%s Co ") || strings.Contains(q, "%!") {
		t.Errorf("company name was interpreted as a format: %q", q)
	}

	_, err = BuildQuery("<script>", "Acme")
	if !errors.Is(err, finance.ErrInvalidArgument) {
		t.Fatalf("error = %v, want invalid_argument", err)
	}
	if strings.ContainsAny(err.Error(), "<>") {
		t.Errorf("error echoes raw input: %q", err)
	}
}
