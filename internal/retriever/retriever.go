// Package retriever looks up previously indexed financial documents for the
// get_metrics_from_vector_store tool.
//
// A [Retriever] owns one or more [Searcher] backends. The first backend is
// the primary; any further backend is an operator-configured fallback that is
// only consulted when the primary fails or its circuit breaker is open.
// Results are returned exactly as the backend produced them.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/finengine/internal/observe"
	"github.com/MrWong99/finengine/internal/resilience"
)

// ErrNotConfigured is returned by [Retriever.Search] when no backend is set up.
var ErrNotConfigured = errors.New("retriever: no vector store configured")

// DefaultTimeout bounds a search when neither the caller nor the
// configuration sets a timeout.
const DefaultTimeout = 30 * time.Second

// Filter restricts results to documents whose attribute Key equals Value.
// Value is a string, float64 or bool.
type Filter struct {
	Key   string
	Value any
}

// Query is a single search request.
type Query struct {
	Text           string
	MaxResults     int
	ScoreThreshold float64
	Ranker         string
	RewriteQuery   bool

	// Filters are AND-combined.
	Filters []Filter
}

// Content is one piece of text of a matched document chunk.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Chunk is one search hit.
type Chunk struct {
	FileID     string         `json:"file_id"`
	Filename   string         `json:"filename"`
	Score      float64        `json:"score"`
	Content    []Content      `json:"content"`
	Attributes map[string]any `json:"attributes"`
}

// Searcher is a vector store backend.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Chunk, error)
}

// Pinger is implemented by backends that can cheaply check connectivity.
// [Retriever.Ready] uses it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Backend names a [Searcher].
type Backend struct {
	Name     string
	Searcher Searcher
}

// Config tunes a [Retriever].
type Config struct {
	// Timeout applies when a search does not carry its own. Default:
	// [DefaultTimeout].
	Timeout time.Duration

	// Breaker is the template for every backend's circuit breaker. Name and
	// OnStateChange are filled in per backend.
	Breaker resilience.CircuitBreakerConfig

	// Metrics receives per-backend request metrics and breaker transitions.
	// Nil disables recording.
	Metrics *observe.Metrics
}

// Retriever searches the configured backends with failover.
// It is safe for concurrent use.
type Retriever struct {
	timeout time.Duration
	group   *resilience.Group[Searcher]
	pingers map[string]Pinger
}

// New returns a Retriever over backends in priority order. With no backends
// every search fails with [ErrNotConfigured].
func New(cfg Config, backends ...Backend) *Retriever {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	breaker := cfg.Breaker
	if m := cfg.Metrics; m != nil {
		breaker.OnStateChange = func(name string, _, to resilience.State) {
			m.RecordBreakerTransition(context.Background(), name, to.String())
		}
	}

	r := &Retriever{
		timeout: cfg.Timeout,
		group:   resilience.NewGroup[Searcher](breaker),
		pingers: make(map[string]Pinger),
	}
	for _, b := range backends {
		var s Searcher = b.Searcher
		if cfg.Metrics != nil {
			s = &instrumented{name: b.Name, next: b.Searcher, metrics: cfg.Metrics}
		}
		r.group.Add(b.Name, s)
		if p, ok := b.Searcher.(Pinger); ok {
			r.pingers[b.Name] = p
		}
	}
	return r
}

// Configured reports whether at least one backend is set up.
func (r *Retriever) Configured() bool {
	return r != nil && r.group.Len() > 0
}

// Search runs q against the backends. timeout overrides the configured
// timeout when positive. The returned slice is never nil on success.
func (r *Retriever) Search(ctx context.Context, q Query, timeout time.Duration) ([]Chunk, error) {
	if !r.Configured() {
		return nil, ErrNotConfigured
	}
	if timeout <= 0 {
		timeout = r.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := observe.StartSpan(ctx, "retriever.search")
	chunks, served, err := resilience.Do(ctx, r.group, func(ctx context.Context, s Searcher) ([]Chunk, error) {
		return s.Search(ctx, q)
	})
	observe.EndSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("retriever: %w", err)
	}

	observe.Logger(ctx).Debug("vector store search served",
		"backend", served,
		"results", len(chunks))
	if chunks == nil {
		chunks = []Chunk{}
	}
	return chunks, nil
}

// Ready reports an error when no backend is configured or when every backend
// is unavailable. A backend is available when its breaker is not open and,
// if it implements [Pinger], its ping succeeds.
func (r *Retriever) Ready(ctx context.Context) error {
	if !r.Configured() {
		return ErrNotConfigured
	}
	var errs []error
	for _, m := range r.group.States() {
		if m.State == resilience.StateOpen {
			errs = append(errs, fmt.Errorf("%s: %w", m.Name, resilience.ErrCircuitOpen))
			continue
		}
		p, ok := r.pingers[m.Name]
		if !ok {
			return nil
		}
		if err := p.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.Name, err))
			continue
		}
		return nil
	}
	return fmt.Errorf("retriever: %w", errors.Join(errs...))
}

// instrumented records metrics for every call to the wrapped backend.
type instrumented struct {
	name    string
	next    Searcher
	metrics *observe.Metrics
}

func (s *instrumented) Search(ctx context.Context, q Query) ([]Chunk, error) {
	start := time.Now()
	chunks, err := s.next.Search(ctx, q)
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordRetrieverRequest(ctx, s.name, status, time.Since(start).Seconds())
	return chunks, err
}
