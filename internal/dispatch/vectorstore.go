package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/MrWong99/finengine/internal/finance"
	"github.com/MrWong99/finengine/internal/finance/args"
	"github.com/MrWong99/finengine/internal/observe"
	"github.com/MrWong99/finengine/internal/resilience"
	"github.com/MrWong99/finengine/internal/retriever"
)

// Vector store lookup defaults, echoed in every result.
const (
	DefaultMaxResults     = 10
	DefaultScoreThreshold = 0.0
	DefaultRanker         = "auto"
	MaxTimeoutSeconds     = 120
)

// Retriever is the vector store collaborator. [*retriever.Retriever]
// implements it; a zero timeout selects the retriever's default.
type Retriever interface {
	Search(ctx context.Context, q retriever.Query, timeout time.Duration) ([]retriever.Chunk, error)
}

// VectorStoreResult is the output of the vector store lookup tool.
type VectorStoreResult struct {
	FunctionName   string            `json:"function_name"`
	CompanyName    string            `json:"company_name"`
	Query          string            `json:"query"`
	MaxNumResults  int               `json:"max_num_results"`
	ScoreThreshold float64           `json:"score_threshold"`
	Ranker         string            `json:"ranker"`
	RewriteQuery   bool              `json:"rewrite_query"`
	Filters        map[string]any    `json:"filters,omitempty"`
	TimeoutSeconds *float64          `json:"timeout_seconds,omitempty"`
	Results        []retriever.Chunk `json:"results"`
}

func vectorStoreTool(vs Retriever) Definition {
	return Definition{
		Name: ToolVectorStoreMetrics,
		Description: "Searches the configured vector store for the documents needed to compute one of the metric tools for a company. " +
			"Returns the templated query and the matching chunks unmodified.",
		Fields: []args.Field{
			args.Text("function_name", "Metric tool the data is for, e.g. organic_growth. A calculate_ prefix is accepted.").Limit(64),
			args.Text("company_name", "Company to search for.").Limit(100),
			args.Integer("max_num_results", "Maximum number of chunks to return.").Range(1, 100).Optional().WithDefault(DefaultMaxResults),
			args.Number("score_threshold", "Minimum relevance score.").Range(0, 1).Optional().WithDefault(DefaultScoreThreshold),
			args.Text("ranker", "Ranking algorithm.").OneOf("auto", "default-2024-11-15").Optional().WithDefault(DefaultRanker),
			args.Boolean("rewrite_query", "Let the vector store rewrite the query.").Optional().WithDefault(false),
			args.ScalarMap("filters", "Attribute equality filters, all of which must match.").Optional(),
			args.Number("timeout_seconds", "Lookup timeout in seconds.").Above(0).AtMost(MaxTimeoutSeconds).Optional(),
		},
		Call: func(ctx context.Context, b args.Bag) (any, error) {
			return lookupMetrics(ctx, vs, b)
		},
	}
}

func lookupMetrics(ctx context.Context, vs Retriever, b args.Bag) (*VectorStoreResult, error) {
	function, company := b.Str("function_name", ""), b.Str("company_name", "")
	query, err := retriever.BuildQuery(function, company)
	if err != nil {
		return nil, err
	}
	canonical, _ := retriever.CanonicalFunction(function)

	res := &VectorStoreResult{
		FunctionName:   canonical,
		CompanyName:    company,
		Query:          query,
		MaxNumResults:  b.Int("max_num_results", DefaultMaxResults),
		ScoreThreshold: DefaultScoreThreshold,
		Ranker:         b.Str("ranker", DefaultRanker),
		RewriteQuery:   b.Bool("rewrite_query", false),
		TimeoutSeconds: b.OptFloat("timeout_seconds"),
	}
	if t := b.OptFloat("score_threshold"); t != nil {
		res.ScoreThreshold = *t
	}

	q := retriever.Query{
		Text:           query,
		MaxResults:     res.MaxNumResults,
		ScoreThreshold: res.ScoreThreshold,
		Ranker:         res.Ranker,
		RewriteQuery:   res.RewriteQuery,
	}
	if entries := b.Entries("filters"); len(entries) > 0 {
		res.Filters = make(map[string]any, len(entries))
		for _, e := range entries {
			v := e.Value.Scalar()
			res.Filters[e.Key] = v
			q.Filters = append(q.Filters, retriever.Filter{Key: e.Key, Value: v})
		}
	}

	var timeout time.Duration
	if res.TimeoutSeconds != nil {
		timeout = time.Duration(math.Round(*res.TimeoutSeconds * float64(time.Second)))
	}

	if vs == nil {
		return nil, retrieverError(ctx, retriever.ErrNotConfigured)
	}
	chunks, err := vs.Search(ctx, q, timeout)
	if err != nil {
		return nil, retrieverError(ctx, err)
	}
	if chunks == nil {
		chunks = []retriever.Chunk{}
	}
	res.Results = chunks
	return res, nil
}

// retrieverError turns a collaborator failure into a tool error. The backend
// detail is logged, not returned, because it may quote the request.
func retrieverError(ctx context.Context, err error) *finance.Error {
	var msg string
	switch {
	case errors.Is(err, retriever.ErrNotConfigured):
		msg = "vector store is not configured"
	case errors.Is(err, context.DeadlineExceeded):
		msg = "vector store lookup timed out"
	case errors.Is(err, context.Canceled):
		msg = "vector store lookup was cancelled"
	case errors.Is(err, resilience.ErrCircuitOpen):
		msg = "vector store is unavailable"
	default:
		msg = "vector store lookup failed"
	}
	observe.Logger(ctx).LogAttrs(ctx, slog.LevelWarn, "vector store lookup failed", slog.String("error", err.Error()))
	return &finance.Error{Kind: finance.KindRetriever, Message: msg}
}
