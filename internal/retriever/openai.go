package retriever

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/tidwall/gjson"
)

// Ensure OpenAI implements the Searcher interface.
var _ Searcher = (*OpenAI)(nil)

// OpenAI searches a hosted OpenAI vector store.
type OpenAI struct {
	client  oai.Client
	storeID string
}

// openAIConfig holds optional configuration for [NewOpenAI].
type openAIConfig struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// OpenAIOption is a functional option for [NewOpenAI].
type OpenAIOption func(*openAIConfig)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) OpenAIOption {
	return func(c *openAIConfig) {
		c.timeout = d
	}
}

// WithHTTPClient replaces the HTTP client. It takes precedence over
// [WithTimeout].
func WithHTTPClient(hc *http.Client) OpenAIOption {
	return func(c *openAIConfig) {
		c.httpClient = hc
	}
}

// NewOpenAI constructs a backend for the vector store storeID.
func NewOpenAI(apiKey, storeID string, opts ...OpenAIOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai vector store: apiKey must not be empty")
	}
	if storeID == "" {
		return nil, fmt.Errorf("openai vector store: vector store id must not be empty")
	}

	return &OpenAI{client: newOpenAIClient(apiKey, opts), storeID: storeID}, nil
}

// newOpenAIClient builds a client shared by the search backend and the
// embedder. Failed requests are reported, never retried.
func newOpenAIClient(apiKey string, opts []OpenAIOption) oai.Client {
	cfg := &openAIConfig{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	switch {
	case cfg.httpClient != nil:
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	case cfg.timeout > 0:
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	return oai.NewClient(reqOpts...)
}

// Search implements [Searcher].
func (o *OpenAI) Search(ctx context.Context, q Query) ([]Chunk, error) {
	params := oai.VectorStoreSearchParams{
		Query: oai.VectorStoreSearchParamsQueryUnion{
			OfString: oai.String(q.Text),
		},
		RewriteQuery: oai.Bool(q.RewriteQuery),
		RankingOptions: oai.VectorStoreSearchParamsRankingOptions{
			ScoreThreshold: oai.Float(q.ScoreThreshold),
		},
	}
	if q.MaxResults > 0 {
		params.MaxNumResults = oai.Int(int64(q.MaxResults))
	}
	if q.Ranker != "" {
		params.RankingOptions.Ranker = q.Ranker
	}
	if f, ok := openAIFilters(q.Filters); ok {
		params.Filters = f
	}

	page, err := o.client.VectorStores.Search(ctx, o.storeID, params)
	if err != nil {
		return nil, fmt.Errorf("openai vector store: search: %w", err)
	}

	chunks := make([]Chunk, 0, len(page.Data))
	for _, d := range page.Data {
		c := Chunk{
			FileID:     d.FileID,
			Filename:   d.Filename,
			Score:      d.Score,
			Content:    make([]Content, 0, len(d.Content)),
			Attributes: make(map[string]any, len(d.Attributes)),
		}
		for _, part := range d.Content {
			c.Content = append(c.Content, Content{Type: part.Type, Text: part.Text})
		}
		for k, v := range d.Attributes {
			c.Attributes[k] = attributeValue(v)
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// openAIFilters turns equality filters into a single comparison filter or an
// AND compound filter.
func openAIFilters(filters []Filter) (oai.VectorStoreSearchParamsFiltersUnion, bool) {
	if len(filters) == 0 {
		return oai.VectorStoreSearchParamsFiltersUnion{}, false
	}
	cmp := make([]shared.ComparisonFilterParam, 0, len(filters))
	for _, f := range filters {
		cmp = append(cmp, shared.ComparisonFilterParam{
			Key:   f.Key,
			Type:  shared.ComparisonFilterTypeEq,
			Value: comparisonValue(f.Value),
		})
	}
	if len(cmp) == 1 {
		return oai.VectorStoreSearchParamsFiltersUnion{OfComparisonFilter: &cmp[0]}, true
	}
	return oai.VectorStoreSearchParamsFiltersUnion{
		OfCompoundFilter: &shared.CompoundFilterParam{
			Filters: cmp,
			Type:    shared.CompoundFilterTypeAnd,
		},
	}, true
}

func comparisonValue(v any) shared.ComparisonFilterValueUnionParam {
	switch v := v.(type) {
	case bool:
		return shared.ComparisonFilterValueUnionParam{OfBool: oai.Bool(v)}
	case float64:
		return shared.ComparisonFilterValueUnionParam{OfFloat: oai.Float(v)}
	case int:
		return shared.ComparisonFilterValueUnionParam{OfFloat: oai.Float(float64(v))}
	default:
		return shared.ComparisonFilterValueUnionParam{OfString: oai.String(fmt.Sprint(v))}
	}
}

// attributeValue decodes an attribute into a string, float64 or bool.
func attributeValue(u oai.VectorStoreSearchResponseAttributeUnion) any {
	raw := u.RawJSON()
	if !gjson.Valid(raw) {
		return nil
	}
	return gjson.Parse(raw).Value()
}
