package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
)

// DefaultEmbeddingModel embeds queries when the config names no model.
const DefaultEmbeddingModel = oai.EmbeddingModelTextEmbedding3Small

// Embedder turns a search query into the vector space of the document
// table.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// nativeDimensions of the OpenAI embedding models; unknown models are
// assumed to match text-embedding-3-small.
var nativeDimensions = map[string]int{
	oai.EmbeddingModelTextEmbedding3Small: 1536,
	oai.EmbeddingModelTextEmbedding3Large: 3072,
	oai.EmbeddingModelTextEmbeddingAda002: 1536,
}

// queryCacheSize bounds the number of remembered query vectors.
const queryCacheSize = 256

// OpenAIEmbedder embeds queries through the OpenAI embeddings API. Queries
// are normalised for whitespace and their vectors are remembered, since the
// same question tends to be asked of many documents.
type OpenAIEmbedder struct {
	client oai.Client
	model  string
	dims   int

	mu    sync.Mutex
	cache map[string][]float32
	order []string
}

// NewOpenAIEmbedder returns an embedder for model, or [DefaultEmbeddingModel]
// when empty. dimensions of 0 keeps the model's native size; a smaller value
// has the API shorten the vectors to match the table.
func NewOpenAIEmbedder(apiKey, model string, dimensions int, opts ...OpenAIOption) (*OpenAIEmbedder, error) {
	switch {
	case apiKey == "":
		return nil, errors.New("openai embeddings: api key is required")
	case dimensions < 0:
		return nil, fmt.Errorf("openai embeddings: dimensions %d is negative", dimensions)
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &OpenAIEmbedder{
		client: newOpenAIClient(apiKey, opts),
		model:  model,
		dims:   dimensions,
		cache:  make(map[string][]float32),
	}, nil
}

// Embed returns the vector for text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := strings.Join(strings.Fields(text), " ")
	if key == "" {
		return nil, errors.New("openai embeddings: empty query")
	}
	if v, hit := e.lookup(key); hit {
		return v, nil
	}

	params := oai.EmbeddingNewParams{
		Model: e.model,
		Input: oai.EmbeddingNewParamsInputUnion{OfString: param.NewOpt(key)},
	}
	if e.dims > 0 && e.dims != e.native() {
		params.Dimensions = param.NewOpt(int64(e.dims))
	}
	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai embeddings: response has no vectors")
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, x := range resp.Data[0].Embedding {
		vec[i] = float32(x)
	}
	e.remember(key, vec)
	return vec, nil
}

// Dimensions is the length of the vectors Embed returns.
func (e *OpenAIEmbedder) Dimensions() int {
	if e.dims > 0 {
		return e.dims
	}
	return e.native()
}

func (e *OpenAIEmbedder) native() int {
	if n, known := nativeDimensions[e.model]; known {
		return n
	}
	return nativeDimensions[oai.EmbeddingModelTextEmbedding3Small]
}

func (e *OpenAIEmbedder) lookup(key string) ([]float32, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, hit := e.cache[key]
	return v, hit
}

// remember stores vec, evicting the oldest entry when full.
func (e *OpenAIEmbedder) remember(key string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, hit := e.cache[key]; hit {
		return
	}
	if len(e.order) == queryCacheSize {
		delete(e.cache, e.order[0])
		e.order = e.order[1:]
	}
	e.cache[key] = vec
	e.order = append(e.order, key)
}
