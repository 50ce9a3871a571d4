package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/finengine/internal/config"
	"github.com/MrWong99/finengine/internal/observe"
	"github.com/MrWong99/finengine/internal/resilience"
	"github.com/MrWong99/finengine/internal/retriever"
)

// ── Backend registration ──────────────────────────────────────────────────────

// registerBuiltinBackends wires the vector store backends that ship with
// finengine into reg.
func registerBuiltinBackends(reg *config.Registry) {
	reg.RegisterBackend(config.BackendOpenAI, func(_ context.Context, c config.VectorStoreConfig) (retriever.Searcher, error) {
		s, err := retriever.NewOpenAI(c.APIKey, c.VectorStoreID, openAIOptions(c)...)
		if err != nil {
			return nil, err
		}
		return s, nil
	})

	reg.RegisterBackend(config.BackendPGVector, func(ctx context.Context, c config.VectorStoreConfig) (retriever.Searcher, error) {
		emb, err := retriever.NewOpenAIEmbedder(c.APIKey, c.EmbeddingModel, c.EmbeddingDimensions, openAIOptions(c)...)
		if err != nil {
			return nil, fmt.Errorf("embedder: %w", err)
		}
		s, err := retriever.NewPGVector(ctx, c.PostgresDSN, emb)
		if err != nil {
			return nil, err
		}
		return s, nil
	})

	slog.Debug("registered vector store backends", "backends", reg.Backends())
}

// openAIOptions leaves the HTTP timeout unset: a call's timeout_seconds may
// exceed the configured default and is enforced through the context.
func openAIOptions(c config.VectorStoreConfig) []retriever.OpenAIOption {
	var opts []retriever.OpenAIOption
	if c.BaseURL != "" {
		opts = append(opts, retriever.WithBaseURL(c.BaseURL))
	}
	return opts
}

// closer is implemented by backends that hold connections.
type closer interface{ Close() }

// buildRetriever instantiates the configured backends in priority order and
// wraps them in a [retriever.Retriever]. The returned release func closes the
// backends and is safe to call when err is non-nil.
func buildRetriever(ctx context.Context, vs config.VectorStoreConfig, reg *config.Registry, m *observe.Metrics) (*retriever.Retriever, func(), error) {
	var backends []retriever.Backend
	release := func() {
		for _, b := range backends {
			if c, ok := b.Searcher.(closer); ok {
				c.Close()
			}
		}
	}

	for _, name := range vs.Backends() {
		s, err := reg.CreateBackend(ctx, name, vs)
		if errors.Is(err, config.ErrBackendNotRegistered) {
			release()
			return nil, func() {}, fmt.Errorf("vector store backend %q is not available in this build", name)
		}
		if err != nil {
			release()
			return nil, func() {}, fmt.Errorf("vector store backend %q: %w", name, err)
		}
		backends = append(backends, retriever.Backend{Name: name, Searcher: s})
		slog.Info("vector store backend ready", "backend", name)
	}
	if len(backends) == 0 {
		slog.Info("no vector store configured; vector store lookups are disabled")
	}

	r := retriever.New(retriever.Config{
		Timeout: vs.Timeout,
		Breaker: resilience.CircuitBreakerConfig{
			MaxFailures:  vs.CircuitBreaker.MaxFailures,
			ResetTimeout: vs.CircuitBreaker.ResetTimeout,
			HalfOpenMax:  vs.CircuitBreaker.HalfOpenMax,
		},
		Metrics: m,
	}, backends...)
	return r, release, nil
}
