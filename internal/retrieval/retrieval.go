// Package retrieval embeds a query and finds its nearest stored chunks.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/raggy-ai/raggy/internal/config"
	"github.com/raggy-ai/raggy/internal/docstore"
)

const (
	// DefaultTopK is used when the caller does not ask for a specific count.
	DefaultTopK = 5
	// MaxTopK bounds how many chunks a single query may retrieve.
	MaxTopK = 20
)

// Searcher runs approximate nearest neighbor search over stored chunks.
type Searcher interface {
	Search(ctx context.Context, params docstore.SearchParams) ([]docstore.SearchResult, error)
}

// Embedder turns a query into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Engine retrieves the chunks most similar to a query.
type Engine struct {
	searcher Searcher
	embedder Embedder
	cfg      *config.Config
	logger   *slog.Logger
}

// New creates an Engine. cfg.IvfflatProbes controls the index recall/latency
// trade-off; it is read on every search, so a config reload takes effect
// without rebuilding the engine.
func New(searcher Searcher, embedder Embedder, cfg *config.Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{searcher: searcher, embedder: embedder, cfg: cfg, logger: logger}
}

func (e *Engine) probes() int {
	if p := e.cfg.IvfflatProbes; p > 0 {
		return p
	}
	return config.DefaultIvfflatProbes
}

// Retrieve embeds the query and returns up to topK chunks ordered by
// descending similarity. Filters are exact-match conjunctions over chunk
// metadata. An empty result is a valid outcome, not an error.
func (e *Engine) Retrieve(ctx context.Context, query string, topK int, filters map[string]string) ([]docstore.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}

	embedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := e.searcher.Search(ctx, docstore.SearchParams{
		Embedding: embedding,
		TopK:      topK,
		Filters:   filters,
		Probes:    e.probes(),
	})
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}

	e.logger.Debug("retrieved chunks", "top_k", topK, "results", len(results), "filters", len(filters))
	return results, nil
}
