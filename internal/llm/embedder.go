package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/raggy-ai/raggy/internal/config"
)

// Embedder turns text into fixed-dimension vectors via the configured
// embedding model. Calls are timeout-bounded and throttled by a shared rate
// limiter so bulk ingestion cannot saturate the upstream service.
type Embedder struct {
	embedder ai.Embedder
	dim      int32
	timeout  time.Duration
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewEmbedder creates an Embedder from a genkit ai.Embedder.
func NewEmbedder(embedder ai.Embedder, cfg *config.Config, logger *slog.Logger) (*Embedder, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := time.Duration(cfg.EmbedTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Embedder{
		embedder: embedder,
		dim:      int32(cfg.EmbeddingDim), // #nosec G115 -- validated range in config
		timeout:  timeout,
		// 10 embed calls/sec with small bursts keeps bulk ingestion polite.
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		logger:  logger,
	}, nil
}

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for embed slot: %w", err)
	}

	embedCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var vec []float32
	err := retryOnce(embedCtx, e.logger, "embed", func() error {
		resp, err := e.embedder.Embed(embedCtx, &ai.EmbedRequest{
			Input: []*ai.Document{ai.DocumentFromText(text, nil)},
			// gemini-embedding-001 truncates to the schema's dimensionality
			// via Matryoshka representation learning.
			Options: &genai.EmbedContentConfig{OutputDimensionality: &e.dim},
		})
		if err != nil {
			return fmt.Errorf("embedding text: %w", err)
		}
		if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
			return fmt.Errorf("empty embedding response")
		}
		vec = resp.Embeddings[0].Embedding
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(vec) != int(e.dim) {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vec), e.dim)
	}
	return vec, nil
}

// EmbedBatch embeds each text in order. A failure aborts the whole batch so
// the caller never stores a partially embedded document.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d of %d: %w", i+1, len(texts), err)
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}
