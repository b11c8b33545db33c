// Package llm wraps the external embedding and generation models behind
// narrow clients. Both models are fallible collaborators: every call is
// context-bounded and retried at most once on transient failure, and nothing
// a model returns is trusted until validated by the caller.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"

	"github.com/raggy-ai/raggy/internal/config"
)

// Clients bundles the embedding and generation clients built from one
// genkit instance.
type Clients struct {
	Genkit    *genkit.Genkit
	Embedder  *Embedder
	Generator *Generator
}

// Setup initializes genkit with the configured AI provider and returns the
// embedding and generation clients.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Clients, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var g *genkit.Genkit
	var embedder ai.Embedder

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery).
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		embedder = ollama.Embedder(g, cfg.OllamaHost)
		logger.Info("initialized genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderGemini:
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		embedder = googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
		logger.Info("initialized genkit with gemini provider", "model", cfg.ModelName)

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidProvider, cfg.Provider)
	}

	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}

	emb, err := NewEmbedder(embedder, cfg, logger)
	if err != nil {
		return nil, err
	}

	gen, err := NewGenerator(g, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Clients{Genkit: g, Embedder: emb, Generator: gen}, nil
}

// retryOnce runs fn and retries exactly once when it fails with a transient
// error. Context cancellation and deadline expiry are never retried because
// the caller's budget is already spent.
func retryOnce(ctx context.Context, logger *slog.Logger, op string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return err
	}
	logger.Warn("upstream call failed, retrying once", "op", op, "error", err)
	return fn()
}
