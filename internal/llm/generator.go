package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/raggy-ai/raggy/internal/config"
)

// Generation is the structured output requested from the generation model.
// Citations are chunk IDs the model claims support the answer; the caller
// must validate them against the grounding set before trusting any of them.
type Generation struct {
	Answer    string   `json:"answer"`
	Citations []string `json:"citations"`
	Uncertain bool     `json:"uncertain"`
}

// Generator produces grounded answers from the configured generation model.
type Generator struct {
	g       *genkit.Genkit
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(g *genkit.Genkit, cfg *config.Config, logger *slog.Logger) (*Generator, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := time.Duration(cfg.GenerateTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Generator{g: g, model: cfg.ModelName, timeout: timeout, logger: logger}, nil
}

// Complete sends the grounded prompt to the model and parses its structured
// output. The call is bounded by the configured timeout and retried once on
// transient failure.
func (gen *Generator) Complete(ctx context.Context, prompt string) (*Generation, error) {
	genCtx, cancel := context.WithTimeout(ctx, gen.timeout)
	defer cancel()

	var out Generation
	err := retryOnce(genCtx, gen.logger, "generate", func() error {
		response, err := genkit.Generate(genCtx, gen.g,
			ai.WithModelName(gen.model),
			ai.WithPrompt("%s", prompt),
			ai.WithOutputType(Generation{}),
		)
		if err != nil {
			return fmt.Errorf("generating answer: %w", err)
		}
		if err := response.Output(&out); err != nil {
			return fmt.Errorf("parsing structured output: %w", err)
		}
		if strings.TrimSpace(out.Answer) == "" {
			return fmt.Errorf("model returned an empty answer")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
