package config

import (
	"fmt"
	"os"
)

// validSSLModes are the PostgreSQL sslmode values pgx accepts.
var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks the full configuration and returns the first violation.
// Sentinel errors allow callers to branch with errors.Is.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini:
		// The googlegenai plugin reads GEMINI_API_KEY / GOOGLE_API_KEY itself;
		// fail fast here instead of at the first embed call.
		if os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
			return fmt.Errorf("%w: set GEMINI_API_KEY or GOOGLE_API_KEY for provider %q", ErrMissingAPIKey, c.Provider)
		}
	case ProviderOllama:
		if c.OllamaHost == "" {
			return fmt.Errorf("%w: ollama_host is required for provider %q", ErrInvalidProvider, c.Provider)
		}
	default:
		return fmt.Errorf("%w: %q (expected %q or %q)", ErrInvalidProvider, c.Provider, ProviderGemini, ProviderOllama)
	}

	if c.EmbeddingDim != DefaultEmbeddingDim {
		return fmt.Errorf("%w: %d (schema vector column is %d-dimensional)", ErrInvalidEmbeddingDim, c.EmbeddingDim, DefaultEmbeddingDim)
	}

	if c.IvfflatProbes < 1 || c.IvfflatProbes > MaxIvfflatProbes {
		return fmt.Errorf("%w: %d (must be 1..%d)", ErrInvalidProbes, c.IvfflatProbes, MaxIvfflatProbes)
	}

	if c.RateLimitRequests < 1 {
		return fmt.Errorf("%w: rate_limit_requests=%d (must be >= 1)", ErrInvalidRateLimit, c.RateLimitRequests)
	}
	if c.RateLimitWindowSeconds < 1 {
		return fmt.Errorf("%w: rate_limit_window_seconds=%d (must be >= 1)", ErrInvalidRateLimit, c.RateLimitWindowSeconds)
	}

	if c.MaxRequestBytes < 1 {
		return fmt.Errorf("%w: %d (must be >= 1)", ErrInvalidMaxRequestBytes, c.MaxRequestBytes)
	}

	if err := c.validatePostgres(); err != nil {
		return err
	}

	for name, v := range map[string]float64{
		"eval_min_retrieval_hit_rate":   c.EvalMinRetrievalHitRate,
		"eval_min_citation_correctness": c.EvalMinCitationCorrectness,
		"eval_min_idk_rate":             c.EvalMinIDKRate,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s=%v (must be in [0,1])", ErrInvalidThreshold, name, v)
		}
	}

	return nil
}

func (c *Config) validatePostgres() error {
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: dbname is empty", ErrInvalidPostgresDBName)
	}
	if c.PostgresSSLMode != "" && !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("invalid PostgreSQL sslmode: %q", c.PostgresSSLMode)
	}
	return nil
}
