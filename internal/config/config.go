// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (raggy.yaml in the working directory, optional)
//  3. Default values
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidEmbeddingDim indicates the embedding dimension does not match the schema.
	ErrInvalidEmbeddingDim = errors.New("invalid embedding dimension")

	// ErrInvalidProbes indicates the ivfflat probe count is out of range.
	ErrInvalidProbes = errors.New("invalid ivfflat probes")

	// ErrInvalidRateLimit indicates the rate limit settings are out of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrInvalidMaxRequestBytes indicates the request body limit is out of range.
	ErrInvalidMaxRequestBytes = errors.New("invalid max request bytes")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidThreshold indicates an evaluation threshold is outside [0,1].
	ErrInvalidThreshold = errors.New("invalid evaluation threshold")
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 outputs 3072 dimensions by default but supports
	// truncation to 768 via OutputDimensionality; the pgvector schema uses
	// 768-dim columns.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultModelName is the default generation model.
	DefaultModelName = "googleai/gemini-2.5-flash"

	// DefaultEmbeddingDim matches the vector(768) column in db/migrations.
	DefaultEmbeddingDim = 768

	// DefaultIvfflatProbes is the default ANN search breadth. On small
	// indexes low values can miss every match, so the default is generous.
	DefaultIvfflatProbes = 100

	// MaxIvfflatProbes caps the search breadth; it must not exceed the
	// number of ivfflat lists by a wide margin to stay meaningful.
	MaxIvfflatProbes = 1000
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// Config stores application configuration.
type Config struct {
	// Service
	AppEnv   string `mapstructure:"app_env"`
	HTTPAddr string `mapstructure:"http_addr"`
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`

	// AI provider and model configuration
	Provider      string `mapstructure:"provider"`
	ModelName     string `mapstructure:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model"`
	OllamaHost    string `mapstructure:"ollama_host"`
	EmbeddingDim  int    `mapstructure:"embedding_dim"`

	// Retrieval
	IvfflatProbes int `mapstructure:"ivfflat_probes"`

	// Guardrails
	RateLimitRequests      int   `mapstructure:"rate_limit_requests"`
	RateLimitWindowSeconds int   `mapstructure:"rate_limit_window_seconds"`
	MaxRequestBytes        int64 `mapstructure:"max_request_bytes"`
	TrustProxy             bool  `mapstructure:"trust_proxy"`

	// Upstream call bounds (seconds)
	EmbedTimeoutSeconds    int `mapstructure:"embed_timeout_seconds"`
	GenerateTimeoutSeconds int `mapstructure:"generate_timeout_seconds"`

	// PostgreSQL connection (see storage.go for DSN assembly)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_dbname"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	// Evaluation thresholds (see internal/eval)
	EvalMinRetrievalHitRate    float64 `mapstructure:"eval_min_retrieval_hit_rate"`
	EvalMinCitationCorrectness float64 `mapstructure:"eval_min_citation_correctness"`
	EvalMinIDKRate             float64 `mapstructure:"eval_min_idk_rate"`
}

// setDefaults registers default values on the viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "development")
	v.SetDefault("http_addr", "127.0.0.1:8000")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("ollama_host", "http://localhost:11434")
	v.SetDefault("embedding_dim", DefaultEmbeddingDim)

	v.SetDefault("ivfflat_probes", DefaultIvfflatProbes)

	v.SetDefault("rate_limit_requests", 60)
	v.SetDefault("rate_limit_window_seconds", 60)
	v.SetDefault("max_request_bytes", int64(1<<20)) // 1 MiB
	v.SetDefault("trust_proxy", false)

	v.SetDefault("embed_timeout_seconds", 30)
	v.SetDefault("generate_timeout_seconds", 60)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "raggy")
	v.SetDefault("postgres_password", "raggy")
	v.SetDefault("postgres_dbname", "raggy")
	v.SetDefault("postgres_sslmode", "disable")

	v.SetDefault("eval_min_retrieval_hit_rate", 0.8)
	v.SetDefault("eval_min_citation_correctness", 0.8)
	v.SetDefault("eval_min_idk_rate", 0.9)
}

// Load reads configuration from defaults, an optional raggy.yaml, and the
// environment. Environment variables use upper-snake keys matching the
// mapstructure tags (e.g. RATE_LIMIT_REQUESTS, IVFFLAT_PROBES,
// MAX_REQUEST_BYTES, POSTGRES_HOST). DATABASE_URL, when set, overrides the
// individual postgres_* fields.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("raggy")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file is optional; env + defaults suffice.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
