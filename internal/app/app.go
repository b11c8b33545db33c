// Package app wires configuration, storage, models and services into a
// running application. Everything downstream receives its dependencies
// explicitly; this is the only package that knows the full object graph.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/raggy-ai/raggy/db"
	"github.com/raggy-ai/raggy/internal/config"
	"github.com/raggy-ai/raggy/internal/docstore"
	"github.com/raggy-ai/raggy/internal/ingest"
	"github.com/raggy-ai/raggy/internal/llm"
	"github.com/raggy-ai/raggy/internal/log"
	"github.com/raggy-ai/raggy/internal/rag"
	"github.com/raggy-ai/raggy/internal/retrieval"
)

// App is the assembled application.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Pool      *pgxpool.Pool
	Store     *docstore.Store
	LLM       *llm.Clients
	Ingest    *ingest.Pipeline
	Retrieval *retrieval.Engine
	RAG       *rag.Service
}

// Setup loads configuration, runs migrations and builds every service.
func Setup(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), JSON: cfg.LogJSON})

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("database migrations applied")

	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	clients, err := llm.Setup(ctx, cfg, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("setting up model clients: %w", err)
	}

	store, err := docstore.New(pool, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating document store: %w", err)
	}
	pipeline := ingest.New(store, clients.Embedder, logger)
	engine := retrieval.New(store, clients.Embedder, cfg, logger)
	service := rag.New(engine, clients.Generator, logger)

	logger.Info("application ready", "env", cfg.AppEnv, "provider", cfg.Provider)
	return &App{
		Config:    cfg,
		Logger:    logger,
		Pool:      pool,
		Store:     store,
		LLM:       clients,
		Ingest:    pipeline,
		Retrieval: engine,
		RAG:       service,
	}, nil
}

func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing pool config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// Close releases held resources.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
	a.Logger.Info("application shut down")
}
