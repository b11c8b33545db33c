// Package api exposes the HTTP surface: ingestion, querying and health.
// Guardrails (payload size, per-client rate limits) run as middleware before
// any request parsing so oversized or over-quota requests cost nothing
// downstream.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/raggy-ai/raggy/internal/config"
	"github.com/raggy-ai/raggy/internal/ingest"
	"github.com/raggy-ai/raggy/internal/rag"
)

// Ingestor runs the ingestion pipeline for one document.
type Ingestor interface {
	Ingest(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

// Answerer answers a question over the ingested corpus.
type Answerer interface {
	Answer(ctx context.Context, query string, topK int, filters map[string]string) (*rag.AnswerResult, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP front end.
type Server struct {
	cfg      *config.Config
	ingestor Ingestor
	answerer Answerer
	pinger   Pinger
	logger   *slog.Logger
	handler  http.Handler
	limiter  *windowLimiter
}

// Option configures a Server.
type Option func(*Server)

// WithClock overrides the rate limiter's clock.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.limiter.now = now
	}
}

// NewServer wires routes and middleware.
func NewServer(cfg *config.Config, ingestor Ingestor, answerer Answerer, pinger Pinger, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		ingestor: ingestor,
		answerer: answerer,
		pinger:   pinger,
		logger:   logger,
		limiter: newWindowLimiter(cfg.RateLimitRequests,
			time.Duration(cfg.RateLimitWindowSeconds)*time.Second, nil),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Guarded endpoints pay the guardrail toll; health does not, so load
	// balancer probes never count against a client budget.
	guard := func(h http.HandlerFunc) http.Handler {
		return chain(h,
			bodyLimit(logger, cfg.MaxRequestBytes),
			rateLimit(logger, s.limiter, cfg.TrustProxy),
		)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /ingest", guard(s.handleIngest))
	mux.Handle("POST /query", guard(s.handleQuery))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("/", s.handleNotFound)

	s.handler = chain(mux,
		recovery(logger),
		requestLogging(logger),
	)
	return s
}

// Handler returns the fully assembled HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}
