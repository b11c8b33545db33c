// Package rag orchestrates grounded question answering: retrieve supporting
// chunks, prompt the generation model with them, validate every citation the
// model claims against the retrieved set, and score confidence. The service
// prefers admitting ignorance over answering without verifiable support.
package rag

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/raggy-ai/raggy/internal/docstore"
	"github.com/raggy-ai/raggy/internal/llm"
)

// IDKAnswer is the exact refusal sentence returned when the corpus does not
// support an answer. Clients and the evaluation harness match on it.
const IDKAnswer = "I don't know based on the provided documents."

// IsIDK reports whether an answer is a refusal. Matching is deliberately
// loose: models sometimes decorate the refusal sentence.
func IsIDK(answer string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "i don't know")
}

// Citation points at one retrieved chunk that supports the answer. Only
// chunk IDs that were actually in the grounding set survive validation.
// Score is the cited chunk's retrieval similarity in [0,1].
type Citation struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	DocID      uuid.UUID `json:"doc_id"`
	ChunkIndex int       `json:"chunk_index"`
	Title      string    `json:"title"`
	SourceURL  string    `json:"url,omitempty"`
	Score      float32   `json:"score"`
}

// AnswerResult is a complete answer with provenance and timings.
type AnswerResult struct {
	Answer      string            `json:"answer"`
	Citations   []Citation        `json:"citations"`
	UsedFilters map[string]string `json:"used_filters"`
	Confidence  float64           `json:"confidence"`
	RetrieveMS  int64             `json:"retrieve_ms"`
	GenerateMS  int64             `json:"gen_ms"`
}

// Retriever finds the chunks most similar to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, filters map[string]string) ([]docstore.SearchResult, error)
}

// Generator produces a structured answer from a grounded prompt.
type Generator interface {
	Complete(ctx context.Context, prompt string) (*llm.Generation, error)
}

// Service answers questions over the ingested corpus.
type Service struct {
	retriever Retriever
	generator Generator
	scorer    ConfidenceScorer
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithConfidenceScorer replaces the default confidence scorer.
func WithConfidenceScorer(scorer ConfidenceScorer) Option {
	return func(s *Service) { s.scorer = scorer }
}

// New creates a Service.
func New(retriever Retriever, generator Generator, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		retriever: retriever,
		generator: generator,
		scorer:    DefaultConfidence,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Answer retrieves support for the query and generates a grounded answer.
//
// Every upstream failure degrades to the refusal answer rather than an
// error: a question the system cannot answer safely is answered with
// IDKAnswer at confidence zero.
func (s *Service) Answer(ctx context.Context, query string, topK int, filters map[string]string) (*AnswerResult, error) {
	retrieveStart := time.Now()
	results, err := s.retriever.Retrieve(ctx, query, topK, filters)
	retrieveMS := time.Since(retrieveStart).Milliseconds()

	if filters == nil {
		filters = map[string]string{}
	}
	res := &AnswerResult{
		Answer:      IDKAnswer,
		Citations:   []Citation{},
		UsedFilters: filters,
		RetrieveMS:  retrieveMS,
	}
	if err != nil {
		s.logger.Warn("retrieval failed, answering with refusal", "error", err)
		return res, nil
	}
	if len(results) == 0 {
		return res, nil
	}

	prompt := buildPrompt(query, results)

	genStart := time.Now()
	gen, err := s.generator.Complete(ctx, prompt)
	res.GenerateMS = time.Since(genStart).Milliseconds()
	if err != nil {
		// The model is a fallible collaborator. Its failure is the
		// caller's refusal, not the caller's error.
		s.logger.Warn("generation failed, answering with refusal", "error", err)
		return res, nil
	}

	if IsIDK(gen.Answer) {
		return res, nil
	}

	citations := validateCitations(gen.Citations, results)
	if len(citations) == 0 {
		// An answer nothing in the corpus supports is not an answer.
		s.logger.Warn("model answer had no valid citations, overriding with refusal",
			"claimed", len(gen.Citations))
		return res, nil
	}

	res.Answer = gen.Answer
	res.Citations = citations
	res.Confidence = s.scorer(results[0].Score, float64(len(citations))/float64(len(gen.Citations)), gen.Uncertain)
	return res, nil
}

// validateCitations keeps only the claimed chunk IDs that exist in the
// retrieved set, deduplicated, in the model's order.
func validateCitations(claimed []string, results []docstore.SearchResult) []Citation {
	byID := make(map[uuid.UUID]docstore.SearchResult, len(results))
	for _, r := range results {
		byID[r.ChunkID] = r
	}

	seen := make(map[uuid.UUID]struct{}, len(claimed))
	citations := make([]Citation, 0, len(claimed))
	for _, raw := range claimed {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		r, ok := byID[id]
		if !ok {
			continue
		}
		seen[id] = struct{}{}
		citations = append(citations, Citation{
			ChunkID:    r.ChunkID,
			DocID:      r.DocID,
			ChunkIndex: r.ChunkIndex,
			Title:      r.DocTitle,
			SourceURL:  r.DocURL,
			Score:      r.Score,
		})
	}
	return citations
}
