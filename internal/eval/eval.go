// Package eval measures answer quality over a labeled question set. It
// ingests a fixture corpus, asks every question through the full answer
// path, and scores retrieval hits, citation support and refusal discipline
// against configured thresholds.
package eval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/raggy-ai/raggy/internal/config"
	"github.com/raggy-ai/raggy/internal/ingest"
	"github.com/raggy-ai/raggy/internal/rag"
)

// Question is one labeled evaluation case.
type Question struct {
	ID                string            `json:"id"`
	Query             string            `json:"query"`
	Answerable        bool              `json:"answerable"`
	UsedFilters       map[string]string `json:"used_filters,omitempty"`
	ExpectedTitle     string            `json:"expected_title,omitempty"`
	ExpectedSubstring string            `json:"expected_substring,omitempty"`
}

// Fixture is one corpus document to ingest before asking questions.
type Fixture struct {
	SourceType string            `json:"source_type"`
	SourceURL  string            `json:"source_url,omitempty"`
	Title      string            `json:"title"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// QuestionResult scores a single question.
type QuestionResult struct {
	ID              string  `json:"id"`
	Answerable      bool    `json:"answerable"`
	Answer          string  `json:"answer"`
	Refused         bool    `json:"refused"`
	RetrievalHit    bool    `json:"retrieval_hit"`
	CitationSupport bool    `json:"citation_support"`
	Confidence      float64 `json:"confidence"`
	Err             string  `json:"error,omitempty"`
}

// Report is the aggregate outcome of one evaluation run. Answered counts the
// answerable questions that produced a non-refusal answer; it is the
// denominator for citation correctness, so refusing a question hurts the
// retrieval hit rate but never drags citation quality down with it.
type Report struct {
	Questions           []QuestionResult `json:"questions"`
	Answerable          int              `json:"answerable"`
	Answered            int              `json:"answered"`
	Unanswerable        int              `json:"unanswerable"`
	RetrievalHitRate    float64          `json:"retrieval_hit_rate"`
	CitationCorrectness float64          `json:"citation_correctness"`
	IDKRate             float64          `json:"idk_rate"`
	Passed              bool             `json:"passed"`
	Interrupted         bool             `json:"interrupted"`
}

// Ingestor loads fixture documents.
type Ingestor interface {
	Ingest(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

// Answerer answers one question.
type Answerer interface {
	Answer(ctx context.Context, query string, topK int, filters map[string]string) (*rag.AnswerResult, error)
}

// TextLookup resolves chunk IDs to their stored text, for substring checks
// against cited chunks.
type TextLookup interface {
	GetChunkTexts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

// Thresholds are the minimum rates a run must reach to pass.
type Thresholds struct {
	MinRetrievalHitRate    float64
	MinCitationCorrectness float64
	MinIDKRate             float64
}

// ThresholdsFromConfig reads the configured pass bars.
func ThresholdsFromConfig(cfg *config.Config) Thresholds {
	return Thresholds{
		MinRetrievalHitRate:    cfg.EvalMinRetrievalHitRate,
		MinCitationCorrectness: cfg.EvalMinCitationCorrectness,
		MinIDKRate:             cfg.EvalMinIDKRate,
	}
}

// Runner executes evaluation runs.
type Runner struct {
	ingestor   Ingestor
	answerer   Answerer
	texts      TextLookup
	thresholds Thresholds
	topK       int
	logger     *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(ingestor Ingestor, answerer Answerer, texts TextLookup, thresholds Thresholds, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		ingestor:   ingestor,
		answerer:   answerer,
		texts:      texts,
		thresholds: thresholds,
		topK:       5,
		logger:     logger,
	}
}

// LoadCorpus ingests every fixture. Deduplicated re-ingestion makes repeated
// runs against the same database cheap.
func (r *Runner) LoadCorpus(ctx context.Context, fixtures []Fixture) error {
	for i, f := range fixtures {
		_, err := r.ingestor.Ingest(ctx, ingest.Request{
			SourceType: f.SourceType,
			SourceURL:  f.SourceURL,
			Title:      f.Title,
			Content:    f.Content,
			Metadata:   f.Metadata,
		})
		if err != nil {
			return fmt.Errorf("ingesting fixture %d (%q): %w", i, f.Title, err)
		}
	}
	r.logger.Info("evaluation corpus loaded", "fixtures", len(fixtures))
	return nil
}

// Run asks every question and scores the answers. Cancellation returns the
// partial report scored so far with Interrupted set; identical inputs always
// produce an identically scored report.
func (r *Runner) Run(ctx context.Context, questions []Question) (*Report, error) {
	report := &Report{Questions: make([]QuestionResult, 0, len(questions))}

	for _, q := range questions {
		if ctx.Err() != nil {
			report.Interrupted = true
			break
		}
		report.Questions = append(report.Questions, r.scoreQuestion(ctx, q))
	}

	r.aggregate(report)
	return report, nil
}

func (r *Runner) scoreQuestion(ctx context.Context, q Question) QuestionResult {
	result := QuestionResult{ID: q.ID, Answerable: q.Answerable}

	ans, err := r.answerer.Answer(ctx, q.Query, r.topK, q.UsedFilters)
	if err != nil {
		result.Err = err.Error()
		return result
	}
	result.Answer = ans.Answer
	result.Refused = rag.IsIDK(ans.Answer)
	result.Confidence = ans.Confidence

	if !q.Answerable || result.Refused {
		return result
	}

	result.RetrievalHit = hasExpectedTitle(ans, q.ExpectedTitle)
	result.CitationSupport = r.citationsSupport(ctx, ans, q.ExpectedSubstring)
	return result
}

// answered reports whether qr is an answerable question the system actually
// answered, rather than refused or failed on.
func answered(qr QuestionResult) bool {
	return qr.Answerable && !qr.Refused && qr.Err == ""
}

// hasExpectedTitle reports whether any citation points into the expected
// document. Without a labeled title, any surviving citation counts.
func hasExpectedTitle(ans *rag.AnswerResult, expectedTitle string) bool {
	if expectedTitle == "" {
		return len(ans.Citations) > 0
	}
	for _, c := range ans.Citations {
		if c.Title == expectedTitle {
			return true
		}
	}
	return false
}

// citationsSupport reports whether the labeled substring appears in at least
// one cited chunk's stored text. Questions without a labeled substring fall
// back to checking the answer text itself against the cited chunks, so an
// unsupported answer never passes by omission.
func (r *Runner) citationsSupport(ctx context.Context, ans *rag.AnswerResult, substring string) bool {
	if len(ans.Citations) == 0 {
		return false
	}
	if substring == "" {
		substring = ans.Answer
	}
	if strings.TrimSpace(substring) == "" {
		return false
	}

	ids := make([]uuid.UUID, len(ans.Citations))
	for i, c := range ans.Citations {
		ids[i] = c.ChunkID
	}
	texts, err := r.texts.GetChunkTexts(ctx, ids)
	if err != nil {
		r.logger.Warn("loading cited chunk texts", "error", err)
		return false
	}
	needle := strings.ToLower(substring)
	for _, text := range texts {
		if strings.Contains(strings.ToLower(text), needle) {
			return true
		}
	}
	return false
}

// aggregate computes the run's rates from the scored questions. Answerable
// questions contribute to the retrieval rate, answered ones to the citation
// rate, and unanswerable ones to the refusal rate.
func (r *Runner) aggregate(report *Report) {
	var hits, supported, refused int
	for _, qr := range report.Questions {
		if qr.Answerable {
			report.Answerable++
			if qr.RetrievalHit {
				hits++
			}
		} else {
			report.Unanswerable++
			if qr.Refused {
				refused++
			}
		}
		if answered(qr) {
			report.Answered++
			if qr.CitationSupport {
				supported++
			}
		}
	}

	if report.Answerable > 0 {
		report.RetrievalHitRate = float64(hits) / float64(report.Answerable)
	}
	if report.Answered > 0 {
		report.CitationCorrectness = float64(supported) / float64(report.Answered)
	}
	if report.Unanswerable > 0 {
		report.IDKRate = float64(refused) / float64(report.Unanswerable)
	}

	// A bar with no contributing questions is vacuously met.
	passRetrieval := report.Answerable == 0 || report.RetrievalHitRate >= r.thresholds.MinRetrievalHitRate
	passCitations := report.Answered == 0 || report.CitationCorrectness >= r.thresholds.MinCitationCorrectness
	passIDK := report.Unanswerable == 0 || report.IDKRate >= r.thresholds.MinIDKRate
	report.Passed = !report.Interrupted && passRetrieval && passCitations && passIDK

	r.logger.Info("evaluation run scored",
		"questions", len(report.Questions),
		"retrieval_hit_rate", report.RetrievalHitRate,
		"citation_correctness", report.CitationCorrectness,
		"idk_rate", report.IDKRate,
		"passed", report.Passed)
}
