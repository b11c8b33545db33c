package eval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raggy-ai/raggy/internal/ingest"
	"github.com/raggy-ai/raggy/internal/log"
	"github.com/raggy-ai/raggy/internal/rag"
)

// scriptedAnswerer returns a canned result per query.
type scriptedAnswerer struct {
	answers map[string]*rag.AnswerResult
	calls   int
}

func (a *scriptedAnswerer) Answer(_ context.Context, query string, _ int, _ map[string]string) (*rag.AnswerResult, error) {
	a.calls++
	if res, ok := a.answers[query]; ok {
		return res, nil
	}
	return nil, errors.New("no scripted answer")
}

type recordingIngestor struct {
	requests []ingest.Request
	err      error
}

func (i *recordingIngestor) Ingest(_ context.Context, req ingest.Request) (*ingest.Result, error) {
	if i.err != nil {
		return nil, i.err
	}
	i.requests = append(i.requests, req)
	return &ingest.Result{}, nil
}

type mapTexts map[uuid.UUID]string

func (m mapTexts) GetChunkTexts(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string, len(ids))
	for _, id := range ids {
		if text, ok := m[id]; ok {
			out[id] = text
		}
	}
	return out, nil
}

func defaultThresholds() Thresholds {
	return Thresholds{MinRetrievalHitRate: 0.8, MinCitationCorrectness: 0.8, MinIDKRate: 0.9}
}

func groundedAnswer(chunkID uuid.UUID, title string) *rag.AnswerResult {
	return &rag.AnswerResult{
		Answer:     "Grounded answer.",
		Citations:  []rag.Citation{{ChunkID: chunkID, Title: title}},
		Confidence: 0.9,
	}
}

func refusal() *rag.AnswerResult {
	return &rag.AnswerResult{Answer: rag.IDKAnswer, Citations: []rag.Citation{}}
}

func TestRunScoresAndPasses(t *testing.T) {
	installChunk := uuid.New()
	texts := mapTexts{installChunk: "Download the package and run the installer."}
	ans := &scriptedAnswerer{answers: map[string]*rag.AnswerResult{
		"How do I install?": groundedAnswer(installChunk, "Install Guide"),
		"Capital of France": refusal(),
	}}
	r := NewRunner(&recordingIngestor{}, ans, texts, defaultThresholds(), log.NewNop())

	report, err := r.Run(context.Background(), []Question{
		{ID: "q1", Query: "How do I install?", Answerable: true, ExpectedTitle: "Install Guide", ExpectedSubstring: "run the installer"},
		{ID: "q2", Query: "Capital of France", Answerable: false},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Answerable)
	assert.Equal(t, 1, report.Unanswerable)
	assert.Equal(t, 1.0, report.RetrievalHitRate)
	assert.Equal(t, 1.0, report.CitationCorrectness)
	assert.Equal(t, 1.0, report.IDKRate)
	assert.True(t, report.Passed)
	assert.False(t, report.Interrupted)
}

func TestRunFailsBelowThresholds(t *testing.T) {
	chunkID := uuid.New()
	ans := &scriptedAnswerer{answers: map[string]*rag.AnswerResult{
		// Cites the wrong document and answers the unanswerable question.
		"answerable":   groundedAnswer(chunkID, "Wrong Doc"),
		"unanswerable": groundedAnswer(chunkID, "Wrong Doc"),
	}}
	r := NewRunner(&recordingIngestor{}, ans, mapTexts{chunkID: "unrelated"}, defaultThresholds(), log.NewNop())

	report, err := r.Run(context.Background(), []Question{
		{ID: "q1", Query: "answerable", Answerable: true, ExpectedTitle: "Install Guide", ExpectedSubstring: "installer"},
		{ID: "q2", Query: "unanswerable", Answerable: false},
	})
	require.NoError(t, err)

	assert.Zero(t, report.RetrievalHitRate)
	assert.Zero(t, report.CitationCorrectness)
	assert.Zero(t, report.IDKRate)
	assert.False(t, report.Passed)
}

func TestRunCitationCorrectnessSkipsRefusals(t *testing.T) {
	chunkID := uuid.New()
	ans := &scriptedAnswerer{answers: map[string]*rag.AnswerResult{
		"supported": groundedAnswer(chunkID, "Guide"),
		"missing":   refusal(),
	}}
	r := NewRunner(&recordingIngestor{}, ans, mapTexts{chunkID: "a grounded answer."}, defaultThresholds(), log.NewNop())

	report, err := r.Run(context.Background(), []Question{
		{ID: "q1", Query: "supported", Answerable: true, ExpectedTitle: "Guide"},
		{ID: "q2", Query: "missing", Answerable: true, ExpectedTitle: "Guide"},
	})
	require.NoError(t, err)

	// The refusal on q2 is a retrieval miss but not a citation failure.
	assert.Equal(t, 2, report.Answerable)
	assert.Equal(t, 1, report.Answered)
	assert.Equal(t, 0.5, report.RetrievalHitRate)
	assert.Equal(t, 1.0, report.CitationCorrectness)
}

func TestRunUnlabeledAnswerCheckedAgainstCitedText(t *testing.T) {
	chunkID := uuid.New()
	ans := &scriptedAnswerer{answers: map[string]*rag.AnswerResult{
		"q": groundedAnswer(chunkID, "Guide"),
	}}
	r := NewRunner(&recordingIngestor{}, ans, mapTexts{chunkID: "completely unrelated text"}, defaultThresholds(), log.NewNop())

	report, err := r.Run(context.Background(), []Question{
		{ID: "q1", Query: "q", Answerable: true, ExpectedTitle: "Guide"},
	})
	require.NoError(t, err)

	// No labeled substring, so the answer text itself must appear in a
	// cited chunk. It does not, so the citation is unsupported.
	assert.Equal(t, 1, report.Answered)
	assert.Zero(t, report.CitationCorrectness)
	assert.False(t, report.Passed)
}

func TestRunDeterministic(t *testing.T) {
	chunkID := uuid.New()
	questions := []Question{
		{ID: "q1", Query: "install", Answerable: true, ExpectedTitle: "Guide", ExpectedSubstring: "installer"},
		{ID: "q2", Query: "offtopic", Answerable: false},
	}
	build := func() *Runner {
		ans := &scriptedAnswerer{answers: map[string]*rag.AnswerResult{
			"install":  groundedAnswer(chunkID, "Guide"),
			"offtopic": refusal(),
		}}
		return NewRunner(&recordingIngestor{}, ans, mapTexts{chunkID: "run the installer"}, defaultThresholds(), log.NewNop())
	}

	a, err := build().Run(context.Background(), questions)
	require.NoError(t, err)
	b, err := build().Run(context.Background(), questions)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRunCancellationReturnsPartialReport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	chunkID := uuid.New()
	ans := &scriptedAnswerer{answers: map[string]*rag.AnswerResult{
		"first": groundedAnswer(chunkID, "Guide"),
	}}
	r := NewRunner(&recordingIngestor{}, ans, mapTexts{chunkID: "text"}, defaultThresholds(), log.NewNop())

	questions := []Question{
		{ID: "q1", Query: "first", Answerable: true, ExpectedTitle: "Guide"},
		{ID: "q2", Query: "second", Answerable: true},
		{ID: "q3", Query: "third", Answerable: true},
	}

	// Cancel after the first answer is scored.
	original := ans.answers
	ans.answers = map[string]*rag.AnswerResult{}
	for k, v := range original {
		ans.answers[k] = v
	}
	first := true
	wrapped := answererFunc(func(ctx context.Context, query string, topK int, filters map[string]string) (*rag.AnswerResult, error) {
		if first {
			first = false
			cancel()
		}
		return ans.Answer(ctx, query, topK, filters)
	})
	r.answerer = wrapped

	report, err := r.Run(ctx, questions)
	require.NoError(t, err)
	assert.True(t, report.Interrupted)
	assert.False(t, report.Passed)
	assert.Len(t, report.Questions, 1)
}

type answererFunc func(ctx context.Context, query string, topK int, filters map[string]string) (*rag.AnswerResult, error)

func (f answererFunc) Answer(ctx context.Context, query string, topK int, filters map[string]string) (*rag.AnswerResult, error) {
	return f(ctx, query, topK, filters)
}

func TestRunAnswerErrorRecordedNotFatal(t *testing.T) {
	r := NewRunner(&recordingIngestor{}, &scriptedAnswerer{}, mapTexts{}, defaultThresholds(), log.NewNop())

	report, err := r.Run(context.Background(), []Question{
		{ID: "q1", Query: "anything", Answerable: true},
	})
	require.NoError(t, err)
	require.Len(t, report.Questions, 1)
	assert.NotEmpty(t, report.Questions[0].Err)
	assert.False(t, report.Questions[0].RetrievalHit)
}

func TestLoadCorpus(t *testing.T) {
	ing := &recordingIngestor{}
	r := NewRunner(ing, &scriptedAnswerer{}, mapTexts{}, defaultThresholds(), log.NewNop())

	fixtures, err := LoadFixtures(filepath.Join("testdata", "fixtures.jsonl"))
	require.NoError(t, err)
	require.Len(t, fixtures, 2)

	require.NoError(t, r.LoadCorpus(context.Background(), fixtures))
	require.Len(t, ing.requests, 2)
	assert.Equal(t, "Widget Install Guide", ing.requests[0].Title)
	assert.Equal(t, "widget", ing.requests[0].Metadata["product"])
}

func TestLoadQuestions(t *testing.T) {
	questions, err := LoadQuestions(filepath.Join("testdata", "questions.jsonl"))
	require.NoError(t, err)
	require.Len(t, questions, 5)

	assert.Equal(t, "q-install", questions[0].ID)
	assert.True(t, questions[0].Answerable)
	assert.Equal(t, "Widget Install Guide", questions[0].ExpectedTitle)
	assert.Equal(t, map[string]string{"version": "2.0"}, questions[2].UsedFilters)
	assert.False(t, questions[3].Answerable)
}

func TestLoadQuestionsRejectsMissingFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"query":"no id"}`+"\n"), 0o600))

	_, err := LoadQuestions(path)
	require.ErrorContains(t, err, "id is required")
}
