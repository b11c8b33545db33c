package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raggy-ai/raggy/internal/config"
	"github.com/raggy-ai/raggy/internal/docstore"
	"github.com/raggy-ai/raggy/internal/log"
)

type fakeSearcher struct {
	lastParams docstore.SearchParams
	results    []docstore.SearchResult
	err        error
}

func (s *fakeSearcher) Search(_ context.Context, params docstore.SearchParams) ([]docstore.SearchResult, error) {
	s.lastParams = params
	if s.err != nil {
		return nil, s.err
	}
	if params.TopK < len(s.results) {
		return s.results[:params.TopK], nil
	}
	return s.results, nil
}

type fakeQueryEmbedder struct {
	err error
}

func (e *fakeQueryEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func testConfig() *config.Config {
	return &config.Config{IvfflatProbes: 50}
}

func result(score float32) docstore.SearchResult {
	return docstore.SearchResult{ChunkID: uuid.New(), DocID: uuid.New(), Score: score}
}

func TestRetrieveOrdersByScore(t *testing.T) {
	searcher := &fakeSearcher{results: []docstore.SearchResult{result(0.9), result(0.7), result(0.4)}}
	e := New(searcher, &fakeQueryEmbedder{}, testConfig(), log.NewNop())

	got, err := e.Retrieve(context.Background(), "how to install", 3, nil)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
}

func TestRetrievePassesProbesAndFilters(t *testing.T) {
	searcher := &fakeSearcher{}
	e := New(searcher, &fakeQueryEmbedder{}, testConfig(), log.NewNop())

	_, err := e.Retrieve(context.Background(), "q", 4, map[string]string{"product": "widget"})
	require.NoError(t, err)
	assert.Equal(t, 50, searcher.lastParams.Probes)
	assert.Equal(t, 4, searcher.lastParams.TopK)
	assert.Equal(t, map[string]string{"product": "widget"}, searcher.lastParams.Filters)
	assert.NotEmpty(t, searcher.lastParams.Embedding)
}

func TestRetrieveReadsProbesPerQuery(t *testing.T) {
	searcher := &fakeSearcher{}
	cfg := testConfig()
	e := New(searcher, &fakeQueryEmbedder{}, cfg, log.NewNop())

	_, err := e.Retrieve(context.Background(), "q", 4, nil)
	require.NoError(t, err)
	assert.Equal(t, 50, searcher.lastParams.Probes)

	// A config reload between queries must reach the next search.
	cfg.IvfflatProbes = 120
	_, err = e.Retrieve(context.Background(), "q", 4, nil)
	require.NoError(t, err)
	assert.Equal(t, 120, searcher.lastParams.Probes)

	cfg.IvfflatProbes = 0
	_, err = e.Retrieve(context.Background(), "q", 4, nil)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultIvfflatProbes, searcher.lastParams.Probes)
}

func TestRetrieveTopKBounds(t *testing.T) {
	searcher := &fakeSearcher{}
	e := New(searcher, &fakeQueryEmbedder{}, testConfig(), log.NewNop())

	_, err := e.Retrieve(context.Background(), "q", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, searcher.lastParams.TopK)

	_, err = e.Retrieve(context.Background(), "q", 1000, nil)
	require.NoError(t, err)
	assert.Equal(t, MaxTopK, searcher.lastParams.TopK)
}

func TestRetrieveEmptyResultIsNotError(t *testing.T) {
	e := New(&fakeSearcher{}, &fakeQueryEmbedder{}, testConfig(), log.NewNop())

	got, err := e.Retrieve(context.Background(), "unmatched query", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetrieveEmptyQueryRejected(t *testing.T) {
	e := New(&fakeSearcher{}, &fakeQueryEmbedder{}, testConfig(), log.NewNop())
	_, err := e.Retrieve(context.Background(), "   ", 5, nil)
	require.Error(t, err)
}

func TestRetrieveEmbedFailure(t *testing.T) {
	e := New(&fakeSearcher{}, &fakeQueryEmbedder{err: errors.New("quota exceeded")}, testConfig(), log.NewNop())
	_, err := e.Retrieve(context.Background(), "q", 5, nil)
	require.ErrorContains(t, err, "embedding query")
}

func TestRetrieveSearchFailure(t *testing.T) {
	e := New(&fakeSearcher{err: errors.New("db down")}, &fakeQueryEmbedder{}, testConfig(), log.NewNop())
	_, err := e.Retrieve(context.Background(), "q", 5, nil)
	require.ErrorContains(t, err, "searching chunks")
}
