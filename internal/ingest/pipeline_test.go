package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raggy-ai/raggy/internal/docstore"
	"github.com/raggy-ai/raggy/internal/log"
)

// fakeStore is an in-memory Store that mimics the database's idempotent
// insert semantics.
type fakeStore struct {
	docs       map[uuid.UUID]*docstore.Document
	chunks     map[uuid.UUID][]docstore.Chunk
	jobs       map[uuid.UUID]*docstore.IngestJob
	insertErr  error
	lookupErr  error
	insertHook func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:   make(map[uuid.UUID]*docstore.Document),
		chunks: make(map[uuid.UUID][]docstore.Chunk),
		jobs:   make(map[uuid.UUID]*docstore.IngestJob),
	}
}

func (s *fakeStore) FindDocumentByIdentity(_ context.Context, sourceType, sourceURL, contentHash string) (*docstore.Document, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	for _, d := range s.docs {
		if d.SourceType == sourceType && d.SourceURL == sourceURL && d.ContentHash == contentHash {
			return d, nil
		}
	}
	return nil, docstore.ErrNotFound
}

func (s *fakeStore) GetChunksByDoc(_ context.Context, docID uuid.UUID) ([]docstore.Chunk, error) {
	return s.chunks[docID], nil
}

func (s *fakeStore) InsertDocumentWithChunks(_ context.Context, doc *docstore.Document, chunks []docstore.Chunk) (bool, error) {
	if s.insertHook != nil {
		s.insertHook()
	}
	if s.insertErr != nil {
		return false, s.insertErr
	}
	if _, ok := s.docs[doc.ID]; ok {
		return false, nil
	}
	s.docs[doc.ID] = doc
	s.chunks[doc.ID] = chunks
	return true, nil
}

func (s *fakeStore) CreateJob(_ context.Context, docID uuid.UUID) (*docstore.IngestJob, error) {
	job := &docstore.IngestJob{ID: uuid.New(), DocID: docID, Status: docstore.JobPending}
	s.jobs[job.ID] = job
	return job, nil
}

func (s *fakeStore) FinishJob(_ context.Context, jobID uuid.UUID, status docstore.JobStatus, errMsg string, docID uuid.UUID) error {
	job, ok := s.jobs[jobID]
	if !ok {
		return docstore.ErrNotFound
	}
	job.Status = status
	job.Error = errMsg
	job.DocID = docID
	return nil
}

// fakeEmbedder returns deterministic vectors, or fails after a set number
// of texts.
type fakeEmbedder struct {
	calls   int
	failErr error
}

func (e *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.failErr != nil {
		return nil, e.failErr
	}
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{float32(len(texts[i])), float32(i)}
	}
	return vecs, nil
}

func testRequest() Request {
	return Request{
		SourceType: "md",
		Title:      "Install Guide",
		Content:    "Step one: download the installer.\nStep two: run it.",
		Metadata:   map[string]string{"product": "widget", "version": "2.0"},
	}
}

func TestIngestStoresDocumentAndChunks(t *testing.T) {
	store := newFakeStore()
	emb := &fakeEmbedder{}
	p := New(store, emb, log.NewNop())

	res, err := p.Ingest(context.Background(), testRequest())
	require.NoError(t, err)

	assert.False(t, res.Deduplicated)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, docstore.JobSucceeded, res.Job.Status)
	assert.Equal(t, res.Document.ID, res.Chunks[0].DocID)
	assert.Equal(t, 0, res.Chunks[0].Index)
	assert.NotEmpty(t, res.Chunks[0].Embedding)
	assert.Len(t, res.Document.ContentHash, 64)

	// Chunk metadata inherits the document metadata plus provenance keys.
	assert.Equal(t, "widget", res.Chunks[0].Metadata["product"])
	assert.Equal(t, "md", res.Chunks[0].Metadata["source_type"])
	assert.Equal(t, "Install Guide", res.Chunks[0].Metadata["title"])
}

func TestIngestIdempotentReingest(t *testing.T) {
	store := newFakeStore()
	emb := &fakeEmbedder{}
	p := New(store, emb, log.NewNop())

	first, err := p.Ingest(context.Background(), testRequest())
	require.NoError(t, err)

	second, err := p.Ingest(context.Background(), testRequest())
	require.NoError(t, err)

	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.Document.ID, second.Document.ID)
	assert.Equal(t, first.Chunks, second.Chunks)
	assert.Equal(t, docstore.JobSucceeded, second.Job.Status)
	// Re-ingest never calls the embedder again.
	assert.Equal(t, 1, emb.calls)
	assert.Len(t, store.docs, 1)
}

func TestIngestFormattingOnlyChangeDeduplicates(t *testing.T) {
	store := newFakeStore()
	p := New(store, &fakeEmbedder{}, log.NewNop())

	req := testRequest()
	_, err := p.Ingest(context.Background(), req)
	require.NoError(t, err)

	req.Content = "Step   one: download the installer.\n\n Step two:\trun it."
	res, err := p.Ingest(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Deduplicated)
}

func TestIngestValidationFailsBeforeAnyCall(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
		field  string
	}{
		{"empty content", func(r *Request) { r.Content = "  \n " }, "content"},
		{"empty title", func(r *Request) { r.Title = "" }, "title"},
		{"bad source type", func(r *Request) { r.SourceType = "docx" }, "source_type"},
		{"relative url", func(r *Request) { r.SourceURL = "/docs/a" }, "source_url"},
		{"bad url scheme", func(r *Request) { r.SourceURL = "ftp://example.com/a" }, "source_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			emb := &fakeEmbedder{}
			p := New(store, emb, log.NewNop())

			req := testRequest()
			tt.mutate(&req)
			_, err := p.Ingest(context.Background(), req)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Zero(t, emb.calls)
			assert.Empty(t, store.jobs)
		})
	}
}

func TestIngestEmbeddingFailureFailsJobNoChunks(t *testing.T) {
	store := newFakeStore()
	emb := &fakeEmbedder{failErr: errors.New("model unavailable")}
	p := New(store, emb, log.NewNop())

	_, err := p.Ingest(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)

	assert.Empty(t, store.docs)
	assert.Empty(t, store.chunks)
	require.Len(t, store.jobs, 1)
	for _, job := range store.jobs {
		assert.Equal(t, docstore.JobFailed, job.Status)
		assert.Contains(t, job.Error, "model unavailable")
	}
}

func TestIngestLostInsertRaceReturnsStoredRows(t *testing.T) {
	store := newFakeStore()
	p := New(store, &fakeEmbedder{}, log.NewNop())
	req := testRequest()

	// Simulate a concurrent identical ingestion winning between the
	// identity lookup and our insert.
	var raced bool
	store.insertHook = func() {
		if raced {
			return
		}
		raced = true
		normalized := NormalizeContent(req.Content)
		hash := HashContent(normalized)
		docID := DocumentID(req.SourceType, req.SourceURL, hash)
		store.docs[docID] = &docstore.Document{
			ID: docID, SourceType: req.SourceType, ContentHash: hash, Title: req.Title,
		}
		store.chunks[docID] = []docstore.Chunk{{
			ID: ChunkID(docID, 0, normalized), DocID: docID, Text: normalized,
		}}
	}

	res, err := p.Ingest(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Deduplicated)
	assert.Equal(t, docstore.JobSucceeded, res.Job.Status)
	require.Len(t, res.Chunks, 1)
	assert.Len(t, store.docs, 1)
}

func TestIngestStorageFailureFailsJob(t *testing.T) {
	store := newFakeStore()
	store.insertErr = fmt.Errorf("connection reset")
	p := New(store, &fakeEmbedder{}, log.NewNop())

	_, err := p.Ingest(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	for _, job := range store.jobs {
		assert.Equal(t, docstore.JobFailed, job.Status)
	}
}

func TestIngestChunkIDsAreContentDerived(t *testing.T) {
	storeA := newFakeStore()
	storeB := newFakeStore()
	resA, err := New(storeA, &fakeEmbedder{}, log.NewNop()).Ingest(context.Background(), testRequest())
	require.NoError(t, err)
	resB, err := New(storeB, &fakeEmbedder{}, log.NewNop()).Ingest(context.Background(), testRequest())
	require.NoError(t, err)

	require.Len(t, resB.Chunks, len(resA.Chunks))
	for i := range resA.Chunks {
		assert.Equal(t, resA.Chunks[i].ID, resB.Chunks[i].ID)
	}
}
