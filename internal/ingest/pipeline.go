// Package ingest turns raw documents into embedded, indexed chunks. The
// pipeline is idempotent end to end: document and chunk identities are
// derived from content, so re-ingesting the same document is a cheap no-op
// and concurrent ingestions of identical content converge on one stored row.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/raggy-ai/raggy/internal/docstore"
)

// Store is the persistence surface the pipeline needs.
type Store interface {
	FindDocumentByIdentity(ctx context.Context, sourceType, sourceURL, contentHash string) (*docstore.Document, error)
	GetChunksByDoc(ctx context.Context, docID uuid.UUID) ([]docstore.Chunk, error)
	InsertDocumentWithChunks(ctx context.Context, doc *docstore.Document, chunks []docstore.Chunk) (bool, error)
	CreateJob(ctx context.Context, docID uuid.UUID) (*docstore.IngestJob, error)
	FinishJob(ctx context.Context, jobID uuid.UUID, status docstore.JobStatus, errMsg string, docID uuid.UUID) error
}

// Embedder produces one vector per input text, in order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Request is a single document to ingest.
type Request struct {
	SourceType string
	SourceURL  string
	Title      string
	Content    string
	Metadata   map[string]string
	FetchedAt  *time.Time
}

// Result reports what an ingestion produced. Deduplicated is true when the
// document already existed and nothing new was written.
type Result struct {
	Document     *docstore.Document
	Chunks       []docstore.Chunk
	Job          *docstore.IngestJob
	Deduplicated bool
}

// Pipeline ingests documents.
type Pipeline struct {
	store    Store
	embedder Embedder
	logger   *slog.Logger
}

// New creates a Pipeline.
func New(store Store, embedder Embedder, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{store: store, embedder: embedder, logger: logger}
}

// Ingest validates, chunks, embeds and stores one document. Validation
// failures return before any external call. Embedding or storage failures
// leave a failed job behind and no visible chunks.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*Result, error) {
	if verr := validateRequest(req); verr != nil {
		return nil, verr
	}

	normalized := NormalizeContent(req.Content)
	contentHash := HashContent(normalized)
	docID := DocumentID(req.SourceType, req.SourceURL, contentHash)

	existing, err := p.store.FindDocumentByIdentity(ctx, req.SourceType, req.SourceURL, contentHash)
	switch {
	case err == nil:
		return p.finishDeduplicated(ctx, existing)
	case !errors.Is(err, docstore.ErrNotFound):
		return nil, fmt.Errorf("%w: looking up document identity: %w", ErrUpstream, err)
	}

	// The job starts unlinked: the documents row does not exist yet, and the
	// jobs table has a foreign key on doc_id. FinishJob links it on success.
	job, err := p.store.CreateJob(ctx, uuid.Nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating ingest job: %w", ErrUpstream, err)
	}

	textChunks := ChunkText(normalized)
	texts := make([]string, len(textChunks))
	for i, tc := range textChunks {
		texts[i] = tc.Text
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		p.failJob(ctx, job.ID, fmt.Sprintf("embedding: %v", err))
		return nil, fmt.Errorf("%w: embedding %d chunks: %w", ErrUpstream, len(texts), err)
	}
	if len(vectors) != len(textChunks) {
		p.failJob(ctx, job.ID, "embedding count mismatch")
		return nil, fmt.Errorf("%w: embedder returned %d vectors for %d chunks", ErrUpstream, len(vectors), len(textChunks))
	}

	doc := &docstore.Document{
		ID:          docID,
		SourceType:  req.SourceType,
		SourceURL:   req.SourceURL,
		Title:       req.Title,
		ContentHash: contentHash,
		Metadata:    req.Metadata,
		FetchedAt:   req.FetchedAt,
	}
	chunks := make([]docstore.Chunk, len(textChunks))
	for i, tc := range textChunks {
		chunks[i] = docstore.Chunk{
			ID:         ChunkID(docID, i, tc.Text),
			DocID:      docID,
			Index:      i,
			Text:       tc.Text,
			TokenCount: tc.TokenCount,
			Metadata:   chunkMetadata(req),
		}
		chunks[i].Embedding = vectors[i]
	}

	created, err := p.store.InsertDocumentWithChunks(ctx, doc, chunks)
	if err != nil {
		p.failJob(ctx, job.ID, fmt.Sprintf("storing document: %v", err))
		return nil, fmt.Errorf("%w: storing document %s: %w", ErrUpstream, docID, err)
	}

	if err := p.store.FinishJob(ctx, job.ID, docstore.JobSucceeded, "", docID); err != nil {
		return nil, fmt.Errorf("%w: finishing ingest job %s: %w", ErrUpstream, job.ID, err)
	}
	job.Status = docstore.JobSucceeded
	job.DocID = docID

	if !created {
		// A concurrent ingestion of identical content won the insert race.
		// The stored rows are byte-identical to ours, so report dedup.
		p.logger.Info("document already stored by concurrent ingestion", "doc_id", docID)
		stored, err := p.store.GetChunksByDoc(ctx, docID)
		if err != nil {
			return nil, fmt.Errorf("%w: loading stored chunks for %s: %w", ErrUpstream, docID, err)
		}
		return &Result{Document: doc, Chunks: stored, Job: job, Deduplicated: true}, nil
	}

	p.logger.Info("document ingested",
		"doc_id", docID, "chunks", len(chunks), "source_type", req.SourceType)
	return &Result{Document: doc, Chunks: chunks, Job: job}, nil
}

// finishDeduplicated records a succeeded job for a re-ingestion of existing
// content and returns the stored rows untouched.
func (p *Pipeline) finishDeduplicated(ctx context.Context, existing *docstore.Document) (*Result, error) {
	job, err := p.store.CreateJob(ctx, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: creating ingest job: %w", ErrUpstream, err)
	}
	if err := p.store.FinishJob(ctx, job.ID, docstore.JobSucceeded, "", existing.ID); err != nil {
		return nil, fmt.Errorf("%w: finishing ingest job %s: %w", ErrUpstream, job.ID, err)
	}
	job.Status = docstore.JobSucceeded

	chunks, err := p.store.GetChunksByDoc(ctx, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading stored chunks for %s: %w", ErrUpstream, existing.ID, err)
	}
	p.logger.Info("document already ingested", "doc_id", existing.ID, "chunks", len(chunks))
	return &Result{Document: existing, Chunks: chunks, Job: job, Deduplicated: true}, nil
}

// failJob marks the job failed on a best effort basis. The original error is
// what the caller sees; a failure to record it only gets logged. The job
// stays unlinked because no documents row was written.
func (p *Pipeline) failJob(ctx context.Context, jobID uuid.UUID, msg string) {
	if err := p.store.FinishJob(ctx, jobID, docstore.JobFailed, msg, uuid.Nil); err != nil {
		p.logger.Error("failed to mark ingest job failed", "job_id", jobID, "error", err)
	}
}

// chunkMetadata builds the per-chunk filter metadata: the document's own
// metadata plus source_type and title, so retrieval filters can match on
// either without a join.
func chunkMetadata(req Request) map[string]string {
	meta := make(map[string]string, len(req.Metadata)+2)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	meta["source_type"] = req.SourceType
	meta["title"] = req.Title
	return meta
}
