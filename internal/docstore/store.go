// Package docstore persists documents, their chunks, and chunk embeddings in
// PostgreSQL + pgvector, and owns ingestion idempotency and ANN search.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// documentCols is the standard SELECT column list for scanDocument.
const documentCols = `id, source_type, COALESCE(source_url, ''), title, content_hash, metadata, fetched_at, created_at`

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store manages documents, chunks, and ingest jobs.
//
// Store is safe for concurrent use by multiple goroutines. All writes rely on
// deterministic IDs plus unique constraints: when two identical ingestions
// race, one insert wins and the other observes the conflict and falls back to
// reading the existing rows.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store.
func New(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// FindDocumentByIdentity looks up a document by its idempotency key.
// Returns ErrNotFound when no matching row exists.
func (s *Store) FindDocumentByIdentity(ctx context.Context, sourceType, sourceURL, contentHash string) (*Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+documentCols+` FROM documents
		 WHERE source_type = $1 AND COALESCE(source_url, '') = $2 AND content_hash = $3`,
		sourceType, sourceURL, contentHash)
	return scanDocument(row)
}

// GetDocument retrieves a document by ID. Returns ErrNotFound when missing.
func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+documentCols+` FROM documents WHERE id = $1`, id)
	return scanDocument(row)
}

// InsertDocumentWithChunks atomically inserts a document and all its chunks.
//
// Both inserts use ON CONFLICT DO NOTHING: IDs are deterministic, so a
// concurrent identical ingestion produces byte-identical rows and exactly one
// writer's insert succeeds. The returned created flag is false when the
// document already existed (this writer lost the race or re-ingested).
// Either way the caller observes the same stored state. No partial chunks
// are ever visible because everything happens in one transaction.
func (s *Store) InsertDocumentWithChunks(ctx context.Context, doc *Document, chunks []Chunk) (created bool, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return false, fmt.Errorf("marshaling document metadata: %w", err)
	}

	var sourceURL *string
	if doc.SourceURL != "" {
		sourceURL = &doc.SourceURL
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO documents (id, source_type, source_url, title, content_hash, metadata, fetched_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT DO NOTHING`,
		doc.ID, doc.SourceType, sourceURL, doc.Title, doc.ContentHash, metadataJSON, doc.FetchedAt)
	if err != nil {
		return false, fmt.Errorf("inserting document %s: %w", doc.ID, err)
	}

	if tag.RowsAffected() == 0 {
		// Lost the race (or identical re-ingest): the row with this identity
		// already exists. Nothing to write; the existing chunks stand.
		s.logger.Debug("document insert conflict resolved to existing row", "doc_id", doc.ID)
		return false, tx.Commit(ctx)
	}

	for i := range chunks {
		c := &chunks[i]
		chunkMeta, err := json.Marshal(c.Metadata)
		if err != nil {
			return false, fmt.Errorf("marshaling chunk %d metadata: %w", c.Index, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO chunks (id, doc_id, chunk_index, text, token_count, metadata, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT DO NOTHING`,
			c.ID, c.DocID, c.Index, c.Text, c.TokenCount, chunkMeta, pgvector.NewVector(c.Embedding)); err != nil {
			return false, fmt.Errorf("inserting chunk %d of document %s: %w", c.Index, doc.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing ingestion: %w", err)
	}

	s.logger.Debug("stored document", "doc_id", doc.ID, "chunks", len(chunks))
	return true, nil
}

// GetChunksByDoc returns a document's chunks ordered by chunk_index.
// Embeddings are not loaded; callers needing vectors use Search.
func (s *Store) GetChunksByDoc(ctx context.Context, docID uuid.UUID) ([]Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, doc_id, chunk_index, text, token_count, metadata
		 FROM chunks WHERE doc_id = $1 ORDER BY chunk_index`,
		docID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks for document %s: %w", docID, err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var metadataJSON []byte
		if err := rows.Scan(&c.ID, &c.DocID, &c.Index, &c.Text, &c.TokenCount, &metadataJSON); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
			s.logger.Warn("failed to parse chunk metadata", "chunk_id", c.ID, "error", err)
			c.Metadata = map[string]string{}
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// Search performs ANN search over chunk embeddings, restricted to chunks
// whose metadata contains every key/value pair in params.Filters.
//
// Results are ordered by ascending cosine distance with ties broken by
// ascending chunk_index then chunk ID, so a fixed corpus always yields the
// same ordering. Candidates with non-positive similarity are dropped; an
// empty result is not an error.
func (s *Store) Search(ctx context.Context, params SearchParams) ([]SearchResult, error) {
	if len(params.Embedding) == 0 {
		return nil, fmt.Errorf("search embedding is empty")
	}
	topK := params.TopK
	if topK < 1 {
		topK = 1
	}
	probes := params.Probes
	if probes < 1 {
		probes = 1
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning search transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("search transaction rollback", "error", rbErr)
		}
	}()

	// SET LOCAL does not accept bind parameters; probes is an int validated
	// above, never caller-supplied text.
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL ivfflat.probes = %d", probes)); err != nil {
		return nil, fmt.Errorf("setting ivfflat.probes: %w", err)
	}

	vec := pgvector.NewVector(params.Embedding)
	query := `SELECT c.id, c.doc_id, c.chunk_index, c.text, d.title, COALESCE(d.source_url, ''),
	                 c.embedding <=> $1 AS distance
	          FROM chunks c
	          JOIN documents d ON d.id = c.doc_id`
	args := []any{vec}
	if len(params.Filters) > 0 {
		filterJSON, err := json.Marshal(params.Filters)
		if err != nil {
			return nil, fmt.Errorf("marshaling filters: %w", err)
		}
		query += ` WHERE c.metadata @> $2`
		args = append(args, filterJSON)
	}
	query += fmt.Sprintf(` ORDER BY distance, c.chunk_index, c.id LIMIT %d`, topK)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var distance float64
		if err := rows.Scan(&r.ChunkID, &r.DocID, &r.ChunkIndex, &r.Text, &r.DocTitle, &r.DocURL, &distance); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		score := 1.0 - distance
		if score <= 0 {
			continue // implicit relevance floor
		}
		if score > 1 {
			score = 1
		}
		r.Score = float32(score)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing search transaction: %w", err)
	}
	return results, nil
}

// GetChunkTexts returns the text for each existing chunk ID. Missing IDs are
// simply absent from the returned map.
func (s *Store) GetChunkTexts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]string{}, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT id, text FROM chunks WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("querying chunk texts: %w", err)
	}
	defer rows.Close()

	texts := make(map[uuid.UUID]string, len(ids))
	for rows.Next() {
		var id uuid.UUID
		var text string
		if err := rows.Scan(&id, &text); err != nil {
			return nil, fmt.Errorf("scanning chunk text: %w", err)
		}
		texts[id] = text
	}
	return texts, rows.Err()
}

// DeleteDocument removes a document; its chunks go with it via the
// ON DELETE CASCADE foreign key.
func (s *Store) DeleteDocument(ctx context.Context, docID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, docID)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", docID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", docID, ErrNotFound)
	}
	s.logger.Debug("deleted document", "doc_id", docID)
	return nil
}

// CountChunks returns the total number of stored chunks.
func (s *Store) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// CreateJob inserts a pending ingest job. docID is uuid.Nil until the
// documents row exists (the jobs table has a foreign key on doc_id);
// FinishJob links the job once the document is stored.
func (s *Store) CreateJob(ctx context.Context, docID uuid.UUID) (*IngestJob, error) {
	job := &IngestJob{ID: uuid.New(), DocID: docID, Status: JobPending, StartedAt: time.Now().UTC()}
	var dbDocID *uuid.UUID
	if docID != uuid.Nil {
		dbDocID = &docID
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO ingest_jobs (id, doc_id, status, started_at) VALUES ($1, $2, $3, $4)`,
		job.ID, dbDocID, job.Status, job.StartedAt); err != nil {
		return nil, fmt.Errorf("creating ingest job: %w", err)
	}
	return job, nil
}

// FinishJob marks a job succeeded or failed. The error message is recorded
// verbatim for failed jobs so upstream failures are never silently dropped.
func (s *Store) FinishJob(ctx context.Context, jobID uuid.UUID, status JobStatus, errMsg string, docID uuid.UUID) error {
	if status != JobSucceeded && status != JobFailed {
		return fmt.Errorf("invalid terminal job status %q", status)
	}
	var dbErr *string
	if errMsg != "" {
		dbErr = &errMsg
	}
	var dbDocID *uuid.UUID
	if docID != uuid.Nil {
		dbDocID = &docID
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE ingest_jobs
		 SET status = $2, error = $3, doc_id = COALESCE($4, doc_id), finished_at = now()
		 WHERE id = $1`,
		jobID, status, dbErr, dbDocID)
	if err != nil {
		return fmt.Errorf("finishing ingest job %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ingest job %s: %w", jobID, ErrNotFound)
	}
	return nil
}

// GetJob retrieves an ingest job by ID.
func (s *Store) GetJob(ctx context.Context, jobID uuid.UUID) (*IngestJob, error) {
	var job IngestJob
	var dbDocID *uuid.UUID
	var dbErr *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, doc_id, status, error, started_at, finished_at FROM ingest_jobs WHERE id = $1`,
		jobID).Scan(&job.ID, &dbDocID, &job.Status, &dbErr, &job.StartedAt, &job.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("ingest job %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting ingest job %s: %w", jobID, err)
	}
	if dbDocID != nil {
		job.DocID = *dbDocID
	}
	if dbErr != nil {
		job.Error = *dbErr
	}
	return &job, nil
}

// scanDocument scans one documents row.
func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	var metadataJSON []byte
	err := row.Scan(&d.ID, &d.SourceType, &d.SourceURL, &d.Title, &d.ContentHash, &metadataJSON, &d.FetchedAt, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	if err := json.Unmarshal(metadataJSON, &d.Metadata); err != nil {
		d.Metadata = map[string]string{}
	}
	return &d, nil
}
