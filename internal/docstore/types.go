package docstore

import (
	"time"

	"github.com/google/uuid"
)

// Source type constants for ingested documents.
const (
	SourceTypeMarkdown = "md"
	SourceTypeURL      = "url"
	SourceTypePDF      = "pdf"
	SourceTypeText     = "txt"
)

// ValidSourceType reports whether s is a known source type.
func ValidSourceType(s string) bool {
	switch s {
	case SourceTypeMarkdown, SourceTypeURL, SourceTypePDF, SourceTypeText:
		return true
	}
	return false
}

// Document is an ingested source document. Its ID is a deterministic UUID
// derived from the idempotency key (source_type, source_url, content_hash),
// so re-ingesting identical content resolves to the same row.
type Document struct {
	ID          uuid.UUID
	SourceType  string
	SourceURL   string // empty = none
	Title       string
	ContentHash string
	Metadata    map[string]string
	FetchedAt   *time.Time
	CreatedAt   time.Time
}

// Chunk is a bounded span of a document's text, embedded and indexed
// independently. Chunk IDs are pure functions of (doc_id, chunk_index, text).
type Chunk struct {
	ID         uuid.UUID
	DocID      uuid.UUID
	Index      int
	Text       string
	TokenCount int
	Metadata   map[string]string
	Embedding  []float32
}

// JobStatus is the lifecycle state of an ingestion attempt.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// IngestJob records one ingestion attempt. Retried ingestions create new
// job rows referencing the same (possibly pre-existing) document.
type IngestJob struct {
	ID         uuid.UUID
	DocID      uuid.UUID // uuid.Nil until the document is resolved
	Status     JobStatus
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// SearchResult is a chunk returned from ANN search, joined with the fields
// of its owning document needed to build citations.
type SearchResult struct {
	ChunkID    uuid.UUID
	DocID      uuid.UUID
	ChunkIndex int
	Text       string
	DocTitle   string
	DocURL     string
	Score      float32 // cosine similarity, clamped to [0,1]
}

// SearchParams describes one ANN search.
type SearchParams struct {
	Embedding []float32
	TopK      int
	// Filters is an exact-match conjunction over chunk metadata.
	Filters map[string]string
	// Probes sets ivfflat.probes for this query (SET LOCAL). Higher values
	// scan more lists and never reduce recall.
	Probes int
}
