package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/raggy-ai/raggy/internal/ingest"
	"github.com/raggy-ai/raggy/internal/retrieval"
)

type ingestRequest struct {
	SourceType string            `json:"source_type"`
	SourceURL  string            `json:"source_url,omitempty"`
	Title      string            `json:"title"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	FetchedAt  *time.Time        `json:"fetched_at,omitempty"`
}

type ingestResponse struct {
	DocumentID   string   `json:"document_id"`
	ChunkIDs     []string `json:"chunk_ids"`
	JobID        string   `json:"job_id"`
	Deduplicated bool     `json:"deduplicated"`
}

type queryRequest struct {
	Query   string            `json:"query"`
	TopK    *int              `json:"top_k,omitempty"`
	Filters map[string]string `json:"used_filters,omitempty"`
}

// decodeBody strictly decodes a JSON request body. Unknown fields and
// trailing garbage are rejected so client typos surface as 422s instead of
// silently ignored options.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeDetail(w, s.logger, http.StatusRequestEntityTooLarge, "Request payload too large")
			return false
		}
		writeValidation(w, s.logger, map[string]string{"body": fmt.Sprintf("invalid JSON: %v", err)})
		return false
	}
	if dec.More() {
		writeValidation(w, s.logger, map[string]string{"body": "unexpected trailing data"})
		return false
	}
	return true
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	res, err := s.ingestor.Ingest(r.Context(), ingest.Request{
		SourceType: req.SourceType,
		SourceURL:  req.SourceURL,
		Title:      req.Title,
		Content:    req.Content,
		Metadata:   req.Metadata,
		FetchedAt:  req.FetchedAt,
	})
	if err != nil {
		var verr *ingest.ValidationError
		switch {
		case errors.As(err, &verr):
			writeValidation(w, s.logger, map[string]string{verr.Field: verr.Reason})
		case errors.Is(err, ingest.ErrUpstream):
			s.logger.Error("ingestion failed", "error", err)
			writeDetail(w, s.logger, http.StatusBadGateway, "upstream service unavailable")
		default:
			s.logger.Error("ingestion failed", "error", err)
			writeDetail(w, s.logger, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	chunkIDs := make([]string, len(res.Chunks))
	for i, c := range res.Chunks {
		chunkIDs[i] = c.ID.String()
	}
	writeJSON(w, s.logger, http.StatusCreated, ingestResponse{
		DocumentID:   res.Document.ID.String(),
		ChunkIDs:     chunkIDs,
		JobID:        res.Job.ID.String(),
		Deduplicated: res.Deduplicated,
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	fields := map[string]string{}
	if strings.TrimSpace(req.Query) == "" {
		fields["query"] = "must not be empty"
	}
	topK := retrieval.DefaultTopK
	if req.TopK != nil {
		topK = *req.TopK
		if topK < 1 || topK > retrieval.MaxTopK {
			fields["top_k"] = fmt.Sprintf("must be between 1 and %d", retrieval.MaxTopK)
		}
	}
	for k := range req.Filters {
		if strings.TrimSpace(k) == "" {
			fields["used_filters"] = "keys must not be empty"
		}
	}
	if len(fields) > 0 {
		writeValidation(w, s.logger, fields)
		return
	}

	res, err := s.answerer.Answer(r.Context(), req.Query, topK, req.Filters)
	if err != nil {
		s.logger.Error("query failed", "error", err)
		writeDetail(w, s.logger, http.StatusBadGateway, "upstream service unavailable")
		return
	}
	writeJSON(w, s.logger, http.StatusOK, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.pinger.Ping(r.Context()); err != nil {
		writeJSON(w, s.logger, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeDetail(w, s.logger, http.StatusNotFound, "Not Found")
}
