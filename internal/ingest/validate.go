package ingest

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/raggy-ai/raggy/internal/docstore"
)

// ErrUpstream marks failures of an external collaborator (embedding service
// or database). The HTTP layer maps it to a gateway error instead of a
// client error.
var ErrUpstream = errors.New("upstream failure")

// ValidationError reports a rejected ingestion field. It is returned before
// any external call is made, so a rejected request has no side effects.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

const maxTitleLen = 512

func validateRequest(req Request) *ValidationError {
	if strings.TrimSpace(req.Content) == "" {
		return &ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if strings.TrimSpace(req.Title) == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if len(req.Title) > maxTitleLen {
		return &ValidationError{Field: "title", Reason: fmt.Sprintf("must be at most %d bytes", maxTitleLen)}
	}
	if !docstore.ValidSourceType(req.SourceType) {
		return &ValidationError{Field: "source_type", Reason: fmt.Sprintf("unsupported source type %q", req.SourceType)}
	}
	if req.SourceURL != "" {
		u, err := url.Parse(req.SourceURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &ValidationError{Field: "source_url", Reason: "must be an absolute http(s) URL"}
		}
	}
	for k := range req.Metadata {
		if strings.TrimSpace(k) == "" {
			return &ValidationError{Field: "metadata", Reason: "keys must not be empty"}
		}
	}
	return nil
}
