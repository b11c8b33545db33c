package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Error payloads carry a single human-readable detail field; validation
// errors add per-field reasons. These shapes are part of the wire contract.
type errorResponse struct {
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("writing response body", "error", err)
	}
}

func writeDetail(w http.ResponseWriter, logger *slog.Logger, status int, detail string) {
	writeJSON(w, logger, status, errorResponse{Detail: detail})
}

func writeValidation(w http.ResponseWriter, logger *slog.Logger, fields map[string]string) {
	writeJSON(w, logger, http.StatusUnprocessableEntity, errorResponse{
		Detail: "validation failed",
		Fields: fields,
	})
}
