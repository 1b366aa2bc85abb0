package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/kalambet/replydesk/internal/ingest"
	"github.com/kalambet/replydesk/internal/knowledge"
	"github.com/kalambet/replydesk/internal/pipeline"
	"github.com/kalambet/replydesk/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// writeErr maps package sentinels onto status codes.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, knowledge.ErrNotFound),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, pipeline.ErrNoSession),
		errors.Is(err, ingest.ErrUnknownListing):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, knowledge.ErrPermissionDenied):
		httpError(w, http.StatusForbidden, "permission_error", "%v", err)
	case errors.Is(err, pipeline.ErrBusy),
		errors.Is(err, pipeline.ErrTicketChanged),
		errors.Is(err, pipeline.ErrDraftChanged),
		errors.Is(err, knowledge.ErrExists),
		errors.Is(err, context.Canceled):
		httpError(w, http.StatusConflict, "conflict", "%v", err)
	case errors.Is(err, pipeline.ErrEmptyQuery),
		errors.Is(err, pipeline.ErrNoDraft),
		errors.Is(err, ingest.ErrInvalidASIN):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// decodeBody reads a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
