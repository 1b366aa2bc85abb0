package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/replydesk/internal/storage"
)

type importRequest struct {
	ASIN        string `json:"asin"`
	Marketplace string `json:"marketplace"`
	Async       bool   `json:"async"`
}

func importsEnabled(w http.ResponseWriter, deps Deps) bool {
	if deps.Importer == nil {
		httpError(w, http.StatusServiceUnavailable, "api_error", "catalog import is not configured")
		return false
	}
	return true
}

func handlePreviewImport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !importsEnabled(w, deps) {
			return
		}
		q := r.URL.Query()
		l, err := deps.Importer.Preview(r.Context(), q.Get("asin"), q.Get("marketplace"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// handleImport adds a listing to the catalog. With async set the work is
// queued for the import worker and the job id returned.
func handleImport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !importsEnabled(w, deps) {
			return
		}
		var req importRequest
		if !decodeBody(w, r, &req) {
			return
		}

		if req.Async {
			id, err := deps.Importer.Enqueue(req.ASIN, req.Marketplace)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "queued"})
			return
		}

		p, err := deps.Importer.Import(r.Context(), req.ASIN, req.Marketplace)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func handleGetImport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !importsEnabled(w, deps) {
			return
		}
		job, err := deps.Importer.Job(chi.URLParam(r, "id"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func handleListReplies(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Replies == nil {
			writeJSON(w, http.StatusOK, []storage.Reply{})
			return
		}
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		replies, err := deps.Replies.ListReplies(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list replies: %v", err)
			return
		}
		if replies == nil {
			replies = []storage.Reply{}
		}
		writeJSON(w, http.StatusOK, replies)
	}
}
