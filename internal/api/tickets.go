package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/replydesk/internal/knowledge"
	"github.com/kalambet/replydesk/internal/translate"
)

func handleListTickets(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Catalog.Tickets())
	}
}

func handleCreateTicket(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var t knowledge.Ticket
		if !decodeBody(w, r, &t) {
			return
		}
		if strings.TrimSpace(t.EmailBody) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "email_body is required")
			return
		}
		if t.Status != "" && !t.Status.Valid() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid status %q", t.Status)
			return
		}
		created, err := deps.Catalog.AddTicket(t)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleGetTicket(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := deps.Catalog.Ticket(chi.URLParam(r, "id"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

type patchTicketRequest struct {
	Status           knowledge.Status `json:"status"`
	DetectedLanguage string           `json:"detected_language"`
}

func handlePatchTicket(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req patchTicketRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if !req.Status.Valid() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid status %q", req.Status)
			return
		}
		t, err := deps.Catalog.SetTicketStatus(chi.URLParam(r, "id"), req.Status, req.DetectedLanguage)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func handleDeleteTicket(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Catalog.DeleteTicket(RoleFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

type analyzeRequest struct {
	EmailBody string `json:"email_body"`
}

func handleAnalyze(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req analyzeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.EmailBody) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "email_body is required")
			return
		}
		writeJSON(w, http.StatusOK, deps.Analyzer.Analyze(r.Context(), req.EmailBody))
	}
}

type translateRequest struct {
	WorkingBody string `json:"working_body"`
	Marketplace string `json:"marketplace"`
	Tone        string `json:"tone"`
}

type translateResponse struct {
	TargetBody string `json:"target_body,omitempty"`
	Notice     string `json:"notice,omitempty"`
}

func handleTranslate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req translateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.WorkingBody) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "working_body is required")
			return
		}
		out := deps.Translator.Resync(r.Context(), req.WorkingBody, knowledge.ParseMarketplace(req.Marketplace), req.Tone)
		if translate.IsSentinel(out) {
			writeJSON(w, http.StatusOK, translateResponse{Notice: out})
			return
		}
		writeJSON(w, http.StatusOK, translateResponse{TargetBody: out})
	}
}
