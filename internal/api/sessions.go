package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/replydesk/internal/intent"
	"github.com/kalambet/replydesk/internal/pipeline"
)

func handleOpenSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, deps.Desk.Open(RoleFrom(r.Context())))
	}
}

func handleGetSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Desk.Get(chi.URLParam(r, "id"))
		respondSession(w, s, err)
	}
}

func handleCloseSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Desk.Close(chi.URLParam(r, "id")); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
	}
}

func respondSession(w http.ResponseWriter, s pipeline.Session, err error) {
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

type selectTicketRequest struct {
	TicketID string `json:"ticket_id"`
}

func handleSelectTicket(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req selectTicketRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.TicketID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "ticket_id is required")
			return
		}
		s, err := deps.Desk.SelectTicket(chi.URLParam(r, "id"), req.TicketID)
		respondSession(w, s, err)
	}
}

type inputRequest struct {
	CustomerName string `json:"customer_name"`
	EmailBody    string `json:"email_body"`
}

func handleSetInput(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req inputRequest
		if !decodeBody(w, r, &req) {
			return
		}
		s, err := deps.Desk.SetInput(chi.URLParam(r, "id"), req.CustomerName, req.EmailBody)
		respondSession(w, s, err)
	}
}

type selectProductRequest struct {
	ProductID string `json:"product_id"`
}

func handleSelectProduct(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req selectProductRequest
		if !decodeBody(w, r, &req) {
			return
		}
		s, err := deps.Desk.SelectProduct(chi.URLParam(r, "id"), req.ProductID)
		respondSession(w, s, err)
	}
}

type toneRequest struct {
	Tone string `json:"tone"`
}

func handleSetTone(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req toneRequest
		if !decodeBody(w, r, &req) {
			return
		}
		tone, ok := intent.ParseStrategy(req.Tone)
		if !ok {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown tone %q", req.Tone)
			return
		}
		s, err := deps.Desk.SetTone(chi.URLParam(r, "id"), tone)
		respondSession(w, s, err)
	}
}

type draftRequest struct {
	WorkingBody string `json:"working_body"`
}

func handleEditDraft(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req draftRequest
		if !decodeBody(w, r, &req) {
			return
		}
		s, err := deps.Desk.EditDraft(chi.URLParam(r, "id"), req.WorkingBody)
		respondSession(w, s, err)
	}
}

func handleClearInput(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Desk.ClearInput(chi.URLParam(r, "id"))
		respondSession(w, s, err)
	}
}

func handleGenerate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Desk.Generate(r.Context(), chi.URLParam(r, "id"))
		respondSession(w, s, err)
	}
}

func handleCancelGenerate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cancelled, err := deps.Desk.Cancel(chi.URLParam(r, "id"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
	}
}

type resyncResponse struct {
	Session pipeline.Session `json:"session"`
	Notice  string           `json:"notice,omitempty"`
}

func handleResync(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, notice, err := deps.Desk.Resync(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resyncResponse{Session: s, Notice: notice})
	}
}

func handleMarkSent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Desk.MarkSent(chi.URLParam(r, "id"))
		respondSession(w, s, err)
	}
}

func handleCopy(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		text, err := deps.Desk.CopyText(chi.URLParam(r, "id"))
		if err != nil {
			writeErr(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(text))
	}
}
