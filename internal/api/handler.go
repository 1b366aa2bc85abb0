// Package api exposes the desk over HTTP and MCP.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/replydesk/internal/ingest"
	"github.com/kalambet/replydesk/internal/intent"
	"github.com/kalambet/replydesk/internal/knowledge"
	"github.com/kalambet/replydesk/internal/metrics"
	"github.com/kalambet/replydesk/internal/pipeline"
	"github.com/kalambet/replydesk/internal/storage"
)

// Analyzer classifies a customer email.
type Analyzer interface {
	Analyze(ctx context.Context, emailBody string) intent.Analysis
}

// Translator re-translates a working body for a marketplace.
type Translator interface {
	Resync(ctx context.Context, workingBody string, m knowledge.Marketplace, tone string) string
}

// ReplyLister pages through archived replies.
type ReplyLister interface {
	ListReplies(limit, offset int) ([]storage.Reply, error)
}

// Deps holds everything the HTTP handler needs. Importer, Replies and
// Metrics are optional.
type Deps struct {
	Catalog    *knowledge.Store
	Desk       *pipeline.Desk
	Analyzer   Analyzer
	Translator Translator
	Importer   *ingest.Importer
	Replies    ReplyLister
	Metrics    *metrics.Metrics
	AdminToken string
	AgentToken string
}

// NewHandler returns the REST API. /health and /metrics are public; every
// other route needs a bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(map[string]knowledge.Role{
			deps.AdminToken: knowledge.RoleAdmin,
			deps.AgentToken: knowledge.RoleCS,
		}))

		r.Route("/products", func(r chi.Router) {
			r.Get("/", handleListProducts(deps))
			r.Post("/", handleCreateProduct(deps))
			r.Get("/{id}", handleGetProduct(deps))
			r.Put("/{id}", handleUpdateProduct(deps))
			r.Delete("/{id}", handleDeleteProduct(deps))
			r.Post("/{id}/qa", handleAddQA(deps))
			r.Delete("/{id}/qa/{qaID}", handleDeleteQA(deps))
			r.Post("/{id}/retrieve", handleRetrieve(deps))
		})

		r.Route("/tickets", func(r chi.Router) {
			r.Get("/", handleListTickets(deps))
			r.Post("/", handleCreateTicket(deps))
			r.Get("/{id}", handleGetTicket(deps))
			r.Patch("/{id}", handlePatchTicket(deps))
			r.Delete("/{id}", handleDeleteTicket(deps))
		})

		r.Post("/analyze", handleAnalyze(deps))
		r.Post("/translate", handleTranslate(deps))

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", handleOpenSession(deps))
			r.Get("/{id}", handleGetSession(deps))
			r.Delete("/{id}", handleCloseSession(deps))
			r.Put("/{id}/ticket", handleSelectTicket(deps))
			r.Put("/{id}/input", handleSetInput(deps))
			r.Put("/{id}/product", handleSelectProduct(deps))
			r.Put("/{id}/tone", handleSetTone(deps))
			r.Put("/{id}/draft", handleEditDraft(deps))
			r.Post("/{id}/clear", handleClearInput(deps))
			r.Post("/{id}/generate", handleGenerate(deps))
			r.Delete("/{id}/generate", handleCancelGenerate(deps))
			r.Post("/{id}/resync", handleResync(deps))
			r.Post("/{id}/send", handleMarkSent(deps))
			r.Get("/{id}/copy", handleCopy(deps))
		})

		r.Route("/imports", func(r chi.Router) {
			r.Get("/preview", handlePreviewImport(deps))
			r.Post("/", handleImport(deps))
			r.Get("/{id}", handleGetImport(deps))
		})

		r.Get("/replies", handleListReplies(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
