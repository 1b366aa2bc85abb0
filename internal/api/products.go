package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/replydesk/internal/knowledge"
	"github.com/kalambet/replydesk/internal/retrieval"
)

func handleListProducts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		products := deps.Catalog.SearchProducts(r.URL.Query().Get("q"))
		if products == nil {
			products = []knowledge.Product{}
		}
		writeJSON(w, http.StatusOK, products)
	}
}

func handleCreateProduct(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p knowledge.Product
		if !decodeBody(w, r, &p) {
			return
		}
		if strings.TrimSpace(p.ASIN) == "" || strings.TrimSpace(p.Name) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "asin and name are required")
			return
		}
		if p.Marketplace == "" {
			p.Marketplace = knowledge.MarketUS
		}
		created, err := deps.Catalog.AddProduct(p)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleGetProduct(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Catalog.Product(chi.URLParam(r, "id"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleUpdateProduct(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p knowledge.Product
		if !decodeBody(w, r, &p) {
			return
		}
		p.ID = chi.URLParam(r, "id")
		updated, err := deps.Catalog.UpdateProduct(p)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func handleDeleteProduct(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Catalog.DeleteProduct(RoleFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleAddQA(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var qa knowledge.QAPair
		if !decodeBody(w, r, &qa) {
			return
		}
		if strings.TrimSpace(qa.Question) == "" || strings.TrimSpace(qa.Answer) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question and answer are required")
			return
		}
		added, err := deps.Catalog.AddQA(chi.URLParam(r, "id"), qa)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, added)
	}
}

func handleDeleteQA(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Catalog.DeleteQA(RoleFrom(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "qaID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

type retrieveRequest struct {
	Query string `json:"query"`
}

func handleRetrieve(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req retrieveRequest
		if !decodeBody(w, r, &req) {
			return
		}
		p, err := deps.Catalog.Product(chi.URLParam(r, "id"))
		if err != nil {
			writeErr(w, err)
			return
		}
		results := retrieval.Retrieve(req.Query, p)
		for src, n := range retrieval.Count(results) {
			deps.Metrics.CountRetrieval(string(src), n)
		}
		writeJSON(w, http.StatusOK, results)
	}
}
