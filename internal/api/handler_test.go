package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/replydesk/internal/composer"
	"github.com/kalambet/replydesk/internal/ingest"
	"github.com/kalambet/replydesk/internal/intent"
	"github.com/kalambet/replydesk/internal/knowledge"
	"github.com/kalambet/replydesk/internal/metrics"
	"github.com/kalambet/replydesk/internal/pipeline"
	"github.com/kalambet/replydesk/internal/storage"
	"github.com/kalambet/replydesk/internal/translate"
)

const (
	adminToken = "admin-token-12345"
	agentToken = "agent-token-67890"
)

// --- mocks ---

type mockAnalyzer struct{}

func (mockAnalyzer) Analyze(_ context.Context, body string) intent.Analysis {
	return intent.Analysis{
		Intent:            "Performance Issue",
		Language:          "English",
		Sentiment:         "Negative",
		KeyIssues:         []string{body},
		SuggestedStrategy: intent.StrategySolution,
	}
}

type mockDrafter struct{}

func (mockDrafter) Compose(_ context.Context, req composer.Request) composer.Draft {
	return composer.Draft{
		Subject:     "Re: " + req.Product.Name,
		WorkingBody: "工作正文",
		TargetBody:  "Hello " + req.CustomerName,
		Tone:        string(req.Tone),
	}
}

type mockTranslator struct {
	out string
}

func (m mockTranslator) Resync(_ context.Context, body string, mkt knowledge.Marketplace, _ string) string {
	if m.out != "" {
		return m.out
	}
	return "[" + string(mkt) + "] " + body
}

type mockLookup struct{}

func (mockLookup) Lookup(_ context.Context, asin string, _ knowledge.Marketplace) (ingest.Listing, error) {
	if asin == "B0NOTFOUND" {
		return ingest.Listing{}, ingest.ErrUnknownListing
	}
	return ingest.Listing{Name: "Imported " + asin, Features: []string{"f1"}}, nil
}

// --- helpers ---

type testEnv struct {
	handler http.Handler
	store   *storage.Store
	catalog *knowledge.Store
	metrics *metrics.Metrics
}

func setupHandler(t *testing.T) *testEnv {
	return setupHandlerWith(t, mockTranslator{})
}

func setupHandlerWith(t *testing.T, tr Translator) *testEnv {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	catalog, err := knowledge.Open(store)
	if err != nil {
		t.Fatalf("knowledge.Open: %v", err)
	}
	m := metrics.New()
	desk := pipeline.NewDesk(catalog, mockAnalyzer{}, mockDrafter{}, tr, store, m, pipeline.Options{})

	h := NewHandler(Deps{
		Catalog:    catalog,
		Desk:       desk,
		Analyzer:   mockAnalyzer{},
		Translator: tr,
		Importer:   ingest.NewImporter(mockLookup{}, catalog, store),
		Replies:    store,
		Metrics:    m,
		AdminToken: adminToken,
		AgentToken: agentToken,
	})
	return &testEnv{handler: h, store: store, catalog: catalog, metrics: m}
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func (e *testEnv) do(t *testing.T, method, url, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, authReq(method, url, body, token))
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response %q: %v", rr.Body.String(), err)
	}
	return v
}

func errorType(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	json.NewDecoder(rr.Body).Decode(&body)
	return body.Error.Type
}

// --- tests ---

func TestHealth_NoAuth(t *testing.T) {
	e := setupHandler(t)
	rr := e.do(t, http.MethodGet, "/health", "", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Fatalf("health = %d %s", rr.Code, rr.Body.String())
	}
}

func TestMetrics_NoAuth(t *testing.T) {
	e := setupHandler(t)
	e.do(t, http.MethodPost, "/products/p3/retrieve", `{"query":"does it work on ps5"}`, agentToken)

	rr := e.do(t, http.MethodGet, "/metrics", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "replydesk_retrieval_results_total") {
		t.Errorf("metrics output missing retrieval counter:\n%s", rr.Body.String())
	}
}

func TestAuth(t *testing.T) {
	e := setupHandler(t)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusUnauthorized},
		{"agent", agentToken, http.StatusOK},
		{"admin", adminToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := e.do(t, http.MethodGet, "/products", "", tt.token)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && errorType(t, rr) != "authentication_error" {
				t.Error("wrong error type")
			}
		})
	}
}

func TestAuth_EmptyTokenNeverMatches(t *testing.T) {
	h := NewHandler(Deps{AdminToken: "", AgentToken: ""})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/products", nil)
	req.Header.Set("Authorization", "Bearer ")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

func TestProducts_ListAndSearch(t *testing.T) {
	e := setupHandler(t)

	all := decode[[]knowledge.Product](t, e.do(t, http.MethodGet, "/products", "", agentToken))
	if len(all) != len(e.catalog.Products()) {
		t.Errorf("listed %d products, want %d", len(all), len(e.catalog.Products()))
	}

	rr := e.do(t, http.MethodGet, "/products?q=zzz-no-match", "", agentToken)
	if got := strings.TrimSpace(rr.Body.String()); got != "[]" {
		t.Errorf("empty search = %s, want []", got)
	}
}

func TestProducts_CRUD(t *testing.T) {
	e := setupHandler(t)

	rr := e.do(t, http.MethodPost, "/products", `{"asin":"B0NEW00001","name":"Desk Lamp"}`, agentToken)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", rr.Code, rr.Body.String())
	}
	p := decode[knowledge.Product](t, rr)
	if p.ID == "" || p.Marketplace != knowledge.MarketUS {
		t.Errorf("created = %+v", p)
	}

	rr = e.do(t, http.MethodPut, "/products/"+p.ID, `{"asin":"B0NEW00001","name":"Desk Lamp v2","policy":"60 days"}`, agentToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("update = %d %s", rr.Code, rr.Body.String())
	}
	if got, _ := e.catalog.Product(p.ID); got.Name != "Desk Lamp v2" {
		t.Errorf("stored name = %q", got.Name)
	}

	rr = e.do(t, http.MethodPost, "/products/"+p.ID+"/qa", `{"question":"Dimmable?","answer":"Yes, 5 levels.","keywords":["dim, brightness"]}`, agentToken)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add qa = %d %s", rr.Code, rr.Body.String())
	}
	qa := decode[knowledge.QAPair](t, rr)
	if len(qa.Keywords) != 2 {
		t.Errorf("keywords = %v", qa.Keywords)
	}

	if rr := e.do(t, http.MethodDelete, "/products/"+p.ID+"/qa/"+qa.ID, "", agentToken); rr.Code != http.StatusForbidden {
		t.Errorf("agent delete qa = %d, want 403", rr.Code)
	}
	if rr := e.do(t, http.MethodDelete, "/products/"+p.ID+"/qa/"+qa.ID, "", adminToken); rr.Code != http.StatusOK {
		t.Errorf("admin delete qa = %d", rr.Code)
	}

	if rr := e.do(t, http.MethodDelete, "/products/"+p.ID, "", agentToken); rr.Code != http.StatusForbidden {
		t.Errorf("agent delete = %d, want 403", rr.Code)
	}
	if rr := e.do(t, http.MethodDelete, "/products/"+p.ID, "", adminToken); rr.Code != http.StatusOK {
		t.Errorf("admin delete = %d", rr.Code)
	}
	if rr := e.do(t, http.MethodGet, "/products/"+p.ID, "", adminToken); rr.Code != http.StatusNotFound {
		t.Errorf("get deleted = %d, want 404", rr.Code)
	}
}

func TestProducts_Validation(t *testing.T) {
	e := setupHandler(t)
	if rr := e.do(t, http.MethodPost, "/products", `{"name":"no asin"}`, agentToken); rr.Code != http.StatusBadRequest {
		t.Errorf("missing asin = %d", rr.Code)
	}
	if rr := e.do(t, http.MethodPost, "/products", `{`, agentToken); rr.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d", rr.Code)
	}
	if rr := e.do(t, http.MethodPost, "/products/p3/qa", `{"question":"?"}`, agentToken); rr.Code != http.StatusBadRequest {
		t.Errorf("missing answer = %d", rr.Code)
	}
	if rr := e.do(t, http.MethodPost, "/products", `{"id":"p3","asin":"B0DUP00001","name":"dup"}`, agentToken); rr.Code != http.StatusConflict {
		t.Errorf("duplicate id = %d, want 409", rr.Code)
	}
	if rr := e.do(t, http.MethodPut, "/products/missing", `{"name":"x"}`, agentToken); rr.Code != http.StatusNotFound {
		t.Errorf("update missing = %d", rr.Code)
	}
}

func TestProducts_Retrieve(t *testing.T) {
	e := setupHandler(t)
	rr := e.do(t, http.MethodPost, "/products/p3/retrieve", `{"query":""}`, agentToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("retrieve = %d %s", rr.Code, rr.Body.String())
	}
	var results []struct {
		Source string  `json:"source"`
		Score  float64 `json:"relevance_score"`
	}
	json.NewDecoder(rr.Body).Decode(&results)
	if len(results) != 1 || results[0].Source != "Policy" {
		t.Errorf("empty query results = %+v, want only Policy", results)
	}

	if rr := e.do(t, http.MethodPost, "/products/missing/retrieve", `{"query":"x"}`, agentToken); rr.Code != http.StatusNotFound {
		t.Errorf("missing product = %d", rr.Code)
	}
}

func TestTickets(t *testing.T) {
	e := setupHandler(t)

	rr := e.do(t, http.MethodPost, "/tickets", `{"customer_name":"Ann","email_body":"It broke."}`, agentToken)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", rr.Code, rr.Body.String())
	}
	tk := decode[knowledge.Ticket](t, rr)
	if tk.Status != knowledge.StatusPending {
		t.Errorf("status = %q", tk.Status)
	}
	if got := e.catalog.Tickets()[0]; got.ID != tk.ID {
		t.Error("new ticket not at head of inbox")
	}

	rr = e.do(t, http.MethodPatch, "/tickets/"+tk.ID, `{"status":"sent"}`, agentToken)
	if rr.Code != http.StatusOK || decode[knowledge.Ticket](t, rr).Status != knowledge.StatusSent {
		t.Errorf("patch = %d", rr.Code)
	}
	if rr := e.do(t, http.MethodPatch, "/tickets/"+tk.ID, `{"status":"archived"}`, agentToken); rr.Code != http.StatusBadRequest {
		t.Errorf("invalid status = %d", rr.Code)
	}
	if rr := e.do(t, http.MethodPost, "/tickets", `{"email_body":"  "}`, agentToken); rr.Code != http.StatusBadRequest {
		t.Errorf("empty body = %d", rr.Code)
	}

	if rr := e.do(t, http.MethodDelete, "/tickets/"+tk.ID, "", agentToken); rr.Code != http.StatusForbidden {
		t.Errorf("agent delete = %d", rr.Code)
	}
	if rr := e.do(t, http.MethodDelete, "/tickets/"+tk.ID, "", adminToken); rr.Code != http.StatusOK {
		t.Errorf("admin delete = %d", rr.Code)
	}
	if rr := e.do(t, http.MethodGet, "/tickets/"+tk.ID, "", adminToken); rr.Code != http.StatusNotFound {
		t.Errorf("get deleted = %d", rr.Code)
	}
}

func TestAnalyze(t *testing.T) {
	e := setupHandler(t)
	rr := e.do(t, http.MethodPost, "/analyze", `{"email_body":"battery dies"}`, agentToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("analyze = %d", rr.Code)
	}
	a := decode[intent.Analysis](t, rr)
	if a.SuggestedStrategy != intent.StrategySolution || a.KeyIssues[0] != "battery dies" {
		t.Errorf("analysis = %+v", a)
	}
	if rr := e.do(t, http.MethodPost, "/analyze", `{"email_body":""}`, agentToken); rr.Code != http.StatusBadRequest {
		t.Errorf("empty = %d", rr.Code)
	}
}

func TestTranslate(t *testing.T) {
	e := setupHandler(t)
	rr := e.do(t, http.MethodPost, "/translate", `{"working_body":"你好","marketplace":"jp"}`, agentToken)
	resp := decode[translateResponse](t, rr)
	if resp.TargetBody != "[JP] 你好" || resp.Notice != "" {
		t.Errorf("translate = %+v", resp)
	}

	e = setupHandlerWith(t, mockTranslator{out: translate.Unavailable})
	rr = e.do(t, http.MethodPost, "/translate", `{"working_body":"你好","marketplace":"US"}`, agentToken)
	resp = decode[translateResponse](t, rr)
	if resp.TargetBody != "" || resp.Notice != translate.Unavailable {
		t.Errorf("sentinel translate = %+v", resp)
	}
}

func TestImports(t *testing.T) {
	e := setupHandler(t)

	rr := e.do(t, http.MethodGet, "/imports/preview?asin=b0prev0001&marketplace=de", "", agentToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("preview = %d %s", rr.Code, rr.Body.String())
	}
	if l := decode[ingest.Listing](t, rr); l.Name != "Imported B0PREV0001" {
		t.Errorf("preview = %+v", l)
	}

	rr = e.do(t, http.MethodPost, "/imports", `{"asin":"B0SYNC0001","marketplace":"DE"}`, agentToken)
	if rr.Code != http.StatusCreated {
		t.Fatalf("import = %d %s", rr.Code, rr.Body.String())
	}
	p := decode[knowledge.Product](t, rr)
	if p.Category != "Imported" || p.Marketplace != knowledge.MarketDE {
		t.Errorf("imported = %+v", p)
	}

	rr = e.do(t, http.MethodPost, "/imports", `{"asin":"B0ASYNC001","async":true}`, agentToken)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("async import = %d %s", rr.Code, rr.Body.String())
	}
	queued := decode[map[string]string](t, rr)

	rr = e.do(t, http.MethodGet, "/imports/"+queued["id"], "", agentToken)
	if job := decode[storage.Job](t, rr); job.Status != storage.JobPending || job.Type != ingest.JobTypeImport {
		t.Errorf("job = %+v", job)
	}

	if rr := e.do(t, http.MethodPost, "/imports", `{"asin":"short"}`, agentToken); rr.Code != http.StatusBadRequest {
		t.Errorf("invalid asin = %d", rr.Code)
	}
	if rr := e.do(t, http.MethodPost, "/imports", `{"asin":"B0NOTFOUND"}`, agentToken); rr.Code != http.StatusNotFound {
		t.Errorf("unknown listing = %d", rr.Code)
	}
	if rr := e.do(t, http.MethodGet, "/imports/missing", "", agentToken); rr.Code != http.StatusNotFound {
		t.Errorf("missing job = %d", rr.Code)
	}
}

func TestImports_NotConfigured(t *testing.T) {
	h := NewHandler(Deps{AgentToken: agentToken})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/imports", `{"asin":"B0SYNC0001"}`, agentToken))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestReplies(t *testing.T) {
	e := setupHandler(t)
	if got := strings.TrimSpace(e.do(t, http.MethodGet, "/replies", "", agentToken).Body.String()); got != "[]" {
		t.Errorf("empty replies = %s", got)
	}

	for i, ts := range []time.Time{time.Now().Add(-time.Hour), time.Now()} {
		e.store.SaveReply(storage.Reply{ID: string(rune('a' + i)), TicketID: "t1", Subject: "s", CreatedAt: ts})
	}
	replies := decode[[]storage.Reply](t, e.do(t, http.MethodGet, "/replies?limit=1", "", agentToken))
	if len(replies) != 1 || replies[0].ID != "b" {
		t.Errorf("replies = %+v, want newest only", replies)
	}
}
