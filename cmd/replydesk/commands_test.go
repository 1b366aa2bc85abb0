package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"

	"github.com/kalambet/replydesk/internal/config"
	"github.com/kalambet/replydesk/internal/knowledge"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	mu       sync.Mutex
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.mu.Lock()
		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})
		ts.mu.Unlock()

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

func (ts *testServer) paths() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make([]string, len(ts.requests))
	for i, r := range ts.requests {
		out[i] = r.Method + " " + r.Path
	}
	return out
}

// useClient points every command at ts for the duration of the test.
func useClient(t *testing.T, ts *testServer) {
	t.Helper()
	old := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	t.Cleanup(func() { newAPIClient = old })
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	return rootCmd.ExecuteContext(context.Background())
}

func testCommand() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	return cmd
}

var ctx = context.Background()

const sessionJSON = `{"id":"s1","role":"admin","ticket":{"id":"new_entry"},"product_id":"p3","tone":"Solution"}`

const generatedJSON = `{"id":"s1","role":"admin","ticket":{"id":"t3","status":"drafted"},"product_id":"p3","tone":"Solution",
"analysis":{"intent":"Performance Issue","language":"English","sentiment":"Negative","key_issues":["battery"],"suggested_strategy":"Solution"},
"draft":{"subject":"Re: battery","working_body":"工作","target_body":"Hello","tone":"Solution"}}`

func draftResponses() map[string]string {
	return map[string]string{
		"POST /sessions":             sessionJSON,
		"PUT /sessions/s1/ticket":    sessionJSON,
		"PUT /sessions/s1/input":     sessionJSON,
		"PUT /sessions/s1/product":   sessionJSON,
		"PUT /sessions/s1/tone":      sessionJSON,
		"POST /sessions/s1/generate": generatedJSON,
		"POST /sessions/s1/send":     generatedJSON,
		"DELETE /sessions/s1":        `{"status":"closed"}`,
	}
}

func TestRunDraft_Ticket(t *testing.T) {
	ts := newTestServer(t, draftResponses())

	s, err := runDraft(testCommand(), ts.client(), draftOptions{ticketID: "t3", productID: "p3"})
	if err != nil {
		t.Fatalf("runDraft: %v", err)
	}
	if s.Draft == nil || s.Draft.TargetBody != "Hello" {
		t.Fatalf("draft = %+v", s.Draft)
	}

	want := []string{
		"POST /sessions",
		"PUT /sessions/s1/ticket",
		"PUT /sessions/s1/product",
		"POST /sessions/s1/generate",
		"DELETE /sessions/s1",
	}
	got := ts.paths()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("requests = %v, want %v", got, want)
	}

	var body map[string]string
	json.Unmarshal([]byte(ts.requests[1].Body), &body)
	if body["ticket_id"] != "t3" {
		t.Errorf("ticket body = %v", body)
	}
}

func TestRunDraft_ManualEntryWithToneAndSend(t *testing.T) {
	ts := newTestServer(t, draftResponses())

	_, err := runDraft(testCommand(), ts.client(), draftOptions{
		body:     "Lantern arrived cracked",
		customer: "Ann",
		tone:     "Refund",
		send:     true,
	})
	if err != nil {
		t.Fatalf("runDraft: %v", err)
	}

	want := []string{
		"POST /sessions",
		"PUT /sessions/s1/input",
		"PUT /sessions/s1/tone",
		"POST /sessions/s1/generate",
		"POST /sessions/s1/send",
		"DELETE /sessions/s1",
	}
	if got := ts.paths(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("requests = %v, want %v", got, want)
	}

	var input map[string]string
	json.Unmarshal([]byte(ts.requests[1].Body), &input)
	if input["customer_name"] != "Ann" || input["email_body"] != "Lantern arrived cracked" {
		t.Errorf("input body = %v", input)
	}
}

func TestRunDraft_ServerErrorClosesSession(t *testing.T) {
	responses := draftResponses()
	delete(responses, "POST /sessions/s1/generate")
	ts := newTestServer(t, responses)

	_, err := runDraft(testCommand(), ts.client(), draftOptions{ticketID: "t3"})
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("err = %v, want 404", err)
	}
	paths := ts.paths()
	if paths[len(paths)-1] != "DELETE /sessions/s1" {
		t.Errorf("session not closed, requests = %v", paths)
	}
}

func TestDraftCommand_RequiresInput(t *testing.T) {
	ts := newTestServer(t, nil)
	useClient(t, ts)

	err := execute(t, "draft")
	if err == nil || !strings.Contains(err.Error(), "--ticket") {
		t.Fatalf("err = %v", err)
	}
	if len(ts.paths()) != 0 {
		t.Error("no request expected")
	}
}

func TestProductsDeleteCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /products/p1": `{"status":"deleted"}`,
	})
	useClient(t, ts)

	if err := execute(t, "products", "delete", "p1"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := ts.paths(); len(got) != 1 || got[0] != "DELETE /products/p1" {
		t.Errorf("requests = %v", got)
	}
}

func TestProductsListCommand_Search(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /products": `[{"id":"p3","asin":"B0C4Y3V2XW","name":"Gtheos Headset","marketplace":"US"}]`,
	})
	useClient(t, ts)

	if err := execute(t, "products", "list", "--search", "gaming headset"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := ts.paths(); got[0] != "GET /products?q=gaming+headset" {
		t.Errorf("path = %q", got[0])
	}
}

func TestProductsQAAddCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /products/p3/qa": `{"id":"qa1","question":"q","answer":"a","keywords":["ps5","console"]}`,
	})
	useClient(t, ts)

	err := execute(t, "products", "qa-add", "p3", "--question", "Works on PS5?", "--answer", "Yes", "--keywords", "ps5, console", "--engineer")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	var qa knowledge.QAPair
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &qa); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if qa.Author != knowledge.AuthorEngineer {
		t.Errorf("author = %q", qa.Author)
	}
	if len(qa.Keywords) != 1 || qa.Keywords[0] != "ps5, console" {
		t.Errorf("keywords = %v, want the raw field for the server to split", qa.Keywords)
	}
}

func TestImportCommand_Async(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /imports": `{"id":"job-1","status":"queued"}`,
	})
	useClient(t, ts)

	if err := execute(t, "import", "B0C4Y3V2XW", "--marketplace", "DE", "--async"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	var body map[string]any
	json.Unmarshal([]byte(ts.requests[0].Body), &body)
	if body["asin"] != "B0C4Y3V2XW" || body["marketplace"] != "DE" || body["async"] != true {
		t.Errorf("body = %v", body)
	}
}

func TestImportCommand_Preview(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /imports/preview": `{"name":"Lamp","features":["bright"]}`,
	})
	useClient(t, ts)

	if err := execute(t, "import", "b0lamp0001", "--preview", "--marketplace", "US"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := ts.paths()[0]; got != "GET /imports/preview?asin=b0lamp0001&marketplace=US" {
		t.Errorf("path = %q", got)
	}
}

func TestAPIClientAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	client.token = "my-secret-token"

	if _, err := client.get(ctx, "/health"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.requests[0].Auth != "Bearer my-secret-token" {
		t.Errorf("auth = %q, want 'Bearer my-secret-token'", ts.requests[0].Auth)
	}
}

func TestAPIClient_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	_, err := ts.client().get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(403)
		w.Write([]byte(`{"error":{"message":"permission denied: admin role required","type":"permission_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, token: "agent", httpClient: ts.Client()}
	resp, err := client.delete(ctx, "/products/p1")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	err = decodeJSON(resp, nil)
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
	if err.Error() != "server returned 403: permission denied: admin role required" {
		t.Errorf("error = %q", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	if got := colorize(colorGreen, "test message"); got != "test message" {
		t.Errorf("result = %q, want %q", got, "test message")
	}
	if got := statusLabel(knowledge.StatusSent); got != "sent   " {
		t.Errorf("statusLabel = %q", got)
	}

	noColor = false
	if got := colorize(colorGreen, "test message"); !strings.Contains(got, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"truncated text", 9, "truncated..."},
		{"ワイヤレスイヤホン", 5, "ワイヤレス..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a, ,b ,c")
	if strings.Join(got, "|") != "a|b|c" {
		t.Errorf("splitList = %v", got)
	}
	if splitList("") != nil {
		t.Error("empty input should give nil")
	}
}

func TestLogLevel(t *testing.T) {
	for in, want := range map[string]string{"debug": "DEBUG", "WARN": "WARN", "error": "ERROR", "info": "INFO", "bogus": "INFO"} {
		if got := logLevel(in).String(); got != want {
			t.Errorf("logLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4000
	cfg.LLM.APIKey = "sk-hidden"

	found := false
	for _, k := range config.ShowAll(cfg) {
		if k.Key == "server.port" && k.Value == "4000" {
			found = true
		}
		if k.Value == "sk-hidden" {
			t.Errorf("secret shown under %s", k.Key)
		}
	}
	if !found {
		t.Error("expected to find server.port=4000 in ShowAll output")
	}
}
