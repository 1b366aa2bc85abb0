package composer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kalambet/replydesk/internal/engine"
	"github.com/kalambet/replydesk/internal/intent"
	"github.com/kalambet/replydesk/internal/knowledge"
	"github.com/kalambet/replydesk/internal/retrieval"
)

type mockChatter struct {
	response string
	err      error
	messages []engine.Message
	op       string
}

func (m *mockChatter) Chat(ctx context.Context, _ string, messages []engine.Message, _ *engine.Schema) (string, error) {
	m.messages = messages
	m.op = engine.Operation(ctx)
	return m.response, m.err
}

func tablet() knowledge.Product {
	return knowledge.Product{
		ID:          "p4",
		Name:        "Gtheos 10 inch Android Tablet",
		ModelNumber: "TAB-10",
		Marketplace: knowledge.MarketJP,
		Policy:      "30日間返品可能",
	}
}

func request() Request {
	return Request{
		CustomerName: "Sato",
		EmailBody:    "画面がちらつきます",
		Product:      tablet(),
		Context: []retrieval.Result{
			{Source: retrieval.SourceExpertQA, Content: "[Expert Answer by Engineer]: Disable adaptive brightness.", RelevanceScore: 0.99},
			{Source: retrieval.SourcePolicy, Content: "30日間返品可能", RelevanceScore: 0.5},
		},
		Analysis: intent.Analysis{SuggestedStrategy: intent.StrategySolution},
		Tone:     intent.StrategyEmpathetic,
	}
}

func TestCompose(t *testing.T) {
	mock := &mockChatter{
		response: `{"subject":"画面のちらつきについて","working_body":"佐藤様，您好","target_body":"佐藤様\n\nお問い合わせありがとうございます。","tone":"Empathetic"}`,
	}
	c := New(mock, "m", "")
	d := c.Compose(context.Background(), request())

	if d.Degraded {
		t.Fatal("draft should not be degraded")
	}
	if d.Subject != "画面のちらつきについて" || !strings.HasPrefix(d.TargetBody, "佐藤様") {
		t.Errorf("draft = %+v", d)
	}
	if mock.op != "compose" {
		t.Errorf("operation = %q, want compose", mock.op)
	}
}

func TestCompose_ToneDefaultsToRequest(t *testing.T) {
	mock := &mockChatter{response: `{"subject":"s","working_body":"w","target_body":"t"}`}
	d := New(mock, "m", "").Compose(context.Background(), request())
	if d.Tone != "Empathetic" {
		t.Errorf("Tone = %q, want Empathetic", d.Tone)
	}
}

func TestCompose_Fallback(t *testing.T) {
	tests := []struct {
		name string
		mock *mockChatter
	}{
		{"transport", &mockChatter{err: errors.New("dial tcp: refused")}},
		{"missing key", &mockChatter{err: engine.ErrMissingAPIKey}},
		{"timeout", &mockChatter{err: context.DeadlineExceeded}},
		{"malformed", &mockChatter{response: "Dear customer, ..."}},
		{"missing target", &mockChatter{response: `{"subject":"s","working_body":"w"}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(tt.mock, "m", "").Compose(context.Background(), request())
			if d != Fallback(knowledge.MarketJP) {
				t.Errorf("Compose() = %+v, want fallback", d)
			}
		})
	}
}

func TestFallback(t *testing.T) {
	d := Fallback(knowledge.MarketDE)
	if d.Subject != "Re: Inquiry" || d.Tone != "Basic" || !d.Degraded {
		t.Errorf("Fallback = %+v", d)
	}
	if !strings.HasPrefix(d.TargetBody, "(API Error. Simulation for DE)") {
		t.Errorf("TargetBody = %q", d.TargetBody)
	}
	if !strings.Contains(d.WorkingBody, "30天退货") {
		t.Errorf("WorkingBody = %q", d.WorkingBody)
	}
}

func TestCompose_MismatchIsNormalDraft(t *testing.T) {
	mock := &mockChatter{
		response: `{"subject":"Re","working_body":"Error: Product Mismatch","target_body":"Error: Product Mismatch"}`,
	}
	d := New(mock, "m", "").Compose(context.Background(), request())
	if d.Degraded {
		t.Error("mismatch is not a failure")
	}
	if !d.IsMismatch() {
		t.Error("IsMismatch() = false")
	}
	if (Draft{WorkingBody: "fine", TargetBody: "fine"}).IsMismatch() {
		t.Error("IsMismatch() = true for a normal draft")
	}
}

func TestBuildPrompt(t *testing.T) {
	msgs := BuildPrompt(request(), "Chinese")
	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}
	system, user := msgs[0].Content, msgs[1].Content

	for _, want := range []string{
		"You are Alex, a Warm & Caring Customer Success Manager.",
		"Tone: Highly empathetic, soft, apologetic, and human.",
		"TARGET MARKETPLACE: JP",
		"Japanese (Strict Business Keigo/Sonkeigo)",
		"works in Chinese",
		`"Gtheos 10 inch Android Tablet"`,
		MismatchMarker,
		"xxx様",
		"Sehr geehrte(r)",
		"NO meta-commentary",
	} {
		if !strings.Contains(system, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	for _, want := range []string{
		"Customer Name: Sato",
		"Model: TAB-10",
		"画面がちらつきます",
		"Strategy: Solution",
		"[GOLD STANDARD ANSWER - PRIORITY 1]: [Expert Answer by Engineer]: Disable adaptive brightness.",
		"[Source: Policy] 30日間返品可能",
	} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}
}

func TestBuildPrompt_WorkingLanguage(t *testing.T) {
	msgs := BuildPrompt(request(), "English")
	if !strings.Contains(msgs[0].Content, `"working_body": the email in English`) {
		t.Error("working language not applied")
	}
}

func TestPersonaFor(t *testing.T) {
	tests := []struct {
		tone intent.Strategy
		role string
	}{
		{intent.StrategySolution, "Technical Support Specialist"},
		{intent.StrategyReplacement, "Warranty & Quality Assurance Representative"},
		{intent.StrategyRefund, "Senior After-Sales Agent"},
		{intent.StrategyBrand, "Brand Ambassador & Product Designer"},
		{intent.StrategyEngineer, "Senior Hardware Engineer"},
		{"Basic", "Senior Product Specialist"},
		{"", "Senior Product Specialist"},
	}
	for _, tt := range tests {
		p := personaFor(tt.tone)
		if !strings.Contains(p.Role, tt.role) || !strings.HasPrefix(p.Role, "You are Alex") {
			t.Errorf("personaFor(%q).Role = %q", tt.tone, p.Role)
		}
	}
	if personaFor("unknown").Tone != "Tone: Professional, Helpful, and Knowledgeable." {
		t.Error("default tone line wrong")
	}
}

func TestContextBlock(t *testing.T) {
	got := ContextBlock([]retrieval.Result{
		{Source: retrieval.SourceManual, Content: "a..."},
		{Source: retrieval.SourceListing, Content: "b"},
	})
	want := "[Source: Manual] a...\n[Source: Listing] b"
	if got != want {
		t.Errorf("ContextBlock = %q, want %q", got, want)
	}
	if ContextBlock(nil) != "" {
		t.Error("empty context should render empty")
	}
}

func TestNew_DefaultWorkingLanguage(t *testing.T) {
	if got := New(&mockChatter{}, "m", " ").WorkingLanguage(); got != "Chinese" {
		t.Errorf("WorkingLanguage = %q", got)
	}
}
