package composer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/replydesk/internal/engine"
	"github.com/kalambet/replydesk/internal/intent"
	"github.com/kalambet/replydesk/internal/knowledge"
	"github.com/kalambet/replydesk/internal/retrieval"
)

// MismatchMarker is returned by the model in both bodies when the email
// concerns a different product than the selected one.
const MismatchMarker = "Error: Product Mismatch"

const defaultWorkingLanguage = "Chinese"

// Request carries everything needed to draft one reply.
type Request struct {
	CustomerName string
	EmailBody    string
	Product      knowledge.Product
	Context      []retrieval.Result
	Analysis     intent.Analysis
	Tone         intent.Strategy
}

// Draft is a bilingual reply. WorkingBody is for the agent; TargetBody is
// what the customer receives.
type Draft struct {
	Subject     string `json:"subject"`
	WorkingBody string `json:"working_body"`
	TargetBody  string `json:"target_body"`
	Tone        string `json:"tone"`
	Degraded    bool   `json:"degraded,omitempty"`
}

// IsMismatch reports whether the model refused to draft because the email
// is about another product.
func (d Draft) IsMismatch() bool {
	return strings.Contains(d.WorkingBody, MismatchMarker) || strings.Contains(d.TargetBody, MismatchMarker)
}

// Chatter is the slice of engine.Engine the composer needs.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, jsonSchema *engine.Schema) (string, error)
}

// Composer drafts replies with a language model.
type Composer struct {
	client          Chatter
	model           string
	workingLanguage string
}

// New creates a Composer. An empty workingLanguage defaults to Chinese.
func New(client Chatter, model, workingLanguage string) *Composer {
	if strings.TrimSpace(workingLanguage) == "" {
		workingLanguage = defaultWorkingLanguage
	}
	return &Composer{client: client, model: model, workingLanguage: workingLanguage}
}

// WorkingLanguage is the language of the agent-facing body.
func (c *Composer) WorkingLanguage() string { return c.workingLanguage }

// Compose drafts a reply. Any failure yields Fallback for the product's
// marketplace; Compose never returns an error.
func (c *Composer) Compose(ctx context.Context, req Request) Draft {
	ctx = engine.WithOperation(ctx, "compose")
	schema := draftSchema()
	raw, err := c.client.Chat(ctx, c.model, BuildPrompt(req, c.workingLanguage), schema)
	if err != nil {
		slog.Warn("draft generation failed, using fallback", "error", err, "product", req.Product.ID)
		return Fallback(req.Product.Marketplace)
	}

	var d Draft
	if err := engine.DecodeJSON(raw, schema, &d); err != nil {
		slog.Warn("invalid draft from model, using fallback", "error", err, "product", req.Product.ID)
		return Fallback(req.Product.Marketplace)
	}
	d.Degraded = false
	if d.Tone == "" {
		d.Tone = string(req.Tone)
	}
	return d
}

// Fallback is the canned draft used when the model cannot be reached.
func Fallback(m knowledge.Marketplace) Draft {
	return Draft{
		Subject:     "Re: Inquiry",
		WorkingBody: "（API错误或离线）\n您好，\n我明白您遇到了问题。请尝试充电2小时。\n如果依然无效，我们支持30天退货。\n\n客服 Alex",
		TargetBody: fmt.Sprintf("(API Error. Simulation for %s)\n\nHi,\n\nI see you are having issues. "+
			"Please try charging it for 2 hours. If that fails, you can return it within 30 days.\n\nBest,\nAlex", m),
		Tone:     "Basic",
		Degraded: true,
	}
}
