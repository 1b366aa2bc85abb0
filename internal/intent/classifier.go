package intent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kalambet/replydesk/internal/engine"
)

// Chatter is the slice of engine.Engine the classifier needs.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, jsonSchema *engine.Schema) (string, error)
}

// Classifier uses a language model to classify customer emails.
type Classifier struct {
	client Chatter
	model  string
}

// NewClassifier creates a Classifier using the given client and model name.
func NewClassifier(client Chatter, model string) *Classifier {
	return &Classifier{client: client, model: model}
}

// Analyze classifies emailBody. On any failure (transport error, timeout,
// missing key, malformed or schema-violating output) it returns Fallback();
// drafting must never block on classification.
func (c *Classifier) Analyze(ctx context.Context, emailBody string) Analysis {
	if strings.TrimSpace(emailBody) == "" {
		return Fallback()
	}

	ctx = engine.WithOperation(ctx, "classify")
	schema := analysisSchema()
	raw, err := c.client.Chat(ctx, c.model, BuildPrompt(emailBody), schema)
	if err != nil {
		slog.Warn("intent classification failed, using fallback", "error", err)
		return Fallback()
	}

	var result Analysis
	if err := engine.DecodeJSON(raw, schema, &result); err != nil {
		slog.Warn("invalid classification from model, using fallback", "error", err, "response", raw)
		return Fallback()
	}
	result.Degraded = false
	if result.KeyIssues == nil {
		result.KeyIssues = []string{}
	}
	return result
}
