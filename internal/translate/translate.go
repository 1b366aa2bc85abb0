// Package translate keeps the customer-facing body of a draft in sync with
// the agent's edited working body.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/replydesk/internal/engine"
	"github.com/kalambet/replydesk/internal/knowledge"
)

// Sentinel results. Resync returns one of these instead of an error.
const (
	Unavailable = "Translation Service Unavailable"
	MissingKey  = "Error: API Key missing for translation."
	Empty       = "Translation Error"
)

// IsSentinel reports whether s is a failure sentinel rather than a translation.
func IsSentinel(s string) bool {
	switch s {
	case Unavailable, MissingKey, Empty:
		return true
	}
	return false
}

const promptTemplate = `You are a professional translator for Amazon Customer Service.

INPUT TEXT (%s):
"""
%s
"""
TARGET LANGUAGE: %s
TARGET MARKETPLACE: %s
TONE: %s

Task: Translate the input text into the target language.

Rules:
1. Maintain the professional, specific tone required for %s (e.g. Keigo for JP).
2. Keep the formatting (newlines and paragraphs) of the input.
3. Do NOT add meta-comments like "Here is the translation". Output just the translated text.`

// Chatter is the slice of engine.Engine the synchronizer needs.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, jsonSchema *engine.Schema) (string, error)
}

// Synchronizer re-translates working bodies into the marketplace language.
type Synchronizer struct {
	client          Chatter
	model           string
	workingLanguage string
}

// New creates a Synchronizer. workingLanguage names the input language.
func New(client Chatter, model, workingLanguage string) *Synchronizer {
	if strings.TrimSpace(workingLanguage) == "" {
		workingLanguage = "Chinese"
	}
	return &Synchronizer{client: client, model: model, workingLanguage: workingLanguage}
}

// BuildPrompt constructs the translation request.
func BuildPrompt(workingBody, workingLanguage string, m knowledge.Marketplace, tone string) []engine.Message {
	return []engine.Message{engine.User(fmt.Sprintf(promptTemplate,
		workingLanguage, workingBody, m.TargetLanguage(), m, tone, m))}
}

// Resync translates workingBody for marketplace m. It never returns an
// error; failures come back as one of the sentinel strings.
func (s *Synchronizer) Resync(ctx context.Context, workingBody string, m knowledge.Marketplace, tone string) string {
	ctx = engine.WithOperation(ctx, "translate")
	out, err := s.client.Chat(ctx, s.model, BuildPrompt(workingBody, s.workingLanguage, m, tone), nil)
	switch {
	case errors.Is(err, engine.ErrMissingAPIKey):
		slog.Warn("translation skipped, no api key")
		return MissingKey
	case errors.Is(err, engine.ErrEmptyResponse):
		slog.Warn("translation returned no text")
		return Empty
	case err != nil:
		slog.Warn("translation failed", "error", err, "marketplace", m)
		return Unavailable
	}
	if strings.TrimSpace(out) == "" {
		return Empty
	}
	return strings.TrimSpace(out)
}
