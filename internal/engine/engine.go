package engine

import (
	"context"
	"errors"
	"time"
)

// ErrMissingAPIKey is returned by hosted providers when no API key is
// configured. Startup never fails on it; callers fall back instead.
var ErrMissingAPIKey = errors.New("llm api key is not configured")

// Engine abstracts a language-model backend (a hosted provider, an
// OpenAI-compatible server or a local Ollama). The intent classifier,
// draft composer, translator and catalog importer use this interface
// instead of depending on a concrete client.
type Engine interface {
	// Chat sends messages to the given model and returns the assistant's response.
	// When jsonSchema is non-nil, structured JSON output is requested.
	Chat(ctx context.Context, model string, messages []Message, jsonSchema *Schema) (string, error)

	// IsRunning reports whether the backend is reachable and usable.
	IsRunning(ctx context.Context) bool
}

// timeoutEngine bounds every Chat call.
type timeoutEngine struct {
	next    Engine
	timeout time.Duration
}

// WithTimeout wraps e so that every Chat call runs under its own deadline.
// A non-positive timeout returns e unchanged.
func WithTimeout(e Engine, timeout time.Duration) Engine {
	if timeout <= 0 {
		return e
	}
	return &timeoutEngine{next: e, timeout: timeout}
}

func (t *timeoutEngine) Chat(ctx context.Context, model string, messages []Message, jsonSchema *Schema) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Chat(ctx, model, messages, jsonSchema)
}

func (t *timeoutEngine) IsRunning(ctx context.Context) bool {
	return t.next.IsRunning(ctx)
}
