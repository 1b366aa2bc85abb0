package engine

import (
	"fmt"
	"strings"
	"time"
)

// Provider names accepted by New.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderCompat    = "openai-compatible"
	ProviderOllama    = "ollama"
)

// Config selects and configures a backend.
type Config struct {
	Provider  string
	BaseURL   string
	APIKey    string
	MaxTokens int
	Timeout   time.Duration
}

// NormalizeProvider folds spelling variants ("OpenAI_Compatible") to the
// canonical provider name.
func NormalizeProvider(raw string) string {
	p := strings.ToLower(strings.TrimSpace(raw))
	p = strings.ReplaceAll(p, "_", "-")
	p = strings.ReplaceAll(p, " ", "")
	if p == "openaicompatible" {
		return ProviderCompat
	}
	return p
}

// New returns the Engine for cfg.Provider, wrapped with the call timeout.
func New(cfg Config) (Engine, error) {
	var e Engine
	switch NormalizeProvider(cfg.Provider) {
	case ProviderAnthropic, "":
		e = NewAnthropicEngine(cfg.APIKey, cfg.BaseURL, cfg.MaxTokens)
	case ProviderOpenAI:
		e = NewOpenAIEngine(cfg.APIKey, cfg.BaseURL, cfg.MaxTokens)
	case ProviderCompat:
		e = NewCompatEngine(cfg.BaseURL, cfg.APIKey, cfg.MaxTokens)
	case ProviderOllama:
		e = NewOllamaEngine(cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	return WithTimeout(e, cfg.Timeout), nil
}
