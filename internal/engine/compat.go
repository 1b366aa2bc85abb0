package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CompatEngine calls any server implementing the OpenAI chat completions
// API (OpenRouter, vLLM, LM Studio, mlx-lm).
type CompatEngine struct {
	baseURL    string
	apiKey     string
	maxTokens  int
	httpClient *http.Client
}

// NewCompatEngine creates a CompatEngine. baseURL may carry a trailing /v1.
func NewCompatEngine(baseURL, apiKey string, maxTokens int) *CompatEngine {
	return &CompatEngine{
		baseURL:    normalizeCompatBaseURL(baseURL),
		apiKey:     strings.TrimSpace(apiKey),
		maxTokens:  maxTokens,
		httpClient: &http.Client{},
	}
}

type compatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type compatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (e *CompatEngine) Chat(ctx context.Context, model string, messages []Message, jsonSchema *Schema) (string, error) {
	if e.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	cr := compatRequest{Model: model, Messages: messages, MaxTokens: e.maxTokens}
	if jsonSchema != nil {
		msgs, err := withSchemaInstruction(messages, jsonSchema)
		if err != nil {
			return "", err
		}
		cr.Messages = msgs
		cr.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(cr)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading chat response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("chat: status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result compatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	if result.Error != nil && result.Error.Message != "" {
		return "", fmt.Errorf("chat: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return result.Choices[0].Message.Content, nil
}

// IsRunning probes GET /v1/models.
func (e *CompatEngine) IsRunning(ctx context.Context) bool {
	if e.apiKey == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func normalizeCompatBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return "https://api.openai.com"
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimSuffix(strings.TrimRight(base, "/"), "/v1")
	}
	parsed.Path = strings.TrimSuffix(strings.TrimRight(parsed.Path, "/"), "/v1")
	return strings.TrimRight(parsed.String(), "/")
}

// withSchemaInstruction appends the JSON schema to the system message so
// that providers without native schema support still see the contract.
func withSchemaInstruction(messages []Message, schema *Schema) ([]Message, error) {
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encoding schema: %w", err)
	}
	instr := "Respond with a single JSON object that validates against this JSON Schema:\n" + string(b)

	out := make([]Message, len(messages))
	copy(out, messages)
	for i, m := range out {
		if m.Role == "system" {
			out[i].Content = m.Content + "\n\n" + instr
			return out, nil
		}
	}
	return append([]Message{System(instr)}, out...), nil
}
