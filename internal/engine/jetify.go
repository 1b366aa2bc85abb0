package engine

import (
	"context"
	"strings"

	anthropicclient "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	jetai "go.jetify.com/ai"
	jetapi "go.jetify.com/ai/api"
	jetanthropic "go.jetify.com/ai/provider/anthropic"
	jetopenai "go.jetify.com/ai/provider/openai"
)

const defaultMaxTokens = 2048

// HostedEngine calls a hosted provider through the jetify AI SDK.
type HostedEngine struct {
	maxTokens int
	newModel  func(modelID string) jetapi.LanguageModel
}

// NewAnthropicEngine builds a HostedEngine on the Anthropic Messages API.
// An empty apiKey yields an engine whose calls return ErrMissingAPIKey.
func NewAnthropicEngine(apiKey, baseURL string, maxTokens int) *HostedEngine {
	e := &HostedEngine{maxTokens: orDefault(maxTokens)}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return e
	}

	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(apiKey),
		anthropicoption.WithMaxRetries(0),
	}
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		opts = append(opts, anthropicoption.WithBaseURL(strings.TrimRight(baseURL, "/")))
	}
	client := anthropicclient.NewClient(opts...)
	e.newModel = func(modelID string) jetapi.LanguageModel {
		return jetanthropic.NewLanguageModel(modelID, jetanthropic.WithClient(client))
	}
	return e
}

// NewOpenAIEngine builds a HostedEngine on the OpenAI API.
func NewOpenAIEngine(apiKey, baseURL string, maxTokens int) *HostedEngine {
	e := &HostedEngine{maxTokens: orDefault(maxTokens)}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return e
	}

	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(apiKey),
		openaioption.WithMaxRetries(0),
	}
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		opts = append(opts, openaioption.WithBaseURL(normalizeCompatBaseURL(baseURL)+"/v1"))
	}
	client := openaiclient.NewClient(opts...)
	e.newModel = func(modelID string) jetapi.LanguageModel {
		return jetopenai.NewLanguageModel(modelID, jetopenai.WithClient(client))
	}
	return e
}

func (e *HostedEngine) Chat(ctx context.Context, model string, messages []Message, jsonSchema *Schema) (string, error) {
	if e.newModel == nil {
		return "", ErrMissingAPIKey
	}
	if jsonSchema != nil {
		var err error
		if messages, err = withSchemaInstruction(messages, jsonSchema); err != nil {
			return "", err
		}
	}

	resp, err := jetai.GenerateText(
		ctx,
		toPrompt(messages),
		jetai.WithModel(e.newModel(model)),
		jetai.WithMaxOutputTokens(e.maxTokens),
	)
	if err != nil {
		return "", err
	}
	return responseText(resp)
}

// IsRunning reports whether the engine has credentials. Hosted providers
// are not probed over the network.
func (e *HostedEngine) IsRunning(_ context.Context) bool {
	return e.newModel != nil
}

func toPrompt(messages []Message) []jetapi.Message {
	out := make([]jetapi.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			out = append(out, &jetapi.SystemMessage{Content: m.Content})
			continue
		}
		out = append(out, &jetapi.UserMessage{Content: jetapi.ContentFromText(m.Content)})
	}
	return out
}

func responseText(resp *jetapi.Response) (string, error) {
	if resp == nil {
		return "", ErrEmptyResponse
	}
	var full strings.Builder
	for _, block := range resp.Content {
		tb, ok := block.(*jetapi.TextBlock)
		if !ok || tb.Text == "" {
			continue
		}
		full.WriteString(tb.Text)
	}
	if strings.TrimSpace(full.String()) == "" {
		return "", ErrEmptyResponse
	}
	return full.String(), nil
}

func orDefault(maxTokens int) int {
	if maxTokens <= 0 {
		return defaultMaxTokens
	}
	return maxTokens
}
