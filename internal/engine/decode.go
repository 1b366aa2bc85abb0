package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("empty response from model")

// DecodeJSON extracts the JSON object from a model response, validates it
// against schema (when non-nil) and unmarshals it into out. Markdown code
// fences are stripped, and when the response carries prose around the
// object the outermost {...} is used.
func DecodeJSON(raw string, schema *Schema, out any) error {
	doc, err := extractJSON(raw)
	if err != nil {
		return err
	}

	if schema != nil {
		result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(doc))
		if err != nil {
			return fmt.Errorf("validating response: %w", err)
		}
		if !result.Valid() {
			msgs := make([]string, 0, len(result.Errors()))
			for _, e := range result.Errors() {
				msgs = append(msgs, e.String())
			}
			return fmt.Errorf("response does not match schema: %s", strings.Join(msgs, "; "))
		}
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func extractJSON(raw string) (any, error) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return nil, ErrEmptyResponse
	}
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```JSON")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var doc any
	if err := json.Unmarshal([]byte(cleaned), &doc); err == nil {
		return doc, nil
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &doc); err == nil {
			return doc, nil
		}
	}
	return nil, fmt.Errorf("invalid JSON in model response")
}
