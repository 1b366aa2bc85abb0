package engine

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System and User build the two message kinds every prompt in this module uses.
func System(content string) Message { return Message{Role: "system", Content: content} }

func User(content string) Message { return Message{Role: "user", Content: content} }

// Schema describes the expected JSON output structure for structured chat
// responses. It marshals to a JSON Schema document.
type Schema struct {
	Type       string                    `json:"type"`
	Properties map[string]SchemaProperty `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// SchemaProperty describes a single field within a Schema. Items describes
// array elements; Properties and Required describe nested objects.
type SchemaProperty struct {
	Type        string                    `json:"type"`
	Description string                    `json:"description,omitempty"`
	Enum        []string                  `json:"enum,omitempty"`
	Items       *SchemaProperty           `json:"items,omitempty"`
	Properties  map[string]SchemaProperty `json:"properties,omitempty"`
	Required    []string                  `json:"required,omitempty"`
}

// StringArray is shorthand for an array-of-strings property.
func StringArray(description string) SchemaProperty {
	return SchemaProperty{Type: "array", Description: description, Items: &SchemaProperty{Type: "string"}}
}
