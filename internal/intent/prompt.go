package intent

import (
	"fmt"

	"github.com/kalambet/replydesk/internal/engine"
)

const systemPrompt = `Act as a Senior Amazon Customer Service Manager. Analyze the customer email given by the user. Your output must be ONLY a single valid JSON object that conforms to the provided schema. Do not include any other text, prose, or markdown.

Tasks:
1. Identify the core intent.
2. Detect the language.
3. Determine the sentiment.
4. Extract the key technical issues.
5. Determine the strategy. Choose one of these six:
   - "Empathetic": the customer needs emotional support or an apology
   - "Solution": a standard technical fix or instruction
   - "Replacement": a hardware defect is suspected, offer an exchange
   - "Refund": the customer wants money back or is angry
   - "Brand": questions about the brand story, design or values
   - "Engineer": deep technical specs, protocols, open source

Critical reasoning:
- If the customer complains about battery or connection, prefer "Solution" first (suggest settings changes).
- Only choose "Refund" on an explicit request or a very hostile tone.
- If the customer questions specs or protocols, choose "Engineer".
- If the customer claims it is "broken" but stays polite, choose "Replacement".`

// BuildPrompt constructs the chat messages for classifying emailBody.
func BuildPrompt(emailBody string) []engine.Message {
	return []engine.Message{
		engine.System(systemPrompt),
		engine.User(fmt.Sprintf("Email:\n\"\"\"\n%s\n\"\"\"", emailBody)),
	}
}

// analysisSchema is the JSON schema the model answer must satisfy.
func analysisSchema() *engine.Schema {
	strategies := make([]string, len(Strategies))
	for i, s := range Strategies {
		strategies[i] = string(s)
	}
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"intent":             {Type: "string", Enum: Intents, Description: "Core intent of the email"},
			"language":           {Type: "string", Description: "Language the email is written in"},
			"sentiment":          {Type: "string", Enum: Sentiments},
			"key_issues":         engine.StringArray("Key technical issues raised"),
			"suggested_strategy": {Type: "string", Enum: strategies},
		},
		Required: []string{"intent", "language", "sentiment", "key_issues", "suggested_strategy"},
	}
}
