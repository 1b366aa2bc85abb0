package composer

import (
	"fmt"
	"strings"

	"github.com/kalambet/replydesk/internal/engine"
	"github.com/kalambet/replydesk/internal/retrieval"
)

const systemTemplate = `%s
Your goal is to draft a PROFESSIONAL EMAIL REPLY for an Amazon customer.

TARGET MARKETPLACE: %s
TARGET LANGUAGE: %s

IMPORTANT: The person reading your output is a customer service agent who works in %s and DOES NOT speak %s.
You must provide TWO versions of the email body:
1. "working_body": the email in %s, so the agent understands the logic.
2. "target_body": the actual email in %s to send to the customer.
"subject" is the email subject line in %s.

STRICT OUTPUT FORMAT:
- Pure email content only (Salutation -> Body -> Closing).
- NO meta-commentary.
- Reply with ONLY a single JSON object that conforms to the provided schema.

CRITICAL CONTEXT SAFETY:
1. Context integrity: the customer asks about a specific product type. The knowledge base provided is for: "%s".
   If the customer asks about a different kind of product (for example a tablet while the knowledge base is for headphones), STOP and return "%s" in both body fields.
2. Localization rules for "target_body":
   - JP: Business Japanese (Keigo). Extremely polite. Start with "xxx様".
   - DE: Use "Sehr geehrte(r)..." and "Sie".

STYLE GUIDE:
%s

INSTRUCTIONS:
1. Use the [KNOWLEDGE BASE CONTEXT] to find the specific answer.
2. If the context contains a "[GOLD STANDARD ANSWER]", you MUST use that logic and answer.`

const userTemplate = `Customer Name: %s
Product Name: %s
Model: %s

Customer Email (Input):
"""
%s
"""

Strategy: %s

[KNOWLEDGE BASE CONTEXT]:
%s`

// BuildPrompt constructs the chat messages for drafting a reply.
func BuildPrompt(req Request, workingLanguage string) []engine.Message {
	p := personaFor(req.Tone)
	target := req.Product.Marketplace.TargetLanguage()

	system := fmt.Sprintf(systemTemplate,
		p.Role,
		req.Product.Marketplace, target,
		workingLanguage, target,
		workingLanguage, target, target,
		req.Product.Name, MismatchMarker,
		p.Tone,
	)
	user := fmt.Sprintf(userTemplate,
		req.CustomerName,
		req.Product.Name,
		req.Product.ModelNumber,
		req.EmailBody,
		req.Analysis.SuggestedStrategy,
		ContextBlock(req.Context),
	)
	return []engine.Message{engine.System(system), engine.User(user)}
}

// ContextBlock renders retrieval results one per line. Expert answers are
// flagged as the authoritative source.
func ContextBlock(results []retrieval.Result) string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		if r.Source == retrieval.SourceExpertQA {
			lines = append(lines, "[GOLD STANDARD ANSWER - PRIORITY 1]: "+r.Content)
			continue
		}
		lines = append(lines, fmt.Sprintf("[Source: %s] %s", r.Source, r.Content))
	}
	return strings.Join(lines, "\n")
}

func draftSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"subject":      {Type: "string", Description: "The email subject line in the target language"},
			"working_body": {Type: "string", Description: "The draft in the agent's working language"},
			"target_body":  {Type: "string", Description: "The draft in the target language for the customer"},
			"tone":         {Type: "string"},
		},
		Required: []string{"subject", "working_body", "target_body"},
	}
}
