package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/replydesk/internal/engine"
	"github.com/kalambet/replydesk/internal/knowledge"
)

const crawlPrompt = `Act as an advanced Amazon data scraper and content manager.

Task: simulate visiting %s and retrieve the exact product details found on the page.

ASIN: "%s"
Marketplace: "%s" (Domain: %s)

INSTRUCTIONS:
1. If this is a real product you know, provide the REAL data.
2. If it is a new or unknown product, generate HIGHLY REALISTIC data based on the ASIN structure and typical category patterns for this marketplace.

CRITICAL EXTRACTION FIELDS:
- model_number: the "Item model number" row of the "Product Information" / "Technical Details" table.
  - For Gtheos/Nubwo style headsets the model is often "CT300", "Captain 300" or "GTHEOS-24G". If it looks like a "Captain" series headset, output "CT300" unless stated otherwise.
  - For Japan (JP) look for "型番" (e.g. "T8015"). For Germany (DE) look for "Modellnummer".
- name: the full product title.
- features: the 5 main "About this item" bullet points.
- manual_content: summarize the key user guide information (pairing, charging, reset).
- troubleshooting: a QA list for common defects.
- expert_knowledge: 2-3 common customer questions with expert technical answers.
- policy: the standard return policy for this marketplace.
- main_image: a realistic Amazon image URL (starting with https://m.media-amazon.com/) if known, otherwise leave it empty.

Output ONLY a single JSON object that conforms to the provided schema.`

// Chatter is the slice of engine.Engine the crawl needs.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, jsonSchema *engine.Schema) (string, error)
}

// ImageSource maps ASINs to known images.
type ImageSource interface {
	KnownImage(asin string) (string, bool)
}

// ModelLookup asks a language model to reconstruct a listing page.
type ModelLookup struct {
	client Chatter
	model  string
	images ImageSource
	now    func() time.Time
}

// NewModelLookup creates a ModelLookup. images may be nil.
func NewModelLookup(client Chatter, model string, images ImageSource) *ModelLookup {
	return &ModelLookup{client: client, model: model, images: images, now: time.Now}
}

type crawledQA struct {
	Question string           `json:"question"`
	Answer   string           `json:"answer"`
	Keywords []string         `json:"keywords"`
	Author   knowledge.Author `json:"author"`
}

type crawledListing struct {
	Name            string      `json:"name"`
	ModelNumber     string      `json:"model_number"`
	MainImage       string      `json:"main_image"`
	Features        []string    `json:"features"`
	ManualContent   string      `json:"manual_content"`
	Troubleshooting string      `json:"troubleshooting"`
	Policy          string      `json:"policy"`
	ExpertKnowledge []crawledQA `json:"expert_knowledge"`
}

func listingSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"name":            {Type: "string"},
			"model_number":    {Type: "string", Description: "The specific model ID (e.g. CT300, T8015)"},
			"main_image":      {Type: "string", Description: "URL of the main product image"},
			"features":        engine.StringArray("About this item bullet points"),
			"manual_content":  {Type: "string"},
			"troubleshooting": {Type: "string"},
			"policy":          {Type: "string"},
			"expert_knowledge": {
				Type: "array",
				Items: &engine.SchemaProperty{
					Type: "object",
					Properties: map[string]engine.SchemaProperty{
						"question": {Type: "string"},
						"answer":   {Type: "string"},
						"keywords": engine.StringArray(""),
						"author":   {Type: "string", Enum: []string{string(knowledge.AuthorEngineer), string(knowledge.AuthorCustomerService)}},
					},
					Required: []string{"question", "answer"},
				},
			},
		},
		Required: []string{"name", "features", "manual_content", "troubleshooting", "policy"},
	}
}

// BuildPrompt constructs the crawl request for asin on m.
func BuildPrompt(asin string, m knowledge.Marketplace) []engine.Message {
	return []engine.Message{engine.User(fmt.Sprintf(crawlPrompt, m.ListingURL(asin), asin, m, m.Domain()))}
}

func (l *ModelLookup) Lookup(ctx context.Context, asin string, m knowledge.Marketplace) (Listing, error) {
	ctx = engine.WithOperation(ctx, "import")
	schema := listingSchema()
	raw, err := l.client.Chat(ctx, l.model, BuildPrompt(asin, m), schema)
	if err != nil {
		return Listing{}, fmt.Errorf("crawling %s: %w", asin, err)
	}

	var c crawledListing
	if err := engine.DecodeJSON(raw, schema, &c); err != nil {
		return Listing{}, fmt.Errorf("crawling %s: %w", asin, err)
	}

	now := l.now().UTC()
	listing := Listing{
		Name:            c.Name,
		ModelNumber:     c.ModelNumber,
		Image:           c.MainImage,
		Features:        c.Features,
		ManualContent:   c.ManualContent,
		Troubleshooting: c.Troubleshooting,
		Policy:          c.Policy,
	}
	for i, qa := range c.ExpertKnowledge {
		author := qa.Author
		if author == "" {
			author = knowledge.AuthorEngineer
		}
		listing.ExpertKnowledge = append(listing.ExpertKnowledge, knowledge.QAPair{
			ID:        fmt.Sprintf("auto-qa-%d-%d", now.UnixMilli(), i),
			Question:  qa.Question,
			Answer:    qa.Answer,
			Keywords:  knowledge.CleanKeywords(qa.Keywords),
			Author:    author,
			UpdatedAt: now,
		})
	}

	listing.Image = l.resolveImage(asin, listing.Image)
	return listing, nil
}

// resolveImage prefers a known image, then the model's, then the legacy
// image endpoint for B0 ASINs.
func (l *ModelLookup) resolveImage(asin, fromModel string) string {
	if l.images != nil {
		if img, ok := l.images.KnownImage(asin); ok {
			return img
		}
	}
	if strings.TrimSpace(fromModel) == "" && strings.HasPrefix(asin, "B0") {
		return FallbackImageURL(asin)
	}
	return fromModel
}

// FallbackImageURL is the legacy image endpoint for an ASIN.
func FallbackImageURL(asin string) string {
	return fmt.Sprintf("https://images.na.ssl-images-amazon.com/images/P/%s.01._SCMZZZZZZZ_.jpg", asin)
}
