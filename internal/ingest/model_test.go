package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/replydesk/internal/engine"
	"github.com/kalambet/replydesk/internal/knowledge"
)

type mockChatter struct {
	response string
	err      error
	messages []engine.Message
	schema   *engine.Schema
	op       string
}

func (m *mockChatter) Chat(ctx context.Context, _ string, messages []engine.Message, schema *engine.Schema) (string, error) {
	m.messages = messages
	m.schema = schema
	m.op = engine.Operation(ctx)
	return m.response, m.err
}

type mapImages map[string]string

func (m mapImages) KnownImage(asin string) (string, bool) {
	img, ok := m[asin]
	return img, ok
}

const crawledJSON = `{
  "name": "Wireless Gaming Headset",
  "model_number": "CT300",
  "main_image": "https://m.media-amazon.com/images/I/model.jpg",
  "features": ["2.4G wireless", "40h battery"],
  "manual_content": "Hold power for 5s to pair.",
  "troubleshooting": "No sound: check the dongle.",
  "policy": "30-day returns.",
  "expert_knowledge": [
    {"question": "Works on PS5?", "answer": "Yes, via the dongle.", "keywords": ["PS5, console", " dongle "]},
    {"question": "Refund?", "answer": "Within 30 days.", "keywords": [], "author": "Customer Service"}
  ]
}`

func fixedLookup(c Chatter, images ImageSource) *ModelLookup {
	l := NewModelLookup(c, "test-model", images)
	l.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return l
}

func TestModelLookup_ParsesListing(t *testing.T) {
	c := &mockChatter{response: "```json\n" + crawledJSON + "\n```"}
	l, err := fixedLookup(c, nil).Lookup(context.Background(), "B0CRAWL001", knowledge.MarketDE)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}

	if c.op != "import" {
		t.Errorf("operation = %q, want import", c.op)
	}
	if c.schema == nil {
		t.Error("schema not passed to model")
	}
	if l.Name != "Wireless Gaming Headset" || l.ModelNumber != "CT300" || len(l.Features) != 2 {
		t.Errorf("listing = %+v", l)
	}
	if len(l.ExpertKnowledge) != 2 {
		t.Fatalf("ExpertKnowledge = %d, want 2", len(l.ExpertKnowledge))
	}

	first := l.ExpertKnowledge[0]
	if first.ID != "auto-qa-1700000000000-0" {
		t.Errorf("ID = %q", first.ID)
	}
	if first.Author != knowledge.AuthorEngineer {
		t.Errorf("default author = %q", first.Author)
	}
	if strings.Join(first.Keywords, "|") != "PS5|console|dongle" {
		t.Errorf("Keywords = %q", first.Keywords)
	}
	if l.ExpertKnowledge[1].Author != knowledge.AuthorCustomerService {
		t.Errorf("author = %q", l.ExpertKnowledge[1].Author)
	}
	if l.ExpertKnowledge[1].ID != "auto-qa-1700000000000-1" {
		t.Errorf("ID = %q", l.ExpertKnowledge[1].ID)
	}
}

func TestModelLookup_Prompt(t *testing.T) {
	msgs := BuildPrompt("B0CRAWL001", knowledge.MarketJP)
	if len(msgs) != 1 {
		t.Fatalf("messages = %d", len(msgs))
	}
	p := msgs[0].Content
	for _, want := range []string{`ASIN: "B0CRAWL001"`, `Marketplace: "JP"`, "amazon.co.jp", "型番"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestModelLookup_ImageResolution(t *testing.T) {
	noImage := strings.Replace(crawledJSON, "https://m.media-amazon.com/images/I/model.jpg", "", 1)

	tests := []struct {
		name     string
		response string
		images   ImageSource
		asin     string
		want     string
	}{
		{"known image wins", crawledJSON, mapImages{"B0CRAWL001": "https://known.jpg"}, "B0CRAWL001", "https://known.jpg"},
		{"known empty mapping wins", crawledJSON, mapImages{"B0CRAWL001": ""}, "B0CRAWL001", ""},
		{"model image", crawledJSON, mapImages{}, "B0CRAWL001", "https://m.media-amazon.com/images/I/model.jpg"},
		{"B0 fallback", noImage, nil, "B0CRAWL001", FallbackImageURL("B0CRAWL001")},
		{"no fallback for other prefixes", noImage, nil, "1234567890", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := fixedLookup(&mockChatter{response: tt.response}, tt.images).Lookup(context.Background(), tt.asin, knowledge.MarketUS)
			if err != nil {
				t.Fatalf("Lookup: %v", err)
			}
			if l.Image != tt.want {
				t.Errorf("Image = %q, want %q", l.Image, tt.want)
			}
		})
	}
}

func TestModelLookup_Errors(t *testing.T) {
	boom := errors.New("boom")
	if _, err := fixedLookup(&mockChatter{err: boom}, nil).Lookup(context.Background(), "B0CRAWL001", knowledge.MarketUS); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if _, err := fixedLookup(&mockChatter{response: `{"name": "missing fields"}`}, nil).Lookup(context.Background(), "B0CRAWL001", knowledge.MarketUS); err == nil {
		t.Error("expected schema validation error")
	}
}
