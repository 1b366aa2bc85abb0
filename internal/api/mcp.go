package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/replydesk/internal/composer"
	"github.com/kalambet/replydesk/internal/intent"
	"github.com/kalambet/replydesk/internal/knowledge"
	"github.com/kalambet/replydesk/internal/retrieval"
	"github.com/kalambet/replydesk/internal/translate"
)

// Drafter produces a bilingual draft.
type Drafter interface {
	Compose(ctx context.Context, req composer.Request) composer.Draft
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Catalog    *knowledge.Store
	Analyzer   Analyzer
	Drafter    Drafter
	Translator Translator
}

// NewMCPServer creates an MCP server with the desk tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"replydesk",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("replydesk: product knowledge and bilingual reply drafting for marketplace customer service."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("search_products",
			mcp.WithDescription("Search the product catalog by name, ASIN or model number."),
			mcp.WithString("query", mcp.Description("Search term; empty lists every product")),
		),
		mcpSearchProducts(deps),
	)

	s.AddTool(
		mcp.NewTool("retrieve_context",
			mcp.WithDescription("Return ranked knowledge snippets (expert answers, manual, troubleshooting, policy) for a customer query."),
			mcp.WithString("product_id", mcp.Description("Catalog product id"), mcp.Required()),
			mcp.WithString("query", mcp.Description("Customer message or question"), mcp.Required()),
		),
		mcpRetrieveContext(deps),
	)

	s.AddTool(
		mcp.NewTool("analyze_ticket",
			mcp.WithDescription("Classify a customer email: intent, language, sentiment, key issues and suggested strategy."),
			mcp.WithString("email_body", mcp.Description("Raw customer email"), mcp.Required()),
		),
		mcpAnalyzeTicket(deps),
	)

	s.AddTool(
		mcp.NewTool("draft_reply",
			mcp.WithDescription("Draft a bilingual reply for a customer email about a catalog product."),
			mcp.WithString("product_id", mcp.Description("Catalog product id"), mcp.Required()),
			mcp.WithString("email_body", mcp.Description("Raw customer email"), mcp.Required()),
			mcp.WithString("customer_name", mcp.Description("Customer display name")),
			mcp.WithString("tone", mcp.Description("Empathetic, Solution, Replacement, Refund, Brand or Engineer; defaults to the suggested strategy")),
		),
		mcpDraftReply(deps),
	)

	s.AddTool(
		mcp.NewTool("translate_draft",
			mcp.WithDescription("Translate an edited working-language draft into the marketplace's customer language."),
			mcp.WithString("working_body", mcp.Description("Draft text in the working language"), mcp.Required()),
			mcp.WithString("marketplace", mcp.Description("Marketplace code such as US, DE or JP"), mcp.Required()),
			mcp.WithString("tone", mcp.Description("Tone of the draft")),
		),
		mcpTranslateDraft(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"desk://products",
			"Product Catalog",
			mcp.WithResourceDescription("Every catalog product as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceJSON(func() any { return deps.Catalog.Products() }),
	)

	s.AddResource(
		mcp.NewResource(
			"desk://tickets",
			"Ticket Inbox",
			mcp.WithResourceDescription("Customer tickets in inbox order"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceJSON(func() any { return deps.Catalog.Tickets() }),
	)

	return s
}

type productSummary struct {
	ID          string                `json:"id"`
	ASIN        string                `json:"asin"`
	ModelNumber string                `json:"model_number,omitempty"`
	Name        string                `json:"name"`
	Marketplace knowledge.Marketplace `json:"marketplace"`
	QACount     int                   `json:"qa_count"`
}

func mcpSearchProducts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		products := deps.Catalog.SearchProducts(req.GetString("query", ""))
		out := make([]productSummary, len(products))
		for i, p := range products {
			out[i] = productSummary{
				ID:          p.ID,
				ASIN:        p.ASIN,
				ModelNumber: p.ModelNumber,
				Name:        p.Name,
				Marketplace: p.Marketplace,
				QACount:     len(p.ExpertKnowledge),
			}
		}
		return mcpJSON(out)
	}
}

func mcpRetrieveContext(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		productID, err := req.RequireString("product_id")
		if err != nil {
			return mcpError("product_id is required"), nil
		}
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		p, err := deps.Catalog.Product(productID)
		if err != nil {
			return mcpError(fmt.Sprintf("product %s: %v", productID, err)), nil
		}
		return mcpJSON(retrieval.Retrieve(query, p))
	}
}

func mcpAnalyzeTicket(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		body, err := req.RequireString("email_body")
		if err != nil || strings.TrimSpace(body) == "" {
			return mcpError("email_body is required"), nil
		}
		return mcpJSON(deps.Analyzer.Analyze(ctx, body))
	}
}

func mcpDraftReply(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		productID, err := req.RequireString("product_id")
		if err != nil {
			return mcpError("product_id is required"), nil
		}
		body, err := req.RequireString("email_body")
		if err != nil || strings.TrimSpace(body) == "" {
			return mcpError("email_body is required"), nil
		}
		p, err := deps.Catalog.Product(productID)
		if err != nil {
			return mcpError(fmt.Sprintf("product %s: %v", productID, err)), nil
		}

		analysis := deps.Analyzer.Analyze(ctx, body)
		tone := analysis.SuggestedStrategy
		if raw := req.GetString("tone", ""); raw != "" {
			t, ok := intent.ParseStrategy(raw)
			if !ok {
				return mcpError(fmt.Sprintf("unknown tone %q", raw)), nil
			}
			tone = t
		}

		draft := deps.Drafter.Compose(ctx, composer.Request{
			CustomerName: req.GetString("customer_name", "Customer"),
			EmailBody:    body,
			Product:      p,
			Context:      retrieval.Retrieve(body, p),
			Analysis:     analysis,
			Tone:         tone,
		})
		return mcpJSON(map[string]any{
			"analysis": analysis,
			"draft":    draft,
		})
	}
}

func mcpTranslateDraft(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		body, err := req.RequireString("working_body")
		if err != nil {
			return mcpError("working_body is required"), nil
		}
		market, err := req.RequireString("marketplace")
		if err != nil {
			return mcpError("marketplace is required"), nil
		}
		out := deps.Translator.Resync(ctx, body, knowledge.ParseMarketplace(market), req.GetString("tone", ""))
		if translate.IsSentinel(out) {
			return mcpError(out), nil
		}
		return mcpText(out), nil
	}
}

func mcpResourceJSON(load func() any) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(load())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", req.Params.URI, err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
