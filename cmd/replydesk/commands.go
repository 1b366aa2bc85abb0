package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/replydesk/internal/config"
	"github.com/kalambet/replydesk/internal/knowledge"
	"github.com/kalambet/replydesk/internal/pipeline"
	"github.com/kalambet/replydesk/internal/retrieval"
	"github.com/kalambet/replydesk/internal/storage"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// --- products ---

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "Manage the product knowledge base",
}

var productsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog products",
	RunE: func(cmd *cobra.Command, args []string) error {
		search, _ := cmd.Flags().GetString("search")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := "/products"
		if search != "" {
			path += "?q=" + url.QueryEscape(search)
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var products []knowledge.Product
		if err := decodeJSON(resp, &products); err != nil {
			return err
		}

		if len(products) == 0 {
			fmt.Println("No products found.")
			return nil
		}
		for _, p := range products {
			fmt.Printf("%s  %s  %-2s  %s  (%d Q&A)\n",
				colorize(colorCyan, p.ID),
				p.ASIN,
				p.Marketplace,
				truncate(p.Name, 60),
				len(p.ExpertKnowledge),
			)
		}
		return nil
	},
}

var productsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a product as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/products/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var p knowledge.Product
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}
		return printJSON(p)
	},
}

var productsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a product by hand",
	RunE: func(cmd *cobra.Command, args []string) error {
		asin, _ := cmd.Flags().GetString("asin")
		name, _ := cmd.Flags().GetString("name")
		market, _ := cmd.Flags().GetString("marketplace")
		category, _ := cmd.Flags().GetString("category")
		policy, _ := cmd.Flags().GetString("policy")
		manual, _ := cmd.Flags().GetString("manual")
		features, _ := cmd.Flags().GetString("features")

		if asin == "" || name == "" {
			return fmt.Errorf("--asin and --name are required")
		}
		m := knowledge.ParseMarketplace(market)
		if policy == "" {
			policy = m.DefaultPolicy()
		}
		p := knowledge.Product{
			ASIN:          asin,
			Name:          name,
			Category:      category,
			Marketplace:   m,
			Policy:        policy,
			ManualContent: manual,
			Features:      splitList(features),
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/products", p)
		if err != nil {
			return err
		}
		var created knowledge.Product
		if err := decodeJSON(resp, &created); err != nil {
			return err
		}
		printSuccess("Added product %s (%s)", created.ID, created.Name)
		return nil
	},
}

var productsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/products/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Deleted product %s", args[0])
		return nil
	},
}

var productsQAAddCmd = &cobra.Command{
	Use:   "qa-add <product-id>",
	Short: "Add an expert Q&A pair to a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question, _ := cmd.Flags().GetString("question")
		answer, _ := cmd.Flags().GetString("answer")
		keywords, _ := cmd.Flags().GetString("keywords")
		engineer, _ := cmd.Flags().GetBool("engineer")

		if question == "" || answer == "" {
			return fmt.Errorf("--question and --answer are required")
		}
		qa := knowledge.QAPair{
			Question: question,
			Answer:   answer,
			Keywords: []string{keywords},
			Author:   knowledge.AuthorCustomerService,
		}
		if engineer {
			qa.Author = knowledge.AuthorEngineer
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/products/"+url.PathEscape(args[0])+"/qa", qa)
		if err != nil {
			return err
		}
		var added knowledge.QAPair
		if err := decodeJSON(resp, &added); err != nil {
			return err
		}
		printSuccess("Added Q&A %s with keywords [%s]", added.ID, strings.Join(added.Keywords, ", "))
		return nil
	},
}

var productsQADeleteCmd = &cobra.Command{
	Use:   "qa-delete <product-id> <qa-id>",
	Short: "Remove an expert Q&A pair",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/products/"+url.PathEscape(args[0])+"/qa/"+url.PathEscape(args[1]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Deleted Q&A %s", args[1])
		return nil
	},
}

func init() {
	productsListCmd.Flags().String("search", "", "filter by name, ASIN or model number")

	productsAddCmd.Flags().String("asin", "", "10-character ASIN")
	productsAddCmd.Flags().String("name", "", "product name")
	productsAddCmd.Flags().String("marketplace", "US", "marketplace code")
	productsAddCmd.Flags().String("category", "", "product category")
	productsAddCmd.Flags().String("policy", "", "return policy (default: the marketplace policy)")
	productsAddCmd.Flags().String("manual", "", "manual text")
	productsAddCmd.Flags().String("features", "", "comma-separated feature bullets")

	productsQAAddCmd.Flags().String("question", "", "customer question")
	productsQAAddCmd.Flags().String("answer", "", "gold-standard answer")
	productsQAAddCmd.Flags().String("keywords", "", "comma-separated trigger keywords")
	productsQAAddCmd.Flags().Bool("engineer", false, "attribute the answer to an engineer")

	productsCmd.AddCommand(productsListCmd)
	productsCmd.AddCommand(productsShowCmd)
	productsCmd.AddCommand(productsAddCmd)
	productsCmd.AddCommand(productsDeleteCmd)
	productsCmd.AddCommand(productsQAAddCmd)
	productsCmd.AddCommand(productsQADeleteCmd)
}

// --- tickets ---

var ticketsCmd = &cobra.Command{
	Use:   "tickets",
	Short: "Manage the ticket inbox",
}

var ticketsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tickets in inbox order",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/tickets")
		if err != nil {
			return err
		}
		var tickets []knowledge.Ticket
		if err := decodeJSON(resp, &tickets); err != nil {
			return err
		}

		if len(tickets) == 0 {
			fmt.Println("Inbox is empty.")
			return nil
		}
		for _, t := range tickets {
			fmt.Printf("%s  %s  %-20s  %s\n",
				colorize(colorCyan, t.ID),
				statusLabel(t.Status),
				truncate(t.CustomerName, 20),
				truncate(strings.ReplaceAll(t.EmailBody, "\n", " "), 60),
			)
		}
		return nil
	},
}

var ticketsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a customer email to the inbox",
	RunE: func(cmd *cobra.Command, args []string) error {
		customer, _ := cmd.Flags().GetString("customer")
		body, _ := cmd.Flags().GetString("body")
		file, _ := cmd.Flags().GetString("file")

		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			body = string(data)
		}
		if strings.TrimSpace(body) == "" {
			return fmt.Errorf("one of --body or --file is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/tickets", knowledge.Ticket{CustomerName: customer, EmailBody: body})
		if err != nil {
			return err
		}
		var t knowledge.Ticket
		if err := decodeJSON(resp, &t); err != nil {
			return err
		}
		printSuccess("Added ticket %s", t.ID)
		return nil
	},
}

var ticketsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/tickets/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Deleted ticket %s", args[0])
		return nil
	},
}

func init() {
	ticketsAddCmd.Flags().String("customer", "", "customer display name")
	ticketsAddCmd.Flags().String("body", "", "email body")
	ticketsAddCmd.Flags().String("file", "", "read the email body from a file")

	ticketsCmd.AddCommand(ticketsListCmd)
	ticketsCmd.AddCommand(ticketsAddCmd)
	ticketsCmd.AddCommand(ticketsDeleteCmd)
}

// --- retrieve ---

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <product-id> <query>",
	Short: "Show the knowledge snippets a query pulls for a product",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args[1:], " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/products/"+url.PathEscape(args[0])+"/retrieve", map[string]string{"query": query})
		if err != nil {
			return err
		}
		var results []retrieval.Result
		if err := decodeJSON(resp, &results); err != nil {
			return err
		}

		for i, r := range results {
			fmt.Printf("\n%s %s [score: %.2f]\n", colorize(colorBold, fmt.Sprintf("Result %d", i+1)), r.Source, r.RelevanceScore)
			fmt.Printf("  %s\n", truncate(r.Content, 500))
		}
		return nil
	},
}

// --- draft ---

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Draft a reply for a ticket or a pasted email",
	Long: `Draft a bilingual reply.

Examples:
  replydesk draft --ticket t3 --product p3
  replydesk draft --body "The lantern arrived cracked" --customer "Ann" --product p1 --tone Refund
  replydesk draft --ticket t2 --product p2 --send`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ticketID, _ := cmd.Flags().GetString("ticket")
		body, _ := cmd.Flags().GetString("body")
		customer, _ := cmd.Flags().GetString("customer")
		productID, _ := cmd.Flags().GetString("product")
		tone, _ := cmd.Flags().GetString("tone")
		send, _ := cmd.Flags().GetBool("send")

		if ticketID == "" && strings.TrimSpace(body) == "" {
			return fmt.Errorf("one of --ticket or --body is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		s, err := runDraft(cmd, client, draftOptions{
			ticketID:  ticketID,
			body:      body,
			customer:  customer,
			productID: productID,
			tone:      tone,
			send:      send,
		})
		if err != nil {
			return err
		}
		printDraft(s)
		if send {
			printSuccess("Marked as sent")
		}
		return nil
	},
}

type draftOptions struct {
	ticketID  string
	body      string
	customer  string
	productID string
	tone      string
	send      bool
}

// runDraft drives one desk session through the generate flow and closes it.
func runDraft(cmd *cobra.Command, client *apiClient, opts draftOptions) (pipeline.Session, error) {
	ctx := cmd.Context()

	var s pipeline.Session
	resp, err := client.post(ctx, "/sessions", nil)
	if err != nil {
		return s, err
	}
	if err := decodeJSON(resp, &s); err != nil {
		return s, err
	}
	base := "/sessions/" + s.ID
	defer func() {
		if resp, err := client.delete(ctx, base); err == nil {
			resp.Body.Close()
		}
	}()

	steps := []struct {
		skip bool
		path string
		body any
	}{
		{opts.ticketID == "", "/ticket", map[string]string{"ticket_id": opts.ticketID}},
		{opts.ticketID != "", "/input", map[string]string{"customer_name": opts.customer, "email_body": opts.body}},
		{opts.productID == "", "/product", map[string]string{"product_id": opts.productID}},
		{opts.tone == "", "/tone", map[string]string{"tone": opts.tone}},
	}
	for _, st := range steps {
		if st.skip {
			continue
		}
		resp, err := client.put(ctx, base+st.path, st.body)
		if err != nil {
			return s, err
		}
		if err := decodeJSON(resp, &s); err != nil {
			return s, err
		}
	}

	printStep("Generating draft...")
	resp, err = client.post(ctx, base+"/generate", nil)
	if err != nil {
		return s, err
	}
	if err := decodeJSON(resp, &s); err != nil {
		return s, err
	}

	if opts.send {
		resp, err := client.post(ctx, base+"/send", nil)
		if err != nil {
			return s, err
		}
		if err := decodeJSON(resp, &s); err != nil {
			return s, err
		}
	}
	return s, nil
}

func printDraft(s pipeline.Session) {
	if a := s.Analysis; a != nil {
		printStatus("Intent", "%s", a.Intent)
		printStatus("Language", "%s", a.Language)
		printStatus("Sentiment", "%s", a.Sentiment)
		printStatus("Strategy", "%s", a.SuggestedStrategy)
		if a.Degraded {
			printWarning("analysis unavailable, showing fallback")
		}
	}
	d := s.Draft
	if d == nil {
		return
	}
	if d.Degraded {
		printWarning("draft unavailable, showing fallback")
	}
	fmt.Printf("\n%s %s\n", colorize(colorBold, "Subject:"), d.Subject)
	fmt.Printf("\n%s\n%s\n", colorize(colorBold, "Working draft:"), d.WorkingBody)
	fmt.Printf("\n%s\n%s\n", colorize(colorBold, "Customer reply:"), d.TargetBody)
}

func init() {
	draftCmd.Flags().String("ticket", "", "inbox ticket id")
	draftCmd.Flags().String("body", "", "email body for a manual entry")
	draftCmd.Flags().String("customer", "", "customer name for a manual entry")
	draftCmd.Flags().String("product", "", "product id (default: first catalog product)")
	draftCmd.Flags().String("tone", "", "Empathetic, Solution, Replacement, Refund, Brand or Engineer")
	draftCmd.Flags().Bool("send", false, "mark the draft as sent and archive it")
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import <asin>",
	Short: "Import a marketplace listing into the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		market, _ := cmd.Flags().GetString("marketplace")
		preview, _ := cmd.Flags().GetBool("preview")
		async, _ := cmd.Flags().GetBool("async")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if preview {
			q := url.Values{"asin": {args[0]}, "marketplace": {market}}
			resp, err := client.get(ctx, "/imports/preview?"+q.Encode())
			if err != nil {
				return err
			}
			var listing knowledge.ImportedListing
			if err := decodeJSON(resp, &listing); err != nil {
				return err
			}
			return printJSON(listing)
		}

		resp, err := client.post(ctx, "/imports", map[string]any{
			"asin":        args[0],
			"marketplace": market,
			"async":       async,
		})
		if err != nil {
			return err
		}
		if async {
			var queued map[string]string
			if err := decodeJSON(resp, &queued); err != nil {
				return err
			}
			printSuccess("Queued import job %s", queued["id"])
			return nil
		}
		var p knowledge.Product
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}
		printSuccess("Imported %s as %s (%d Q&A)", p.Name, p.ID, len(p.ExpertKnowledge))
		return nil
	},
}

var importStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show an import job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/imports/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var job storage.Job
		if err := decodeJSON(resp, &job); err != nil {
			return err
		}
		printStatus("Job", "%s", job.ID)
		printStatus("Status", "%s (attempt %d/%d)", job.Status, job.Attempts, job.MaxAttempts)
		if job.LastError != "" {
			printStatus("Last error", "%s", job.LastError)
		}
		if job.ResultJSON != "" {
			printStatus("Result", "%s", job.ResultJSON)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().String("marketplace", "US", "marketplace code")
	importCmd.Flags().Bool("preview", false, "show the listing without importing it")
	importCmd.Flags().Bool("async", false, "queue the import for the background worker")
	importCmd.AddCommand(importStatusCmd)
}

// --- replies ---

var repliesCmd = &cobra.Command{
	Use:   "replies",
	Short: "List sent replies, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/replies?limit=%d", limit))
		if err != nil {
			return err
		}
		var replies []storage.Reply
		if err := decodeJSON(resp, &replies); err != nil {
			return err
		}

		if len(replies) == 0 {
			fmt.Println("No replies sent yet.")
			return nil
		}
		for _, r := range replies {
			fmt.Printf("%s  %s  %-2s  %-12s  %s\n",
				colorize(colorCyan, r.CreatedAt.Local().Format("2006-01-02 15:04")),
				r.TicketID,
				r.Marketplace,
				r.Tone,
				truncate(r.Subject, 60),
			)
		}
		return nil
	},
}

func init() {
	repliesCmd.Flags().Int("limit", 20, "maximum number of replies to list")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s", key)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
