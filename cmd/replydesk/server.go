package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/replydesk/internal/api"
	"github.com/kalambet/replydesk/internal/composer"
	"github.com/kalambet/replydesk/internal/config"
	"github.com/kalambet/replydesk/internal/engine"
	"github.com/kalambet/replydesk/internal/ingest"
	"github.com/kalambet/replydesk/internal/intent"
	"github.com/kalambet/replydesk/internal/knowledge"
	"github.com/kalambet/replydesk/internal/metrics"
	"github.com/kalambet/replydesk/internal/pipeline"
	"github.com/kalambet/replydesk/internal/storage"
	"github.com/kalambet/replydesk/internal/translate"
)

const (
	shutdownTimeout = 5 * time.Second
	sweepInterval   = time.Minute
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the replydesk server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running replydesk server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show replydesk status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "replydesk.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func logLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// newLookup builds the listing lookup chain: the bundled catalog first, then
// the model crawl, optionally behind the Redis cache. Bundled listings never
// go through the cache.
func newLookup(ctx context.Context, cfg config.Config, eng engine.Engine, m *metrics.Metrics) (ingest.Lookup, func(), error) {
	static, err := ingest.NewStaticLookup()
	if err != nil {
		return nil, nil, fmt.Errorf("loading bundled catalog: %w", err)
	}
	var model ingest.Lookup = ingest.NewModelLookup(eng, cfg.LLM.ModelName(), static)

	if cfg.Cache.RedisURL == "" {
		return ingest.Chain{static, model}, func() {}, nil
	}
	rdb, err := ingest.Connect(ctx, cfg.Cache.RedisURL)
	if err != nil {
		slog.Warn("catalog cache disabled", "error", err)
		return ingest.Chain{static, model}, func() {}, nil
	}
	slog.Info("catalog cache enabled", "ttl", cfg.Cache.TTL)
	cached := ingest.NewCachedLookup(rdb, model, config.Duration(cfg.Cache.TTL), m)
	return ingest.Chain{static, cached}, func() { rdb.Close() }, nil
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "replydesk version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.Log.Level)})))

	secrets := config.NewSecretStore()
	adminToken, err := config.GetAPIToken(secrets, config.RoleAdmin)
	if err != nil {
		return fmt.Errorf("initializing admin token: %w", err)
	}
	agentToken, err := config.GetAPIToken(secrets, config.RoleAgent)
	if err != nil {
		return fmt.Errorf("initializing agent token: %w", err)
	}
	slog.Info("API bearer tokens available")

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("replydesk is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("replydesk is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	catalog, err := knowledge.Open(store)
	if err != nil {
		return fmt.Errorf("opening knowledge base: %w", err)
	}

	m := metrics.New()
	eng, err := engine.New(engine.Config{
		Provider:  cfg.LLM.Provider,
		BaseURL:   cfg.LLM.BaseURL,
		APIKey:    cfg.LLM.APIKey,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   config.Duration(cfg.LLM.Timeout),
	})
	if err != nil {
		return fmt.Errorf("creating llm engine: %w", err)
	}
	eng = metrics.InstrumentEngine(eng, m)
	engine.Probe(ctx, eng, cfg.LLM.Provider, slog.Default())

	model := cfg.LLM.ModelName()
	classifier := intent.NewClassifier(eng, model)
	drafter := composer.New(eng, model, cfg.Agent.WorkingLanguage)
	translator := translate.New(eng, model, cfg.Agent.WorkingLanguage)

	lookup, closeLookup, err := newLookup(ctx, cfg, eng, m)
	if err != nil {
		return err
	}
	defer closeLookup()
	importer := ingest.NewImporter(lookup, catalog, store)
	worker := ingest.NewWorker(store, importer, m, config.Duration(cfg.Ingest.PollInterval))

	desk := pipeline.NewDesk(catalog, classifier, drafter, translator, store, m, pipeline.Options{
		DefaultTone: intent.Strategy(cfg.Agent.DefaultTone),
		IdleTTL:     config.Duration(cfg.Session.IdleTTL),
	})

	handler := api.NewHandler(api.Deps{
		Catalog:    catalog,
		Desk:       desk,
		Analyzer:   classifier,
		Translator: translator,
		Importer:   importer,
		Replies:    store,
		Metrics:    m,
		AdminToken: adminToken,
		AgentToken: agentToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		desk.RunSweeper(gctx, sweepInterval)
		return nil
	})

	if cfg.Server.MCPEnabled {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Catalog:    catalog,
			Analyzer:   classifier,
			Drafter:    drafter,
			Translator: translator,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "replydesk listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("replydesk is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop replydesk (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to replydesk (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("LLM provider", "%s", cfg.LLM.Provider)
	printStatus("Model", "%s", cfg.LLM.ModelName())
	if cfg.LLM.APIKey == "" && engine.NormalizeProvider(cfg.LLM.Provider) != engine.ProviderOllama {
		printWarning("no LLM API key configured; drafts will use fallbacks")
	}
	printStatus("Working language", "%s", cfg.Agent.WorkingLanguage)
	if cfg.Cache.RedisURL != "" {
		printStatus("Catalog cache", "%s", cfg.Cache.RedisURL)
	}

	if running {
		token, tokenErr := config.LookupAPIToken(config.NewSecretStore(), config.RoleAdmin)
		if tokenErr == nil {
			c := &apiClient{baseURL: serverURL, token: token, httpClient: client}
			ctx := context.Background()
			var products, tickets []struct {
				Status string `json:"status"`
			}
			if resp, err := c.get(ctx, "/products"); err == nil && decodeJSON(resp, &products) == nil {
				printStatus("Products", "%d", len(products))
			}
			if resp, err := c.get(ctx, "/tickets"); err == nil && decodeJSON(resp, &tickets) == nil {
				pending := 0
				for _, t := range tickets {
					if t.Status == string(knowledge.StatusPending) {
						pending++
					}
				}
				printStatus("Tickets", "%d (%d pending)", len(tickets), pending)
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
