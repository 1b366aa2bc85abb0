package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	LLM     LLMConfig
	Agent   AgentConfig
	Storage StorageConfig
	Cache   CacheConfig
	Session SessionConfig
	Ingest  IngestConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port       int
	MCPEnabled bool
}

type LLMConfig struct {
	Provider  string
	Model     string
	BaseURL   string
	APIKey    string
	Timeout   string
	MaxTokens int
}

type AgentConfig struct {
	WorkingLanguage string
	DefaultTone     string
}

type StorageConfig struct {
	DataDir string
}

// CacheConfig configures the Redis catalog cache. An empty RedisURL disables it.
type CacheConfig struct {
	RedisURL string
	TTL      string
}

type SessionConfig struct {
	IdleTTL string
}

type IngestConfig struct {
	PollInterval string
}

type LogConfig struct {
	Level string
}

var defaultModels = map[string]string{
	"anthropic":         "claude-sonnet-4-5",
	"openai":            "gpt-4o-mini",
	"openai-compatible": "openai/gpt-4o-mini",
	"ollama":            "llama3.1",
}

// ModelName returns the configured model or the provider's default.
func (c LLMConfig) ModelName() string {
	if c.Model != "" {
		return c.Model
	}
	return defaultModels[strings.ToLower(c.Provider)]
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		LLM: LLMConfig{
			Provider:  "anthropic",
			Timeout:   "30s",
			MaxTokens: 2048,
		},
		Agent: AgentConfig{
			WorkingLanguage: "Chinese",
			DefaultTone:     "Solution",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Cache: CacheConfig{
			TTL: "24h",
		},
		Session: SessionConfig{
			IdleTTL: "2h",
		},
		Ingest: IngestConfig{
			PollInterval: "500ms",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "replydesk-data"
		}
	}
	return filepath.Join(dir, "replydesk")
}

// Load reads configuration from the JSON config file, a .env file in the
// working directory, environment variables and the secrets file.
//
// The config file lives at $XDG_CONFIG_HOME/replydesk/config.json.
// Environment variables (REPLYDESK_*) override file values; variables set
// in .env never override ones already present in the environment.
// A missing LLM API key is not an error: model calls degrade to fallbacks.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "[WARN] could not load .env: %v\n", err)
	}
	return loadWith(newFileBackend(configFilePath()), NewSecretStore())
}

func loadWith(b ConfigBackend, secrets SecretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.LLM.APIKey == "" && secrets != nil {
		if key, err := secrets.Get(secretLLMKey); err == nil && key != "" {
			cfg.LLM.APIKey = key
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var (
	providers = []string{"anthropic", "openai", "openai-compatible", "ollama"}
	tones     = []string{"Empathetic", "Solution", "Replacement", "Refund", "Brand", "Engineer"}
	levels    = []string{"debug", "info", "warn", "error"}
)

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}
	return false
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port %d out of range", c.Server.Port)
	}
	if !oneOf(c.LLM.Provider, providers) {
		return fmt.Errorf("invalid config: llm.provider %q (want one of %s)", c.LLM.Provider, strings.Join(providers, ", "))
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("invalid config: llm.max_tokens must be positive")
	}
	if !oneOf(c.Agent.DefaultTone, tones) {
		return fmt.Errorf("invalid config: agent.default_tone %q (want one of %s)", c.Agent.DefaultTone, strings.Join(tones, ", "))
	}
	if !oneOf(c.Log.Level, levels) {
		return fmt.Errorf("invalid config: log.level %q", c.Log.Level)
	}
	for key, v := range map[string]string{
		"llm.timeout":          c.LLM.Timeout,
		"cache.ttl":            c.Cache.TTL,
		"session.idle_ttl":     c.Session.IdleTTL,
		"ingest.poll_interval": c.Ingest.PollInterval,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid config: %s: %w", key, err)
		}
	}
	return nil
}

// Duration parses a duration value that validate has already accepted.
func Duration(v string) time.Duration {
	d, _ := time.ParseDuration(v)
	return d
}
