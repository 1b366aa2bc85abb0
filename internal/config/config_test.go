package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// memSecrets is a test double for SecretStore.
type memSecrets struct {
	values map[string]string
	err    error
}

func (m *memSecrets) Get(account string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.values[account]
	if !ok {
		return "", ErrSecretNotFound
	}
	return v, nil
}

func (m *memSecrets) Set(account, value string) error {
	if m.values == nil {
		m.values = map[string]string{}
	}
	m.values[account] = value
	return nil
}

func writeTempConfig(t *testing.T, content string) *fileBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return newFileBackend(path)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied when loading an empty config file.
func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(writeTempConfig(t, `{}`), &memSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want 4000", cfg.Server.Port)
	}
	if cfg.Server.MCPEnabled {
		t.Error("Server.MCPEnabled = true, want false")
	}
	if cfg.LLM.Provider != "anthropic" || cfg.LLM.ModelName() != "claude-sonnet-4-5" {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if Duration(cfg.LLM.Timeout) != 30*time.Second {
		t.Errorf("LLM.Timeout = %q", cfg.LLM.Timeout)
	}
	if cfg.Agent.WorkingLanguage != "Chinese" || cfg.Agent.DefaultTone != "Solution" {
		t.Errorf("Agent = %+v", cfg.Agent)
	}
	if cfg.Cache.RedisURL != "" || Duration(cfg.Cache.TTL) != 24*time.Hour {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if Duration(cfg.Session.IdleTTL) != 2*time.Hour {
		t.Errorf("Session.IdleTTL = %q", cfg.Session.IdleTTL)
	}
	if cfg.LLM.APIKey != "" {
		t.Errorf("APIKey = %q, want empty", cfg.LLM.APIKey)
	}
}

// TestJSONParsing verifies that fields are read from the config file.
func TestJSONParsing(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{
  "server.port": 5000,
  "server.mcp_enabled": true,
  "llm.provider": "ollama",
  "llm.base_url": "http://gpu-box:11434",
  "llm.max_tokens": 4096,
  "agent.working_language": "English",
  "agent.default_tone": "Engineer",
  "storage.data_dir": "/tmp/replydesk-test",
  "cache.redis_url": "redis://localhost:6379/0",
  "session.idle_ttl": "15m"
}`)

	cfg, err := loadWith(b, &memSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 || !cfg.Server.MCPEnabled {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.LLM.Provider != "ollama" || cfg.LLM.BaseURL != "http://gpu-box:11434" || cfg.LLM.MaxTokens != 4096 {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if cfg.LLM.ModelName() != "llama3.1" {
		t.Errorf("ModelName = %q", cfg.LLM.ModelName())
	}
	if cfg.Agent.WorkingLanguage != "English" || cfg.Agent.DefaultTone != "Engineer" {
		t.Errorf("Agent = %+v", cfg.Agent)
	}
	if cfg.Storage.DataDir != "/tmp/replydesk-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Cache.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("Cache.RedisURL = %q", cfg.Cache.RedisURL)
	}
	if Duration(cfg.Session.IdleTTL) != 15*time.Minute {
		t.Errorf("Session.IdleTTL = %q", cfg.Session.IdleTTL)
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("REPLYDESK_SERVER_PORT", "6000")
	t.Setenv("REPLYDESK_LLM_API_KEY", "env-key")
	t.Setenv("REPLYDESK_SERVER_MCP_ENABLED", "true")
	t.Setenv("REPLYDESK_LLM_MODEL", "claude-opus-4-1")

	cfg, err := loadWith(writeTempConfig(t, `{"server.port": 5000}`), &memSecrets{values: map[string]string{secretLLMKey: "file-key"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("APIKey = %q, want env-key", cfg.LLM.APIKey)
	}
	if !cfg.Server.MCPEnabled {
		t.Error("MCPEnabled not overridden")
	}
	if cfg.LLM.ModelName() != "claude-opus-4-1" {
		t.Errorf("ModelName = %q", cfg.LLM.ModelName())
	}
}

// TestEnvOverride_BadValue keeps the file value when an env var does not parse.
func TestEnvOverride_BadValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("REPLYDESK_SERVER_PORT", "not-a-port")

	cfg, err := loadWith(writeTempConfig(t, `{"server.port": 5000}`), &memSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
}

// TestSecretsFallback verifies the secrets file is consulted when no key is in the environment.
func TestSecretsFallback(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(writeTempConfig(t, `{}`), &memSecrets{values: map[string]string{secretLLMKey: "stored-secret"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.APIKey != "stored-secret" {
		t.Errorf("APIKey = %q, want stored-secret", cfg.LLM.APIKey)
	}
}

func TestSecretsError_NotFatal(t *testing.T) {
	clearEnv(t)
	if _, err := loadWith(writeTempConfig(t, `{}`), &memSecrets{err: errors.New("locked")}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		file string
		want string
	}{
		{"bad provider", `{"llm.provider": "bard"}`, "llm.provider"},
		{"bad tone", `{"agent.default_tone": "Sarcastic"}`, "agent.default_tone"},
		{"bad duration", `{"llm.timeout": "soon"}`, "llm.timeout"},
		{"bad port", `{"server.port": 70000}`, "server.port"},
		{"bad level", `{"log.level": "loud"}`, "log.level"},
		{"bad max tokens", `{"llm.max_tokens": 0}`, "llm.max_tokens"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := loadWith(writeTempConfig(t, tt.file), &memSecrets{})
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestInvalidIntInFile(t *testing.T) {
	clearEnv(t)
	if _, err := loadWith(writeTempConfig(t, `{"server.port": 12.5}`), &memSecrets{}); err == nil {
		t.Error("expected error for fractional port")
	}
}

func TestSetKey(t *testing.T) {
	b := writeTempConfig(t, `{}`)
	secrets := &memSecrets{}

	if err := setKey(b, secrets, "server.port", "4100"); err != nil {
		t.Fatalf("setKey int: %v", err)
	}
	if err := setKey(b, secrets, "server.mcp_enabled", "true"); err != nil {
		t.Fatalf("setKey bool: %v", err)
	}
	if err := setKey(b, secrets, "llm.api_key", "sk-test"); err != nil {
		t.Fatalf("setKey secret: %v", err)
	}
	if err := setKey(b, secrets, "server.port", "abc"); err == nil {
		t.Error("expected error for invalid integer")
	}
	if err := setKey(b, secrets, "server.mcp_enabled", "maybe"); err == nil {
		t.Error("expected error for invalid bool")
	}
	if err := setKey(b, secrets, "nope", "x"); err == nil {
		t.Error("expected error for unknown key")
	}

	clearEnv(t)
	cfg, err := loadWith(newFileBackend(b.path), secrets)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.Server.Port != 4100 || !cfg.Server.MCPEnabled || cfg.LLM.APIKey != "sk-test" {
		t.Errorf("reloaded config = %+v", cfg)
	}

	raw, _ := os.ReadFile(b.path)
	if strings.Contains(string(raw), "sk-test") {
		t.Error("secret written to config file")
	}
}

func TestShowAll_HidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.LLM.APIKey = "sk-hidden"
	for _, k := range ShowAll(cfg) {
		if k.Key == "llm.api_key" || k.Value == "sk-hidden" {
			t.Errorf("secret exposed: %+v", k)
		}
	}
}

func TestGetAPIToken(t *testing.T) {
	t.Setenv("REPLYDESK_ADMIN_TOKEN", "")
	t.Setenv("REPLYDESK_AGENT_TOKEN", "")
	store := &memSecrets{}

	admin, err := GetAPIToken(store, RoleAdmin)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if len(admin) != 64 {
		t.Errorf("generated token length = %d, want 64", len(admin))
	}
	again, _ := GetAPIToken(store, RoleAdmin)
	if again != admin {
		t.Error("token regenerated on second call")
	}
	agent, _ := GetAPIToken(store, RoleAgent)
	if agent == admin {
		t.Error("admin and agent tokens are equal")
	}

	t.Setenv("REPLYDESK_AGENT_TOKEN", "env-agent")
	if got, _ := GetAPIToken(store, RoleAgent); got != "env-agent" {
		t.Errorf("env token = %q", got)
	}

	if _, err := GetAPIToken(store, "root"); err == nil {
		t.Error("expected error for unknown role")
	}
	if _, err := GetAPIToken(&memSecrets{err: errors.New("io")}, RoleAdmin); err == nil {
		t.Error("expected store error")
	}
}

func TestLookupAPIToken_NeverCreates(t *testing.T) {
	t.Setenv("REPLYDESK_ADMIN_TOKEN", "")
	store := &memSecrets{}

	if _, err := LookupAPIToken(store, RoleAdmin); !errors.Is(err, ErrSecretNotFound) {
		t.Fatalf("err = %v, want ErrSecretNotFound", err)
	}
	if len(store.values) != 0 {
		t.Errorf("lookup stored %v", store.values)
	}

	t.Setenv("REPLYDESK_ADMIN_TOKEN", "env-admin")
	if got, err := LookupAPIToken(store, RoleAdmin); err != nil || got != "env-admin" {
		t.Errorf("LookupAPIToken = %q, %v", got, err)
	}
	if len(store.values) != 0 {
		t.Errorf("lookup stored %v", store.values)
	}
}

func TestFileSecrets_RoundTrip(t *testing.T) {
	s := fileSecrets{path: filepath.Join(t.TempDir(), "nested", "secrets.json")}
	if _, err := s.Get("x"); !errors.Is(err, ErrSecretNotFound) {
		t.Fatalf("Get on missing file err = %v", err)
	}
	if err := s.Set("x", "1"); err != nil {
		t.Fatal(err)
	}
	if v, err := s.Get("x"); err != nil || v != "1" {
		t.Errorf("Get = %q, %v", v, err)
	}
	info, err := os.Stat(s.path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("perm = %v, want 0600", info.Mode().Perm())
	}
}
