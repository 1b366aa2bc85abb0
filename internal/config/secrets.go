package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Secret accounts in the secrets file.
const (
	secretLLMKey     = "llm_api_key"
	secretAdminToken = "admin_token"
	secretAgentToken = "agent_token"
)

// ErrSecretNotFound is returned when a secret has never been stored.
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore holds credentials outside the regular config file.
type SecretStore interface {
	Get(account string) (string, error)
	Set(account, value string) error
}

// fileSecrets keeps secrets in a 0600 JSON file under the data directory.
type fileSecrets struct {
	path string
}

// NewSecretStore returns the secrets file store at
// $XDG_DATA_HOME/replydesk/secrets.json.
func NewSecretStore() SecretStore {
	return fileSecrets{path: secretsFilePath()}
}

func secretsFilePath() string {
	return filepath.Join(defaultDataDir(), "secrets.json")
}

func (f fileSecrets) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	secrets := map[string]string{}
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return secrets, nil
}

func (f fileSecrets) Get(account string) (string, error) {
	secrets, err := f.read()
	if err != nil {
		return "", err
	}
	v, ok := secrets[account]
	if !ok {
		return "", ErrSecretNotFound
	}
	return v, nil
}

func (f fileSecrets) Set(account, value string) error {
	secrets, err := f.read()
	if err != nil {
		return err
	}
	secrets[account] = value

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, out, 0o600)
}

// Role selects which bearer token GetAPIToken returns.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleAgent Role = "agent"
)

var tokenEnv = map[Role]string{
	RoleAdmin: "REPLYDESK_ADMIN_TOKEN",
	RoleAgent: "REPLYDESK_AGENT_TOKEN",
}

var tokenAccount = map[Role]string{
	RoleAdmin: secretAdminToken,
	RoleAgent: secretAgentToken,
}

// LookupAPIToken returns the bearer token for role from the environment or
// the secrets file. It never creates one; a missing token is ErrSecretNotFound.
func LookupAPIToken(store SecretStore, role Role) (string, error) {
	account, ok := tokenAccount[role]
	if !ok {
		return "", fmt.Errorf("unknown token role %q", role)
	}
	if v := os.Getenv(tokenEnv[role]); v != "" {
		return v, nil
	}
	tok, err := store.Get(account)
	if err != nil {
		return "", err
	}
	if tok == "" {
		return "", ErrSecretNotFound
	}
	return tok, nil
}

// GetAPIToken is LookupAPIToken for the server: a token missing from both
// the environment and the secrets file is generated and stored.
func GetAPIToken(store SecretStore, role Role) (string, error) {
	tok, err := LookupAPIToken(store, role)
	if err == nil {
		return tok, nil
	}
	if !errors.Is(err, ErrSecretNotFound) {
		return "", err
	}

	tok, err = newToken()
	if err != nil {
		return "", err
	}
	if err := store.Set(tokenAccount[role], tok); err != nil {
		return "", fmt.Errorf("storing %s token: %w", role, err)
	}
	return tok, nil
}

// SetLLMKey stores the LLM API key in the secrets file.
func SetLLMKey(store SecretStore, key string) error {
	return store.Set(secretLLMKey, key)
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
