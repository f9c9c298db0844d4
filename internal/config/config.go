// Package config holds runtime configuration for the lumen server.
// Values come from built-in defaults overridden by LUMEN_* environment
// variables; nothing reads configuration ambiently at request time.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Storage   StorageConfig
	Vault     VaultConfig
	API       APIConfig
	Assembly  AssemblyConfig
	Retrieval RetrievalConfig
	Providers []ProviderConfig
}

type ServerConfig struct {
	Port int
}

type LogConfig struct {
	Level string
}

type StorageConfig struct {
	DataDir string
}

type VaultConfig struct {
	Addr  string
	Token string
	Mount string
	// KeyID is the transit key used for all tenant data in this
	// deployment. It is threaded explicitly through constructors.
	KeyID string
}

type APIConfig struct {
	// Token guards the HTTP API. Empty disables auth (local dev).
	Token string
}

type AssemblyConfig struct {
	// Character budgets per context segment.
	HistoryBudget  int
	DocumentBudget int
	FileBudget     int
}

type RetrievalConfig struct {
	TopK     int
	MinScore float64
	// DirectMaxChars is the extracted-size threshold above which an
	// uploaded file is indexed instead of inlined into the context.
	DirectMaxChars int
	ChunkSize      int
	ChunkOverlap   int
	EmbedModel     string
	EmbedAPIKey    string
}

// ProviderConfig describes one configured AI provider. Type selects
// the client implementation: "openai", "xai" or "anthropic".
type ProviderConfig struct {
	ID      string
	Type    string
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

func defaults() Config {
	return Config{
		Server:  ServerConfig{Port: 4000},
		Log:     LogConfig{Level: "info"},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Vault: VaultConfig{
			Addr:  "http://127.0.0.1:8200",
			Mount: "transit",
			KeyID: "lumen",
		},
		Assembly: AssemblyConfig{
			HistoryBudget:  8000,
			DocumentBudget: 24000,
			FileBudget:     50000,
		},
		Retrieval: RetrievalConfig{
			TopK:           12,
			MinScore:       0.35,
			DirectMaxChars: 50000,
			ChunkSize:      1000,
			ChunkOverlap:   100,
			EmbedModel:     "text-embedding-3-small",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lumen"
	}
	return filepath.Join(home, ".lumen")
}

// Load builds the configuration from defaults and LUMEN_* environment
// variables. A provider is configured when its API key is present; at
// least the vault token must be set.
func Load() (Config, error) {
	return loadWith(os.Getenv)
}

func loadWith(getenv func(string) string) (Config, error) {
	cfg := defaults()

	setString(getenv, "LUMEN_DATA_DIR", &cfg.Storage.DataDir)
	setString(getenv, "LUMEN_LOG_LEVEL", &cfg.Log.Level)
	setInt(getenv, "LUMEN_PORT", &cfg.Server.Port)
	setString(getenv, "LUMEN_API_TOKEN", &cfg.API.Token)

	setString(getenv, "LUMEN_VAULT_ADDR", &cfg.Vault.Addr)
	setString(getenv, "LUMEN_VAULT_TOKEN", &cfg.Vault.Token)
	setString(getenv, "LUMEN_VAULT_MOUNT", &cfg.Vault.Mount)
	setString(getenv, "LUMEN_VAULT_KEY_ID", &cfg.Vault.KeyID)

	setInt(getenv, "LUMEN_HISTORY_BUDGET", &cfg.Assembly.HistoryBudget)
	setInt(getenv, "LUMEN_DOCUMENT_BUDGET", &cfg.Assembly.DocumentBudget)
	setInt(getenv, "LUMEN_FILE_BUDGET", &cfg.Assembly.FileBudget)

	setInt(getenv, "LUMEN_RETRIEVAL_TOP_K", &cfg.Retrieval.TopK)
	setFloat(getenv, "LUMEN_RETRIEVAL_MIN_SCORE", &cfg.Retrieval.MinScore)
	setInt(getenv, "LUMEN_DIRECT_MAX_CHARS", &cfg.Retrieval.DirectMaxChars)
	setString(getenv, "LUMEN_EMBED_MODEL", &cfg.Retrieval.EmbedModel)

	cfg.Providers = providersFromEnv(getenv)

	// The embedder shares the OpenAI key unless given its own.
	cfg.Retrieval.EmbedAPIKey = getenv("LUMEN_EMBED_API_KEY")
	if cfg.Retrieval.EmbedAPIKey == "" {
		cfg.Retrieval.EmbedAPIKey = getenv("LUMEN_OPENAI_API_KEY")
	}

	if cfg.Vault.Token == "" {
		return Config{}, fmt.Errorf("missing required config: vault token. Set LUMEN_VAULT_TOKEN")
	}

	return cfg, nil
}

// providersFromEnv configures one provider per present API key, in a
// fixed order so fan-out outcomes line up deterministically.
func providersFromEnv(getenv func(string) string) []ProviderConfig {
	timeout := 60 * time.Second
	if v := getenv("LUMEN_PROVIDER_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			timeout = time.Duration(n) * time.Second
		}
	}

	var providers []ProviderConfig
	if key := getenv("LUMEN_OPENAI_API_KEY"); key != "" {
		providers = append(providers, ProviderConfig{
			ID:      "openai",
			Type:    "openai",
			APIKey:  key,
			Model:   envOr(getenv, "LUMEN_OPENAI_MODEL", "gpt-4o"),
			Timeout: timeout,
		})
	}
	if key := getenv("LUMEN_ANTHROPIC_API_KEY"); key != "" {
		providers = append(providers, ProviderConfig{
			ID:      "anthropic",
			Type:    "anthropic",
			APIKey:  key,
			Model:   envOr(getenv, "LUMEN_ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
			Timeout: timeout,
		})
	}
	if key := getenv("LUMEN_XAI_API_KEY"); key != "" {
		providers = append(providers, ProviderConfig{
			ID:      "xai",
			Type:    "xai",
			APIKey:  key,
			Model:   envOr(getenv, "LUMEN_XAI_MODEL", "grok-3"),
			BaseURL: "https://api.x.ai/v1",
			Timeout: timeout,
		})
	}
	return providers
}

func envOr(getenv func(string) string, key, fallback string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return fallback
}

func setString(getenv func(string) string, key string, dst *string) {
	if v := getenv(key); v != "" {
		*dst = v
	}
}

func setInt(getenv func(string) string, key string, dst *int) {
	if v := getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(getenv func(string) string, key string, dst *float64) {
	if v := getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
