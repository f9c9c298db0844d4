package config

import (
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestLoadRequiresVaultToken(t *testing.T) {
	_, err := loadWith(envMap(nil))
	if err == nil {
		t.Fatal("expected error when LUMEN_VAULT_TOKEN is unset")
	}
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	cfg, err := loadWith(envMap(map[string]string{
		"LUMEN_VAULT_TOKEN":      "s.abc",
		"LUMEN_PORT":             "5123",
		"LUMEN_HISTORY_BUDGET":   "1234",
		"LUMEN_DIRECT_MAX_CHARS": "60000",
	}))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 5123 {
		t.Errorf("Port = %d, want 5123", cfg.Server.Port)
	}
	if cfg.Assembly.HistoryBudget != 1234 {
		t.Errorf("HistoryBudget = %d, want 1234", cfg.Assembly.HistoryBudget)
	}
	if cfg.Assembly.DocumentBudget != 24000 {
		t.Errorf("DocumentBudget default = %d, want 24000", cfg.Assembly.DocumentBudget)
	}
	if cfg.Retrieval.DirectMaxChars != 60000 {
		t.Errorf("DirectMaxChars = %d, want 60000", cfg.Retrieval.DirectMaxChars)
	}
	if cfg.Vault.Mount != "transit" {
		t.Errorf("Vault.Mount default = %q, want transit", cfg.Vault.Mount)
	}
	if len(cfg.Providers) != 0 {
		t.Errorf("expected no providers without API keys, got %d", len(cfg.Providers))
	}
}

func TestProvidersFromEnv(t *testing.T) {
	cfg, err := loadWith(envMap(map[string]string{
		"LUMEN_VAULT_TOKEN":              "s.abc",
		"LUMEN_OPENAI_API_KEY":           "sk-1",
		"LUMEN_XAI_API_KEY":              "xai-1",
		"LUMEN_XAI_MODEL":                "grok-4",
		"LUMEN_PROVIDER_TIMEOUT_SECONDS": "30",
	}))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if len(cfg.Providers) != 2 {
		t.Fatalf("got %d providers, want 2", len(cfg.Providers))
	}
	if cfg.Providers[0].ID != "openai" || cfg.Providers[1].ID != "xai" {
		t.Errorf("provider order = %s, %s; want openai, xai", cfg.Providers[0].ID, cfg.Providers[1].ID)
	}
	if cfg.Providers[1].BaseURL != "https://api.x.ai/v1" {
		t.Errorf("xai BaseURL = %q", cfg.Providers[1].BaseURL)
	}
	if cfg.Providers[1].Model != "grok-4" {
		t.Errorf("xai Model = %q, want grok-4", cfg.Providers[1].Model)
	}
	if cfg.Providers[0].Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", cfg.Providers[0].Timeout)
	}
	if cfg.Retrieval.EmbedAPIKey != "sk-1" {
		t.Errorf("EmbedAPIKey = %q, want the OpenAI key", cfg.Retrieval.EmbedAPIKey)
	}
}
