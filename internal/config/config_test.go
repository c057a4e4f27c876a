package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("missing config should not error: %v", err)
	}
	if cfg.Budget.TotalTokens != 2000 {
		t.Errorf("TotalTokens = %d, want 2000", cfg.Budget.TotalTokens)
	}
	if cfg.Cache.MaxItems != 500 {
		t.Errorf("MaxItems = %d, want 500", cfg.Cache.MaxItems)
	}
	if cfg.Focus.DivergenceCooldownSec != 60 {
		t.Errorf("DivergenceCooldownSec = %d, want 60", cfg.Focus.DivergenceCooldownSec)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
scope_id: my-project
budget:
  total_tokens: 3000
focus:
  window_size: 8
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ScopeID != "my-project" {
		t.Errorf("ScopeID = %q", cfg.ScopeID)
	}
	if cfg.Budget.TotalTokens != 3000 {
		t.Errorf("TotalTokens = %d, want 3000", cfg.Budget.TotalTokens)
	}
	if cfg.Focus.WindowSize != 8 {
		t.Errorf("WindowSize = %d, want 8", cfg.Focus.WindowSize)
	}
	// Unset fields fall back to defaults.
	if cfg.Budget.MinCategoryTokens != 100 {
		t.Errorf("MinCategoryTokens = %d, want 100", cfg.Budget.MinCategoryTokens)
	}
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"scope_id": "json-project"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ScopeID != "json-project" {
		t.Errorf("ScopeID = %q", cfg.ScopeID)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(":\n  - not valid"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("invalid yaml should fail")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MEMVAULT_GENAI_API_KEY", "secret-key")
	t.Setenv("MEMVAULT_EMBEDDING_PROVIDER", "genai")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Embedding.GenAIAPIKey != "secret-key" {
		t.Errorf("GenAIAPIKey = %q", cfg.Embedding.GenAIAPIKey)
	}
	if cfg.Embedding.Provider != "genai" {
		t.Errorf("Provider = %q", cfg.Embedding.Provider)
	}
}
