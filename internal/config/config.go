// Package config holds all memvault configuration. Config is loaded from
// .memvault/config.yaml (YAML, with JSON accepted for compatibility) and
// every sub-config has a Default constructor so components work with zero
// configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all memvault configuration.
type Config struct {
	// ScopeID partitions knowledge per project; empty means global scope.
	ScopeID string `yaml:"scope_id" json:"scope_id,omitempty"`

	Store     StoreConfig     `yaml:"store" json:"store"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	Budget    BudgetConfig    `yaml:"budget" json:"budget"`
	Focus     FocusConfig     `yaml:"focus" json:"focus"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// StoreConfig configures the SQLite knowledge store.
type StoreConfig struct {
	// Path to the database file. ":memory:" is accepted for tests.
	Path string `yaml:"path" json:"path"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider: "ollama", "genai", or "" to disable semantic features.
	Provider string `yaml:"provider" json:"provider"`

	OllamaEndpoint string `yaml:"ollama_endpoint" json:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model" json:"ollama_model"`

	GenAIAPIKey string `yaml:"genai_api_key" json:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model" json:"genai_model"`
}

// CacheConfig configures the semantic cache.
type CacheConfig struct {
	// MaxItems bounds the warmed set; half learnings, half decisions.
	MaxItems int `yaml:"max_items" json:"max_items"`

	// SimilarityThreshold is the minimum cosine similarity for a match.
	SimilarityThreshold float64 `yaml:"similarity_threshold" json:"similarity_threshold"`
}

// BudgetConfig configures the budget manager.
type BudgetConfig struct {
	// TotalTokens is the overall context budget.
	TotalTokens int `yaml:"total_tokens" json:"total_tokens"`

	// Categories overrides per-category defaults. Values are clamped to
	// [MinCategoryTokens, MaxCategoryTokens] when applied.
	Categories map[string]int `yaml:"categories" json:"categories,omitempty"`

	MinCategoryTokens int `yaml:"min_category_tokens" json:"min_category_tokens"`
	MaxCategoryTokens int `yaml:"max_category_tokens" json:"max_category_tokens"`
}

// FocusConfig configures the focus/quality shifter. The two cooldowns are
// independent tunables; their defaults match the original system and no
// rationale for the specific values is documented.
type FocusConfig struct {
	WindowSize          int     `yaml:"window_size" json:"window_size"`
	DivergenceThreshold float64 `yaml:"divergence_threshold" json:"divergence_threshold"`
	MinCalls            int     `yaml:"min_calls" json:"min_calls"`

	// DivergenceCooldownSec gates automatic focus re-anchoring.
	DivergenceCooldownSec int `yaml:"divergence_cooldown_sec" json:"divergence_cooldown_sec"`

	// RefreshCooldownSec gates context-refresh recommendations.
	RefreshCooldownSec int `yaml:"refresh_cooldown_sec" json:"refresh_cooldown_sec"`
}

// LoggingConfig configures the logging sink.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode"`
	Categories map[string]bool `yaml:"categories" json:"categories,omitempty"`
	FilePath   string          `yaml:"file_path" json:"file_path,omitempty"`
}

// =============================================================================
// Defaults
// =============================================================================

// Default returns the full default configuration.
func Default() Config {
	return Config{
		Store:     DefaultStoreConfig(),
		Embedding: DefaultEmbeddingConfig(),
		Cache:     DefaultCacheConfig(),
		Budget:    DefaultBudgetConfig(),
		Focus:     DefaultFocusConfig(),
	}
}

// DefaultStoreConfig returns sensible store defaults.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{Path: filepath.Join(".memvault", "knowledge.db")}
}

// DefaultEmbeddingConfig returns sensible embedding defaults.
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Provider:       "ollama",
		OllamaEndpoint: "http://localhost:11434",
		OllamaModel:    "embeddinggemma",
		GenAIModel:     "gemini-embedding-001",
	}
}

// DefaultCacheConfig returns sensible cache defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{MaxItems: 500, SimilarityThreshold: 0.3}
}

// DefaultBudgetConfig returns sensible budget defaults.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		TotalTokens:       2000,
		MinCategoryTokens: 100,
		MaxCategoryTokens: 800,
	}
}

// DefaultFocusConfig returns sensible focus defaults.
func DefaultFocusConfig() FocusConfig {
	return FocusConfig{
		WindowSize:            5,
		DivergenceThreshold:   0.3,
		MinCalls:              3,
		DivergenceCooldownSec: 60,
		RefreshCooldownSec:    30,
	}
}

// =============================================================================
// Loading
// =============================================================================

// Load reads configuration from the given path, fills unset fields with
// defaults, and applies environment overrides. A missing file yields the
// defaults without error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if strings.HasSuffix(path, ".json") {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.fillDefaults()
	cfg.applyEnv()
	return cfg, nil
}

// fillDefaults restores zero-valued tunables to their defaults after parse.
func (c *Config) fillDefaults() {
	if c.Store.Path == "" {
		c.Store = DefaultStoreConfig()
	}
	if c.Cache.MaxItems <= 0 {
		c.Cache.MaxItems = 500
	}
	if c.Cache.SimilarityThreshold <= 0 {
		c.Cache.SimilarityThreshold = 0.3
	}
	if c.Budget.TotalTokens <= 0 {
		c.Budget.TotalTokens = 2000
	}
	if c.Budget.MinCategoryTokens <= 0 {
		c.Budget.MinCategoryTokens = 100
	}
	if c.Budget.MaxCategoryTokens <= 0 {
		c.Budget.MaxCategoryTokens = 800
	}
	if c.Focus.WindowSize <= 0 {
		c.Focus.WindowSize = 5
	}
	if c.Focus.DivergenceThreshold <= 0 {
		c.Focus.DivergenceThreshold = 0.3
	}
	if c.Focus.MinCalls <= 0 {
		c.Focus.MinCalls = 3
	}
	if c.Focus.DivergenceCooldownSec <= 0 {
		c.Focus.DivergenceCooldownSec = 60
	}
	if c.Focus.RefreshCooldownSec <= 0 {
		c.Focus.RefreshCooldownSec = 30
	}
}

// applyEnv applies environment variable overrides for secrets.
func (c *Config) applyEnv() {
	if key := os.Getenv("MEMVAULT_GENAI_API_KEY"); key != "" {
		c.Embedding.GenAIAPIKey = key
	}
	if provider := os.Getenv("MEMVAULT_EMBEDDING_PROVIDER"); provider != "" {
		c.Embedding.Provider = provider
	}
}
