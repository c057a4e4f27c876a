package main

import (
	"fmt"
	"os"

	"memvault/internal/config"
	"memvault/internal/embedding"
	"memvault/internal/intelligence"
	"memvault/internal/logging"
	"memvault/internal/session"
	"memvault/internal/store"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	scopeID    string

	// Wired on startup by PersistentPreRunE
	cfg    config.Config
	db     *store.SQLiteStore
	engine *session.Engine
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "memvault",
	Short: "memvault - context retrieval and assembly engine",
	Long: `memvault retrieves relevant knowledge from a persistent store and
assembles it into a bounded context block for each tool invocation.

It combines lexical analysis, full-text and semantic retrieval,
contradiction detection, trajectory analysis, and budget-constrained
packing into a single pipeline.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if scopeID != "" {
			cfg.ScopeID = scopeID
		}

		logOpts := logging.Options{
			DebugMode:  verbose || cfg.Logging.DebugMode,
			Categories: cfg.Logging.Categories,
			FilePath:   cfg.Logging.FilePath,
		}
		if err := logging.Initialize(logOpts); err != nil {
			return fmt.Errorf("initialize logging: %w", err)
		}

		db, err = store.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open knowledge store: %w", err)
		}

		emb, err := embedding.NewEngine(embedding.Config{
			Provider:       cfg.Embedding.Provider,
			OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
			OllamaModel:    cfg.Embedding.OllamaModel,
			GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
			GenAIModel:     cfg.Embedding.GenAIModel,
		})
		if err != nil {
			// Semantic features degrade; the lexical pipeline still works.
			logging.Get(logging.CategoryBoot).Warn("embedding engine unavailable: %v", err)
			emb = nil
		}

		providers := intelligence.Providers{
			Strategies: &intelligence.StoreStrategies{Q: db},
			Staleness:  &intelligence.StoreStaleness{Q: db},
			Overrides:  &intelligence.StoreOverrides{Q: db},
			Usage:      &intelligence.StoreUsage{Q: db},
		}
		engine = session.New(db, emb, providers, cfg)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			db.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".memvault/config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&scopeID, "scope", "", "knowledge scope override")

	rootCmd.AddCommand(warmCmd)
	rootCmd.AddCommand(injectCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
