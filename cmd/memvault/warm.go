package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// warmCmd loads the semantic cache from storage.
var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Warm the semantic cache from the knowledge store",
	Long: `Loads the top-confidence learnings and most recent active decisions
that carry stored embeddings into the in-memory semantic cache.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		size := engine.WarmCache(cmd.Context())
		fmt.Printf("Semantic cache warmed: %d items\n", size)
		return nil
	},
}
