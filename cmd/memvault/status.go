package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusJSON bool

// statusCmd reports the store and session state.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show knowledge store and session status",
	RunE: func(cmd *cobra.Command, args []string) error {
		st := engine.Status()

		counts := map[string]int64{}
		for _, table := range []string{"files", "decisions", "learnings", "issues", "error_fixes", "strategies"} {
			row, err := db.Get(cmd.Context(), "SELECT count(*) AS n FROM "+table)
			if err == nil && row != nil {
				counts[table] = row.Int("n")
			}
		}

		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{
				"session": st,
				"store":   counts,
				"fts":     db.HasFTS(),
			})
		}

		fmt.Printf("Store: %s (fts5=%v)\n", cfg.Store.Path, db.HasFTS())
		for _, table := range []string{"files", "decisions", "learnings", "issues", "error_fixes", "strategies"} {
			fmt.Printf("  %-13s %d\n", table, counts[table])
		}
		fmt.Printf("Session: %d calls recorded, cache %d items, hit rate %.0f%%\n",
			st.CallsRecorded, st.CacheSize, st.HitRate*100)
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print status as JSON")
}
