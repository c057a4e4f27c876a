package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	injectTool string
	injectJSON bool
)

// injectRequest is the stdin payload for the inject command.
type injectRequest struct {
	Tool string                 `json:"tool"`
	Args map[string]interface{} `json:"args"`
}

// injectCmd runs the full pipeline for one tool call and prints the
// assembled context block.
var injectCmd = &cobra.Command{
	Use:   "inject",
	Short: "Assemble a context block for a tool call",
	Long: `Reads a tool call as JSON from stdin ({"tool": ..., "args": {...}}),
runs retrieval, contradiction detection, intelligence collection, and
budget assembly, and prints the bounded context block.

With --json the full structured result is printed instead of the text.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}

		var req injectRequest
		if len(data) > 0 {
			if err := json.Unmarshal(data, &req); err != nil {
				return fmt.Errorf("parse tool call: %w", err)
			}
		}
		if injectTool != "" {
			req.Tool = injectTool
		}
		if req.Tool == "" {
			return fmt.Errorf("no tool name given (use --tool or the stdin payload)")
		}

		engine.WarmCache(cmd.Context())
		assembled := engine.HandleToolCall(cmd.Context(), req.Tool, req.Args)

		if injectJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(assembled)
		}
		fmt.Print(assembled.Text)
		return nil
	},
}

func init() {
	injectCmd.Flags().StringVar(&injectTool, "tool", "", "tool name override")
	injectCmd.Flags().BoolVar(&injectJSON, "json", false, "print the structured result as JSON")
}
