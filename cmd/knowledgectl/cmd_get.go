package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <query>",
	Short: "Look up one cached result",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	store := openStore()
	defer store.Shutdown()

	entry, ok := store.GetCachedResult(args[0])
	if !ok {
		return fmt.Errorf("no cached result for %q", args[0])
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Cached:     %s\n", entry.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(out, "Confidence: %.0f%%\n", entry.Confidence)
	fmt.Fprintf(out, "Accesses:   %d\n", entry.AccessCount)

	pretty, err := json.MarshalIndent(entry.Result, "", "  ")
	if err != nil {
		return fmt.Errorf("render result: %w", err)
	}
	fmt.Fprintf(out, "Result:\n%s\n", pretty)
	return nil
}
