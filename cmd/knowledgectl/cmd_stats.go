package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the knowledge file",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, _ []string) error {
	store := openStore()
	defer store.Shutdown()

	stats := store.Stats()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "File:           %s\n", stats.Path)
	fmt.Fprintf(out, "Entries:        %d\n", stats.Entries)
	fmt.Fprintf(out, "History:        %d\n", stats.HistoryLength)
	fmt.Fprintf(out, "Total accesses: %d\n", stats.TotalAccesses)
	if stats.LastSaved.IsZero() {
		fmt.Fprintf(out, "Last saved:     never\n")
	} else {
		fmt.Fprintf(out, "Last saved:     %s\n", stats.LastSaved.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "Stale entries:  %d\n", store.CountStaleKnowledge())
	return nil
}
