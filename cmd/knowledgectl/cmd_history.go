package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var historyFlags struct {
	limit int
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent queries, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyFlags.limit, "limit", "n", 20, "Maximum entries to show")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	store := openStore()
	defer store.Shutdown()

	entries := store.RecentHistory(historyFlags.limit)
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No history recorded yet.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s  %3.0f%%  %s\n",
			e.Timestamp.Format("2006-01-02 15:04"), e.Confidence, e.Query)
	}
	return nil
}
