package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanupFlags struct {
	dryRun bool
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove stale, rarely used entries",
	Long: "Cleanup removes entries older than thirty days with fewer than two\n" +
		"accesses, the same policy the bot applies during its own maintenance.",
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupFlags.dryRun, "dry-run", false,
		"Report what would be removed without writing")
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	store := openStore()
	defer store.Shutdown()

	out := cmd.OutOrStdout()
	if cleanupFlags.dryRun {
		fmt.Fprintf(out, "%d stale entries would be removed\n", store.CountStaleKnowledge())
		return nil
	}

	removed := store.CleanupOldKnowledge()
	if removed == 0 {
		fmt.Fprintln(out, "Nothing to clean up.")
		return nil
	}
	if err := store.SaveNow(); err != nil {
		return fmt.Errorf("save knowledge file: %w", err)
	}
	fmt.Fprintf(out, "Removed %d stale entries\n", removed)
	return nil
}
