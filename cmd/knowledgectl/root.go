package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/f0rky/Chimp-GPT-sub004/internal/knowledge"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	file string
}

var rootCmd = &cobra.Command{
	Use:   "knowledgectl",
	Short: "Inspect and maintain the bot's knowledge file",
	Long: "knowledgectl works on the JSON knowledge file the bot persists between\n" +
		"sessions: cached results, query history, and confidence scores.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootFlags.file, "file", "f",
		defaultKnowledgePath(), "Path to the knowledge file")

	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.Version = version
}

func defaultKnowledgePath() string {
	if p := os.Getenv("KNOWLEDGE_FILE_PATH"); p != "" {
		return p
	}
	return "data/knowledge.json"
}

// openStore loads the knowledge file with a debounce long enough that no
// background save fires during a CLI run; Shutdown flushes whatever a
// command changed.
func openStore() *knowledge.Store {
	return knowledge.NewStore(rootFlags.file, time.Hour, zap.NewNop())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
