// crucible drives the dataset conversion pipeline: analyze, convert,
// evaluate, enrich. It serves the pipeline over MCP for agent integration
// and exposes the same operations as one-shot CLI commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "crucible",
	Short: "Multi-stage dataset conversion pipeline",
	Long: "Crucible orchestrates dataset conversion as a strict stage ladder\n" +
		"(analyze, convert, evaluate, enrich) with per-session state and\n" +
		"serialized domain workers.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

var rootFlags struct {
	configPath string
	dbPath     string
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.configPath, "config", "",
		"Path to config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&rootFlags.dbPath, "db", "",
		"Sqlite session DB path (overrides config; selects the sqlite backend)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(invokeCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(resetWorkerCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
