package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"crucible/internal/wiring"
)

var runFlags struct {
	session string
	target  string
}

var runCmd = &cobra.Command{
	Use:   "run <dataset-path>",
	Short: "Run the full pipeline over a dataset in one shot",
	Long: `Drives one session through all four stages: analyze, convert, evaluate,
enrich. A fresh session key is minted unless --session is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.session, "session", "", "Session key (default: mint a new one)")
	f.StringVar(&runFlags.target, "target-format", "json", "Format to convert the dataset into")
}

func runRun(cmd *cobra.Command, args []string) error {
	coord, done, err := buildCoordinator(cmd.Context())
	if err != nil {
		return err
	}
	defer done()

	key := runFlags.session
	if key == "" {
		key = uuid.NewString()
	}

	state, err := wiring.Run(cmd.Context(), coord, key, args[0], runFlags.target)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session: %s\n", key)
	fmt.Fprintf(out, "Stage:   %s\n", state.Stage)
	for _, tr := range state.History {
		fmt.Fprintf(out, "  %s -> %s [%s] %s\n", tr.From, tr.To, tr.Tool, tr.Timestamp)
	}
	return nil
}
