package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"crucible/internal/pipeline"
)

var resetFlags struct {
	session string
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset a session back to the empty stage",
	RunE:  runReset,
}

func init() {
	resetCmd.Flags().StringVar(&resetFlags.session, "session", "", "Session key (required)")
	_ = resetCmd.MarkFlagRequired("session")
}

func runReset(cmd *cobra.Command, _ []string) error {
	coord, done, err := buildCoordinator(cmd.Context())
	if err != nil {
		return err
	}
	defer done()

	if err := coord.Reset(resetFlags.session); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Session %s reset to empty\n", resetFlags.session)
	return nil
}

var resetWorkerCmd = &cobra.Command{
	Use:   "reset-worker <kind>",
	Short: "Return a failed worker kind to ready",
	Args:  cobra.ExactArgs(1),
	RunE:  runResetWorker,
}

func runResetWorker(cmd *cobra.Command, args []string) error {
	kind, err := pipeline.ParseKind(args[0])
	if err != nil {
		return err
	}

	coord, done, err := buildCoordinator(cmd.Context())
	if err != nil {
		return err
	}
	defer done()

	if err := coord.ResetWorker(kind); err != nil {
		return fmt.Errorf("reset worker: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Worker %s reset\n", kind)
	return nil
}
