package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"crucible/internal/format"
)

var statusFlags struct {
	session string
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a session's pipeline state and the worker pool",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusFlags.session, "session", "", "Session key (required)")
	_ = statusCmd.MarkFlagRequired("session")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	coord, done, err := buildCoordinator(cmd.Context())
	if err != nil {
		return err
	}
	defer done()

	state, err := coord.State(statusFlags.session)
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session: %s\n", state.Key)
	fmt.Fprintf(out, "Stage:   %s\n", state.Stage)
	if updated, err := time.Parse(time.RFC3339Nano, state.UpdatedAt); err == nil {
		fmt.Fprintf(out, "Updated: %s (idle %s)\n", state.UpdatedAt, format.FmtDuration(time.Since(updated)))
	} else {
		fmt.Fprintf(out, "Updated: %s\n", state.UpdatedAt)
	}

	if len(state.Slots) > 0 {
		tb := format.NewTable(format.ASCII)
		tb.Header("Slot", "Value")
		tb.WrapColumn(2, 64)
		for name, value := range state.Slots {
			tb.Row(name, format.Truncate(fmt.Sprint(value), 128))
		}
		fmt.Fprintln(out, tb.String())
	}

	if len(state.History) > 0 {
		fmt.Fprintf(out, "History: (%d transitions)\n", len(state.History))
		for _, tr := range state.History {
			fmt.Fprintf(out, "  %s -> %s [%s] %s\n", tr.From, tr.To, tr.Tool, tr.Timestamp)
		}
	}

	fmt.Fprintf(out, "Workers:\n")
	for kind, st := range coord.WorkerStatuses() {
		fmt.Fprintf(out, "  %s: %s\n", kind, st)
	}
	return nil
}
