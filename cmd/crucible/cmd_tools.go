package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"crucible/internal/format"
)

var toolsFlags struct {
	markdown bool
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the registered pipeline tools",
	RunE:  runTools,
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsFlags.markdown, "markdown", false, "Render as a Markdown table")
}

func runTools(cmd *cobra.Command, _ []string) error {
	coord, done, err := buildCoordinator(cmd.Context())
	if err != nil {
		return err
	}
	defer done()

	mode := format.ASCII
	if toolsFlags.markdown {
		mode = format.Markdown
	}

	tb := format.NewTable(mode)
	tb.Header("Tool", "Worker", "Requires", "Params", "Description")
	tb.WrapColumn(5, 48)
	for _, d := range coord.ListTools() {
		var params []string
		for _, p := range d.Params {
			name := p.Name
			if p.Required {
				name += "*"
			}
			params = append(params, name)
		}
		tb.Row(d.Name, orDash(string(d.Worker)), orDash(string(d.Requires)),
			orDash(strings.Join(params, ", ")), d.Description)
	}

	fmt.Fprintln(cmd.OutOrStdout(), tb.String())
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
