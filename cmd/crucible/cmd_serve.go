package main

import (
	"context"

	"github.com/spf13/cobra"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"crucible/internal/logging"
	mcpserver "crucible/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over stdio",
	Long: `Starts an MCP server over stdin/stdout. MCP clients connect via their
mcp.json configuration and call the pipeline tools directly.

The server monitors for parent process death. When the client disconnects or
restarts, the server self-terminates to prevent zombie processes.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	coord, done, err := buildCoordinator(ctx)
	if err != nil {
		return err
	}
	defer done()

	srv := mcpserver.NewServer(coord)
	mcpserver.WatchParent(ctx, cancel)

	logging.New("mcp").Info("starting crucible MCP server over stdio (parent watchdog active)")
	return srv.Run(ctx, &sdkmcp.StdioTransport{})
}
