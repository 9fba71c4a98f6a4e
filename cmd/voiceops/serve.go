package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/voiceops/internal/mcpserver"
	"github.com/spf13/cobra"
)

var serveFlags struct {
	addr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the command engine as MCP tools over HTTP",
	Long: `Start the command engine and expose it as MCP tools at /mcp.

Tools: submit_command, confirm_action, clear_result, get_state, reconnect
and run_esql. The server runs until interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "127.0.0.1:8765", "Listen address")
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, cfg, err := startRuntime()
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initial check so get_state reports connectivity from the start.
	if _, err := rt.Monitor().CheckHealth(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: backend at %s is not healthy: %v\n", cfg.APIURL, err)
	}

	srv := mcpserver.New(rt.Engine(), rt.Monitor(), rt.Client())
	addr, err := srv.Start(ctx, serveFlags.addr)
	if err != nil {
		return err
	}
	fmt.Printf("MCP server listening on http://%s/mcp\n", addr)

	<-ctx.Done()
	fmt.Println("Shutting down...")
	return srv.Stop(cmd.Context())
}
