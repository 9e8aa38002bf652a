package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/novella/internal/cli"
	"github.com/aretw0/novella/pkg/adapters/mcp"
	"github.com/aretw0/novella/pkg/observability"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp [dir]",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts novella as an MCP Server so that AI agents can play stories as tools.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP, selected by --port or mcp.port.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, args)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.MCP.Port, _ = cmd.Flags().GetInt("port")
		}

		// Logs must never reach Stdout, which carries JSON-RPC in stdio mode.
		log.SetOutput(os.Stderr)
		logger, _, err := cli.NewLogger(cfg, os.Stderr)
		if err != nil {
			return err
		}

		engine, err := cli.NewEngine(cfg, logger, observability.LogHooks(logger))
		if err != nil {
			return err
		}
		sessions, closeStore, err := cli.NewSessions(projectStore(cfg), logger)
		if err != nil {
			return err
		}
		defer closeStore()

		srv := mcp.NewServer(engine, sessions, logger)
		if cfg.MCP.Port == 0 {
			logger.Info("starting novella MCP server (stdio)")
			return srv.ServeStdio()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := srv.ServeSSE(ctx, cfg.MCP.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("mcp server: %w", err)
		}
		logger.Info("mcp server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().IntP("port", "p", 0, "Serve the SSE transport on this port instead of stdio")
}
