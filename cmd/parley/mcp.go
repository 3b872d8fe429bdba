package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/pario-ai/parley/pkg/audit"
	"github.com/pario-ai/parley/pkg/mcp"
)

func newMCPCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve redaction and audit search as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			// stdout carries the protocol; logs go to stderr.
			logger, err := newLogger(cfg, os.Stderr)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := audit.NewStore(ctx, cfg.Audit.Driver, cfg.Audit.DBPath, cfg.Audit.DatabaseURL)
			if err != nil {
				return fmt.Errorf("open audit store: %w", err)
			}
			defer store.Close()

			stdioServer := mcpserver.NewStdioServer(mcp.NewServer(version, store, logger, otel.Tracer("github.com/pario-ai/parley")))

			logger.Info("serving MCP over stdio")
			if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil {
				return fmt.Errorf("stdio server: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to parley config file")
	return cmd
}
