package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/colonysim/internal/config"
	"github.com/nvandessel/colonysim/internal/export"
	"github.com/nvandessel/colonysim/internal/mcp"
	"github.com/nvandessel/colonysim/internal/pathutil"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Run as an MCP server over stdio",
		Long: `Serve colonysim tools to AI agents over the Model Context Protocol.

Tools: colonysim_run, colonysim_validate, colonysim_compare, colonysim_runs,
colonysim_defaults, colonysim_export. Tool calls are audited to
~/.colonysim/audit.jsonl.

Example client configuration:
  {"mcpServers": {"colonysim": {"command": "colonysim", "args": ["mcp-server"]}}}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			// stdout carries the protocol; logs go to stderr.
			logger := newLogger(cmd, cfg)
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			runs, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}

			sink, err := export.OpenSink(ctx, cfg.Export)
			if err != nil {
				logger.Warn("export destination unavailable; exports need an output path", "error", err)
				sink = nil
			}

			guard, err := pathutil.NewExportGuard(cfg.Export)
			if err != nil {
				logger.Warn("output paths disabled", "error", err)
				guard = nil
			}

			home, err := config.HomeDir()
			if err != nil {
				runs.Close()
				return err
			}

			trace := openTrace(cfg)
			defer trace.Close()

			server, err := mcp.NewServer(&mcp.Config{
				Name:        "colonysim",
				Version:     version,
				Runs:        runs,
				Sink:        sink,
				Guard:       guard,
				AuditPath:   filepath.Join(home, "audit.jsonl"),
				Concurrency: cfg.Simulation.Concurrency,
				Logger:      logger,
				Trace:       trace,
			})
			if err != nil {
				runs.Close()
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			logger.Info("MCP server ready", "store", cfg.Store.Driver)
			return server.Run(ctx)
		},
	}
}
