package main

import (
	"github.com/spf13/cobra"

	"github.com/nvandessel/colonysim/internal/api"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the JSON HTTP API: run, compare and validate simulations, and
manage saved runs. Prometheus metrics are exposed at /metrics.

The server stops gracefully on SIGINT or SIGTERM.

Examples:
  colonysim serve
  colonysim serve --addr 0.0.0.0:8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Addr = addr
			}
			logger := newLogger(cmd, cfg)

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			runs, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer runs.Close()

			trace := openTrace(cfg)
			defer trace.Close()

			logger.Debug("starting HTTP API", "store", cfg.Store.String())
			server := api.NewServer(runs, cfg.Server, api.Options{
				Logger:      logger,
				Trace:       trace,
				Concurrency: cfg.Simulation.Concurrency,
			})
			return server.ListenAndServe(ctx)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default from config, 127.0.0.1:8080)")

	return cmd
}
