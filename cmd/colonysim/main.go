package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/colonysim/internal/config"
	"github.com/nvandessel/colonysim/internal/logging"
	"github.com/nvandessel/colonysim/internal/store"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "colonysim",
		Short: "Colony sim - free-roaming cat population modeling",
		Long: `colonysim projects the size of a free-roaming cat colony under
fertility control.

It runs a deterministic monthly model of a focal colony coupled to its
neighborhood, checks the model against published outcomes, and keeps
saved runs for comparison and export.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.colonysim/config.yaml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newValidateCmd(),
		newCompareCmd(),
		newParamsCmd(),
		// Saved runs
		newRunsCmd(),
		newExportCmd(),
		newImportCmd(),
		// Servers
		newServeCmd(),
		newMCPServerCmd(),
		newConfigCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"version": version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "colonysim version %s\n", version)
			return nil
		},
	}
}

// loadConfig loads the file named by --config (or the default file) with
// environment overrides applied.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// configPath returns the file config set writes to.
func configPath(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path, nil
	}
	return config.DefaultPath()
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
}

// openTrace returns the run trace for cfg, or nil below debug level.
func openTrace(cfg *config.Config) *logging.RunTraceLogger {
	path := cfg.Logging.TraceFile
	if path == "" {
		dir, err := config.HomeDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(dir, "runs.jsonl")
	}
	return logging.NewRunTraceLogger(path, cfg.Logging.Level)
}

func openStore(ctx context.Context, cfg *config.Config) (store.RunStore, error) {
	runs, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	return runs, nil
}

// signalContext returns a child of parent cancelled on interrupt.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// valueOrDefault returns the value if non-empty, otherwise the default.
func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
