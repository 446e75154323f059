package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/colonysim/internal/config"
)

// configKeys lists the keys config list prints, in order.
var configKeys = []string{
	"logging.level",
	"logging.trace_file",
	"store.driver",
	"store.path",
	"store.dsn",
	"server.addr",
	"server.rate_limit",
	"server.burst",
	"server.shutdown_timeout",
	"server.trusted_proxies",
	"export.destination",
	"export.dir",
	"export.s3.region",
	"export.s3.bucket",
	"export.s3.prefix",
	"export.s3.endpoint",
	"export.s3.access_key_id",
	"export.s3.secret_access_key",
	"export.s3.path_style",
	"simulation.params_file",
	"simulation.concurrency",
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage colonysim configuration",
		Long: `View and modify colonysim configuration settings.

Configuration is stored in ~/.colonysim/config.yaml (or the --config file).
Environment variables such as COLONYSIM_STORE_DRIVER override the file.

Examples:
  colonysim config list                          # Show all settings
  colonysim config get store.driver              # Get a specific setting
  colonysim config set store.driver postgres     # Set a setting
  colonysim config set store.dsn '${DATABASE_URL}'`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				// Redact secrets before JSON serialization to prevent leakage
				redacted := *cfg
				redacted.Store.DSN = redactDSN(cfg.Store.DSN)
				redacted.Export.S3.SecretAccessKey = cfg.Export.S3.RedactedSecret()
				redacted.Export.S3.SessionToken = redactDSN(cfg.Export.S3.SessionToken)
				return printJSON(out, redacted)
			}

			path, _ := configPath(cmd)
			fmt.Fprintf(out, "Configuration (%s):\n\n", path)
			printConfig(out, cfg)
			return nil
		},
	}
}

func printConfig(w io.Writer, cfg *config.Config) {
	for _, key := range configKeys {
		value, _ := getConfigValue(cfg, key)
		s := fmt.Sprint(value)
		if s == "" {
			s = "(not set)"
		}
		fmt.Fprintf(w, "  %-29s %s\n", key+":", s)
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			value, found := getConfigValue(cfg, key)
			if !found {
				return fmt.Errorf("unknown configuration key: %s", key)
			}

			if jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"key":   key,
					"value": value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]
			value := args[1]

			path, err := configPath(cmd)
			if err != nil {
				return err
			}

			// Edit the file alone so environment overrides are not persisted.
			cfg := config.Default()
			if _, statErr := os.Stat(path); statErr == nil {
				cfg, err = config.LoadRaw(path)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
			} else if !errors.Is(statErr, os.ErrNotExist) {
				return fmt.Errorf("failed to read config: %w", statErr)
			}

			if err := setConfigValue(cfg, key, value); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			if err := config.Save(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			shown, _ := getConfigValue(cfg, key)
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"status": "updated",
					"key":    key,
					"value":  shown,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", key, shown)
			return nil
		},
	}
}

// getConfigValue retrieves a configuration value by dot-notation key.
// Secrets come back redacted.
func getConfigValue(cfg *config.Config, key string) (interface{}, bool) {
	switch key {
	case "logging.level":
		return cfg.Logging.Level, true
	case "logging.trace_file":
		return cfg.Logging.TraceFile, true
	case "store.driver":
		return cfg.Store.Driver, true
	case "store.path":
		return cfg.Store.Path, true
	case "store.dsn":
		return redactDSN(cfg.Store.DSN), true
	case "server.addr":
		return cfg.Server.Addr, true
	case "server.rate_limit":
		return cfg.Server.RateLimit, true
	case "server.burst":
		return cfg.Server.Burst, true
	case "server.shutdown_timeout":
		return cfg.Server.ShutdownTimeout.String(), true
	case "server.trusted_proxies":
		return strings.Join(cfg.Server.TrustedProxies, ","), true
	case "export.destination":
		return cfg.Export.Destination, true
	case "export.dir":
		return cfg.Export.Dir, true
	case "export.s3.region":
		return cfg.Export.S3.Region, true
	case "export.s3.bucket":
		return cfg.Export.S3.Bucket, true
	case "export.s3.prefix":
		return cfg.Export.S3.Prefix, true
	case "export.s3.endpoint":
		return cfg.Export.S3.Endpoint, true
	case "export.s3.access_key_id":
		return cfg.Export.S3.AccessKeyID, true
	case "export.s3.secret_access_key":
		return cfg.Export.S3.RedactedSecret(), true
	case "export.s3.path_style":
		return cfg.Export.S3.PathStyle, true
	case "simulation.params_file":
		return cfg.Simulation.ParamsFile, true
	case "simulation.concurrency":
		return cfg.Simulation.Concurrency, true
	default:
		return nil, false
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch key {
	case "logging.level":
		cfg.Logging.Level = value
	case "logging.trace_file":
		cfg.Logging.TraceFile = value
	case "store.driver":
		cfg.Store.Driver = value
	case "store.path":
		cfg.Store.Path = value
	case "store.dsn":
		cfg.Store.DSN = value
	case "server.addr":
		cfg.Server.Addr = value
	case "server.rate_limit":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid rate limit: %s (must be a number)", value)
		}
		cfg.Server.RateLimit = f
	case "server.burst":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid burst: %s (must be an integer)", value)
		}
		cfg.Server.Burst = n
	case "server.shutdown_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		cfg.Server.ShutdownTimeout = d
	case "server.trusted_proxies":
		var proxies []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				proxies = append(proxies, p)
			}
		}
		cfg.Server.TrustedProxies = proxies
	case "export.destination":
		cfg.Export.Destination = value
	case "export.dir":
		cfg.Export.Dir = value
	case "export.s3.region":
		cfg.Export.S3.Region = value
	case "export.s3.bucket":
		cfg.Export.S3.Bucket = value
	case "export.s3.prefix":
		cfg.Export.S3.Prefix = value
	case "export.s3.endpoint":
		cfg.Export.S3.Endpoint = value
	case "export.s3.access_key_id":
		cfg.Export.S3.AccessKeyID = value
	case "export.s3.secret_access_key":
		cfg.Export.S3.SecretAccessKey = value
	case "export.s3.path_style":
		cfg.Export.S3.PathStyle = value == "true" || value == "1"
	case "simulation.params_file":
		cfg.Simulation.ParamsFile = value
	case "simulation.concurrency":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid concurrency: %s (must be an integer)", value)
		}
		cfg.Simulation.Concurrency = n
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

// redactDSN hides a connection string, which may embed a password.
func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	return "(set)"
}
