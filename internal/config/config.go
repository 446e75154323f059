// Package config provides unified configuration loading for colonysim.
// It supports loading from YAML files and environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/colonysim/internal/models"
)

// Config contains all colonysim configuration settings.
type Config struct {
	// Logging contains settings for operational and run-trace logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Store selects where saved runs are kept.
	Store StoreConfig `json:"store" yaml:"store"`

	// Server configures the HTTP API.
	Server ServerConfig `json:"server" yaml:"server"`

	// Export configures where archives are uploaded.
	Export ExportConfig `json:"export" yaml:"export"`

	// Simulation holds defaults applied to every run.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`
}

// LoggingConfig configures colonysim's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables the run trace at TraceFile.
	Level string `json:"level" yaml:"level"`

	// TraceFile is the JSONL run trace path. Empty means ~/.colonysim/runs.jsonl.
	TraceFile string `json:"trace_file,omitempty" yaml:"trace_file,omitempty"`
}

// Store drivers.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// StoreConfig configures run persistence.
type StoreConfig struct {
	// Driver is "sqlite" (default), "postgres", or "memory".
	Driver string `json:"driver" yaml:"driver"`

	// Path is the SQLite database file. Empty means ~/.colonysim/runs.db.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// DSN is the Postgres connection string. Supports ${VAR} syntax.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// String implements fmt.Stringer to keep credentials in the DSN out of logs.
func (c StoreConfig) String() string {
	dsn := ""
	if c.DSN != "" {
		dsn = "(set)"
	}
	return fmt.Sprintf("StoreConfig{Driver:%s, Path:%s, DSN:%s}", c.Driver, c.Path, dsn)
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	// Addr is the listen address. Defaults to localhost only.
	Addr string `json:"addr" yaml:"addr"`

	// RateLimit is the sustained requests per second allowed per client.
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit"`

	// Burst is the number of requests a client may make at once.
	Burst int `json:"burst" yaml:"burst"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`

	// TrustedProxies lists proxy addresses or CIDR ranges whose
	// X-Forwarded-For header is believed. Empty means clients are keyed
	// by their connection address only.
	TrustedProxies []string `json:"trusted_proxies,omitempty" yaml:"trusted_proxies,omitempty"`
}

// ParseTrustedProxies parses addresses and CIDR ranges. A bare address is
// a single-host range.
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", e, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", e, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// Export destinations.
const (
	ExportFS = "fs"
	ExportS3 = "s3"
)

// ExportConfig configures archive uploads.
type ExportConfig struct {
	// Destination is "fs" (default) or "s3".
	Destination string `json:"destination" yaml:"destination"`

	// Dir is the filesystem destination. Empty means ~/.colonysim/exports.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`

	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config configures the S3 export destination. Credentials left empty
// are resolved by the AWS default chain.
type S3Config struct {
	Region          string `json:"region,omitempty" yaml:"region,omitempty"`
	Bucket          string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix          string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Endpoint        string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	AccessKeyID     string `json:"access_key_id,omitempty" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty" yaml:"secret_access_key,omitempty"`
	SessionToken    string `json:"session_token,omitempty" yaml:"session_token,omitempty"`
	PathStyle       bool   `json:"path_style,omitempty" yaml:"path_style,omitempty"`
}

// RedactedSecret returns the secret key with most characters masked.
// Shows first 4 and last 4 characters. Returns "" for empty keys and
// "(set)" for keys shorter than 12 chars.
func (c S3Config) RedactedSecret() string {
	if c.SecretAccessKey == "" {
		return ""
	}
	if len(c.SecretAccessKey) < 12 {
		return "(set)"
	}
	return c.SecretAccessKey[:4] + "..." + c.SecretAccessKey[len(c.SecretAccessKey)-4:]
}

// String implements fmt.Stringer to prevent accidental secret logging.
func (c S3Config) String() string {
	return fmt.Sprintf("S3Config{Region:%s, Bucket:%s, Endpoint:%s, Secret:%s}",
		c.Region, c.Bucket, c.Endpoint, c.RedactedSecret())
}

// SimulationConfig holds defaults for runs started from the CLI or API.
type SimulationConfig struct {
	// ParamsFile, when set, is loaded over the built-in defaults.
	ParamsFile string `json:"params_file,omitempty" yaml:"params_file,omitempty"`

	// Concurrency bounds parallel runs in comparisons (0 = GOMAXPROCS).
	Concurrency int `json:"concurrency" yaml:"concurrency"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level: "info",
		},
		Store: StoreConfig{
			Driver: StoreSQLite,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			RateLimit:       5,
			Burst:           10,
			ShutdownTimeout: 5 * time.Second,
		},
		Export: ExportConfig{
			Destination: ExportFS,
		},
	}
}

// HomeDir returns the colonysim data directory (~/.colonysim).
func HomeDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".colonysim"), nil
}

// DefaultPath returns the path Load reads (~/.colonysim/config.yaml).
func DefaultPath() (string, error) {
	dir, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.colonysim/config.yaml -> environment variables
func Load() (*Config, error) {
	config := Default()

	if configPath, err := DefaultPath(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadPath is Load with an explicit config file in place of the default
// one. An empty path falls back to Load.
func LoadPath(path string) (*Config, error) {
	if path == "" {
		return Load()
	}
	config, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(config)
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	config, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}

	config.Store.DSN = expandEnvVars(config.Store.DSN)
	config.Export.S3.AccessKeyID = expandEnvVars(config.Export.S3.AccessKeyID)
	config.Export.S3.SecretAccessKey = expandEnvVars(config.Export.S3.SecretAccessKey)
	config.Export.S3.SessionToken = expandEnvVars(config.Export.S3.SessionToken)

	return config, nil
}

// LoadRaw reads a YAML file over the defaults without expanding ${VAR}
// references, so an edited file can be saved back unchanged.
func LoadRaw(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return config, nil
}

// Save writes the configuration as YAML, creating parent directories.
func Save(c *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"info": true, "debug": true, "trace": true, "warn": true, "error": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, warn, error, or empty for default)", c.Logging.Level)
	}

	switch c.Store.Driver {
	case StoreSQLite, StoreMemory, "":
	case StorePostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store driver postgres requires a dsn")
		}
	default:
		return fmt.Errorf("invalid store driver: %s (valid: sqlite, postgres, memory)", c.Store.Driver)
	}

	if c.Server.RateLimit < 0 {
		return fmt.Errorf("rate_limit must be non-negative, got %v", c.Server.RateLimit)
	}
	if c.Server.Burst < 0 {
		return fmt.Errorf("burst must be non-negative, got %d", c.Server.Burst)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must be non-negative, got %v", c.Server.ShutdownTimeout)
	}
	if _, err := ParseTrustedProxies(c.Server.TrustedProxies); err != nil {
		return err
	}

	switch c.Export.Destination {
	case ExportFS, "":
	case ExportS3:
		if c.Export.S3.Bucket == "" {
			return fmt.Errorf("export destination s3 requires a bucket")
		}
	default:
		return fmt.Errorf("invalid export destination: %s (valid: fs, s3)", c.Export.Destination)
	}

	if c.Simulation.Concurrency < 0 {
		return fmt.Errorf("concurrency must be non-negative, got %d", c.Simulation.Concurrency)
	}

	return nil
}

// LoadParameters reads a YAML or JSON parameter file over the built-in
// defaults, so fields the file omits keep their default values. An empty
// path returns the defaults.
func LoadParameters(path string) (models.ParameterSet, error) {
	return LoadParametersOver(models.DefaultParameters(), path)
}

// LoadParametersOver is LoadParameters with an explicit base, such as a
// preset's parameters.
func LoadParametersOver(base models.ParameterSet, path string) (models.ParameterSet, error) {
	params := base
	if path == "" {
		return params, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return params, fmt.Errorf("reading parameter file: %w", err)
	}
	// YAML is a superset of JSON, so one decoder handles both. Unknown keys
	// are rejected so a misspelled field cannot silently keep its default.
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&params); err != nil && !errors.Is(err, io.EOF) {
		return base, fmt.Errorf("parsing parameter file: %w", err)
	}
	return params, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("COLONYSIM_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("COLONYSIM_TRACE_FILE"); v != "" {
		config.Logging.TraceFile = v
	}

	if v := os.Getenv("COLONYSIM_STORE_DRIVER"); v != "" {
		config.Store.Driver = v
	}
	if v := os.Getenv("COLONYSIM_STORE_PATH"); v != "" {
		config.Store.Path = v
	}
	if v := os.Getenv("COLONYSIM_DATABASE_URL"); v != "" {
		config.Store.DSN = v
	}

	if v := os.Getenv("COLONYSIM_SERVER_ADDR"); v != "" {
		config.Server.Addr = v
	}
	if v := os.Getenv("COLONYSIM_TRUSTED_PROXIES"); v != "" {
		config.Server.TrustedProxies = splitList(v)
	}
	if v := os.Getenv("COLONYSIM_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Server.RateLimit = f
		}
	}

	if v := os.Getenv("COLONYSIM_EXPORT_DESTINATION"); v != "" {
		config.Export.Destination = v
	}
	if v := os.Getenv("COLONYSIM_EXPORT_DIR"); v != "" {
		config.Export.Dir = v
	}
	if v := os.Getenv("COLONYSIM_S3_BUCKET"); v != "" {
		config.Export.S3.Bucket = v
	}
	if v := os.Getenv("COLONYSIM_S3_ENDPOINT"); v != "" {
		config.Export.S3.Endpoint = v
	}
	if v := os.Getenv("COLONYSIM_S3_PATH_STYLE"); v != "" {
		config.Export.S3.PathStyle = v == "true" || v == "1"
	}
	if v := os.Getenv("AWS_REGION"); v != "" && config.Export.S3.Region == "" {
		config.Export.S3.Region = v
	}

	if v := os.Getenv("COLONYSIM_PARAMS_FILE"); v != "" {
		config.Simulation.ParamsFile = v
	}
	if v := os.Getenv("COLONYSIM_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Concurrency = n
		}
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
