// Package mcp provides an MCP (Model Context Protocol) server for colonysim.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/colonysim/internal/export"
	"github.com/nvandessel/colonysim/internal/logging"
	"github.com/nvandessel/colonysim/internal/pathutil"
	"github.com/nvandessel/colonysim/internal/ratelimit"
	"github.com/nvandessel/colonysim/internal/store"
)

// Server wraps the MCP SDK server and exposes simulations as tools.
type Server struct {
	server       *sdk.Server
	runs         store.RunStore
	sink         export.Sink
	guard        *pathutil.Guard
	concurrency  int
	logger       *slog.Logger
	trace        *logging.RunTraceLogger
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "colonysim")
	Version string // Server version

	// Runs is owned by the server and closed with it.
	Runs store.RunStore

	// Sink receives exports that name no output path. Optional.
	Sink export.Sink

	// Guard confines explicit output paths. Without one, output paths are rejected.
	Guard *pathutil.Guard

	// AuditPath is the JSONL audit log; empty disables auditing.
	AuditPath string

	// Concurrency bounds parallel runs in a comparison (0 = GOMAXPROCS).
	Concurrency int

	Logger *slog.Logger
	Trace  *logging.RunTraceLogger
}

// NewServer creates a new MCP server with colonysim tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Runs == nil {
		return nil, errors.New("mcp server requires a run store")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:       mcpServer,
		runs:         cfg.Runs,
		sink:         cfg.Sink,
		guard:        cfg.Guard,
		concurrency:  cfg.Concurrency,
		logger:       logger,
		trace:        cfg.Trace,
		toolLimiters: ratelimit.NewToolLimiters(),
	}
	if cfg.AuditPath != "" {
		s.auditLogger = NewAuditLogger(cfg.AuditPath)
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run serves over stdio until the client disconnects or ctx is cancelled,
// then closes the server.
func (s *Server) Run(ctx context.Context) error {
	err := s.server.Run(ctx, &sdk.StdioTransport{})
	if closeErr := s.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// Close closes the run store and the audit log.
func (s *Server) Close() error {
	var firstErr error
	if err := s.runs.Close(); err != nil {
		firstErr = fmt.Errorf("closing run store: %w", err)
	}
	if err := s.auditLogger.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing audit log: %w", err)
	}
	return firstErr
}
