// Package api serves simulations, saved runs, and Prometheus metrics over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nvandessel/colonysim/internal/config"
	"github.com/nvandessel/colonysim/internal/logging"
	"github.com/nvandessel/colonysim/internal/ratelimit"
	"github.com/nvandessel/colonysim/internal/store"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// maxCompareScenarios bounds one comparison request.
const maxCompareScenarios = 16

// Server is the colonysim HTTP API.
type Server struct {
	runs        store.RunStore
	cfg         config.ServerConfig
	concurrency int
	logger      *slog.Logger
	trace       *logging.RunTraceLogger
	limiter     *ratelimit.Limiter
	trusted     []netip.Prefix
	metrics     *Metrics

	httpServer *http.Server
	mu         sync.Mutex
	addr       string
}

// Options holds the optional collaborators of a Server.
type Options struct {
	Logger *slog.Logger
	Trace  *logging.RunTraceLogger
	// Concurrency bounds parallel runs in a comparison (0 = GOMAXPROCS).
	Concurrency int
}

// NewServer creates a server over runs. A zero RateLimit in cfg disables
// rate limiting.
func NewServer(runs store.RunStore, cfg config.ServerConfig, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{
		runs:        runs,
		cfg:         cfg,
		concurrency: opts.Concurrency,
		logger:      logger,
		trace:       opts.Trace,
		metrics:     NewMetrics(),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = ratelimit.NewLimiter(cfg.RateLimit, burst)
	}
	trusted, err := config.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		logger.Warn("ignoring trusted proxies", "error", err)
	}
	s.trusted = trusted
	return s
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/defaults", s.handleDefaults)
	mux.HandleFunc("GET /api/presets", s.handlePresets)
	mux.HandleFunc("POST /api/simulate", s.handleSimulate)
	mux.HandleFunc("POST /api/compare", s.handleCompare)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("DELETE /api/runs/{id}", s.handleDeleteRun)
	mux.HandleFunc("GET /api/runs/{id}/csv", s.handleRunCSV)

	api := s.rateLimit(mux)

	root := http.NewServeMux()
	root.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
	root.Handle("/api/", api)
	return s.instrument(root)
}

// Addr returns the address the server is listening on.
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// ListenAndServe listens on the configured address and blocks until the
// context is cancelled. Returns nil on clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled or ln fails. It
// returns only after any shutdown it started has finished.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Unlock()

	s.logger.Info("HTTP API listening", "addr", s.Addr(), "rate_limit", s.cfg.RateLimit)

	// Graceful shutdown when context is cancelled. The goroutine also exits
	// when Serve fails on its own.
	serveDone := make(chan struct{})
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		select {
		case <-ctx.Done():
		case <-serveDone:
			return
		}
		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP API shutdown", "error", err)
		}
	}()

	err := s.httpServer.Serve(ln)
	close(serveDone)
	<-shutdownDone
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
