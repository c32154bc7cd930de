// Package webapi provides the HTTP transport for the generation service.
// This file contains the Server organism that wires together all HTTP
// components.
package webapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"sdserve/db"
	"sdserve/imagegen"
	"sdserve/logging"
	"sdserve/metrics"
	"sdserve/sdruntime"

	"go.uber.org/zap"
)

// GenerationService is the orchestrator behind POST /generate. It is
// implemented by imagegen.Service; the interface keeps the transport
// testable with a fake backend.
type GenerationService interface {
	HandleGeneration(ctx context.Context, req *imagegen.Request) (*imagegen.Result, error)
}

// Runtime exposes the generator state the HTTP layer reports on.
// Implemented by sdruntime.Generator.
type Runtime interface {
	// Info returns a snapshot of the loaded model and its defaults
	Info() sdruntime.Info

	// InFlight returns the current in-flight generation count
	InFlight() int64

	// PeakInFlight returns the highest in-flight count observed
	PeakInFlight() int64
}

// HistoryStore reads generation metadata records for GET /history.
// Implemented by db.Store.
type HistoryStore interface {
	RecentGenerations(ctx context.Context, limit int) ([]db.GenerationRecord, error)
	GenerationsByRequestID(ctx context.Context, requestID string) ([]db.GenerationRecord, error)
}

// AuthProvider wraps handlers with authentication. Implemented by
// TokenAuth; nil disables auth entirely.
type AuthProvider interface {
	Middleware(next http.Handler) http.Handler
}

// Server is the main HTTP server organism for the generation API,
// composed from:
//   - GenerationService for the synchronous generate flow
//   - Runtime for health and in-flight reporting
//   - HistoryStore for recent generation metadata (optional)
//   - metrics.MetricsCollector for the runtime snapshot (optional)
//   - AuthProvider for bearer token auth (optional)
//   - LoggingMiddleware and RequestIDMiddleware for request observation
type Server struct {
	httpServer   *http.Server
	mux          *http.ServeMux
	config       ServerConfig
	logger       *logging.Logger
	service      GenerationService
	runtime      Runtime
	history      HistoryStore
	collector    metrics.MetricsCollector
	gpuCollector *metrics.GPUCollector
	auth         AuthProvider
	loggingMw    *LoggingMiddleware
}

// ServerConfig configures the Server.
type ServerConfig struct {
	// ServiceName reported by the root endpoint (default: "stable-diffusion-api")
	ServiceName string

	// Version reported by the root endpoint (default: "1.0.0")
	Version string

	// Host to bind to (default: "0.0.0.0")
	Host string

	// Port to listen on (default: 8000)
	Port int

	// ReadTimeout bounds reading one request (default: 30s)
	ReadTimeout time.Duration

	// WriteTimeout for HTTP responses (default: 10m). Generation is
	// synchronous, so this must exceed the slowest expected generation.
	WriteTimeout time.Duration

	// IdleTimeout closes idle keep-alive connections (default: 120s)
	IdleTimeout time.Duration

	// ShutdownTimeout bounds the drain when Shutdown runs (default: 30s)
	ShutdownTimeout time.Duration

	// LogSkipPaths are paths to skip logging (default: /health)
	LogSkipPaths []string

	// HistoryDefaultLimit is the /history limit when none is given (default: 50)
	HistoryDefaultLimit int

	// HistoryMaxLimit caps the /history limit parameter (default: 200)
	HistoryMaxLimit int

	// MetricsRecentLimit is how many recent samples /metrics includes (default: 20)
	MetricsRecentLimit int
}

// DefaultServerConfig returns the defaults documented on ServerConfig.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ServiceName:         "stable-diffusion-api",
		Version:             "1.0.0",
		Host:                "0.0.0.0",
		Port:                8000,
		ReadTimeout:         30 * time.Second,
		WriteTimeout:        10 * time.Minute,
		IdleTimeout:         120 * time.Second,
		ShutdownTimeout:     30 * time.Second,
		LogSkipPaths:        []string{"/health"},
		HistoryDefaultLimit: 50,
		HistoryMaxLimit:     200,
		MetricsRecentLimit:  20,
	}
}

// NewServer creates a new Server with the given configuration and wires
// together the middleware and handlers.
//
// The service and runtime are required. The history store, metrics
// collector, GPU collector, and auth provider are optional; their
// endpoints are only registered when the component is present.
func NewServer(
	config ServerConfig,
	service GenerationService,
	runtime Runtime,
	history HistoryStore,
	collector metrics.MetricsCollector,
	gpuCollector *metrics.GPUCollector,
	auth AuthProvider,
	logger *logging.Logger,
) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("webapi: generation service is required")
	}
	if runtime == nil {
		return nil, fmt.Errorf("webapi: runtime is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	applyConfigDefaults(&config)

	mux := http.NewServeMux()

	loggingMw := NewLoggingMiddleware(LoggingMiddlewareConfig{
		Logger:    &ZapRequestLogger{Logger: logger},
		Collector: collector,
		SkipPaths: config.LogSkipPaths,
	})

	server := &Server{
		mux:          mux,
		config:       config,
		logger:       logger,
		service:      service,
		runtime:      runtime,
		history:      history,
		collector:    collector,
		gpuCollector: gpuCollector,
		auth:         auth,
		loggingMw:    loggingMw,
	}

	server.setupRoutes()

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server.httpServer = &http.Server{
		Addr:         addr,
		Handler:      server.rootHandler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	logger.Info("server created",
		zap.String("addr", addr),
		zap.Bool("auth_enabled", auth != nil),
		zap.Bool("history_enabled", history != nil),
		zap.Bool("metrics_enabled", collector != nil),
	)

	return server, nil
}

// applyConfigDefaults fills zero-valued fields with the defaults.
func applyConfigDefaults(config *ServerConfig) {
	defaults := DefaultServerConfig()
	if config.ServiceName == "" {
		config.ServiceName = defaults.ServiceName
	}
	if config.Version == "" {
		config.Version = defaults.Version
	}
	if config.Host == "" {
		config.Host = defaults.Host
	}
	if config.Port == 0 {
		config.Port = defaults.Port
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = defaults.IdleTimeout
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if config.LogSkipPaths == nil {
		config.LogSkipPaths = defaults.LogSkipPaths
	}
	if config.HistoryDefaultLimit < 1 {
		config.HistoryDefaultLimit = defaults.HistoryDefaultLimit
	}
	if config.HistoryMaxLimit < 1 {
		config.HistoryMaxLimit = defaults.HistoryMaxLimit
	}
	if config.MetricsRecentLimit < 1 {
		config.MetricsRecentLimit = defaults.MetricsRecentLimit
	}
}

// setupRoutes registers every endpoint on the mux.
func (s *Server) setupRoutes() {
	// Identity and health need no auth
	s.mux.HandleFunc("/", s.handleIdentity)
	s.mux.HandleFunc("/health", s.handleHealth)

	// Generation is protected; history echoes prompts so it is too
	s.mux.Handle("/generate", s.protect(http.HandlerFunc(s.handleGenerate)))
	if s.history != nil {
		s.mux.Handle("/history", s.protect(http.HandlerFunc(s.handleHistory)))
	}

	// Metrics carry no prompt text and stay open for scrapers
	if s.collector != nil {
		s.mux.HandleFunc("/metrics", s.handleMetrics)
	}
}

// protect wraps a handler with auth middleware if enabled.
func (s *Server) protect(handler http.Handler) http.Handler {
	if s.auth != nil {
		return s.auth.Middleware(handler)
	}
	return handler
}

// rootHandler wraps the mux with middleware. The request ID middleware
// runs outermost so the logging middleware can read the ID from the
// request context.
func (s *Server) rootHandler() http.Handler {
	var handler http.Handler = s.mux

	handler = s.loggingMw.Handler(handler)
	handler = RequestIDMiddleware(handler)

	return handler
}

// Start listens and serves until Shutdown. A closed-server exit is
// reported as success.
func (s *Server) Start() error {
	s.logger.Info("server starting",
		zap.String("addr", s.httpServer.Addr),
	)

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server. In-flight requests get
// ShutdownTimeout to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown error: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Addr returns the host:port the server binds.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the fully wired root handler. Tests use this with
// httptest instead of binding a port.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// HasAuth reports whether a token gate is configured.
func (s *Server) HasAuth() bool {
	return s.auth != nil
}

// Compile-time interface compliance checks.
var (
	_ GenerationService = (*imagegen.Service)(nil)
	_ Runtime           = (*sdruntime.Generator)(nil)
	_ HistoryStore      = (*db.Store)(nil)
	_ AuthProvider      = (*TokenAuth)(nil)
)
