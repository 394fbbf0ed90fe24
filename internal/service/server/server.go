package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vertextoedge/cacheable-image/internal/domain/event"
	"github.com/vertextoedge/cacheable-image/internal/port"
	"github.com/vertextoedge/cacheable-image/internal/service/coordinator"
)

// Config contains HTTP server configuration
type Config struct {
	BindAddr       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxResolveWait time.Duration
	DebugUsername  string
	DebugPassword  string
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		BindAddr:       "0.0.0.0:8080",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxResolveWait: 30 * time.Second,
	}
}

// Downloader is what the server needs from the download service
type Downloader interface {
	coordinator.Downloader
	ActiveJobs() int
}

// Deps are the services the HTTP surface is built on
type Deps struct {
	Store      port.Store
	FS         port.FileSystem
	Prober     coordinator.Prober
	Downloader Downloader
	Dispatcher event.EventDispatcher
	// Gatherer backs /metrics; nil disables the endpoint
	Gatherer prometheus.Gatherer
}

// Server represents the HTTP API server
type Server struct {
	config  *Config
	deps    Deps
	logger  *zap.Logger
	handler http.Handler
	server  *http.Server

	resolveHandler *ResolveHandler
	cacheHandler   *CacheHandler
	debugHandler   *DebugHandler
}

// New creates a new HTTP server
func New(cfg *Config, deps Deps, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		logger: logger,
	}

	s.resolveHandler = NewResolveHandler(deps.Prober, deps.Downloader, deps.FS, deps.Dispatcher, cfg.MaxResolveWait, logger)
	s.cacheHandler = NewCacheHandler(deps.FS.RootDir(), logger)
	s.debugHandler = NewDebugHandler(deps.Store, deps.FS, deps.Downloader, logger)

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", s.handleHealth)

	// Resolution and cached files
	mux.HandleFunc("GET /resolve", s.resolveHandler.HandleResolve)
	mux.HandleFunc("GET /cache/{dir}/{file}", s.cacheHandler.HandleFile)

	if deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	// Debug endpoints
	debugAuth := func(next http.HandlerFunc) http.HandlerFunc { return next }
	if cfg.DebugPassword != "" {
		debugAuth = BasicAuthMiddleware(cfg.DebugUsername, cfg.DebugPassword, logger)
	}
	mux.HandleFunc("GET /debug/stats", debugAuth(s.debugHandler.HandleStats))
	mux.HandleFunc("GET /debug/entries", debugAuth(s.debugHandler.HandleEntries))

	s.handler = LoggingMiddleware(logger)(mux)
	s.server = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the root handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Ping(); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		http.Error(w, "Database connection failed", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// writeJSON writes v as a JSON response
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
