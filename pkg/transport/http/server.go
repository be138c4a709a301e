// Package http serves the gateway API: a streaming chat endpoint,
// health, and metrics.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kompanion-dev/kompanion/pkg/chat"
	"github.com/kompanion-dev/kompanion/pkg/health"
	"github.com/kompanion-dev/kompanion/pkg/observability"
	"github.com/kompanion-dev/kompanion/pkg/orchestrator"
	"github.com/kompanion-dev/kompanion/pkg/transport"
)

// StepRunner processes one user turn, writing events to w. Implemented
// by the orchestrator.
type StepRunner interface {
	RunStep(ctx context.Context, skill, query string, history []chat.Turn, w orchestrator.EventWriter) error
}

// ServerConfig holds configuration for the transport server.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration // must cover a full streamed answer
	ShutdownTimeout time.Duration
	MaxBodySize     int64

	MetricsEnabled bool
	MetricsPath    string

	// Skills is the advertised skill roster (name to model).
	Skills map[string]string

	Logger *slog.Logger
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    600 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		MaxBodySize:     1 << 20, // 1 MB
		MetricsEnabled:  true,
		MetricsPath:     "/metrics",
		Logger:          slog.Default(),
	}
}

// Server wraps an http.Server and manages the full lifecycle including
// startup and graceful shutdown.
type Server struct {
	httpServer *http.Server
	runner     StepRunner
	checker    *health.Checker
	config     ServerConfig
	logger     *slog.Logger
}

// NewServer creates a transport server. checker may be nil; /healthz
// then reports plain liveness.
func NewServer(runner StepRunner, checker *health.Checker, cfg ServerConfig) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 1 << 20
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		runner:  runner,
		checker: checker,
		config:  cfg,
		logger:  cfg.Logger,
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// Handler builds the routed handler with the default middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("GET /v1/skills", s.handleSkills)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.config.MetricsEnabled {
		path := s.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, promhttp.Handler())
	}

	return transport.Chain(mux,
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(s.logger),
	)
}

// chatRequest is the POST /v1/chat body.
type chatRequest struct {
	Skill   string      `json:"skill,omitempty"`
	Query   string      `json:"query"`
	History []chat.Turn `json:"history,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodySize)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeJSONError(w, http.StatusBadRequest, "query must not be empty")
		return
	}

	observability.StreamingConnections.Inc()
	defer observability.StreamingConnections.Dec()

	writer := newSSEEventWriter(w)
	err := s.runner.RunStep(r.Context(), req.Skill, req.Query, req.History, writer)
	if err != nil {
		s.logger.Error("chat step failed",
			"request_id", transport.RequestIDFromContext(r.Context()),
			"error", err.Error(),
		)
		if !writer.started() {
			writeJSONError(w, http.StatusInternalServerError, "internal server error")
		}
		// Mid-stream failures (client gone, write error) just end the
		// connection; there is nobody left to tell.
	}
}

// skillInfo is one entry of the GET /v1/skills response.
type skillInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
}

func (s *Server) handleSkills(w http.ResponseWriter, _ *http.Request) {
	out := make([]skillInfo, 0, len(s.config.Skills))
	for name, model := range s.config.Skills {
		out = append(out, skillInfo{Name: name, Model: model})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"skills": out})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if s.checker == nil {
		json.NewEncoder(w).Encode(map[string]string{"status": health.StatusOK})
		return
	}

	report := s.checker.Snapshot(r.Context())
	if report.Status != health.StatusOK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(report)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ListenAndServe starts the server and blocks until a shutdown signal
// (SIGINT or SIGTERM) is received. It then gracefully shuts down,
// waiting for in-flight requests to complete within the configured
// timeout.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", slog.String("addr", s.config.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	return s.shutdown()
}

// ServeOn starts the server on the given listener. Used for testing.
func (s *Server) ServeOn(ln net.Listener) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down gracefully", slog.Duration("timeout", s.config.ShutdownTimeout))
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Shutdown gracefully shuts down the server with the given context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
