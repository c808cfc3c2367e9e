package server

import (
	"context"
	"net/http"
	"time"

	"github.com/vertextoedge/batchfetch/internal/domain"
	"github.com/vertextoedge/batchfetch/internal/service/manager"
	"go.uber.org/zap"
)

// Config contains HTTP server configuration
type Config struct {
	BindAddr     string
	Username     string
	Password     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		BindAddr:     "127.0.0.1:8090",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// TaskReader is the read-only part of the task manager served over HTTP
type TaskReader interface {
	List(statuses ...domain.TaskStatus) ([]*domain.Task, error)
	Status(taskID string) (*manager.StatusReport, error)
	Verify(taskID string) (*manager.VerifyReport, error)
}

// Pinger reports database health
type Pinger interface {
	Ping() error
}

// Server represents the HTTP status API server
type Server struct {
	config      *Config
	db          Pinger
	logger      *zap.Logger
	server      *http.Server
	taskHandler *TaskHandler
}

// New creates a new HTTP server
func New(cfg *Config, tasks TaskReader, db Pinger, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		config: cfg,
		db:     db,
		logger: logger,
	}
	s.taskHandler = NewTaskHandler(tasks, logger)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/tasks", s.taskHandler.HandleList)
	api.HandleFunc("GET /api/tasks/{id}", s.taskHandler.HandleStatus)
	api.HandleFunc("GET /api/tasks/{id}/verify", s.taskHandler.HandleVerify)

	// /health stays open for probes
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("/api/", RequireBasicAuth(cfg.Username, cfg.Password, logger)(api))

	s.server = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      LoggingMiddleware(logger)(mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the root handler, used by tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
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

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, map[string]string{"status": "healthy", "time": time.Now().UTC().Format(time.RFC3339)})
}
