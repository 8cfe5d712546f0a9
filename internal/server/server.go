// Package server implements the HTTP servers for health checks, metrics and
// the transformation endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker interface for checking component health.
type HealthChecker interface {
	Liveness() bool
	Readiness(ctx context.Context) bool
	IsHealthy() bool
	GetStatus() map[string]string
}

// Config contains HTTP server configuration.
type Config struct {
	HealthPort     int
	LivenessPath   string
	ReadinessPath  string
	MetricsEnabled bool
	MetricsPath    string

	// TransformPort serves TransformPath. When it equals HealthPort the
	// endpoint shares the health listener.
	TransformPort int
	TransformPath string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

func (c *Config) setDefaults() {
	if c.LivenessPath == "" {
		c.LivenessPath = "/health/live"
	}
	if c.ReadinessPath == "" {
		c.ReadinessPath = "/health/ready"
	}
	if c.MetricsPath == "" {
		c.MetricsPath = "/metrics"
	}
	if c.TransformPath == "" {
		c.TransformPath = "/transform"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 60 * time.Second
	}
}

// Server represents the HTTP listeners of the process.
type Server struct {
	healthServer    *http.Server
	transformServer *http.Server
	logger          *slog.Logger
}

// NewServer creates a new HTTP server. transform may be nil when the
// process does not serve transformation requests over HTTP, and registry
// may be nil when metrics are disabled.
func NewServer(
	cfg Config,
	healthChecker HealthChecker,
	registry *prometheus.Registry,
	transform http.Handler,
	logger *slog.Logger,
) *Server {
	cfg.setDefaults()

	// Health server
	healthMux := http.NewServeMux()
	healthMux.HandleFunc(cfg.LivenessPath, LivenessHandler(healthChecker, logger))
	healthMux.HandleFunc(cfg.ReadinessPath, ReadinessHandler(healthChecker, logger))
	if cfg.MetricsEnabled && registry != nil {
		healthMux.Handle(cfg.MetricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	s := &Server{
		healthServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.HealthPort),
			Handler:      healthMux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}

	if transform == nil {
		return s
	}

	if cfg.TransformPort == cfg.HealthPort {
		healthMux.Handle(cfg.TransformPath, transform)
		s.healthServer.ReadTimeout = cfg.ReadTimeout
		s.healthServer.WriteTimeout = cfg.WriteTimeout
		return s
	}

	// Transform server
	transformMux := http.NewServeMux()
	transformMux.Handle(cfg.TransformPath, transform)
	s.transformServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.TransformPort),
		Handler:      transformMux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

func (s *Server) servers() []*http.Server {
	if s.transformServer == nil {
		return []*http.Server{s.healthServer}
	}
	return []*http.Server{s.healthServer, s.transformServer}
}

// Start starts the HTTP servers in the background.
func (s *Server) Start() error {
	for _, srv := range s.servers() {
		go func(srv *http.Server) {
			s.logger.Info("starting http server", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("http server failed", "addr", srv.Addr, "error", err)
			}
		}(srv)
	}

	return nil
}

// Shutdown gracefully shuts down all servers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP servers")

	servers := s.servers()
	errChan := make(chan error, len(servers))

	for _, srv := range servers {
		go func(srv *http.Server) {
			errChan <- srv.Shutdown(ctx)
		}(srv)
	}

	var lastErr error
	for range servers {
		if err := <-errChan; err != nil {
			s.logger.Error("error shutting down server", "error", err)
			lastErr = err
		}
	}

	return lastErr
}
