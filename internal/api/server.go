// Package api serves the HTTP control surface of the bridge: voltage reads
// and writes, runtime reconfiguration, status, health and metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"modbus-voltage-bridge/internal/bridge"
	"modbus-voltage-bridge/internal/device"
	"modbus-voltage-bridge/internal/logger"
	"modbus-voltage-bridge/internal/modbus"
	"modbus-voltage-bridge/internal/mqtt"
	"modbus-voltage-bridge/internal/topics"
)

const gracefulShutdownTimeout = 10 * time.Second

// Engine is the part of bridge.Engine the API drives
type Engine interface {
	ReadVoltage(ctx context.Context, ch device.Channel) (float64, error)
	SetVoltage(ctx context.Context, ch device.Channel, v float64) error
	ReconfigureModbus(ctx context.Context, host string, port int, unitID uint8) (modbus.Status, error)
	ReconfigureMQTT(ctx context.Context, broker string, port int) (mqtt.Status, error)
	RebindTopic(base string) (topics.Snapshot, error)
	Status() bridge.StatusReport
	Health() *bridge.HealthTracker
}

var _ Engine = (*bridge.Engine)(nil)

// Server is the control API
type Server struct {
	listen  string
	engine  Engine
	metrics http.Handler
	health  *HealthHandler
	version string

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// Option configures a Server
type Option func(*Server)

// WithMetricsHandler mounts h on /metrics. A nil handler leaves the route
// answering 404.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithVersion is reported by /health
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer builds a server listening on listen (host:port)
func NewServer(listen string, engine Engine, opts ...Option) *Server {
	s := &Server{listen: listen, engine: engine}
	for _, opt := range opts {
		opt(s)
	}
	s.health = NewHealthHandler(engineHealth{engine}, s.version)
	return s
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.listen, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogError("API server error: %v", err)
		}
	}()

	logger.LogInfo("🌐 API listening on %s", ln.Addr())
	return nil
}

// Addr is the bound address once started
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.listen
	}
	return s.listener.Addr().String()
}

// Close waits up to gracefulShutdownTimeout for in-flight requests
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	logger.LogInfo("🛑 API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
