package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/damaru/doorbell/internal/history"
	"github.com/damaru/doorbell/internal/infrastructure/config"
	"github.com/damaru/doorbell/internal/infrastructure/logging"
	"github.com/damaru/doorbell/internal/relay"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// Coordinator is the part of *relay.Coordinator the API drives.
type Coordinator interface {
	Snapshot() relay.Snapshot
	Connect()
	Disconnect()
	Simulate(kind relay.EventKind) error
	Attach(sink relay.Sink) relay.Snapshot
	Detach(sink relay.Sink)
}

// HealthChecker is a dependency that can report its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds what the API server needs. Logger and Coordinator are required.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	Logger      *logging.Logger
	Coordinator Coordinator

	// History is optional; without it /events answers 503.
	History history.Repository

	// Components are reported by /health under their map key.
	Components map[string]HealthChecker

	// TestMode mounts the simulation endpoints.
	TestMode bool

	Version string
}

// Server is the relay's HTTP API and WebSocket endpoint.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	logger     *logging.Logger
	coord      Coordinator
	history    history.Repository
	components map[string]HealthChecker
	testMode   bool
	version    string

	hub    *Hub
	server *http.Server
	cancel context.CancelFunc
}

// New creates a server. Nothing listens until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Coordinator == nil {
		return nil, fmt.Errorf("coordinator is required")
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		logger:     deps.Logger,
		coord:      deps.Coordinator,
		history:    deps.History,
		components: deps.Components,
		testMode:   deps.TestMode,
		version:    deps.Version,
		hub:        NewHub(deps.WS, deps.Coordinator, deps.Logger),
	}, nil
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listen address and serves in the background. The
// returned error reports bind failures such as a port in use.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}

	s.logger.Info("API server listening", "address", ln.Addr().String(), "test_mode", s.testMode)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Close stops the WebSocket hub and shuts the listener down gracefully.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
