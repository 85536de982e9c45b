package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-adapters/internal/home"
	"github.com/nerrad567/gray-logic-adapters/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-adapters/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-adapters/internal/infrastructure/metrics"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Home     *home.Service
	// Metrics is optional; /metrics answers 404 without it.
	Metrics *metrics.Metrics
	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	secCfg  config.SecurityConfig
	logger  *logging.Logger
	home    *home.Service
	metrics *metrics.Metrics
	version string
	started time.Time

	hub         *Hub
	unsubscribe func()
	handler     http.Handler
	server      *http.Server
	cancel      context.CancelFunc
}

// New creates a server. Nothing listens until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Home == nil {
		return nil, fmt.Errorf("home service is required")
	}
	s := &Server{
		cfg:     deps.Config,
		wsCfg:   withWSDefaults(deps.WS),
		secCfg:  deps.Security,
		logger:  deps.Logger.Component("api"),
		home:    deps.Home,
		metrics: deps.Metrics,
		version: deps.Version,
		started: time.Now(),
	}
	s.hub = NewHub(s.wsCfg, s.logger)
	s.handler = s.buildRouter()
	return s, nil
}

func withWSDefaults(cfg config.WebSocketConfig) config.WebSocketConfig {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 8192
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 10
	}
	return cfg
}

// Handler returns the routed handler. Tests serve it with httptest.
func (s *Server) Handler() http.Handler { return s.handler }

// Start relays adapter events to the WebSocket hub and begins listening in
// the background.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)
	s.relayEvents()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.handler,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// relayEvents forwards adapter events to subscribed WebSocket clients.
func (s *Server) relayEvents() {
	if s.unsubscribe != nil {
		return
	}
	s.unsubscribe = s.home.Subscribe(s.hub.Publish)
}

// Close stops event relay and gracefully shuts the listener down.
func (s *Server) Close() error {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
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

// HealthCheck reports whether the server was started.
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
