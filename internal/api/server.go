package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-platform/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-platform/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-platform/internal/journal"
	"github.com/nerrad567/gray-logic-platform/internal/platform"
	"github.com/nerrad567/gray-logic-platform/internal/supervise"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Invoker runs a function on the event loop goroutine.
type Invoker interface {
	Invoke(ctx context.Context, fn func()) error
}

// StatusProvider returns the loop-owned platform snapshot.
// Status is only called from inside Invoker.Invoke.
type StatusProvider interface {
	Status() platform.Status
}

// ServiceLister reports the supervised services.
type ServiceLister interface {
	Snapshot(ctx context.Context) []supervise.ServiceStatus
}

// ValueLister reports the values exported under the platform namespace.
type ValueLister interface {
	Values() []platform.PublishedValue
}

// Deps holds the dependencies for the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Loop     Invoker
	App      StatusProvider
	Services ServiceLister
	Values   ValueLister // optional
	Journal  journal.Repository
	Version  string
}

// Server is the HTTP status API server.
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	logger   *logging.Logger
	loop     Invoker
	app      StatusProvider
	services ServiceLister
	values   ValueLister
	journal  journal.Repository
	version  string
	hub      *Hub
	server   *http.Server
	addr     net.Addr
	cancel   context.CancelFunc
}

// New creates a new API server. The WebSocket hub exists from here on so
// observers can be wired before Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Loop == nil || deps.App == nil {
		return nil, fmt.Errorf("event loop and application are required")
	}
	if deps.Services == nil {
		return nil, fmt.Errorf("service lister is required")
	}
	if deps.Journal == nil {
		return nil, fmt.Errorf("journal repository is required")
	}

	logger := deps.Logger.Component("api")
	return &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		logger:   logger,
		loop:     deps.Loop,
		app:      deps.App,
		services: deps.Services,
		values:   deps.Values,
		journal:  deps.Journal,
		version:  deps.Version,
		hub:      NewHub(logger),
	}, nil
}

// Hub returns the event broadcaster.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listen address and serves in the background. A bind
// failure is returned, later serve errors are logged.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
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
	s.addr = ln.Addr()
	s.logger.Info("API server listening", "address", s.addr.String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
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
