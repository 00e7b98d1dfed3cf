// Package api provides the HTTP REST API and WebSocket server for automationd.
//
// It exposes module registry reads, program CRUD and lifecycle control, the
// dynamic command surface, and real-time status updates to user interfaces.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/automationd/internal/automation"
	"github.com/nerrad567/automationd/internal/infrastructure/config"
	"github.com/nerrad567/automationd/internal/infrastructure/logging"
	"github.com/nerrad567/automationd/internal/infrastructure/mqtt"
	"github.com/nerrad567/automationd/internal/modulebus"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	Logger      *logging.Logger
	Modules     *modulebus.Registry
	MQTT        *mqtt.Client
	Manager     *automation.ProgramManager
	ProgramRepo automation.Repository
	Commands    *automation.DynamicApiRegistry
	ExternalHub *Hub // If set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP API server for automationd.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	modules     *modulebus.Registry
	mqtt        *mqtt.Client
	manager     *automation.ProgramManager
	programRepo automation.Repository
	commands    *automation.DynamicApiRegistry
	version     string
	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Modules == nil {
		return nil, fmt.Errorf("module registry is required")
	}
	if deps.Manager == nil {
		return nil, fmt.Errorf("program manager is required")
	}
	// MQTT is optional — reads, commands and WebSocket work without it; only live broadcasts stop

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		logger:      deps.Logger,
		modules:     deps.Modules,
		mqtt:        deps.MQTT,
		manager:     deps.Manager,
		programRepo: deps.ProgramRepo,
		commands:    deps.Commands,
		version:     deps.Version,
	}

	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, subscribes to module and
// program status topics for real-time WebSocket broadcast, and launches the
// HTTP listener in a background goroutine. The server can be stopped with
// Close().
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	// Create WebSocket hub (unless one was injected externally)
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

	// Start periodic ticket cleanup to prevent memory leaks
	go s.cleanTicketsLoop(srvCtx)

	// Subscribe to module/program status for WebSocket broadcast
	if err := s.subscribeStateUpdates(); err != nil {
		s.logger.Warn("failed to subscribe to state updates for WebSocket", "error", err)
	}

	// Build router
	router := s.buildRouter()

	// Create HTTP server
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	// Start listening in background
	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, ticket cleanup)
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

// HealthCheck verifies the API server is running and responsive.
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
