// Package api provides the HTTP REST API for Edge Core.
//
// It exposes fleet liveness registration, command dispatch, result
// retrieval (poll and server-sent event stream), and binding management to
// the account-facing services and operator tooling.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
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

	"github.com/redsafetw/edge-core/internal/audit"
	"github.com/redsafetw/edge-core/internal/auth"
	"github.com/redsafetw/edge-core/internal/binding"
	"github.com/redsafetw/edge-core/internal/cache"
	"github.com/redsafetw/edge-core/internal/edge"
	"github.com/redsafetw/edge-core/internal/infrastructure/config"
	"github.com/redsafetw/edge-core/internal/infrastructure/logging"
	"github.com/redsafetw/edge-core/internal/infrastructure/mqtt"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	Logger     *logging.Logger
	Tracker    *edge.Tracker
	Dispatcher *edge.Dispatcher
	Commands   *cache.CommandCache
	Bindings   binding.Repository
	Audit      audit.Repository
	Verifier   *auth.Verifier
	MQTT       *mqtt.Client
	Version    string
}

// Server is the HTTP API server for Edge Core.
//
// It manages the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	logger     *logging.Logger
	tracker    *edge.Tracker
	dispatcher *edge.Dispatcher
	commands   *cache.CommandCache
	bindings   binding.Repository
	audit      audit.Repository
	verifier   *auth.Verifier
	mqtt       *mqtt.Client
	version    string
	server     *http.Server
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Tracker == nil {
		return nil, fmt.Errorf("tracker is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Commands == nil {
		return nil, fmt.Errorf("command cache is required")
	}
	if deps.Bindings == nil {
		return nil, fmt.Errorf("binding repository is required")
	}
	if deps.Audit == nil {
		return nil, fmt.Errorf("audit repository is required")
	}
	if deps.Verifier == nil {
		return nil, fmt.Errorf("token verifier is required")
	}
	// MQTT is optional here - it only feeds the health endpoint

	return &Server{
		cfg:        deps.Config,
		logger:     deps.Logger,
		tracker:    deps.Tracker,
		dispatcher: deps.Dispatcher,
		commands:   deps.Commands,
		bindings:   deps.Bindings,
		audit:      deps.Audit,
		verifier:   deps.Verifier,
		mqtt:       deps.MQTT,
		version:    deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
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
