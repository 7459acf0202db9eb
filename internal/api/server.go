package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/cellgate-core/internal/audit"
	"github.com/nerrad567/cellgate-core/internal/command"
	"github.com/nerrad567/cellgate-core/internal/contact"
	"github.com/nerrad567/cellgate-core/internal/device"
	"github.com/nerrad567/cellgate-core/internal/hub"
	"github.com/nerrad567/cellgate-core/internal/infrastructure/config"
	"github.com/nerrad567/cellgate-core/internal/infrastructure/database"
	"github.com/nerrad567/cellgate-core/internal/infrastructure/logging"
	"github.com/nerrad567/cellgate-core/internal/infrastructure/mqtt"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Hub      *hub.Hub
	Devices  device.Repository
	Commands command.Repository
	Contacts contact.Repository
	Audit    audit.Repository // optional, records operator actions
	MQTT     *mqtt.Client     // optional, reported by /metrics
	DB       *database.DB     // optional, reported by /metrics
	Version  string
}

// Server is the HTTP API server for Cellgate Core.
//
// It manages the HTTP listener, routes, middleware and the WebSocket
// connections it hands to the hub. The server is created with New() and
// started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	hub       *hub.Hub
	devices   device.Repository
	commands  command.Repository
	contacts  contact.Repository
	audit     audit.Repository
	mqtt      *mqtt.Client
	db        *database.DB
	version   string
	startTime time.Time
	server    *http.Server
	conns     *connTracker
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("hub is required")
	}
	if deps.Devices == nil || deps.Commands == nil || deps.Contacts == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.Security.JWT.Enabled && deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required when jwt is enabled")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     withWSDefaults(deps.WS),
		secCfg:    deps.Security,
		logger:    deps.Logger,
		hub:       deps.Hub,
		devices:   deps.Devices,
		commands:  deps.Commands,
		contacts:  deps.Contacts,
		audit:     deps.Audit,
		mqtt:      deps.MQTT,
		db:        deps.DB,
		version:   deps.Version,
		startTime: time.Now(),
		conns:     newConnTracker(),
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
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
// WebSocket connections are hijacked and not covered by http.Server
// shutdown, so they are closed first; their sessions then run their normal
// disconnect handling.
func (s *Server) Close() error {
	closed := s.conns.closeAll()
	if closed > 0 {
		s.logger.Info("closed websocket connections", "count", closed)
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
