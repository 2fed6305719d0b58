package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gridcontrol/internal/command"
	"github.com/nerrad567/gridcontrol/internal/control"
	"github.com/nerrad567/gridcontrol/internal/infrastructure/config"
	"github.com/nerrad567/gridcontrol/internal/infrastructure/logging"
	"github.com/nerrad567/gridcontrol/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// TelemetryHistory reads recorded samples. *telemetry.SQLiteRepository satisfies it.
type TelemetryHistory interface {
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]telemetry.SampleRecord, error)
}

// CommandHistory reads the command log. *command.SQLiteLog satisfies it.
type CommandHistory interface {
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]command.Record, error)
}

// TransportStatus reports broker connectivity. *mqtt.Client satisfies it.
type TransportStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	Logger     *logging.Logger
	Controller *control.Controller
	Store      *control.Store

	// Optional collaborators. A nil history reader answers 503 on its
	// endpoint; a nil Gatherer disables /metrics.
	Telemetry TelemetryHistory
	Commands  CommandHistory
	Transport TransportStatus
	Gatherer  prometheus.Gatherer

	// HistoryLimit is the default ?limit= for history endpoints.
	HistoryLimit int
	Version      string
}

// Server is the operator HTTP API.
//
// It is created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	logger       *logging.Logger
	controller   *control.Controller
	store        *control.Store
	telemetry    TelemetryHistory
	commands     CommandHistory
	transport    TransportStatus
	gatherer     prometheus.Gatherer
	historyLimit int
	version      string
	server       *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, controller, store)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("control store is required")
	}

	return &Server{
		cfg:          deps.Config,
		logger:       deps.Logger,
		controller:   deps.Controller,
		store:        deps.Store,
		telemetry:    deps.Telemetry,
		commands:     deps.Commands,
		transport:    deps.Transport,
		gatherer:     deps.Gatherer,
		historyLimit: deps.HistoryLimit,
		version:      deps.Version,
	}, nil
}

// Start binds the listen address and serves in a background goroutine.
// The server can be stopped with Close().
//
// Parameters:
//   - ctx: Bounds the bind; not used for the listener lifetime
//
// Returns:
//   - error: If the address cannot be bound (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("binding API listener: %w", err)
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
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
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
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
