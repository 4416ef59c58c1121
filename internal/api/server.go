package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-dirigera/internal/bridges/dirigera"
	"github.com/nerrad567/gray-logic-dirigera/internal/discovery"
	"github.com/nerrad567/gray-logic-dirigera/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-dirigera/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-dirigera/internal/platform"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// AttemptLister lists recorded discovery attempts.
type AttemptLister interface {
	ListAttempts(ctx context.Context, filter discovery.AttemptFilter) ([]discovery.Attempt, error)
}

// BridgeStatus reports bridge counters and health. *dirigera.Bridge
// satisfies it.
type BridgeStatus interface {
	Metrics() dirigera.Metrics
	Health() (dirigera.HealthStatus, string)
}

// HealthChecker is implemented by dependencies that can report health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies of the API server.
type Deps struct {
	Config      config.APIConfig
	Logger      *logging.Logger
	Coordinator *discovery.Coordinator
	Platforms   *platform.Set

	// Optional.
	Attempts AttemptLister
	Hub      HubBrowser
	Bridge   BridgeStatus
	Database HealthChecker
	MQTT     HealthChecker
	Commands HealthChecker // command topic subscription
	Version  string
}

// Server is the HTTP API server.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	coord     *discovery.Coordinator
	platforms *platform.Set
	attempts  AttemptLister
	hub       HubBrowser
	bridge    BridgeStatus
	database  HealthChecker
	mqtt      HealthChecker
	commands  HealthChecker
	version   string
	startTime time.Time

	server *http.Server
	cancel context.CancelFunc
}

// New creates a server. It does not listen until Start is called.
//
// Returns:
//   - error: If a required dependency is missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Coordinator == nil {
		return nil, fmt.Errorf("discovery coordinator is required")
	}
	if deps.Platforms == nil {
		return nil, fmt.Errorf("platform set is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		coord:     deps.Coordinator,
		platforms: deps.Platforms,
		attempts:  deps.Attempts,
		hub:       deps.Hub,
		bridge:    deps.Bridge,
		database:  deps.Database,
		mqtt:      deps.MQTT,
		commands:  deps.Commands,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start begins listening in a background goroutine. Manual discoveries
// started through the API run under a context that Close cancels.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(srvCtx),
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

// Close gracefully shuts down the server, waiting up to 10 seconds for
// in-flight requests.
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

// HealthCheck verifies the server has been started.
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
