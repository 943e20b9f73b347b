package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/mqttlog/internal/dispatch"
	"github.com/nerrad567/mqttlog/internal/infrastructure/config"
	"github.com/nerrad567/mqttlog/internal/infrastructure/logging"
	"github.com/nerrad567/mqttlog/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqttlog/internal/journal"
	"github.com/nerrad567/mqttlog/internal/sink"
	"github.com/nerrad567/mqttlog/internal/subscription"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is a component the health endpoint probes.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// SessionSource reports the broker session.
type SessionSource interface {
	State() mqtt.State
	ClientID() string
	BrokerAddress() string
}

// SubscriptionSource lists the desired subscriptions.
type SubscriptionSource interface {
	Subscriptions() []subscription.Subscription
}

// DispatchSource reports dispatcher counters.
type DispatchSource interface {
	Stats() dispatch.Stats
}

// SinkSource reports log file counters.
type SinkSource interface {
	Stats() sink.Stats
}

// Deps holds the dependencies of the API server. Only Logger is required.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Version string

	Session       SessionSource
	Subscriptions SubscriptionSource
	Dispatcher    DispatchSource
	Sink          SinkSource
	Journal       journal.Repository

	// Checks are probed by /health, keyed by component name.
	Checks map[string]HealthChecker

	// Hub is used instead of a server-owned hub when set, so the recorder
	// can broadcast before the listener is up.
	Hub *Hub
}

// Server is the status API server.
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	logger  *logging.Logger
	version string

	session       SessionSource
	subscriptions SubscriptionSource
	dispatcher    DispatchSource
	sink          SinkSource
	journal       journal.Repository
	checks        map[string]HealthChecker

	hub         *Hub
	externalHub bool
	startTime   time.Time

	mu       sync.Mutex // guards server, listener, cancel
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a server. It does not listen until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	s := &Server{
		cfg:           deps.Config,
		wsCfg:         deps.WS,
		logger:        deps.Logger,
		version:       deps.Version,
		session:       deps.Session,
		subscriptions: deps.Subscriptions,
		dispatcher:    deps.Dispatcher,
		sink:          deps.Sink,
		journal:       deps.Journal,
		checks:        deps.Checks,
		startTime:     time.Now(),
	}

	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}

	return s, nil
}

// Hub returns the feed hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the router. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in the background. A bind failure
// is returned here rather than logged later.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close shuts the server down, waiting up to gracefulShutdownTimeout for
// in-flight requests. Safe to call when never started.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	cancel := s.cancel
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	ctx, cancelShutdown := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancelShutdown()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server is serving.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
