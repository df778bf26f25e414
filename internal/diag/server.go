package diag

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-node/internal/journal"
	"github.com/nerrad567/gray-logic-node/internal/supervisor"
)

const gracefulShutdownTimeout = 5 * time.Second

// Journal is the read side of the boot journal.
type Journal interface {
	BootID() string
	BootCount(ctx context.Context) (int, error)
	Boots(ctx context.Context, limit int) ([]journal.Boot, error)
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// HealthCheck is one named component check.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps holds the dependencies of the diagnostics server.
type Deps struct {
	Config   config.DiagnosticsConfig
	Logger   *logging.Logger
	Snapshot func() supervisor.Snapshot

	// Journal is optional; without it the status has no boot count and
	// /api/v1/journal answers 503.
	Journal Journal

	// Metrics serves /metrics when set.
	Metrics http.Handler

	Checks  []HealthCheck
	Version string
}

// Server is the diagnostics HTTP server.
type Server struct {
	cfg      config.DiagnosticsConfig
	logger   *logging.Logger
	snapshot func() supervisor.Snapshot
	journal  Journal
	metrics  http.Handler
	checks   []HealthCheck
	version  string
	started  time.Time

	hub      *Hub
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

var _ supervisor.Observer = (*Server)(nil)

// New creates a server. It does not listen until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Snapshot == nil {
		return nil, fmt.Errorf("snapshot source is required")
	}
	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		snapshot: deps.Snapshot,
		journal:  deps.Journal,
		metrics:  deps.Metrics,
		checks:   deps.Checks,
		version:  deps.Version,
		started:  time.Now(),
		hub:      NewHub(deps.Config.WebSocket, deps.Logger),
	}, nil
}

// Start binds the listener and serves in the background. A bind error is
// returned directly.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("diagnostics listen on %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("diagnostics server error", "error", err)
		}
	}()
	s.logger.Info("diagnostics server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down diagnostics server: %w", err)
	}
	return nil
}

// ObserveTransition broadcasts t and the resulting snapshot to stream
// clients.
func (s *Server) ObserveTransition(t supervisor.Transition) {
	s.hub.Broadcast(EventTransition, transitionEvent{
		From:     t.From.String(),
		To:       t.To.String(),
		Reason:   t.Reason,
		At:       t.At.UTC(),
		Snapshot: s.snapshot(),
	})
}

// Hub returns the stream hub.
func (s *Server) Hub() *Hub {
	return s.hub
}
