package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/homecontrol-core/internal/core"
	"github.com/nerrad567/homecontrol-core/internal/domains"
	"github.com/nerrad567/homecontrol-core/internal/event"
	"github.com/nerrad567/homecontrol-core/internal/infrastructure/config"
	"github.com/nerrad567/homecontrol-core/internal/infrastructure/logging"
	"github.com/nerrad567/homecontrol-core/internal/module"
	"github.com/nerrad567/homecontrol-core/internal/schema"
)

const (
	// ModuleName is the module name.
	ModuleName = "api"

	// Domain is the configuration domain the server claims.
	Domain = "api"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Server is the HTTP API module. It implements module.Module and
// module.Stopper.
//
// Thread Safety: all methods are safe for concurrent use.
type Server struct {
	k         *core.Kernel
	logger    *logging.Logger
	version   string
	startTime time.Time

	mu       sync.RWMutex
	cfg      config.APIConfig
	server   *http.Server
	listener net.Listener
	hub      *Hub
	token    event.Token
}

// New returns the core.Factory for the API server. version is reported by
// the health endpoint.
func New(version string) core.Factory {
	return func(k *core.Kernel) (module.Module, error) {
		return &Server{
			k:       k,
			logger:  k.Logger.With("module", ModuleName),
			version: version,
		}, nil
	}
}

func (s *Server) Name() string           { return ModuleName }
func (s *Server) Dependencies() []string { return nil }

// Schema validates the api domain.
func Schema() schema.Schema {
	return schema.Object(
		schema.KeyOptional("host", schema.String()),
		schema.KeyOptional("port", schema.IntRange(0, 65535)),
		schema.KeyOptional("read_timeout", schema.IntRange(1, 3600)),
		schema.KeyOptional("write_timeout", schema.IntRange(1, 3600)),
		schema.KeyOptional("allowed_origins", schema.List(schema.String())),
		schema.KeyOptional("ping_interval", schema.IntRange(1, 3600)),
	)
}

// DefaultConfig returns the settings used for keys the domain omits.
func DefaultConfig() config.APIConfig {
	return config.APIConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  10,
		WriteTimeout: 30,
		PingInterval: 30,
	}
}

// Init claims the api domain, starts listening and serves on a scheduler
// task.
func (s *Server) Init(ctx context.Context) error {
	value, err := s.k.Domains.Register(ctx, Domain, domains.Options{
		Schema:  Schema(),
		Default: map[string]any{},
	})
	if err != nil {
		return fmt.Errorf("registering %s domain: %w", Domain, err)
	}
	cfg := DefaultConfig()
	if err := config.Decode(value, &cfg); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Address())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Address(), err)
	}

	hub := NewHub(s.logger.With("component", "websocket"), time.Duration(cfg.PingInterval)*time.Second)

	s.mu.Lock()
	s.cfg = cfg
	s.hub = hub
	s.listener = ln
	s.startTime = time.Now()
	s.mu.Unlock()

	srv := &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(cfg.ReadTimeout) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.WriteTimeout) * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	token, err := s.k.Bus.Register(event.AllEvents, s.onEvent)
	if err != nil {
		ln.Close()
		return err
	}

	err = s.k.Loop.Go("api server", func(context.Context) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	})
	if err != nil {
		s.k.Bus.RemoveHandler(token)
		ln.Close()
		return err
	}

	s.mu.Lock()
	s.server = srv
	s.token = token
	s.mu.Unlock()

	s.logger.Info("API server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the address the server listens on, or "" before Init.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// onEvent relays every bus event to the websocket hub.
func (s *Server) onEvent(_ context.Context, ev event.Event) (any, error) {
	s.mu.RLock()
	hub := s.hub
	s.mu.RUnlock()
	if hub != nil {
		hub.Broadcast(ev.Name, ev.Time, ev.Data())
	}
	return nil, nil
}

// Stop disconnects websocket clients and waits up to ten seconds for
// in-flight requests to complete.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, hub, token := s.server, s.hub, s.token
	s.server, s.token = nil, event.Token{}
	s.mu.Unlock()

	s.k.Bus.RemoveHandler(token)
	if srv == nil {
		return nil
	}
	hub.closeAll()

	shutdownCtx, cancel := context.WithTimeout(ctx, gracefulShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	s.logger.Info("API server stopped")
	return nil
}
