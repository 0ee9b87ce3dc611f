// Package server exposes the mounted shell over HTTP and streams plugin
// resolution and bootstrap progress to WebSocket clients.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/nupi-ai/shellboot/internal/bootstrap"
	"github.com/nupi-ai/shellboot/internal/constants"
	"github.com/nupi-ai/shellboot/internal/eventbus"
	"github.com/nupi-ai/shellboot/internal/mode"
	"github.com/nupi-ai/shellboot/internal/plugins"
	"github.com/nupi-ai/shellboot/internal/shell"
	"github.com/nupi-ai/shellboot/internal/store"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = "127.0.0.1:8780"

// PageSource is the part of the shell the server renders.
type PageSource interface {
	Navigate(page string, m mode.Mode) (shell.Page, error)
	Wait(ctx context.Context) (shell.Page, error)
	Snapshot() shell.Page
	Store() *store.Store
}

// StatusSource reports bootstrap progress.
type StatusSource interface {
	Status() bootstrap.Status
}

// Server serves the shell routes.
type Server struct {
	logger   *log.Logger
	addr     string
	pages    PageSource
	status   StatusSource
	bus      *eventbus.Bus
	origins  []string
	hub      *Hub
	handler  http.Handler
	workers  eventbus.Workers
	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	errs     chan error
}

// Option configures a Server.
type Option func(*Server)

// WithLogger overrides the server logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.addr = addr
		}
	}
}

// WithBus streams bus topics to WebSocket clients.
func WithBus(bus *eventbus.Bus) Option {
	return func(s *Server) {
		s.bus = bus
	}
}

// WithAllowedOrigins adds WebSocket origins beyond the local defaults.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.origins = append(s.origins, origins...)
	}
}

// New creates a server for pages and status.
func New(pages PageSource, status StatusSource, opts ...Option) *Server {
	s := &Server{
		logger: log.Default(),
		addr:   DefaultAddr,
		pages:  pages,
		status: status,
		errs:   make(chan error, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = NewHub(s.logger, originChecker(s.origins))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("GET /pages/{name}", s.handlePage)
	mux.HandleFunc("GET /ws", s.hub.HandleWebSocket)
	s.handler = mux
	return s
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves in the background until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.New("server: already started")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.addr, err)
	}

	s.workers.Start(context.WithoutCancel(ctx))
	s.startStreams()

	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: constants.ServerReadHeaderTimeout,
	}
	srv := s.srv
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("[Server] serve error: %v", err)
			select {
			case s.errs <- err:
			default:
			}
		}
	}()
	s.logger.Printf("[Server] listening on %s", ln.Addr())
	return nil
}

// Errors reports fatal serve errors.
func (s *Server) Errors() <-chan error {
	return s.errs
}

// Addr reports the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown stops accepting connections and drains the bus streams.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.listener = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, constants.ServerShutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	s.workers.Stop()
	if waitErr := s.workers.Wait(shutdownCtx); err == nil {
		err = waitErr
	}
	return err
}

func (s *Server) startStreams() {
	s.workers.Go(s.hub.Run)
	if s.bus == nil {
		return
	}

	resolved := eventbus.SubscribeTo(s.bus, plugins.TopicResolved, eventbus.WithSubscriptionName("server_resolved"))
	status := eventbus.SubscribeTo(s.bus, bootstrap.TopicStatus, eventbus.WithSubscriptionName("server_status"))
	state := eventbus.SubscribeTo(s.bus, store.TopicState, eventbus.WithSubscriptionName("server_state"))
	s.workers.Track(resolved, status, state)

	s.workers.Go(func(ctx context.Context) {
		eventbus.Consume(ctx, resolved, s.forwardResolved)
	})
	s.workers.Go(func(ctx context.Context) {
		eventbus.Consume(ctx, status, func(env eventbus.TypedEnvelope[bootstrap.Status]) {
			s.hub.Broadcast(MessageStatus, env.Timestamp, env.Payload)
		})
	})
	s.workers.Go(func(ctx context.Context) {
		eventbus.Consume(ctx, state, func(env eventbus.TypedEnvelope[store.StateChange]) {
			s.hub.Broadcast(MessageState, env.Timestamp, stateChange{
				Action:  string(env.Payload.Action.Type),
				Changed: env.Payload.Changed,
			})
		})
	})
}
