// Package runtime hosts the long-running services of the shell process.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nupi-ai/shellboot/internal/constants"
)

// Service is a unit started and stopped by the host.
type Service interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// ServiceFunc adapts a pair of functions to Service. Either may be nil.
type ServiceFunc struct {
	StartFunc    func(ctx context.Context) error
	ShutdownFunc func(ctx context.Context) error
}

// Start implements Service.
func (f ServiceFunc) Start(ctx context.Context) error {
	if f.StartFunc == nil {
		return nil
	}
	return f.StartFunc(ctx)
}

// Shutdown implements Service.
func (f ServiceFunc) Shutdown(ctx context.Context) error {
	if f.ShutdownFunc == nil {
		return nil
	}
	return f.ShutdownFunc(ctx)
}

// ServiceHost starts services in registration order and stops them in
// reverse order.
type ServiceHost struct {
	mu      sync.Mutex
	order   []string
	entries map[string]*serviceRegistration
	started bool
	errors  chan error
}

// Option configures a service registration.
type Option func(*serviceRegistration)

type serviceRegistration struct {
	name            string
	service         Service
	running         bool
	shutdownTimeout time.Duration
}

// WithShutdownTimeout customises the shutdown timeout for a service.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(reg *serviceRegistration) {
		reg.shutdownTimeout = timeout
	}
}

// NewServiceHost creates an empty host.
func NewServiceHost() *ServiceHost {
	return &ServiceHost{
		entries: make(map[string]*serviceRegistration),
		errors:  make(chan error, 1),
	}
}

// Register adds svc under name. Services cannot be added after Start.
func (h *ServiceHost) Register(name string, svc Service, opts ...Option) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return fmt.Errorf("runtime: cannot register service %q after start", name)
	}
	if svc == nil {
		return fmt.Errorf("runtime: service %q is nil", name)
	}
	if _, exists := h.entries[name]; exists {
		return fmt.Errorf("runtime: service %q already registered", name)
	}

	reg := &serviceRegistration{
		name:            name,
		service:         svc,
		shutdownTimeout: constants.Duration5Seconds,
	}
	for _, opt := range opts {
		opt(reg)
	}
	h.entries[name] = reg
	h.order = append(h.order, name)
	return nil
}

// Start starts every service. When one fails the services already started
// are stopped again and the error is returned.
func (h *ServiceHost) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return errors.New("runtime: service host already started")
	}
	h.started = true
	regs := h.registrations()
	h.mu.Unlock()

	for i, reg := range regs {
		if err := reg.service.Start(ctx); err != nil {
			h.stopAll(context.Background(), regs[:i])
			h.mu.Lock()
			h.started = false
			h.mu.Unlock()
			return fmt.Errorf("runtime: start service %q: %w", reg.name, err)
		}
		reg.running = true
		h.watchErrors(reg)
	}
	return nil
}

// Stop shuts services down in reverse registration order and returns the
// first error.
func (h *ServiceHost) Stop(ctx context.Context) error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return nil
	}
	h.started = false
	regs := h.registrations()
	h.mu.Unlock()

	return h.stopAll(ctx, regs)
}

// Errors returns a channel receiving errors reported by running services.
func (h *ServiceHost) Errors() <-chan error {
	return h.errors
}

func (h *ServiceHost) registrations() []*serviceRegistration {
	regs := make([]*serviceRegistration, 0, len(h.order))
	for _, name := range h.order {
		regs = append(regs, h.entries[name])
	}
	return regs
}

func (h *ServiceHost) stopAll(ctx context.Context, regs []*serviceRegistration) error {
	var stopErr error
	for i := len(regs) - 1; i >= 0; i-- {
		reg := regs[i]
		if !reg.running {
			continue
		}
		stopCtx, cancel := context.WithTimeout(ctx, reg.shutdownTimeout)
		err := reg.service.Shutdown(stopCtx)
		cancel()
		reg.running = false
		if err != nil && !errors.Is(err, context.Canceled) && stopErr == nil {
			stopErr = fmt.Errorf("runtime: shutdown service %q: %w", reg.name, err)
		}
	}
	return stopErr
}

func (h *ServiceHost) watchErrors(reg *serviceRegistration) {
	observable, ok := reg.service.(interface{ Errors() <-chan error })
	if !ok {
		return
	}
	go func(name string, ch <-chan error) {
		for err := range ch {
			if err == nil {
				continue
			}
			select {
			case h.errors <- fmt.Errorf("%s service error: %w", name, err):
			default:
			}
		}
	}(reg.name, observable.Errors())
}
