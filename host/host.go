// Package host runs an application's background services and UI loop.
//
// Services start in registration order and stop in reverse. A failure while
// starting stops everything that already started. The Lifetime signals
// report where the host is: started once every service is up, stopping when
// teardown begins, stopped when it finished.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"monarch/internal/check"
	"monarch/internal/eventbus"
	"monarch/lifetime"
)

const defaultStopTimeout = 30 * time.Second

var (
	// ErrStartFailed wraps the error of the service that failed to start.
	ErrStartFailed = errors.New("start services")
	// ErrNoApp is returned by Run when no App was given.
	ErrNoApp = errors.New("no application to run")
	// ErrAppPanic wraps a panic raised by the App run loop.
	ErrAppPanic = errors.New("application panicked")
	// ErrStopped is returned by Start once the host has stopped.
	ErrStopped = errors.New("host already stopped")
)

// Host orchestrates service start and stop.
type Host struct {
	log         *slog.Logger
	lifetime    *lifetime.Lifetime
	bus         *eventbus.Bus
	coordinator Coordinator
	notifier    Notifier
	args        []string
	services    []Service
	stopTimeout time.Duration

	// mu serializes service transitions.
	mu sync.Mutex
	// running is nil when the host is not running.
	running []Service
	// active mirrors running != nil for lock-free reads.
	active atomic.Bool
}

// Option configures a Host.
type Option func(*Host)

// WithService appends services. Registration order is start order.
func WithService(s ...Service) Option {
	for _, svc := range s {
		check.Assert(svc != nil, "host.WithService: service must not be nil")
	}
	return func(h *Host) { h.services = append(h.services, s...) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) { h.log = l }
}

// WithLifetime shares an existing Lifetime, so services can observe it.
func WithLifetime(lt *lifetime.Lifetime) Option {
	return func(h *Host) { h.lifetime = lt }
}

// WithBus shares an existing event bus.
func WithBus(b *eventbus.Bus) Option {
	return func(h *Host) { h.bus = b }
}

// WithCoordinator enables single-instance mode for Run.
func WithCoordinator(c Coordinator) Option {
	return func(h *Host) { h.coordinator = c }
}

// WithArgs sets the command line forwarded when this is not the primary
// instance.
func WithArgs(args []string) Option {
	return func(h *Host) { h.args = slices.Clone(args) }
}

// WithNotifier reports lifecycle transitions to n.
func WithNotifier(n Notifier) Option {
	return func(h *Host) { h.notifier = n }
}

// WithStopTimeout bounds the stop performed when Run's app exits.
func WithStopTimeout(d time.Duration) Option {
	return func(h *Host) {
		if d > 0 {
			h.stopTimeout = d
		}
	}
}

// New creates a Host. Nothing starts until Start or Run.
func New(opts ...Option) *Host {
	h := &Host{stopTimeout: defaultStopTimeout}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	if h.lifetime == nil {
		h.lifetime = lifetime.New(h.log)
	}
	if h.bus == nil {
		h.bus = eventbus.New(h.log)
	}
	if h.notifier != nil {
		n := h.notifier
		h.lifetime.Started().Register(func() {
			if err := n.Ready(); err != nil {
				h.log.Error("Failed to notify readiness.", "err", err)
			}
		})
		h.lifetime.Stopping().Register(func() {
			if err := n.Stopping(); err != nil {
				h.log.Error("Failed to notify stopping.", "err", err)
			}
		})
	}
	return h
}

// Lifetime returns the host's lifecycle signals.
func (h *Host) Lifetime() *lifetime.Lifetime { return h.lifetime }

// Bus returns the host's event bus.
func (h *Host) Bus() *eventbus.Bus { return h.bus }

// Running reports whether services are started. It does not take the host
// lock, so lifecycle callbacks may call it.
func (h *Host) Running() bool { return h.active.Load() }

// Start starts every service in order. On the first failure everything
// already started is stopped in reverse and an error wrapping
// ErrStartFailed is returned; the remaining services are not started.
// Calling Start on a running host does nothing. A host that has stopped
// cannot be started again and returns ErrStopped.
func (h *Host) Start(ctx context.Context) error {
	err := h.startServices(ctx)
	if errors.Is(err, ErrStartFailed) {
		h.lifetime.StopApplication()
		h.mu.Lock()
		stopErr := h.stopLocked(ctx)
		h.mu.Unlock()
		if stopErr != nil {
			h.log.Warn("Rollback finished with errors.", "err", stopErr)
		}
	}
	return err
}

// startServices leaves the services it started in h.running on failure for
// the rollback. The host counts as running only once all of them are up.
func (h *Host) startServices(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	// A partial running set means a failed start is being rolled back.
	if h.lifetime.Stopped().Fired() || (h.running != nil && !h.active.Load()) {
		return ErrStopped
	}
	if h.running != nil {
		h.log.Warn("Host already started.")
		return nil
	}

	h.log.Info("Starting services.", "count", len(h.services))
	h.running = make([]Service, 0, len(h.services))
	for _, s := range h.services {
		name := serviceName(s)
		if err := s.Start(ctx); err != nil {
			h.log.Error("Service failed to start.", "service", name, "err", err)
			return fmt.Errorf("%w: %s: %w", ErrStartFailed, name, err)
		}
		h.log.Debug("Service started.", "service", name)
		h.running = append(h.running, s)
	}

	h.active.Store(true)
	h.lifetime.NotifyStarted()
	h.log.Info("Host started.")
	return nil
}

// Stop signals stopping, stops the running services in reverse order and
// signals stopped. Failures are logged and do not interrupt the sequence;
// they are returned joined for information. Stop on a host that is not
// running, including one still starting, does nothing.
//
// Stopping callbacks run before the host lock is taken and may call Stop or
// Running. Started and stopped callbacks run under the lock and must not
// call Start or Stop.
func (h *Host) Stop(ctx context.Context) error {
	if !h.Running() {
		return nil
	}
	h.lifetime.StopApplication()

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopLocked(ctx)
}

// stopLocked requires h.mu.
func (h *Host) stopLocked(ctx context.Context) error {
	if h.running == nil {
		return nil
	}

	h.log.Info("Stopping services.", "count", len(h.running))
	var errs []error
	for i := len(h.running) - 1; i >= 0; i-- {
		s := h.running[i]
		name := serviceName(s)
		if err := s.Stop(ctx); err != nil {
			h.log.Error("Service failed to stop.", "service", name, "err", err)
			errs = append(errs, fmt.Errorf("stop %s: %w", name, err))
			continue
		}
		h.log.Debug("Service stopped.", "service", name)
	}
	h.running = nil
	h.active.Store(false)

	h.lifetime.NotifyStopped()
	h.log.Info("Host stopped.")
	return errors.Join(errs...)
}

func serviceName(s Service) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}
