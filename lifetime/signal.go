package lifetime

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
)

// Signal is a one-shot notification. It starts pending and fires at most
// once; after that it stays fired. Callbacks registered before firing run
// exactly once, in registration order, on the goroutine that fires it.
//
// The zero value is ready to use.
type Signal struct {
	name string
	log  *slog.Logger

	mu        sync.Mutex
	fired     bool
	done      chan struct{}
	nextID    uint64
	callbacks map[uint64]func()
}

// NewSignal returns a named signal. The name only appears in logs.
func NewSignal(name string, log *slog.Logger) *Signal {
	return &Signal{name: name, log: log}
}

// Name returns the signal's name.
func (s *Signal) Name() string { return s.name }

// Done returns a channel that is closed when the signal fires.
func (s *Signal) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doneLocked()
}

func (s *Signal) doneLocked() chan struct{} {
	if s.done == nil {
		s.done = make(chan struct{})
	}
	return s.done
}

// Fired reports whether the signal has fired.
func (s *Signal) Fired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

// Register arranges for fn to run when the signal fires. If it already
// fired, fn runs immediately on the calling goroutine. The returned function
// removes the registration; it is safe to call more than once.
func (s *Signal) Register(fn func()) (unregister func()) {
	s.mu.Lock()
	if s.fired {
		s.mu.Unlock()
		s.invoke(fn)
		return func() {}
	}
	if s.callbacks == nil {
		s.callbacks = make(map[uint64]func())
	}
	id := s.nextID
	s.nextID++
	s.callbacks[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.callbacks, id)
		s.mu.Unlock()
	}
}

// Context returns a context derived from parent that is cancelled when the
// signal fires. Callers must call the returned cancel function.
func (s *Signal) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	unregister := s.Register(cancel)
	return ctx, func() {
		unregister()
		cancel()
	}
}

// Fire transitions the signal to fired and runs the pending callbacks.
// It reports whether this call performed the transition.
func (s *Signal) Fire() bool {
	s.mu.Lock()
	if s.fired {
		s.mu.Unlock()
		return false
	}
	s.fired = true
	close(s.doneLocked())
	pending := make([]func(), 0, len(s.callbacks))
	for _, id := range slices.Sorted(maps.Keys(s.callbacks)) {
		pending = append(pending, s.callbacks[id])
	}
	s.callbacks = nil
	s.mu.Unlock()

	for _, fn := range pending {
		s.invoke(fn)
	}
	return true
}

func (s *Signal) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger().Error("Signal callback panicked.", "signal", s.name, "panic", r)
		}
	}()
	fn()
}

func (s *Signal) logger() *slog.Logger {
	if s.log != nil {
		return s.log
	}
	return slog.Default()
}
