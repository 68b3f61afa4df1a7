package platform

import (
	"context"
	"sync"

	"monarch"
	"monarch/instance"
)

// Memory is an in-process registry keyed by identity string. Each
// FindOrRegister call behaves like a separate process launching, which makes
// races between simulated instances deterministic to test.
type Memory struct {
	mu        sync.Mutex
	primaries map[string]*memoryRegistration
}

var _ instance.Platform = (*Memory)(nil)

// NewMemory returns an empty registry.
func NewMemory() *Memory {
	return &Memory{primaries: make(map[string]*memoryRegistration)}
}

// FindOrRegister makes the caller primary if no open registration holds id.
func (m *Memory) FindOrRegister(id monarch.Identity) (instance.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := id.String()
	if _, ok := m.primaries[key]; ok {
		return &memoryRegistration{mem: m, key: key}, nil
	}
	r := &memoryRegistration{mem: m, key: key, current: true}
	m.primaries[key] = r
	return r, nil
}

func (m *Memory) primary(key string) *memoryRegistration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.primaries[key]
}

type memoryRegistration struct {
	mem     *Memory
	key     string
	current bool

	mu        sync.Mutex
	callbacks []func()
}

func (r *memoryRegistration) IsCurrent() bool { return r.current }

func (r *memoryRegistration) OnActivated(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, fn)
}

// Redirect runs the primary's activation callbacks on a separate goroutine
// and waits for them, bounded by ctx.
func (r *memoryRegistration) Redirect(ctx context.Context) error {
	p := r.mem.primary(r.key)
	if p == nil || p == r {
		return ErrNoPrimary
	}

	p.mu.Lock()
	callbacks := append([]func(){}, p.callbacks...)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, fn := range callbacks {
			fn()
		}
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the identity if r holds it.
func (r *memoryRegistration) Close() error {
	r.mem.mu.Lock()
	defer r.mem.mu.Unlock()
	if r.mem.primaries[r.key] == r {
		delete(r.mem.primaries, r.key)
	}
	return nil
}
