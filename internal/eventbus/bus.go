// Package eventbus is an in-process, fire-and-forget publish/subscribe hub.
//
// Publish delivers synchronously to every current subscriber whose type
// matches the item's dynamic type. Nothing is buffered or replayed:
// subscribers registered after a publication never see it.
package eventbus

import (
	"fmt"
	"log/slog"
	"sync"
)

type subscriber struct {
	id      uint64
	deliver func(item any) bool
}

// Bus routes published items to typed subscribers. The zero value is ready
// to use.
type Bus struct {
	log *slog.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   []subscriber
}

// New returns a Bus that logs subscriber panics to log (slog.Default if nil).
func New(log *slog.Logger) *Bus {
	return &Bus{log: log}
}

// Subscribe registers fn for items assignable to T. Interface types match
// every implementer. The returned function unsubscribes; it is idempotent.
func Subscribe[T any](b *Bus, fn func(T)) (unsubscribe func()) {
	deliver := func(item any) bool {
		v, ok := item.(T)
		if !ok {
			return false
		}
		fn(v)
		return true
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscriber{id: id, deliver: deliver})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers item to matching subscribers in subscription order and
// returns how many received it. A panicking subscriber is logged and
// skipped.
func (b *Bus) Publish(item any) int {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	delivered := 0
	for _, s := range subs {
		if b.safeDeliver(s, item) {
			delivered++
		}
	}
	return delivered
}

func (b *Bus) safeDeliver(s subscriber, item any) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.logger().Error("Event subscriber panicked.", "event", fmt.Sprintf("%T", item), "panic", r)
			ok = false
		}
	}()
	return s.deliver(item)
}

// Len returns the number of current subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) logger() *slog.Logger {
	if b.log != nil {
		return b.log
	}
	return slog.Default()
}
