// ABOUTME: Synchronous in-process event bus for session lifecycle signals
// ABOUTME: Ordered fan-out to listeners; failing listeners are logged, never propagated

package events

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Kind identifies a session lifecycle signal.
type Kind string

// Event kinds carried on the bus.
const (
	KindTokenExpired Kind = "token_expired"
	KindUnauthorized Kind = "unauthorized"
	KindLogout       Kind = "logout"
	KindLogin        Kind = "login"
)

// Event is a single emission. Payload is opaque to the bus.
type Event struct {
	Kind    Kind
	Payload any
}

// Listener receives events. A returned error is logged and swallowed.
type Listener func(Event) error

// subscription is one registered listener.
type subscription struct {
	id       string
	listener Listener
}

// Bus is a publish/subscribe channel for lifecycle events. The zero value is
// not usable; create one with NewBus.
type Bus struct {
	mu     sync.Mutex
	subs   []*subscription // registration order
	logger *slog.Logger
}

// NewBus creates an empty bus. Pass nil logger for default.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger: logger.With("component", "events"),
	}
}

// Subscribe registers a listener and returns a function that removes exactly
// that listener. Calling the returned function more than once is a no-op.
func (b *Bus) Subscribe(listener Listener) (unsubscribe func()) {
	sub := &subscription{
		id:       uuid.New().String(),
		listener: listener,
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	b.logger.Debug("listener added", "sub_id", sub.id)

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(sub) })
	}
}

// On registers a listener that only sees the given kinds.
func (b *Bus) On(listener Listener, kinds ...Kind) (unsubscribe func()) {
	wanted := make(map[Kind]struct{}, len(kinds))
	for _, k := range kinds {
		wanted[k] = struct{}{}
	}
	return b.Subscribe(func(ev Event) error {
		if _, ok := wanted[ev.Kind]; !ok {
			return nil
		}
		return listener(ev)
	})
}

// Emit delivers an event to every listener registered at the time of the
// call, in registration order. It never returns an error to the caller.
func (b *Bus) Emit(kind Kind, payload any) {
	// Copy under lock so listeners may subscribe/unsubscribe while we deliver
	b.mu.Lock()
	targets := make([]*subscription, len(b.subs))
	copy(targets, b.subs)
	b.mu.Unlock()

	b.logger.Debug("emitting event", "kind", kind, "listeners", len(targets))

	ev := Event{Kind: kind, Payload: payload}
	for _, sub := range targets {
		if err := b.deliver(sub, ev); err != nil {
			b.logger.Error("listener failed",
				"kind", kind,
				"sub_id", sub.id,
				"error", err)
		}
	}
}

// Len returns the number of registered listeners.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// deliver invokes one listener, converting a panic into an error.
func (b *Bus) deliver(sub *subscription, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	return sub.listener(ev)
}

func (b *Bus) remove(target *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub == target {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			b.logger.Debug("listener removed", "sub_id", sub.id)
			return
		}
	}
}
