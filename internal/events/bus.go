// Package events is the in-process publish/subscribe bus that decouples the
// scheduler from whatever UI is attached to it.
package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/promptlog/internal/metrics"
	"github.com/goodtune/promptlog/internal/storage"
	"github.com/rs/zerolog"
)

// Kind names an event type.
type Kind string

const (
	NotificationDue Kind = "notification-due"
	SessionStarted  Kind = "session-started"
	SessionStopped  Kind = "session-stopped"
	ActivityAdded   Kind = "activity-added"
)

// Reasons carried by NotificationDue.
const (
	ReasonInterval = "interval"
	ReasonStop     = "stop"
)

// Event is a single published message. Only the fields relevant to Kind
// are set.
type Event struct {
	Kind Kind      `json:"kind"`
	At   time.Time `json:"at"`

	// NotificationDue
	Reason   string    `json:"reason,omitempty"`
	Boundary time.Time `json:"boundary,omitempty"`

	// SessionStarted, SessionStopped
	Session *storage.Session `json:"session,omitempty"`

	// ActivityAdded
	Activity *storage.Activity `json:"activity,omitempty"`
}

// Listener handles an event. A returned error is logged and counted.
type Listener func(Event) error

type subscription struct {
	id       uint64
	kind     Kind // empty matches every kind
	listener Listener
}

// Bus delivers events synchronously, in registration order, on the
// publishing goroutine.
type Bus struct {
	logger zerolog.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

// NewBus creates an empty bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		logger: logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers listener for kind and returns its unsubscribe func.
func (b *Bus) Subscribe(kind Kind, listener Listener) func() {
	return b.add(kind, listener)
}

// SubscribeAll registers listener for every kind.
func (b *Bus) SubscribeAll(listener Listener) func() {
	return b.add("", listener)
}

func (b *Bus) add(kind Kind, listener Listener) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, kind: kind, listener: listener})
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

// Publish delivers e to every matching listener. Listeners registered or
// removed during delivery take effect from the next Publish.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	metrics.EventsPublished.WithLabelValues(string(e.Kind)).Inc()

	for _, s := range subs {
		if s.kind != "" && s.kind != e.Kind {
			continue
		}
		if err := deliver(s.listener, e); err != nil {
			metrics.ListenerFailures.WithLabelValues(string(e.Kind)).Inc()
			b.logger.Error().
				Err(err).
				Str("event", string(e.Kind)).
				Uint64("subscription", s.id).
				Msg("Event listener failed")
		}
	}
}

// Len reports the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func deliver(listener Listener, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return listener(e)
}
