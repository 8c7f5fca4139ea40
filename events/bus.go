/*
Package events is the change-notification bus of the fulfillment engine.

PURPOSE:
  Lets other parts of the application (dashboards, the HTTP adapter,
  low-stock alerts) learn that a prescription was dispensed or that stock
  moved, without polling the database.

DESIGN:
  A Bus is an ordinary value created by the caller and injected where it
  is needed. There is no package-level instance. Publish is synchronous:
  handlers run on the publishing goroutine in subscription order, after
  the originating transaction has committed. A handler that panics is
  logged and does not affect the other handlers or the publisher.

EVENT TYPES:
  prescription.dispensed   one per successful dispense
  prescription.cancelled   one per successful cancel
  stock.changed            one per catalog code debited or restocked
*/
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Type identifies the kind of event.
type Type string

const (
	PrescriptionDispensed Type = "prescription.dispensed"
	PrescriptionCancelled Type = "prescription.cancelled"
	StockChanged          Type = "stock.changed"
)

// Event is a committed state change.
type Event struct {
	ID             string    `json:"id"`
	Type           Type      `json:"type"`
	At             time.Time `json:"at"`
	PrescriptionID int64     `json:"prescription_id,omitempty"`
	Staff          string    `json:"staff,omitempty"`
	Code           string    `json:"code,omitempty"`
	Delta          int64     `json:"delta,omitempty"`
	QuantityOnHand int64     `json:"quantity_on_hand,omitempty"`
}

// New returns an event of type t with a fresh id.
func New(t Type, at time.Time) Event {
	return Event{ID: uuid.NewString(), Type: t, At: at}
}

// Handler receives published events.
type Handler func(ctx context.Context, ev Event)

// Publisher is what producers depend on.
type Publisher interface {
	Publish(ctx context.Context, evs ...Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, ...Event) {}

// Bus is an in-process publish/subscribe hub.
type Bus struct {
	mu       sync.RWMutex
	next     int
	handlers []subscription
	log      zerolog.Logger
}

type subscription struct {
	id int
	fn Handler
}

// NewBus creates an empty bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{log: log.With().Str("component", "events").Logger()}
}

// Subscribe registers fn and returns a function that removes it.
// Calling the returned function more than once is harmless.
func (b *Bus) Subscribe(fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	id := b.next
	b.handlers = append(b.handlers, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.handlers {
				if s.id == id {
					b.handlers = append(b.handlers[:i:i], b.handlers[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers each event to every current subscriber.
func (b *Bus) Publish(ctx context.Context, evs ...Event) {
	b.mu.RLock()
	handlers := make([]subscription, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, ev := range evs {
		for _, s := range handlers {
			b.deliver(ctx, s.fn, ev)
		}
	}
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

func (b *Bus) deliver(ctx context.Context, fn Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Str("event", string(ev.Type)).Str("event_id", ev.ID).
				Msg("event handler panicked")
		}
	}()
	fn(ctx, ev)
}
