package hooks

import (
	"context"
	"errors"
	"sync"
)

type (
	// Bus fans engine events out to registered subscribers. Delivery is
	// synchronous in the publisher's goroutine, in registration order.
	// Publish collects subscriber errors instead of stopping at the first
	// one: events are observational and one misbehaving subscriber must not
	// starve the others. The engine logs the joined error and moves on.
	Bus interface {
		// Publish delivers the event to every currently registered
		// subscriber and returns the joined errors, if any.
		Publish(ctx context.Context, event Event) error

		// Register adds a subscriber and returns a Subscription that removes
		// it when closed. Returns an error if sub is nil.
		Register(sub Subscriber) (Subscription, error)
	}

	// Subscriber reacts to published engine events.
	Subscriber interface {
		// HandleEvent processes a single event. The context originates from
		// the engine operation that produced the event.
		HandleEvent(ctx context.Context, event Event) error
	}

	// SubscriberFunc adapts a function to the Subscriber interface.
	SubscriberFunc func(ctx context.Context, event Event) error

	// Subscription is an active registration on a Bus. Close is idempotent.
	Subscription interface {
		// Close removes the subscriber from the bus. Always returns nil.
		Close() error
	}

	bus struct {
		mu   sync.RWMutex
		subs []*subscription
	}

	subscription struct {
		bus  *bus
		sub  Subscriber
		once sync.Once
	}
)

// HandleEvent implements Subscriber.
func (f SubscriberFunc) HandleEvent(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// NewBus returns an empty in-memory event bus.
func NewBus() Bus {
	return &bus{}
}

// Publish delivers the event to a snapshot of the current subscribers, so
// registrations and closes during delivery do not affect this round.
func (b *bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	subs := make([]Subscriber, len(b.subs))
	for i, s := range b.subs {
		subs[i] = s.sub
	}
	b.mu.RUnlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.HandleEvent(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Register adds the subscriber at the end of the delivery order.
func (b *bus) Register(sub Subscriber) (Subscription, error) {
	if sub == nil {
		return nil, errors.New("subscriber is required")
	}
	s := &subscription{bus: b, sub: sub}
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()
	return s, nil
}

// Close removes the subscriber from the bus. Safe to call multiple times.
func (s *subscription) Close() error {
	s.once.Do(func() {
		b := s.bus
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, cur := range b.subs {
			if cur == s {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
	})
	return nil
}
