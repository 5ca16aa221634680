package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher publishes auth events to in-process subscribers.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler) (unsubscribe func())
}

type subscription struct {
	id      uint64
	handler EventHandler
}

// InMemoryDispatcher runs handlers synchronously on the publishing goroutine.
type InMemoryDispatcher struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[EventType][]subscription
	logger *zap.Logger
}

// NewInMemoryDispatcher creates a dispatcher instance.
func NewInMemoryDispatcher(logger *zap.Logger) *InMemoryDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryDispatcher{
		subs:   make(map[EventType][]subscription),
		logger: logger,
	}
}

// Publish invokes every handler registered for the event type, in
// subscription order. Handler errors and panics are logged and joined into
// the returned error; they never stop the remaining handlers.
func (d *InMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	d.mu.RLock()
	subs := append([]subscription(nil), d.subs[event.Type]...)
	d.mu.RUnlock()

	var errs []error
	for _, sub := range subs {
		if err := d.invoke(ctx, sub.handler, event); err != nil {
			d.logger.Warn("event handler failed",
				zap.String("event_type", string(event.Type)),
				zap.String("event_id", event.ID),
				zap.Stringp("subject_id", event.SubjectID),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *InMemoryDispatcher) invoke(ctx context.Context, handler EventHandler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, event)
}

// Subscribe registers a handler for the given event type. The returned func
// removes it; calling it more than once is a no-op.
func (d *InMemoryDispatcher) Subscribe(eventType EventType, handler EventHandler) func() {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.subs[eventType] = append(d.subs[eventType], subscription{id: id, handler: handler})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			subs := d.subs[eventType]
			for i, sub := range subs {
				if sub.id == id {
					d.subs[eventType] = append(subs[:i:i], subs[i+1:]...)
					return
				}
			}
		})
	}
}
