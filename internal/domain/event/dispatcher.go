package event

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Wildcard subscribes a handler to every event name
const Wildcard = "*"

// EventHandler handles domain events
type EventHandler interface {
	Handle(event DomainEvent) error
	// HandledEvents returns event names, or Wildcard
	HandledEvents() []string
}

// EventDispatcher fans events out to subscribed handlers
type EventDispatcher interface {
	Dispatch(event DomainEvent)
	DispatchAll(events []DomainEvent)
	Subscribe(handler EventHandler)
	Unsubscribe(handler EventHandler)
}

// InMemoryDispatcher delivers each event synchronously on the dispatching
// goroutine, named subscribers first and wildcard subscribers after.
// Executor workers dispatch concurrently, so handlers must tolerate that.
type InMemoryDispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
	logger   *zap.Logger
}

// NewInMemoryDispatcher creates a dispatcher that reports handler errors to logger
func NewInMemoryDispatcher(logger *zap.Logger) *InMemoryDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryDispatcher{
		handlers: make(map[string][]EventHandler),
		logger:   logger,
	}
}

// Dispatch delivers event to every matching handler.
// A failing handler never stops delivery to the others or the caller.
func (d *InMemoryDispatcher) Dispatch(event DomainEvent) {
	name := event.EventName()

	d.mu.RLock()
	targets := make([]EventHandler, 0, len(d.handlers[name])+len(d.handlers[Wildcard]))
	targets = append(targets, d.handlers[name]...)
	targets = append(targets, d.handlers[Wildcard]...)
	d.mu.RUnlock()

	for _, h := range targets {
		if err := d.deliver(h, event); err != nil {
			d.logger.Warn("event handler failed",
				zap.String("event", name),
				zap.String("handler", fmt.Sprintf("%T", h)),
				zap.Error(err))
		}
	}
}

func (d *InMemoryDispatcher) deliver(h EventHandler, event DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Handle(event)
}

// DispatchAll dispatches events in order
func (d *InMemoryDispatcher) DispatchAll(events []DomainEvent) {
	for _, event := range events {
		d.Dispatch(event)
	}
}

// Subscribe registers handler under each of its event names.
// Subscribing the same handler twice is a no-op.
func (d *InMemoryDispatcher) Subscribe(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, name := range handler.HandledEvents() {
		if indexOf(d.handlers[name], handler) >= 0 {
			continue
		}
		d.handlers[name] = append(d.handlers[name], handler)
	}
}

// Unsubscribe removes handler from all of its event names
func (d *InMemoryDispatcher) Unsubscribe(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, name := range handler.HandledEvents() {
		list := d.handlers[name]
		i := indexOf(list, handler)
		if i < 0 {
			continue
		}
		// copy so a concurrent Dispatch keeps iterating its own snapshot
		next := make([]EventHandler, 0, len(list)-1)
		next = append(next, list[:i]...)
		d.handlers[name] = append(next, list[i+1:]...)
	}
}

func indexOf(list []EventHandler, h EventHandler) int {
	for i, x := range list {
		if x == h {
			return i
		}
	}
	return -1
}

// NullDispatcher drops every event
type NullDispatcher struct{}

// NewNullDispatcher creates a new NullDispatcher
func NewNullDispatcher() *NullDispatcher {
	return &NullDispatcher{}
}

func (NullDispatcher) Dispatch(DomainEvent)      {}
func (NullDispatcher) DispatchAll([]DomainEvent) {}
func (NullDispatcher) Subscribe(EventHandler)    {}
func (NullDispatcher) Unsubscribe(EventHandler)  {}
