package events

import (
	"context"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Handler consumes one event. Handlers run synchronously on the publishing
// goroutine, in subscription order.
type Handler func(ctx context.Context, event Event) error

// Bus is a single-process publish/subscribe registry keyed by event tag.
type Bus struct {
	mu       sync.RWMutex
	log      *zap.Logger
	handlers map[string][]Handler
}

func NewBus(log *zap.Logger) *Bus {
	return &Bus{
		log:      log.Named("events"),
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers a handler for the given tag.
func (b *Bus) Subscribe(tag string, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[tag] = append(b.handlers[tag], handler)
}

// Publish delivers the event to every subscriber of its tag, in order. A
// handler error is logged and does not stop delivery to later handlers; the
// first error is returned to the publisher.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := b.handlers[event.Tag()]
	b.mu.RUnlock()

	var firstErr error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			b.log.Error("event handler failed",
				zap.String("tag", event.Tag()),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

var Module = fx.Module("events",
	fx.Provide(NewBus),
)
