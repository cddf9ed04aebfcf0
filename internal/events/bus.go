package events

import (
	"context"
	"log/slog"
	"sync"
)

// InMemoryBus is a simple implementation of the Publisher interface that
// stores registered handlers in memory and dispatches events to them
// synchronously. Synchronous dispatch in publish order is what gives
// subscribers per-batch ordering: the lifecycle manager publishes each
// batch's events from inside its own call sequence.
type InMemoryBus struct {
	handlers []Handler
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewInMemoryBus creates a new instance of InMemoryBus.
func NewInMemoryBus(logger *slog.Logger) *InMemoryBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryBus{
		handlers: make([]Handler, 0),
		logger:   logger.With("component", "event_bus"),
	}
}

// Subscribe adds a new handler to receive events.
func (b *InMemoryBus) Subscribe(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
	b.logger.Debug("registered event handler", "handler_count", len(b.handlers))
}

// Publish delivers the given event to all registered handlers. If a handler
// returns an error, the event is still delivered to the remaining handlers
// and the first error encountered is returned. Callers treat a publish
// failure as log-and-continue: the state change the event describes has
// already committed.
func (b *InMemoryBus) Publish(ctx context.Context, event *Event) error {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	b.logger.Debug("publishing event",
		"event_id", event.ID,
		"event_type", event.Type,
		"handler_count", len(handlers))

	if len(handlers) == 0 {
		return nil
	}

	var firstErr error
	for i, handler := range handlers {
		if err := handler.HandleEvent(ctx, event); err != nil {
			b.logger.Error("handler failed to process event",
				"error", err,
				"handler_index", i,
				"event_id", event.ID,
				"event_type", event.Type)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
