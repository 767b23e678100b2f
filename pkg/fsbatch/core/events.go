package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event types published by the engine and the reverter.
const (
	EventOperationStarted   = "operation.started"
	EventOperationCompleted = "operation.completed"
	EventOperationFailed    = "operation.failed"
	EventOperationReverted  = "operation.reverted"
)

// OperationEvent is the payload of every engine event.
type OperationEvent struct {
	Type          string
	Time          time.Time
	Position      Position
	OperationType string
	Path          string
	Duration      time.Duration
	Err           error
	RevertStatus  RevertStatus // set on EventOperationReverted only
}

// EventHandler handles events
type EventHandler interface {
	Handle(ctx context.Context, event OperationEvent) error
}

// EventHandlerFunc is a function adapter for EventHandler
type EventHandlerFunc func(ctx context.Context, event OperationEvent) error

// Handle implements EventHandler
func (f EventHandlerFunc) Handle(ctx context.Context, event OperationEvent) error {
	return f(ctx, event)
}

// SubscriptionID identifies a subscription
type SubscriptionID string

// EventBus manages event publishing and subscription
type EventBus interface {
	// Subscribe registers a handler for events of the given type, returns subscription ID
	Subscribe(eventType string, handler EventHandler) SubscriptionID
	// Unsubscribe removes a handler using its subscription ID
	Unsubscribe(subscriptionID SubscriptionID)
	// Publish sends an event to all registered handlers
	Publish(ctx context.Context, event OperationEvent)
}

type subscription struct {
	id      SubscriptionID
	handler EventHandler
}

// MemoryEventBus is an in-memory, synchronous EventBus.
type MemoryEventBus struct {
	mu            sync.RWMutex
	handlers      map[string][]subscription
	subscriptions map[SubscriptionID]string
	nextID        int
	logger        zerolog.Logger
}

// NewMemoryEventBus creates a new in-memory event bus
func NewMemoryEventBus(logger zerolog.Logger) *MemoryEventBus {
	return &MemoryEventBus{
		handlers:      make(map[string][]subscription),
		subscriptions: make(map[SubscriptionID]string),
		nextID:        1,
		logger:        logger,
	}
}

// Subscribe registers a handler for events of the given type
func (bus *MemoryEventBus) Subscribe(eventType string, handler EventHandler) SubscriptionID {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	subID := SubscriptionID(fmt.Sprintf("sub_%d", bus.nextID))
	bus.nextID++

	bus.handlers[eventType] = append(bus.handlers[eventType], subscription{id: subID, handler: handler})
	bus.subscriptions[subID] = eventType

	bus.logger.Debug().
		Str("event_type", eventType).
		Str("subscription_id", string(subID)).
		Msg("subscribed to event")
	return subID
}

// Unsubscribe removes a handler using its subscription ID
func (bus *MemoryEventBus) Unsubscribe(subscriptionID SubscriptionID) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	eventType, ok := bus.subscriptions[subscriptionID]
	if !ok {
		return
	}
	delete(bus.subscriptions, subscriptionID)

	handlers := bus.handlers[eventType]
	for i, sub := range handlers {
		if sub.id == subscriptionID {
			bus.handlers[eventType] = append(handlers[:i:i], handlers[i+1:]...)
			return
		}
	}
}

// Publish delivers event to its handlers in subscription order. Handler
// errors are logged and never interrupt the publisher.
func (bus *MemoryEventBus) Publish(ctx context.Context, event OperationEvent) {
	bus.mu.RLock()
	subs := append([]subscription{}, bus.handlers[event.Type]...)
	bus.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.handler.Handle(ctx, event); err != nil {
			bus.logger.Warn().
				Str("event_type", event.Type).
				Str("subscription_id", string(sub.id)).
				Err(err).
				Msg("event handler failed")
		}
	}
}
