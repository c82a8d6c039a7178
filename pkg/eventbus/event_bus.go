// Package eventbus provides event-driven communication between the message
// pipeline and its consumers.
package eventbus

import (
	"context"

	"github.com/zapflow/zapflow/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

// EventPublisher emits lifecycle events. The key is the owning user id, so
// partitioned transports keep one user's events ordered.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event interface{}) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
