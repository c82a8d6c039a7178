package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zapflow/zapflow/pkg/config"
	"github.com/zapflow/zapflow/pkg/eventbus"
	"github.com/zapflow/zapflow/pkg/events"
)

// Subscriber bridges the event bus to the session manager: every lifecycle
// event is pushed to the sessions of the user owning the account.
type Subscriber struct {
	manager  *Manager
	registry *config.Registry
	logger   *slog.Logger
}

func NewSubscriber(logger *slog.Logger, manager *Manager, registry *config.Registry) *Subscriber {
	return &Subscriber{
		manager:  manager,
		registry: registry,
		logger:   logger.With("module", "notify_subscriber"),
	}
}

// Attach registers handlers for all lifecycle events and starts consuming.
func (s *Subscriber) Attach(ctx context.Context, bus eventbus.EventBus) error {
	handle := func(eventType events.EventType, accountOf func(event any) string) error {
		return bus.Handle(eventType, func(ctx context.Context, event any) error {
			accountID := accountOf(event)

			userID, ok := s.registry.UserForAccount(accountID)
			if !ok {
				s.logger.DebugContext(ctx, "Event for unregistered account",
					"event_type", eventType, "account_id", accountID)

				return nil
			}

			s.manager.Broadcast(userID, string(eventType), event)

			return nil
		})
	}

	registrations := []struct {
		eventType events.EventType
		accountOf func(event any) string
	}{
		{events.MessageReceivedEvent, func(e any) string { return e.(*events.MessageReceived).AccountID }},
		{events.MessageStatusUpdatedEvent, func(e any) string { return e.(*events.MessageStatusUpdated).AccountID }},
		{events.CampaignCompletedEvent, func(e any) string { return e.(*events.CampaignCompleted).AccountID }},
		{events.FlowTriggeredEvent, func(e any) string { return e.(*events.FlowTriggered).AccountID }},
	}

	for _, registration := range registrations {
		err := handle(registration.eventType, registration.accountOf)
		if err != nil {
			return fmt.Errorf("failed to register %s handler: %w", registration.eventType, err)
		}
	}

	return bus.Subscribe(ctx)
}
