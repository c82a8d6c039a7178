// Package events defines event types for message lifecycle and flow notifications.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/zapflow/zapflow/pkg/models"
)

type EventType string

// Kafka topic all lifecycle events are published to.
const Topic = "zapflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Message lifecycle events.
	MessageReceivedEvent      EventType = "message.received"
	MessageStatusUpdatedEvent EventType = "message.status.updated"

	// Campaign lifecycle events.
	CampaignCompletedEvent EventType = "campaign.completed"

	// Flow lifecycle events.
	FlowTriggeredEvent EventType = "flow.triggered"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	AccountID string         `json:"account_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// MessageReceived is emitted for every inbound message, after persistence and
// before any flow handling.
type MessageReceived struct {
	BaseEvent

	MessageID    string `json:"message_id"`
	RecipientID  string `json:"recipient_id"`
	Phone        string `json:"phone"`
	Body         string `json:"body"`
	NewRecipient bool   `json:"new_recipient"`
}

func (m MessageReceived) GetType() EventType {
	return MessageReceivedEvent
}

// MessageStatusUpdated is emitted when a provider status callback advances a
// tracked outbound message.
type MessageStatusUpdated struct {
	BaseEvent

	MessageID   string               `json:"message_id"`
	RecipientID string               `json:"recipient_id"`
	CampaignID  string               `json:"campaign_id,omitempty"`
	WAMID       string               `json:"wamid"`
	Previous    models.MessageStatus `json:"previous"`
	Status      models.MessageStatus `json:"status"`
	Error       string               `json:"error,omitempty"`
}

func (m MessageStatusUpdated) GetType() EventType {
	return MessageStatusUpdatedEvent
}

// CampaignCompleted is emitted once every recipient of a campaign has been
// attempted.
type CampaignCompleted struct {
	BaseEvent

	CampaignID string    `json:"campaign_id"`
	Name       string    `json:"name"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	FinishedAt time.Time `json:"finished_at"`
}

func (c CampaignCompleted) GetType() EventType {
	return CampaignCompletedEvent
}

// FlowTriggered is emitted when an inbound message seats a recipient at the
// start of a flow.
type FlowTriggered struct {
	BaseEvent

	FlowID      string `json:"flow_id"`
	FlowName    string `json:"flow_name"`
	RecipientID string `json:"recipient_id"`
	Trigger     string `json:"trigger"`
}

func (f FlowTriggered) GetType() EventType {
	return FlowTriggeredEvent
}

func NewBaseEvent(eventType EventType, accountID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		AccountID: accountID,
		Metadata:  make(map[string]any),
	}
}
