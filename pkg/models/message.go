package models

import "time"

// MessageDirection distinguishes inbound from outbound messages.
type MessageDirection string

const (
	MessageDirectionInbound  MessageDirection = "inbound"
	MessageDirectionOutbound MessageDirection = "outbound"
)

// MessageStatus is the delivery lifecycle of a message. Transitions are
// monotonic (pending → sent → delivered → read) except failed, which can
// occur from pending or sent. Unresolved records a provider status the
// mapping table does not recognize.
type MessageStatus string

const (
	MessageStatusPending    MessageStatus = "pending"
	MessageStatusSent       MessageStatus = "sent"
	MessageStatusDelivered  MessageStatus = "delivered"
	MessageStatusRead       MessageStatus = "read"
	MessageStatusFailed     MessageStatus = "failed"
	MessageStatusUnresolved MessageStatus = "unresolved"
)

var messageStatusRank = map[MessageStatus]int{
	MessageStatusPending:   0,
	MessageStatusSent:      1,
	MessageStatusDelivered: 2,
	MessageStatusRead:      3,
}

// CanTransition reports whether a status callback may move a message from
// the current status to next.
func (s MessageStatus) CanTransition(next MessageStatus) bool {
	switch next {
	case MessageStatusFailed:
		return s == MessageStatusPending || s == MessageStatusSent
	case MessageStatusUnresolved:
		// Unknown provider statuses park the message, but never regress a
		// resolved terminal state.
		return s == MessageStatusPending || s == MessageStatusSent
	default:
		cur, ok := messageStatusRank[s]
		if !ok {
			return false
		}

		nxt, ok := messageStatusRank[next]
		if !ok {
			return false
		}

		return nxt > cur
	}
}

// Message is a stored inbound or outbound message row. WAMID is the
// provider's message id, used to correlate delivery-status callbacks.
type Message struct {
	ID          string           `json:"id"`
	AccountID   string           `json:"account_id"   validate:"required"`
	RecipientID string           `json:"recipient_id" validate:"required"`
	CampaignID  *string          `json:"campaign_id,omitempty"`
	Direction   MessageDirection `json:"direction"    validate:"required"`
	WAMID       string           `json:"wamid,omitempty"`
	Body        string           `json:"body,omitempty"`
	Status      MessageStatus    `json:"status"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}
