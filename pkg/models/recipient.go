package models

import "time"

// RecipientStatus is the campaign-facing delivery state of a recipient.
type RecipientStatus string

const (
	RecipientStatusUndelivered RecipientStatus = "undelivered"
	RecipientStatusUnread      RecipientStatus = "unread"
	RecipientStatusRead        RecipientStatus = "read"
	RecipientStatusReplied     RecipientStatus = "replied"
)

// Recipient is an end-user phone number tracked by the system. Recipients are
// created on first inbound contact when unknown.
type Recipient struct {
	ID               string            `json:"id"`
	AccountID        string            `json:"account_id" validate:"required"`
	Phone            string            `json:"phone"      validate:"required,min=5"`
	Name             string            `json:"name,omitempty"`
	Attributes       map[string]string `json:"attributes,omitempty"` // used by campaign variable bindings
	HasConversation  bool              `json:"has_conversation"`
	OptedOut         bool              `json:"opted_out"`
	Status           RecipientStatus   `json:"status"`
	ActiveCampaignID *string           `json:"active_campaign_id,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Attribute looks up a recipient attribute, falling back when absent or empty.
func (r *Recipient) Attribute(name, fallback string) string {
	if v, ok := r.Attributes[name]; ok && v != "" {
		return v
	}

	return fallback
}

// FlowState is the per-recipient conversation position: the active flow and
// the node the recipient is parked on. Absence of a FlowState means Idle.
// Mutated only by the flow engine, single-writer per recipient.
type FlowState struct {
	RecipientID string    `json:"recipient_id" validate:"required"`
	FlowID      string    `json:"flow_id"      validate:"required"`
	NodeID      string    `json:"node_id"      validate:"required"`
	UpdatedAt   time.Time `json:"updated_at"`
}
