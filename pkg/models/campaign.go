package models

import "time"

// CampaignStatus is the aggregate lifecycle of a campaign batch.
type CampaignStatus string

const (
	CampaignStatusPending   CampaignStatus = "pending"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusFailed    CampaignStatus = "failed"
)

// StatStatus classifies a recipientStats log entry. Entries from the
// dispatcher record the send outcome (sent / undelivered); entries from
// delivery callbacks record the recipient-facing progression.
type StatStatus string

const (
	StatStatusSent        StatStatus = "sent"
	StatStatusUndelivered StatStatus = "undelivered"
	StatStatusUnread      StatStatus = "unread"
	StatStatusRead        StatStatus = "read"
	StatStatusReplied     StatStatus = "replied"
)

// RecipientStat is one append-only entry in a campaign's stats log. Entries
// are appended, never rewritten.
type RecipientStat struct {
	RecipientID string     `json:"recipient_id" validate:"required"`
	Name        string     `json:"name,omitempty"`
	Phone       string     `json:"phone"        validate:"required"`
	Status      StatStatus `json:"status"       validate:"required"`
	Error       string     `json:"error,omitempty"`
	At          time.Time  `json:"at"`
}

// Campaign is a batch send of a template to a recipient list with
// aggregated per-recipient outcomes.
type Campaign struct {
	ID             string          `json:"id"`
	AccountID      string          `json:"account_id"    validate:"required"`
	Name           string          `json:"name"          validate:"required,min=3"`
	TemplateName   string          `json:"template_name" validate:"required"`
	Language       string          `json:"language"`
	PhoneNumberID  string          `json:"phone_number_id"`
	RecipientIDs   []string        `json:"recipient_ids,omitempty"`
	Schedule       string          `json:"schedule,omitempty"` // cron spec for scheduled campaigns
	Status         CampaignStatus  `json:"status"`
	RecipientStats []RecipientStat `json:"recipient_stats,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// StatFor reports whether the stats log already holds an entry for the
// recipient with the given status.
func (c *Campaign) StatFor(recipientID string, status StatStatus) bool {
	for _, s := range c.RecipientStats {
		if s.RecipientID == recipientID && s.Status == status {
			return true
		}
	}

	return false
}
