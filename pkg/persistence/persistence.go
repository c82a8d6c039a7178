// Package persistence provides the data storage abstraction layer for flows,
// recipients, messages and campaigns.
package persistence

import (
	"context"

	"github.com/zapflow/zapflow/pkg/models"
)

type Persistence interface {
	Flows() FlowRepository
	Recipients() RecipientRepository
	Messages() MessageRepository
	Campaigns() CampaignRepository
	FlowStates() FlowStateRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// FlowRepository stores flow definitions scoped to an account.
type FlowRepository interface {
	List(ctx context.Context, accountID string) ([]*models.Flow, error)
	GetByID(ctx context.Context, id string) (*models.Flow, error)
	Save(ctx context.Context, flow *models.Flow) error
	Delete(ctx context.Context, id string) error
}

// RecipientRepository stores recipients. CreateWithMessage persists a new
// recipient together with its first inbound message in one transaction, so
// an unknown sender never ends up with a message row and no recipient.
type RecipientRepository interface {
	GetByID(ctx context.Context, id string) (*models.Recipient, error)
	GetByPhone(ctx context.Context, accountID, phone string) (*models.Recipient, error)
	Save(ctx context.Context, recipient *models.Recipient) error
	CreateWithMessage(ctx context.Context, recipient *models.Recipient, message *models.Message) error
}

// MessageRepository stores message rows keyed by id and provider wamid.
type MessageRepository interface {
	GetByID(ctx context.Context, id string) (*models.Message, error)
	GetByWAMID(ctx context.Context, wamid string) (*models.Message, error)
	Save(ctx context.Context, message *models.Message) error
}

// CampaignRepository stores campaigns. AppendRecipientStat must be an atomic
// append: concurrent delivery callbacks for the same campaign must not lose
// entries to read-modify-write races.
type CampaignRepository interface {
	GetByID(ctx context.Context, id string) (*models.Campaign, error)
	Save(ctx context.Context, campaign *models.Campaign) error
	AppendRecipientStat(ctx context.Context, campaignID string, stat models.RecipientStat) error
	ListScheduled(ctx context.Context) ([]*models.Campaign, error)
}

// FlowStateRepository stores the per-recipient conversation position.
// Get returns (nil, nil) for an Idle recipient.
type FlowStateRepository interface {
	Get(ctx context.Context, recipientID string) (*models.FlowState, error)
	Set(ctx context.Context, state *models.FlowState) error
	Clear(ctx context.Context, recipientID string) error
}
