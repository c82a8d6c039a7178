// Package reconcile maps provider delivery callbacks onto message, recipient
// and campaign records.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zapflow/zapflow/pkg/config"
	"github.com/zapflow/zapflow/pkg/eventbus"
	"github.com/zapflow/zapflow/pkg/events"
	"github.com/zapflow/zapflow/pkg/models"
	"github.com/zapflow/zapflow/pkg/persistence"
)

// ErrUnknownDeliveryStatus indicates a provider status string the mapping
// table does not recognize. The callback is still recorded as unresolved.
var ErrUnknownDeliveryStatus = errors.New("unknown delivery status")

// StatusUpdate is one normalized delivery callback.
type StatusUpdate struct {
	WAMID  string
	Status string // provider status string
	Error  string // provider error detail, when failed
}

// Reconciler applies delivery callbacks. Updates are idempotent per
// wamid+status: a replayed callback neither regresses the message nor
// appends a second stat entry.
type Reconciler struct {
	recipients persistence.RecipientRepository
	messages   persistence.MessageRepository
	campaigns  persistence.CampaignRepository
	publisher  eventbus.EventPublisher
	logger     *slog.Logger
}

func NewReconciler(
	logger *slog.Logger,
	recipients persistence.RecipientRepository,
	messages persistence.MessageRepository,
	campaigns persistence.CampaignRepository,
	publisher eventbus.EventPublisher,
) *Reconciler {
	return &Reconciler{
		recipients: recipients,
		messages:   messages,
		campaigns:  campaigns,
		publisher:  publisher,
		logger:     logger.With("module", "reconcile"),
	}
}

// HandleStatus applies one delivery callback for the account.
func (r *Reconciler) HandleStatus(ctx context.Context, account config.Account, update StatusUpdate) error {
	status, known := mapProviderStatus(update.Status)
	if !known {
		r.logger.WarnContext(ctx, "Unknown provider delivery status, recording as unresolved",
			"wamid", update.WAMID, "provider_status", update.Status,
			"error", ErrUnknownDeliveryStatus)
	}

	message, err := r.messages.GetByWAMID(ctx, update.WAMID)
	if err != nil {
		return fmt.Errorf("failed to load message for wamid %s: %w", update.WAMID, err)
	}

	if message == nil {
		r.logger.DebugContext(ctx, "Status callback for untracked wamid", "wamid", update.WAMID)

		return nil
	}

	if !message.Status.CanTransition(status) {
		// Duplicate or out-of-order callback.
		return nil
	}

	previous := message.Status
	message.Status = status
	message.Error = update.Error

	err = r.messages.Save(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to save message %s: %w", message.ID, err)
	}

	err = r.updateRecipient(ctx, message, status, update.Error)
	if err != nil {
		return err
	}

	r.publishUpdate(ctx, account, message, previous)

	return nil
}

func (r *Reconciler) updateRecipient(ctx context.Context, message *models.Message, status models.MessageStatus, errDetail string) error {
	recipient, err := r.recipients.GetByID(ctx, message.RecipientID)
	if err != nil {
		return fmt.Errorf("failed to load recipient %s: %w", message.RecipientID, err)
	}

	if recipient == nil {
		return nil
	}

	class, tracked := recipientClass(status)
	if tracked && advancesRecipient(recipient.Status, class) {
		recipient.Status = class

		err = r.recipients.Save(ctx, recipient)
		if err != nil {
			return fmt.Errorf("failed to save recipient %s: %w", recipient.ID, err)
		}
	}

	if tracked && recipient.ActiveCampaignID != nil {
		statStatus, hasStat := campaignStat(status)
		if hasStat {
			err = r.campaigns.AppendRecipientStat(ctx, *recipient.ActiveCampaignID, models.RecipientStat{
				RecipientID: recipient.ID,
				Name:        recipient.Name,
				Phone:       recipient.Phone,
				Status:      statStatus,
				Error:       errDetail,
			})
			if err != nil {
				return fmt.Errorf("failed to append campaign stat: %w", err)
			}
		}
	}

	return nil
}

func (r *Reconciler) publishUpdate(ctx context.Context, account config.Account, message *models.Message, previous models.MessageStatus) {
	if r.publisher == nil {
		return
	}

	event := events.MessageStatusUpdated{
		BaseEvent:   events.NewBaseEvent(events.MessageStatusUpdatedEvent, account.AccountID),
		MessageID:   message.ID,
		RecipientID: message.RecipientID,
		WAMID:       message.WAMID,
		Previous:    previous,
		Status:      message.Status,
		Error:       message.Error,
	}

	if message.CampaignID != nil {
		event.CampaignID = *message.CampaignID
	}

	err := r.publisher.Publish(ctx, account.UserID, event)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to publish message.status.updated event", "error", err)
	}
}

// mapProviderStatus translates the provider's status string. Unknown values
// map to unresolved rather than being dropped.
func mapProviderStatus(provider string) (models.MessageStatus, bool) {
	switch provider {
	case "sent":
		return models.MessageStatusSent, true
	case "delivered":
		return models.MessageStatusDelivered, true
	case "read":
		return models.MessageStatusRead, true
	case "failed":
		return models.MessageStatusFailed, true
	default:
		return models.MessageStatusUnresolved, false
	}
}

// recipientClass maps a message status to the recipient's campaign-facing
// class. Sent and delivered both land in the unread class, so a "sent"
// callback on a still-pending message is recipient-visible.
func recipientClass(status models.MessageStatus) (models.RecipientStatus, bool) {
	switch status {
	case models.MessageStatusSent, models.MessageStatusDelivered:
		return models.RecipientStatusUnread, true
	case models.MessageStatusRead:
		return models.RecipientStatusRead, true
	case models.MessageStatusFailed:
		return models.RecipientStatusUndelivered, true
	default:
		return "", false
	}
}

var recipientStatusRank = map[models.RecipientStatus]int{
	models.RecipientStatusUndelivered: 0,
	models.RecipientStatusUnread:      1,
	models.RecipientStatusRead:        2,
	models.RecipientStatusReplied:     3,
}

// advancesRecipient keeps recipient status monotonic, so a late "delivered"
// never demotes a recipient who already replied.
func advancesRecipient(current, next models.RecipientStatus) bool {
	cur, ok := recipientStatusRank[current]
	if !ok {
		return true
	}

	return recipientStatusRank[next] > cur
}

func campaignStat(status models.MessageStatus) (models.StatStatus, bool) {
	switch status {
	case models.MessageStatusDelivered:
		return models.StatStatusUnread, true
	case models.MessageStatusRead:
		return models.StatStatusRead, true
	case models.MessageStatusFailed:
		return models.StatStatusUndelivered, true
	default:
		return "", false
	}
}
