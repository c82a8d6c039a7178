package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zapflow/zapflow/pkg/config"
	"github.com/zapflow/zapflow/pkg/dispatch"
	"github.com/zapflow/zapflow/pkg/eventbus"
	"github.com/zapflow/zapflow/pkg/events"
	"github.com/zapflow/zapflow/pkg/models"
	"github.com/zapflow/zapflow/pkg/persistence"
)

// DefaultWorkers bounds concurrent provider sends per batch.
const DefaultWorkers = 8

// Outcome is the per-recipient result of one batch send.
type Outcome struct {
	RecipientID string            `json:"recipient_id"`
	Phone       string            `json:"phone,omitempty"`
	Status      models.StatStatus `json:"status"`
	Error       string            `json:"error,omitempty"`
}

// Dispatcher runs campaign batches under a bounded worker pool. Failures are
// isolated per recipient; the campaign completes only after every recipient
// has been attempted, regardless of individual outcomes.
type Dispatcher struct {
	recipients persistence.RecipientRepository
	campaigns  persistence.CampaignRepository
	adapter    *dispatch.Adapter
	publisher  eventbus.EventPublisher
	logger     *slog.Logger
	workers    int
}

// DispatcherOption configures the dispatcher.
type DispatcherOption func(*Dispatcher)

// WithWorkers overrides the worker pool size.
func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithPublisher attaches an event publisher for campaign.completed events.
func WithPublisher(publisher eventbus.EventPublisher) DispatcherOption {
	return func(d *Dispatcher) { d.publisher = publisher }
}

func NewDispatcher(
	logger *slog.Logger,
	recipients persistence.RecipientRepository,
	campaigns persistence.CampaignRepository,
	adapter *dispatch.Adapter,
	opts ...DispatcherOption,
) *Dispatcher {
	dispatcher := &Dispatcher{
		recipients: recipients,
		campaigns:  campaigns,
		adapter:    adapter,
		logger:     logger.With("module", "campaign_dispatcher"),
		workers:    DefaultWorkers,
	}

	for _, opt := range opts {
		opt(dispatcher)
	}

	return dispatcher
}

// Run sends the campaign template to every recipient and returns one outcome
// per recipient, in recipient-list order. The campaign ends COMPLETED with a
// stat entry per recipient.
func (d *Dispatcher) Run(ctx context.Context, account config.Account, campaign *models.Campaign, variables []Variable) ([]Outcome, error) {
	d.logger.InfoContext(ctx, "Starting campaign batch",
		"campaign_id", campaign.ID, "recipients", len(campaign.RecipientIDs), "workers", d.workers)

	outcomes := make([]Outcome, len(campaign.RecipientIDs))

	var wg sync.WaitGroup

	sem := make(chan struct{}, d.workers)

	for i, recipientID := range campaign.RecipientIDs {
		wg.Add(1)

		sem <- struct{}{}

		go func(idx int, id string) {
			defer wg.Done()
			defer func() { <-sem }()

			outcomes[idx] = d.sendOne(ctx, account, campaign, id, variables)
		}(i, recipientID)
	}

	wg.Wait()

	err := d.complete(ctx, campaign, outcomes)
	if err != nil {
		return outcomes, err
	}

	d.publishCompleted(ctx, account, campaign, outcomes)

	return outcomes, nil
}

// sendOne attempts a single recipient. Every path records exactly one stat
// entry; the append layer dedupes replays.
func (d *Dispatcher) sendOne(ctx context.Context, account config.Account, campaign *models.Campaign, recipientID string, variables []Variable) Outcome {
	recipient, err := d.recipients.GetByID(ctx, recipientID)
	if err == nil && recipient == nil {
		err = fmt.Errorf("recipient %s: %w", recipientID, persistence.ErrRecipientNotFound)
	}

	if err != nil {
		return d.record(ctx, campaign, Outcome{
			RecipientID: recipientID,
			Status:      models.StatStatusUndelivered,
			Error:       err.Error(),
		}, "")
	}

	// Bind the recipient to the campaign so delivery callbacks and replies
	// land in this campaign's stats.
	recipient.ActiveCampaignID = &campaign.ID

	err = d.recipients.Save(ctx, recipient)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to bind recipient to campaign",
			"campaign_id", campaign.ID, "recipient_id", recipientID, "error", err)
	}

	template, err := renderTemplate(campaign, recipient, variables)
	if err != nil {
		if dispatch.IsMissingMedia(err) {
			return d.record(ctx, campaign, Outcome{
				RecipientID: recipientID,
				Phone:       recipient.Phone,
				Status:      models.StatStatusUndelivered,
				Error:       "MissingMedia",
			}, recipient.Name)
		}

		return d.record(ctx, campaign, Outcome{
			RecipientID: recipientID,
			Phone:       recipient.Phone,
			Status:      models.StatStatusUndelivered,
			Error:       err.Error(),
		}, recipient.Name)
	}

	_, err = d.adapter.DispatchTemplate(ctx, account, recipient, campaign.ID, template)
	if err != nil {
		return d.record(ctx, campaign, Outcome{
			RecipientID: recipientID,
			Phone:       recipient.Phone,
			Status:      models.StatStatusUndelivered,
			Error:       err.Error(),
		}, recipient.Name)
	}

	return d.record(ctx, campaign, Outcome{
		RecipientID: recipientID,
		Phone:       recipient.Phone,
		Status:      models.StatStatusSent,
	}, recipient.Name)
}

func (d *Dispatcher) record(ctx context.Context, campaign *models.Campaign, outcome Outcome, name string) Outcome {
	err := d.campaigns.AppendRecipientStat(ctx, campaign.ID, models.RecipientStat{
		RecipientID: outcome.RecipientID,
		Name:        name,
		Phone:       outcome.Phone,
		Status:      outcome.Status,
		Error:       outcome.Error,
	})
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to append campaign stat",
			"campaign_id", campaign.ID, "recipient_id", outcome.RecipientID, "error", err)
	}

	if outcome.Error != "" {
		d.logger.WarnContext(ctx, "Campaign send failed for recipient",
			"campaign_id", campaign.ID, "recipient_id", outcome.RecipientID, "error", outcome.Error)
	}

	return outcome
}

func (d *Dispatcher) complete(ctx context.Context, campaign *models.Campaign, outcomes []Outcome) error {
	now := time.Now().UTC()
	campaign.Status = models.CampaignStatusCompleted
	campaign.CompletedAt = &now

	err := d.campaigns.Save(ctx, campaign)
	if err != nil {
		return fmt.Errorf("failed to mark campaign %s completed: %w", campaign.ID, err)
	}

	sent := 0

	for _, o := range outcomes {
		if o.Status == models.StatStatusSent {
			sent++
		}
	}

	d.logger.InfoContext(ctx, "Campaign batch completed",
		"campaign_id", campaign.ID, "sent", sent, "failed", len(outcomes)-sent)

	return nil
}

func (d *Dispatcher) publishCompleted(ctx context.Context, account config.Account, campaign *models.Campaign, outcomes []Outcome) {
	if d.publisher == nil {
		return
	}

	sent := 0

	for _, o := range outcomes {
		if o.Status == models.StatStatusSent {
			sent++
		}
	}

	event := events.CampaignCompleted{
		BaseEvent:  events.NewBaseEvent(events.CampaignCompletedEvent, account.AccountID),
		CampaignID: campaign.ID,
		Name:       campaign.Name,
		Sent:       sent,
		Failed:     len(outcomes) - sent,
		FinishedAt: time.Now().UTC(),
	}

	err := d.publisher.Publish(ctx, account.UserID, event)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to publish campaign.completed event", "error", err)
	}
}
