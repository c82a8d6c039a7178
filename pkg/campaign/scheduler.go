package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/zapflow/zapflow/pkg/config"
	"github.com/zapflow/zapflow/pkg/models"
	"github.com/zapflow/zapflow/pkg/persistence"
)

// Scheduler fires SCHEDULED campaigns on their cron spec. Each scheduled
// campaign holds one cron entry; the entry is dropped after the batch runs,
// since a completed campaign never fires again.
type Scheduler struct {
	campaigns  persistence.CampaignRepository
	dispatcher *Dispatcher
	registry   *config.Registry
	logger     *slog.Logger

	cron *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func NewScheduler(
	logger *slog.Logger,
	campaigns persistence.CampaignRepository,
	dispatcher *Dispatcher,
	registry *config.Registry,
) *Scheduler {
	return &Scheduler{
		campaigns:  campaigns,
		dispatcher: dispatcher,
		registry:   registry,
		logger:     logger.With("module", "campaign_scheduler"),
		cron:       cron.New(),
		entries:    make(map[string]cron.EntryID),
	}
}

// Start registers all scheduled campaigns and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	err := s.Refresh(ctx)
	if err != nil {
		return err
	}

	s.cron.Start()

	return nil
}

// Refresh reconciles cron entries with the stored scheduled campaigns.
func (s *Scheduler) Refresh(ctx context.Context) error {
	scheduled, err := s.campaigns.ListScheduled(ctx)
	if err != nil {
		return fmt.Errorf("failed to list scheduled campaigns: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[string]bool, len(scheduled))

	for _, campaign := range scheduled {
		current[campaign.ID] = true

		if _, registered := s.entries[campaign.ID]; registered {
			continue
		}

		entryID, err := s.cron.AddFunc(campaign.Schedule, s.fire(campaign.ID))
		if err != nil {
			s.logger.ErrorContext(ctx, "Invalid campaign schedule",
				"campaign_id", campaign.ID, "schedule", campaign.Schedule, "error", err)

			continue
		}

		s.entries[campaign.ID] = entryID

		s.logger.InfoContext(ctx, "Campaign scheduled",
			"campaign_id", campaign.ID, "schedule", campaign.Schedule)
	}

	for id, entryID := range s.entries {
		if !current[id] {
			s.cron.Remove(entryID)
			delete(s.entries, id)
		}
	}

	return nil
}

// Stop halts the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) fire(campaignID string) func() {
	return func() {
		ctx := context.Background()

		// Drop the entry before dispatching: cron runs each activation in
		// its own goroutine, so a batch that outlasts the schedule interval
		// would otherwise be re-entered and re-send the recipient list.
		s.remove(campaignID)

		campaign, err := s.campaigns.GetByID(ctx, campaignID)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to load scheduled campaign",
				"campaign_id", campaignID, "error", err)

			return
		}

		if campaign == nil || campaign.Status != models.CampaignStatusScheduled {
			return
		}

		account, ok := s.registry.ByPhoneNumberID(campaign.PhoneNumberID)
		if !ok {
			s.logger.ErrorContext(ctx, "Scheduled campaign has no registered account",
				"campaign_id", campaignID, "phone_number_id", campaign.PhoneNumberID)

			return
		}

		// Leave SCHEDULED before the batch so an activation already in
		// flight, or a concurrent Refresh, skips this campaign.
		campaign.Status = models.CampaignStatusPending

		err = s.campaigns.Save(ctx, campaign)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to claim scheduled campaign",
				"campaign_id", campaignID, "error", err)

			return
		}

		s.logger.InfoContext(ctx, "Firing scheduled campaign", "campaign_id", campaignID)

		_, err = s.dispatcher.Run(ctx, account, campaign, nil)
		if err != nil {
			s.logger.ErrorContext(ctx, "Scheduled campaign batch failed",
				"campaign_id", campaignID, "error", err)
		}
	}
}

func (s *Scheduler) remove(campaignID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[campaignID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, campaignID)
	}
}
