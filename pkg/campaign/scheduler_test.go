package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zapflow/zapflow/pkg/config"
	"github.com/zapflow/zapflow/pkg/dispatch"
	"github.com/zapflow/zapflow/pkg/models"
	"github.com/zapflow/zapflow/pkg/persistence/file"
)

func newTestScheduler(t *testing.T) (*Scheduler, *file.Persistence) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	registry := &config.Registry{}

	return NewScheduler(slog.Default(), store.Campaigns(), nil, registry), store
}

func scheduledCampaign(id, spec string) *models.Campaign {
	return &models.Campaign{
		ID:           id,
		AccountID:    "acct-1",
		Name:         "Scheduled promo",
		TemplateName: "promo",
		Schedule:     spec,
		Status:       models.CampaignStatusScheduled,
	}
}

func TestScheduler_Refresh_RegistersScheduledCampaigns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	scheduler, store := newTestScheduler(t)

	require.NoError(t, store.Campaigns().Save(ctx, scheduledCampaign("camp-1", "0 9 * * *")))
	require.NoError(t, store.Campaigns().Save(ctx, scheduledCampaign("camp-2", "30 18 * * 5")))

	require.NoError(t, scheduler.Refresh(ctx))

	assert.Len(t, scheduler.entries, 2)
	assert.Contains(t, scheduler.entries, "camp-1")
	assert.Contains(t, scheduler.entries, "camp-2")

	// Refresh is idempotent for already-registered campaigns.
	require.NoError(t, scheduler.Refresh(ctx))
	assert.Len(t, scheduler.entries, 2)
}

func TestScheduler_Refresh_SkipsInvalidSpec(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	scheduler, store := newTestScheduler(t)

	require.NoError(t, store.Campaigns().Save(ctx, scheduledCampaign("camp-bad", "not a cron spec")))
	require.NoError(t, store.Campaigns().Save(ctx, scheduledCampaign("camp-ok", "0 9 * * *")))

	require.NoError(t, scheduler.Refresh(ctx))

	assert.Len(t, scheduler.entries, 1)
	assert.Contains(t, scheduler.entries, "camp-ok")
}

// gateClient blocks the first send until released so a batch can be held
// mid-flight.
type gateClient struct {
	started chan struct{}
	release chan struct{}

	mu    sync.Mutex
	sends int
}

func (c *gateClient) Send(_ context.Context, _, _ string, _ *dispatch.Payload) (string, error) {
	c.mu.Lock()
	c.sends++
	n := c.sends
	c.mu.Unlock()

	if n == 1 {
		close(c.started)
		<-c.release
	}

	return fmt.Sprintf("wamid.gate-%d", n), nil
}

func (c *gateClient) sendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sends
}

func TestScheduler_Fire_BatchOutlastingScheduleSendsOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	store := file.NewPersistence(t.TempDir())
	registry, err := config.ParseRegistry([]byte(`
accounts:
  - account_id: acct-1
    user_id: user-1
    phone_number_id: "111111"
    access_token: token
`))
	require.NoError(t, err)

	client := &gateClient{started: make(chan struct{}), release: make(chan struct{})}
	adapter := dispatch.NewAdapter(slog.Default(), client, store.Messages())
	dispatcher := NewDispatcher(slog.Default(), store.Recipients(), store.Campaigns(), adapter)
	scheduler := NewScheduler(slog.Default(), store.Campaigns(), dispatcher, registry)

	require.NoError(t, store.Recipients().Save(ctx, &models.Recipient{
		ID:        "r1",
		AccountID: "acct-1",
		Phone:     "+551100000001",
	}))

	campaign := scheduledCampaign("camp-slow", "@every 1s")
	campaign.PhoneNumberID = "111111"
	campaign.RecipientIDs = []string{"r1"}
	require.NoError(t, store.Campaigns().Save(ctx, campaign))
	require.NoError(t, scheduler.Refresh(ctx))

	activation := scheduler.fire("camp-slow")

	done := make(chan struct{})

	go func() {
		activation()
		close(done)
	}()

	<-client.started

	// The cron entry is gone and the campaign is claimed while the first
	// batch is still sending, so a second activation must not dispatch.
	assert.Empty(t, scheduler.entries)
	activation()
	assert.Equal(t, 1, client.sendCount())

	close(client.release)
	<-done

	assert.Equal(t, 1, client.sendCount())

	stored, err := store.Campaigns().GetByID(ctx, "camp-slow")
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusCompleted, stored.Status)
}

func TestScheduler_Refresh_DropsCompletedCampaigns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	scheduler, store := newTestScheduler(t)

	campaign := scheduledCampaign("camp-1", "0 9 * * *")
	require.NoError(t, store.Campaigns().Save(ctx, campaign))
	require.NoError(t, scheduler.Refresh(ctx))
	require.Len(t, scheduler.entries, 1)

	campaign.Status = models.CampaignStatusCompleted
	require.NoError(t, store.Campaigns().Save(ctx, campaign))

	require.NoError(t, scheduler.Refresh(ctx))
	assert.Empty(t, scheduler.entries)
}
