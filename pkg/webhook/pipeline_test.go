package webhook_test

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
	"github.com/zapflow/zapflow/pkg/flow"
	"github.com/zapflow/zapflow/pkg/models"
	"github.com/zapflow/zapflow/pkg/persistence"
	"github.com/zapflow/zapflow/pkg/persistence/file"
	"github.com/zapflow/zapflow/pkg/reconcile"
	"github.com/zapflow/zapflow/pkg/webhook"
)

const registryYAML = `
accounts:
  - account_id: acct-1
    user_id: user-1
    phone_number_id: "111111"
    access_token: token
`

// silentClient is a provider client for pipeline tests; the flow engine runs
// detached, so sends are recorded under a mutex.
type silentClient struct {
	mu   sync.Mutex
	sent int
}

func (c *silentClient) Send(_ context.Context, _, _ string, _ *dispatch.Payload) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sent++

	return fmt.Sprintf("wamid.pipe-%d", c.sent), nil
}

type pipelineFixture struct {
	pipeline *webhook.Pipeline
	store    persistence.Persistence
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	logger := slog.Default()
	store := file.NewPersistence(t.TempDir())

	registry, err := config.ParseRegistry([]byte(registryYAML))
	require.NoError(t, err)

	adapter := dispatch.NewAdapter(logger, &silentClient{}, store.Messages())
	matcher := flow.NewMatcher(store.Flows())
	engine := flow.NewEngine(logger, store.Flows(), store.FlowStates(), matcher, adapter)
	reconciler := reconcile.NewReconciler(logger, store.Recipients(), store.Messages(), store.Campaigns(), nil)

	pipeline := webhook.NewPipeline(logger, registry, store.Recipients(), store.Messages(),
		store.Campaigns(), engine, reconciler, nil, "verify-secret")

	return &pipelineFixture{pipeline: pipeline, store: store}
}

func inboundTextEnvelope(phone, wamid, body string) []byte {
	return []byte(fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "entry-1",
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"metadata": {"display_phone_number": "5511", "phone_number_id": "111111"},
					"contacts": [{"wa_id": %q, "profile": {"name": "Ana"}}],
					"messages": [{"from": %q, "id": %q, "timestamp": "1700000000", "type": "text", "text": {"body": %q}}]
				}
			}]
		}]
	}`, phone, phone, wamid, body))
}

func statusEnvelope(wamid, status string) []byte {
	return []byte(fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "entry-1",
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"metadata": {"display_phone_number": "5511", "phone_number_id": "111111"},
					"statuses": [{"id": %q, "status": %q, "timestamp": "1700000000", "recipient_id": "5511999990000"}]
				}
			}]
		}]
	}`, wamid, status))
}

func TestPipeline_Verify(t *testing.T) {
	t.Parallel()

	fx := newPipelineFixture(t)

	challenge, err := fx.pipeline.Verify("subscribe", "verify-secret", "challenge-123")
	require.NoError(t, err)
	assert.Equal(t, "challenge-123", challenge)

	_, err = fx.pipeline.Verify("subscribe", "wrong-token", "challenge-123")
	assert.ErrorIs(t, err, webhook.ErrInvalidVerifyToken)

	_, err = fx.pipeline.Verify("unsubscribe", "verify-secret", "challenge-123")
	assert.ErrorIs(t, err, webhook.ErrInvalidVerifyToken)
}

func TestPipeline_HandleEvent_UnknownSenderCreated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := newPipelineFixture(t)

	err := fx.pipeline.HandleEvent(ctx, inboundTextEnvelope("5511999990000", "wamid.in-1", "hello"))
	require.NoError(t, err)

	recipient, err := fx.store.Recipients().GetByPhone(ctx, "acct-1", "5511999990000")
	require.NoError(t, err)
	require.NotNil(t, recipient)
	assert.Equal(t, "Ana", recipient.Name)
	assert.True(t, recipient.HasConversation)
	assert.Equal(t, models.RecipientStatusReplied, recipient.Status)

	message, err := fx.store.Messages().GetByWAMID(ctx, "wamid.in-1")
	require.NoError(t, err)
	require.NotNil(t, message)
	assert.Equal(t, models.MessageDirectionInbound, message.Direction)
	assert.Equal(t, "hello", message.Body)
	assert.Equal(t, recipient.ID, message.RecipientID)
}

func TestPipeline_HandleEvent_KnownSenderStoresMessage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := newPipelineFixture(t)

	require.NoError(t, fx.store.Recipients().Save(ctx, &models.Recipient{
		ID:        "rcpt-known",
		AccountID: "acct-1",
		Phone:     "5511999990000",
		Name:      "Known",
	}))

	err := fx.pipeline.HandleEvent(ctx, inboundTextEnvelope("5511999990000", "wamid.in-2", "second message"))
	require.NoError(t, err)

	message, err := fx.store.Messages().GetByWAMID(ctx, "wamid.in-2")
	require.NoError(t, err)
	require.NotNil(t, message)
	assert.Equal(t, "rcpt-known", message.RecipientID)

	recipient, err := fx.store.Recipients().GetByID(ctx, "rcpt-known")
	require.NoError(t, err)
	assert.True(t, recipient.HasConversation)
}

func TestPipeline_HandleEvent_OptOut(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := newPipelineFixture(t)

	err := fx.pipeline.HandleEvent(ctx, inboundTextEnvelope("5511999990000", "wamid.in-3", "  StOp  "))
	require.NoError(t, err)

	recipient, err := fx.store.Recipients().GetByPhone(ctx, "acct-1", "5511999990000")
	require.NoError(t, err)
	require.NotNil(t, recipient)
	assert.True(t, recipient.OptedOut)

	// The opt-out message itself is still stored.
	message, err := fx.store.Messages().GetByWAMID(ctx, "wamid.in-3")
	require.NoError(t, err)
	assert.NotNil(t, message)
}

func TestPipeline_HandleEvent_ReplyRecordsCampaignStat(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := newPipelineFixture(t)

	campaignID := "camp-1"
	require.NoError(t, fx.store.Campaigns().Save(ctx, &models.Campaign{
		ID:           campaignID,
		AccountID:    "acct-1",
		Name:         "Promo",
		TemplateName: "promo",
		Status:       models.CampaignStatusCompleted,
	}))
	require.NoError(t, fx.store.Recipients().Save(ctx, &models.Recipient{
		ID:               "rcpt-camp",
		AccountID:        "acct-1",
		Phone:            "5511999990000",
		Status:           models.RecipientStatusRead,
		ActiveCampaignID: &campaignID,
	}))

	err := fx.pipeline.HandleEvent(ctx, inboundTextEnvelope("5511999990000", "wamid.in-4", "yes please"))
	require.NoError(t, err)

	recipient, err := fx.store.Recipients().GetByID(ctx, "rcpt-camp")
	require.NoError(t, err)
	assert.Equal(t, models.RecipientStatusReplied, recipient.Status)

	campaign, err := fx.store.Campaigns().GetByID(ctx, campaignID)
	require.NoError(t, err)
	assert.True(t, campaign.StatFor("rcpt-camp", models.StatStatusReplied))
}

func TestPipeline_HandleEvent_StatusRoutedToReconciler(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := newPipelineFixture(t)

	require.NoError(t, fx.store.Recipients().Save(ctx, &models.Recipient{
		ID:        "rcpt-out",
		AccountID: "acct-1",
		Phone:     "5511999990000",
	}))
	require.NoError(t, fx.store.Messages().Save(ctx, &models.Message{
		ID:          "msg-out",
		AccountID:   "acct-1",
		RecipientID: "rcpt-out",
		Direction:   models.MessageDirectionOutbound,
		WAMID:       "wamid.out-1",
		Status:      models.MessageStatusSent,
	}))

	err := fx.pipeline.HandleEvent(ctx, statusEnvelope("wamid.out-1", "delivered"))
	require.NoError(t, err)

	message, err := fx.store.Messages().GetByID(ctx, "msg-out")
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusDelivered, message.Status)
}

func TestPipeline_HandleEvent_UnregisteredPhoneNumberSkipped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := newPipelineFixture(t)

	body := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "entry-1",
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"metadata": {"display_phone_number": "000", "phone_number_id": "999999"},
					"messages": [{"from": "5511999990000", "id": "wamid.x", "type": "text", "text": {"body": "hi"}}]
				}
			}]
		}]
	}`)

	require.NoError(t, fx.pipeline.HandleEvent(ctx, body))

	recipient, err := fx.store.Recipients().GetByPhone(ctx, "acct-1", "5511999990000")
	require.NoError(t, err)
	assert.Nil(t, recipient)
}

func TestPipeline_HandleEvent_MalformedBody(t *testing.T) {
	t.Parallel()

	fx := newPipelineFixture(t)

	err := fx.pipeline.HandleEvent(context.Background(), []byte("not json"))
	assert.Error(t, err)
}
