package reconcile_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zapflow/zapflow/pkg/config"
	"github.com/zapflow/zapflow/pkg/models"
	"github.com/zapflow/zapflow/pkg/persistence"
	"github.com/zapflow/zapflow/pkg/persistence/file"
	"github.com/zapflow/zapflow/pkg/reconcile"
)

type reconcileFixture struct {
	reconciler *reconcile.Reconciler
	store      persistence.Persistence
	account    config.Account
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	return &reconcileFixture{
		reconciler: reconcile.NewReconciler(slog.Default(), store.Recipients(), store.Messages(), store.Campaigns(), nil),
		store:      store,
		account:    config.Account{AccountID: "acct-1", UserID: "user-1", PhoneNumberID: "pn-1", AccessToken: "token"},
	}
}

// seedOutbound stores a recipient and one sent outbound message. When
// campaignID is non-empty, the recipient is bound to that campaign.
func (fx *reconcileFixture) seedOutbound(t *testing.T, wamid, campaignID string) *models.Recipient {
	t.Helper()

	ctx := context.Background()

	recipient := &models.Recipient{
		ID:        "rcpt-1",
		AccountID: "acct-1",
		Phone:     "+5511999990000",
		Name:      "Ana",
		Status:    models.RecipientStatusUndelivered,
	}

	message := &models.Message{
		ID:          "msg-1",
		AccountID:   "acct-1",
		RecipientID: recipient.ID,
		Direction:   models.MessageDirectionOutbound,
		WAMID:       wamid,
		Status:      models.MessageStatusSent,
	}

	if campaignID != "" {
		recipient.ActiveCampaignID = &campaignID
		message.CampaignID = &campaignID

		require.NoError(t, fx.store.Campaigns().Save(ctx, &models.Campaign{
			ID:           campaignID,
			AccountID:    "acct-1",
			Name:         "Promo",
			TemplateName: "promo",
			Status:       models.CampaignStatusCompleted,
		}))
	}

	require.NoError(t, fx.store.Recipients().Save(ctx, recipient))
	require.NoError(t, fx.store.Messages().Save(ctx, message))

	return recipient
}

func (fx *reconcileFixture) messageStatus(t *testing.T) models.MessageStatus {
	t.Helper()

	message, err := fx.store.Messages().GetByID(context.Background(), "msg-1")
	require.NoError(t, err)
	require.NotNil(t, message)

	return message.Status
}

func (fx *reconcileFixture) recipientStatus(t *testing.T) models.RecipientStatus {
	t.Helper()

	recipient, err := fx.store.Recipients().GetByID(context.Background(), "rcpt-1")
	require.NoError(t, err)
	require.NotNil(t, recipient)

	return recipient.Status
}

func TestReconciler_DeliveredThenRead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := newReconcileFixture(t)
	fx.seedOutbound(t, "wamid.1", "")

	require.NoError(t, fx.reconciler.HandleStatus(ctx, fx.account, reconcile.StatusUpdate{WAMID: "wamid.1", Status: "delivered"}))
	assert.Equal(t, models.MessageStatusDelivered, fx.messageStatus(t))
	assert.Equal(t, models.RecipientStatusUnread, fx.recipientStatus(t))

	require.NoError(t, fx.reconciler.HandleStatus(ctx, fx.account, reconcile.StatusUpdate{WAMID: "wamid.1", Status: "read"}))
	assert.Equal(t, models.MessageStatusRead, fx.messageStatus(t))
	assert.Equal(t, models.RecipientStatusRead, fx.recipientStatus(t))
}

func TestReconciler_SentOnPendingAdvancesRecipient(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := newReconcileFixture(t)
	fx.seedOutbound(t, "wamid.1", "")

	// A "sent" callback can land before the provider response was recorded.
	message, err := fx.store.Messages().GetByID(ctx, "msg-1")
	require.NoError(t, err)
	message.Status = models.MessageStatusPending
	require.NoError(t, fx.store.Messages().Save(ctx, message))

	require.NoError(t, fx.reconciler.HandleStatus(ctx, fx.account, reconcile.StatusUpdate{WAMID: "wamid.1", Status: "sent"}))

	assert.Equal(t, models.MessageStatusSent, fx.messageStatus(t))
	assert.Equal(t, models.RecipientStatusUnread, fx.recipientStatus(t))
}

func TestReconciler_ReplayedCallbackIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := newReconcileFixture(t)
	fx.seedOutbound(t, "wamid.1", "camp-1")

	update := reconcile.StatusUpdate{WAMID: "wamid.1", Status: "delivered"}
	require.NoError(t, fx.reconciler.HandleStatus(ctx, fx.account, update))
	require.NoError(t, fx.reconciler.HandleStatus(ctx, fx.account, update))

	assert.Equal(t, models.MessageStatusDelivered, fx.messageStatus(t))

	campaign, err := fx.store.Campaigns().GetByID(ctx, "camp-1")
	require.NoError(t, err)
	assert.Len(t, campaign.RecipientStats, 1)
}

func TestReconciler_OutOfOrderCallbackIgnored(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := newReconcileFixture(t)
	fx.seedOutbound(t, "wamid.1", "")

	require.NoError(t, fx.reconciler.HandleStatus(ctx, fx.account, reconcile.StatusUpdate{WAMID: "wamid.1", Status: "read"}))
	require.NoError(t, fx.reconciler.HandleStatus(ctx, fx.account, reconcile.StatusUpdate{WAMID: "wamid.1", Status: "delivered"}))

	// The late "delivered" neither regresses the message nor the recipient.
	assert.Equal(t, models.MessageStatusRead, fx.messageStatus(t))
	assert.Equal(t, models.RecipientStatusRead, fx.recipientStatus(t))
}

func TestReconciler_FailedFromSent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := newReconcileFixture(t)
	fx.seedOutbound(t, "wamid.1", "camp-1")

	require.NoError(t, fx.reconciler.HandleStatus(ctx, fx.account, reconcile.StatusUpdate{
		WAMID:  "wamid.1",
		Status: "failed",
		Error:  "131026: message undeliverable",
	}))

	assert.Equal(t, models.MessageStatusFailed, fx.messageStatus(t))
	assert.Equal(t, models.RecipientStatusUndelivered, fx.recipientStatus(t))

	campaign, err := fx.store.Campaigns().GetByID(ctx, "camp-1")
	require.NoError(t, err)
	require.Len(t, campaign.RecipientStats, 1)
	assert.Equal(t, models.StatStatusUndelivered, campaign.RecipientStats[0].Status)
	assert.Contains(t, campaign.RecipientStats[0].Error, "131026")
}

func TestReconciler_FailedNeverRegressesDelivered(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := newReconcileFixture(t)
	fx.seedOutbound(t, "wamid.1", "")

	require.NoError(t, fx.reconciler.HandleStatus(ctx, fx.account, reconcile.StatusUpdate{WAMID: "wamid.1", Status: "delivered"}))
	require.NoError(t, fx.reconciler.HandleStatus(ctx, fx.account, reconcile.StatusUpdate{WAMID: "wamid.1", Status: "failed"}))

	assert.Equal(t, models.MessageStatusDelivered, fx.messageStatus(t))
}

func TestReconciler_UnknownStatusParksAsUnresolved(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := newReconcileFixture(t)
	fx.seedOutbound(t, "wamid.1", "")

	require.NoError(t, fx.reconciler.HandleStatus(ctx, fx.account, reconcile.StatusUpdate{WAMID: "wamid.1", Status: "warehoused"}))

	assert.Equal(t, models.MessageStatusUnresolved, fx.messageStatus(t))
	// Recipient class is untouched by an unresolved status.
	assert.Equal(t, models.RecipientStatusUndelivered, fx.recipientStatus(t))
}

func TestReconciler_UntrackedWAMIDIsNoop(t *testing.T) {
	t.Parallel()

	fx := newReconcileFixture(t)

	err := fx.reconciler.HandleStatus(context.Background(), fx.account, reconcile.StatusUpdate{
		WAMID:  "wamid.never-seen",
		Status: "delivered",
	})
	assert.NoError(t, err)
}

func TestReconciler_RecipientClassMonotonic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := newReconcileFixture(t)
	recipient := fx.seedOutbound(t, "wamid.1", "")

	// A recipient who already replied keeps that class through late callbacks.
	recipient.Status = models.RecipientStatusReplied
	require.NoError(t, fx.store.Recipients().Save(ctx, recipient))

	require.NoError(t, fx.reconciler.HandleStatus(ctx, fx.account, reconcile.StatusUpdate{WAMID: "wamid.1", Status: "delivered"}))

	assert.Equal(t, models.RecipientStatusReplied, fx.recipientStatus(t))
}
