package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zapflow/zapflow/pkg/channels/gochannel"
	"github.com/zapflow/zapflow/pkg/eventbus"
	"github.com/zapflow/zapflow/pkg/events"
)

func newTestBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	publisher, subscriber, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(publisher, subscriber)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_PublishSubscribe(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)
	received := make(chan any, 1)

	require.NoError(t, bus.Handle(events.FlowTriggeredEvent, func(_ context.Context, event any) error {
		received <- event

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	published := events.FlowTriggered{
		BaseEvent:   events.NewBaseEvent(events.FlowTriggeredEvent, "acct-1"),
		FlowID:      "flow-1",
		FlowName:    "Welcome",
		RecipientID: "rcpt-1",
		Trigger:     "hi",
	}

	require.NoError(t, bus.Publish(ctx, "user-1", published))

	select {
	case event := <-received:
		triggered, ok := event.(*events.FlowTriggered)
		require.True(t, ok)
		assert.Equal(t, "flow-1", triggered.FlowID)
		assert.Equal(t, "hi", triggered.Trigger)
		assert.Equal(t, "acct-1", triggered.AccountID)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_UnhandledTypeIsAcked(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)
	received := make(chan any, 2)

	// Only campaign.completed is handled; other event types pass through.
	require.NoError(t, bus.Handle(events.CampaignCompletedEvent, func(_ context.Context, event any) error {
		received <- event

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "user-1", events.MessageReceived{
		BaseEvent: events.NewBaseEvent(events.MessageReceivedEvent, "acct-1"),
	}))
	require.NoError(t, bus.Publish(ctx, "user-1", events.CampaignCompleted{
		BaseEvent:  events.NewBaseEvent(events.CampaignCompletedEvent, "acct-1"),
		CampaignID: "camp-1",
	}))

	select {
	case event := <-received:
		completed, ok := event.(*events.CampaignCompleted)
		require.True(t, ok)
		assert.Equal(t, "camp-1", completed.CampaignID)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	t.Parallel()

	bus := newTestBus(t)

	assert.NotEmpty(t, bus.GenerateID())
	assert.NotEqual(t, bus.GenerateID(), bus.GenerateID())
}
