package models_test

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zapflow/zapflow/pkg/models"
)

func TestMessageStatus_CanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    models.MessageStatus
		to      models.MessageStatus
		allowed bool
	}{
		{"pending to sent", models.MessageStatusPending, models.MessageStatusSent, true},
		{"sent to delivered", models.MessageStatusSent, models.MessageStatusDelivered, true},
		{"delivered to read", models.MessageStatusDelivered, models.MessageStatusRead, true},
		{"sent to read skips delivered", models.MessageStatusSent, models.MessageStatusRead, true},
		{"read to delivered regression", models.MessageStatusRead, models.MessageStatusDelivered, false},
		{"delivered to delivered replay", models.MessageStatusDelivered, models.MessageStatusDelivered, false},
		{"pending to failed", models.MessageStatusPending, models.MessageStatusFailed, true},
		{"sent to failed", models.MessageStatusSent, models.MessageStatusFailed, true},
		{"delivered to failed", models.MessageStatusDelivered, models.MessageStatusFailed, false},
		{"read to failed", models.MessageStatusRead, models.MessageStatusFailed, false},
		{"sent to unresolved", models.MessageStatusSent, models.MessageStatusUnresolved, true},
		{"read to unresolved", models.MessageStatusRead, models.MessageStatusUnresolved, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to))
		})
	}
}

func TestFlowNode_Helpers(t *testing.T) {
	t.Parallel()

	next := "thanks"

	branching := &models.FlowNode{
		ID:   "menu",
		Kind: models.NodeKindMessage,
		Text: "Pick one",
		Buttons: []models.Button{
			{Label: "Pricing", Next: "pricing"},
			{Label: "Support", Next: "support"},
		},
	}
	single := &models.FlowNode{ID: "greet", Kind: models.NodeKindMessage, Text: "hi", Next: &next}
	terminal := &models.FlowNode{ID: "bye", Kind: models.NodeKindMessage, Text: "bye"}
	connect := &models.FlowNode{ID: "jump", Kind: models.NodeKindConnectFlow, TargetFlowID: "other"}

	assert.True(t, branching.IsBranching())
	assert.False(t, branching.IsTerminal())

	assert.False(t, single.IsBranching())
	assert.False(t, single.IsTerminal())

	assert.True(t, terminal.IsTerminal())
	assert.False(t, connect.IsTerminal())

	target, ok := branching.ButtonTarget("Support")
	require.True(t, ok)
	assert.Equal(t, "support", target)

	_, ok = branching.ButtonTarget("support") // labels match exactly
	assert.False(t, ok)
}

func TestFlow_Validation(t *testing.T) {
	t.Parallel()

	validate := validator.New()

	valid := &models.Flow{
		AccountID: "acct-1",
		Name:      "Welcome",
		Triggers:  []string{"hi"},
		Start:     "a",
		Nodes:     []*models.FlowNode{{ID: "a", Kind: models.NodeKindMessage, Text: "hello"}},
		Status:    models.FlowStatusActive,
	}
	require.NoError(t, validate.Struct(valid))

	noTriggers := *valid
	noTriggers.Triggers = nil
	assert.Error(t, validate.Struct(&noTriggers))

	shortName := *valid
	shortName.Name = "ab"
	assert.Error(t, validate.Struct(&shortName))
}

func TestFlow_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	next := "b"
	flow := &models.Flow{
		ID:        "f1",
		AccountID: "acct-1",
		Name:      "Welcome",
		Triggers:  []string{"hi", "hello"},
		Start:     "a",
		Nodes: []*models.FlowNode{
			{ID: "a", Kind: models.NodeKindMessage, Text: "pick", Buttons: []models.Button{
				{Label: "One", Next: "b"},
			}},
			{ID: "b", Kind: models.NodeKindImage, Media: &models.MediaRef{ID: "m1", Caption: "c"}, Next: &next},
			{ID: "c", Kind: models.NodeKindConnectFlow, TargetFlowID: "f2"},
		},
		Status: models.FlowStatusActive,
	}

	data, err := json.Marshal(flow)
	require.NoError(t, err)

	var decoded models.Flow

	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, flow.Triggers, decoded.Triggers)
	assert.Equal(t, flow.Start, decoded.Start)
	require.Len(t, decoded.Nodes, 3)

	for i, node := range flow.Nodes {
		assert.Equal(t, node.ID, decoded.Nodes[i].ID)
		assert.Equal(t, node.Kind, decoded.Nodes[i].Kind)
		assert.Equal(t, node.Buttons, decoded.Nodes[i].Buttons)
		assert.Equal(t, node.Next, decoded.Nodes[i].Next)
		assert.Equal(t, node.TargetFlowID, decoded.Nodes[i].TargetFlowID)
	}
}

func TestRecipient_Attribute(t *testing.T) {
	t.Parallel()

	recipient := &models.Recipient{
		Attributes: map[string]string{"city": "Lisbon", "empty": ""},
	}

	assert.Equal(t, "Lisbon", recipient.Attribute("city", "nowhere"))
	assert.Equal(t, "nowhere", recipient.Attribute("missing", "nowhere"))
	assert.Equal(t, "nowhere", recipient.Attribute("empty", "nowhere"))
}

func TestCampaign_StatFor(t *testing.T) {
	t.Parallel()

	campaign := &models.Campaign{
		RecipientStats: []models.RecipientStat{
			{RecipientID: "r1", Status: models.StatStatusSent},
			{RecipientID: "r1", Status: models.StatStatusUnread},
		},
	}

	assert.True(t, campaign.StatFor("r1", models.StatStatusSent))
	assert.True(t, campaign.StatFor("r1", models.StatStatusUnread))
	assert.False(t, campaign.StatFor("r1", models.StatStatusRead))
	assert.False(t, campaign.StatFor("r2", models.StatStatusSent))
}
