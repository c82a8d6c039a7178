package flow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zapflow/zapflow/pkg/flow"
	"github.com/zapflow/zapflow/pkg/models"
	"github.com/zapflow/zapflow/pkg/persistence/file"
)

func TestMatcher_Match(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())
	flows := store.Flows()

	greet := &models.Flow{
		ID:        "flow-greet",
		AccountID: "acct-1",
		Name:      "Greeting",
		Triggers:  []string{"hi", "hello"},
		Start:     "a",
		Nodes:     []*models.FlowNode{{ID: "a", Kind: models.NodeKindMessage, Text: "hey"}},
		Status:    models.FlowStatusActive,
	}
	dormant := &models.Flow{
		ID:        "flow-dormant",
		AccountID: "acct-1",
		Name:      "Dormant",
		Triggers:  []string{"promo"},
		Start:     "a",
		Nodes:     []*models.FlowNode{{ID: "a", Kind: models.NodeKindMessage, Text: "promo"}},
		Status:    models.FlowStatusInactive,
	}
	otherAccount := &models.Flow{
		ID:        "flow-other",
		AccountID: "acct-2",
		Name:      "Other",
		Triggers:  []string{"hi"},
		Start:     "a",
		Nodes:     []*models.FlowNode{{ID: "a", Kind: models.NodeKindMessage, Text: "other"}},
		Status:    models.FlowStatusActive,
	}

	for _, f := range []*models.Flow{greet, dormant, otherAccount} {
		require.NoError(t, flows.Save(ctx, f))
	}

	matcher := flow.NewMatcher(flows)

	tests := []struct {
		name       string
		text       string
		wantFlowID string
	}{
		{"exact trigger", "hi", "flow-greet"},
		{"surrounding whitespace trimmed", "  hello \n", "flow-greet"},
		{"case is significant", "Hi", ""},
		{"inactive flow never matches", "promo", ""},
		{"no trigger matches", "good morning", ""},
		{"blank text", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			matched, err := matcher.Match(ctx, "acct-1", tt.text)
			require.NoError(t, err)

			if tt.wantFlowID == "" {
				assert.Nil(t, matched)

				return
			}

			require.NotNil(t, matched)
			assert.Equal(t, tt.wantFlowID, matched.ID)
		})
	}
}
