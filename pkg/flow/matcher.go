package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/zapflow/zapflow/pkg/models"
	"github.com/zapflow/zapflow/pkg/persistence"
)

// Matcher maps inbound text to a dormant flow. It is consulted only for
// recipients with no flow state.
type Matcher struct {
	flows persistence.FlowRepository
}

func NewMatcher(flows persistence.FlowRepository) *Matcher {
	return &Matcher{flows: flows}
}

// Match returns the first active flow of the account whose trigger set
// contains the trimmed inbound text, or nil when nothing matches. Triggers
// are compared exactly, not case-normalized.
func (m *Matcher) Match(ctx context.Context, accountID, text string) (*models.Flow, error) {
	keyword := strings.TrimSpace(text)
	if keyword == "" {
		return nil, nil
	}

	flows, err := m.flows.List(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list flows for account %s: %w", accountID, err)
	}

	for _, f := range flows {
		if !f.IsActive() {
			continue
		}

		for _, trigger := range f.Triggers {
			if trigger == keyword {
				return f, nil
			}
		}
	}

	return nil, nil
}
