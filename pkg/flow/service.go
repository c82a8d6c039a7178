package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/zapflow/zapflow/pkg/models"
	"github.com/zapflow/zapflow/pkg/persistence"
)

// Service implements flow CRUD with trigger-conflict and disabled-flow
// semantics. The engine never mutates flows, only this service does.
type Service struct {
	flows    persistence.FlowRepository
	validate *validator.Validate
	logger   *slog.Logger
}

func NewService(logger *slog.Logger, flows persistence.FlowRepository) *Service {
	return &Service{
		flows:    flows,
		validate: validator.New(),
		logger:   logger.With("module", "flow_service"),
	}
}

// List returns all flows of an account.
func (s *Service) List(ctx context.Context, accountID string) ([]*models.Flow, error) {
	return s.flows.List(ctx, accountID)
}

// Get returns a flow by id, scoped to the account.
func (s *Service) Get(ctx context.Context, accountID, id string) (*models.Flow, error) {
	flow, err := s.flows.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if flow == nil || flow.AccountID != accountID {
		return nil, fmt.Errorf("flow %s: %w", id, ErrFlowNotFound)
	}

	return flow, nil
}

// Create validates and stores a new flow. It fails with ErrTriggerConflict
// when any submitted trigger already belongs to another flow of the account.
func (s *Service) Create(ctx context.Context, flow *models.Flow) error {
	if flow.Status == "" {
		flow.Status = models.FlowStatusActive
	}

	err := s.validate.Struct(flow)
	if err != nil {
		return fmt.Errorf("invalid flow: %w", err)
	}

	err = s.checkTriggerConflict(ctx, flow, "")
	if err != nil {
		return err
	}

	s.lintGraph(ctx, flow)

	return s.flows.Save(ctx, flow)
}

// Update validates and stores an edited flow. The edited flow is excluded
// from the trigger-conflict check. Disabled flows reject edits.
func (s *Service) Update(ctx context.Context, flow *models.Flow) error {
	existing, err := s.Get(ctx, flow.AccountID, flow.ID)
	if err != nil {
		return err
	}

	if existing.Status == models.FlowStatusDisabled {
		return fmt.Errorf("flow %s: %w", flow.ID, ErrFlowDisabled)
	}

	err = s.validate.Struct(flow)
	if err != nil {
		return fmt.Errorf("invalid flow: %w", err)
	}

	err = s.checkTriggerConflict(ctx, flow, flow.ID)
	if err != nil {
		return err
	}

	s.lintGraph(ctx, flow)

	flow.CreatedAt = existing.CreatedAt

	return s.flows.Save(ctx, flow)
}

// Delete removes a flow. Disabled flows reject deletion.
func (s *Service) Delete(ctx context.Context, accountID, id string) error {
	existing, err := s.Get(ctx, accountID, id)
	if err != nil {
		return err
	}

	if existing.Status == models.FlowStatusDisabled {
		return fmt.Errorf("flow %s: %w", id, ErrFlowDisabled)
	}

	return s.flows.Delete(ctx, id)
}

// checkTriggerConflict compares the submitted triggers against every other
// flow of the account. excludeID keeps the edited flow itself out of the
// comparison.
func (s *Service) checkTriggerConflict(ctx context.Context, flow *models.Flow, excludeID string) error {
	existing, err := s.flows.List(ctx, flow.AccountID)
	if err != nil {
		return fmt.Errorf("failed to list flows for conflict check: %w", err)
	}

	owned := make(map[string]string)

	for _, f := range existing {
		if excludeID != "" && f.ID == excludeID {
			continue
		}

		for _, trigger := range f.Triggers {
			owned[trigger] = f.ID
		}
	}

	for _, trigger := range flow.Triggers {
		if ownerID, taken := owned[trigger]; taken {
			return &TriggerConflictError{Trigger: trigger, FlowID: ownerID}
		}
	}

	return nil
}

// lintGraph warns about structural problems without rejecting the flow.
// Dangling edge targets are accepted; the engine resets recipients that
// land on them.
func (s *Service) lintGraph(ctx context.Context, flow *models.Flow) {
	nodeIDs := make(map[string]bool, len(flow.Nodes))
	for _, n := range flow.Nodes {
		nodeIDs[n.ID] = true
	}

	warn := func(nodeID, edge, target string) {
		s.logger.WarnContext(ctx, "Flow graph has a dangling edge target",
			"flow_id", flow.ID, "node_id", nodeID, "edge", edge, "target", target)
	}

	if !nodeIDs[flow.Start] {
		warn("", "start", flow.Start)
	}

	for _, n := range flow.Nodes {
		if n.Next != nil && !nodeIDs[*n.Next] {
			warn(n.ID, "next", *n.Next)
		}

		for _, b := range n.Buttons {
			if !nodeIDs[b.Next] {
				warn(n.ID, "button:"+b.Label, b.Next)
			}
		}
	}
}
