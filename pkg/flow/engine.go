package flow

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"

	"github.com/zapflow/zapflow/pkg/config"
	"github.com/zapflow/zapflow/pkg/dispatch"
	"github.com/zapflow/zapflow/pkg/eventbus"
	"github.com/zapflow/zapflow/pkg/events"
	"github.com/zapflow/zapflow/pkg/models"
	"github.com/zapflow/zapflow/pkg/persistence"
)

// FallbackPolicy decides what happens when a reply does not match any button
// label on a branching node.
type FallbackPolicy string

const (
	// FallbackIgnore keeps the recipient parked on the current node.
	FallbackIgnore FallbackPolicy = "ignore"
	// FallbackReprompt re-sends the current node's payload.
	FallbackReprompt FallbackPolicy = "reprompt"
	// FallbackReset returns the recipient to idle.
	FallbackReset FallbackPolicy = "reset"
)

// DefaultMaxJumps bounds connect-flow chains within one inbound message.
const DefaultMaxJumps = 5

const stripeCount = 64

// Engine is the per-recipient conversation state machine. All flow state
// mutation goes through here, serialized per recipient by a striped mutex.
type Engine struct {
	flows     persistence.FlowRepository
	states    persistence.FlowStateRepository
	matcher   *Matcher
	adapter   *dispatch.Adapter
	publisher eventbus.EventPublisher
	logger    *slog.Logger

	fallback FallbackPolicy
	maxJumps int

	stripes [stripeCount]sync.Mutex
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithFallbackPolicy overrides the branching-node fallback behavior.
func WithFallbackPolicy(policy FallbackPolicy) EngineOption {
	return func(e *Engine) { e.fallback = policy }
}

// WithMaxJumps overrides the connect-flow jump bound.
func WithMaxJumps(n int) EngineOption {
	return func(e *Engine) { e.maxJumps = n }
}

// WithPublisher attaches an event publisher for flow.triggered events.
func WithPublisher(publisher eventbus.EventPublisher) EngineOption {
	return func(e *Engine) { e.publisher = publisher }
}

func NewEngine(
	logger *slog.Logger,
	flows persistence.FlowRepository,
	states persistence.FlowStateRepository,
	matcher *Matcher,
	adapter *dispatch.Adapter,
	opts ...EngineOption,
) *Engine {
	engine := &Engine{
		flows:    flows,
		states:   states,
		matcher:  matcher,
		adapter:  adapter,
		logger:   logger.With("module", "flow_engine"),
		fallback: FallbackIgnore,
		maxJumps: DefaultMaxJumps,
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// HandleInbound processes one inbound message for a recipient: trigger
// matching when idle, otherwise an advance of the parked conversation.
// Dispatch failures are logged per recipient and do not propagate; the
// returned error covers state and storage problems only.
func (e *Engine) HandleInbound(ctx context.Context, account config.Account, recipient *models.Recipient, text string) error {
	if recipient.OptedOut {
		return nil
	}

	unlock := e.lock(recipient.ID)
	defer unlock()

	state, err := e.states.Get(ctx, recipient.ID)
	if err != nil {
		return fmt.Errorf("failed to load flow state for recipient %s: %w", recipient.ID, err)
	}

	if state == nil {
		return e.handleIdle(ctx, account, recipient, text)
	}

	return e.handleParked(ctx, account, recipient, state, text)
}

func (e *Engine) handleIdle(ctx context.Context, account config.Account, recipient *models.Recipient, text string) error {
	matched, err := e.matcher.Match(ctx, account.AccountID, text)
	if err != nil {
		return fmt.Errorf("trigger match failed: %w", err)
	}

	if matched == nil {
		return nil
	}

	e.logger.InfoContext(ctx, "Trigger matched, entering flow",
		"recipient_id", recipient.ID, "flow_id", matched.ID, "flow_name", matched.Name)

	e.publishTriggered(ctx, account, recipient, matched, strings.TrimSpace(text))

	return e.executeFrom(ctx, account, recipient, matched, matched.Start)
}

func (e *Engine) handleParked(ctx context.Context, account config.Account, recipient *models.Recipient, state *models.FlowState, text string) error {
	current, node, err := e.resolve(ctx, state)
	if err != nil {
		return err
	}

	if node == nil {
		// Flow deleted or edge left dangling since the recipient parked.
		e.logger.WarnContext(ctx, "Parked node no longer resolvable, resetting to idle",
			"recipient_id", recipient.ID, "flow_id", state.FlowID, "node_id", state.NodeID)

		return e.states.Clear(ctx, recipient.ID)
	}

	if node.IsBranching() {
		target, ok := node.ButtonTarget(strings.TrimSpace(text))
		if !ok {
			return e.applyFallback(ctx, account, recipient, node)
		}

		return e.executeFrom(ctx, account, recipient, current, target)
	}

	if node.Next != nil {
		return e.executeFrom(ctx, account, recipient, current, *node.Next)
	}

	// Terminal nodes clear state at dispatch time, so a parked terminal
	// node means stale state.
	return e.states.Clear(ctx, recipient.ID)
}

// executeFrom resolves connect-flow jumps, dispatches the landed node's
// payload and advances or clears the recipient's state.
func (e *Engine) executeFrom(ctx context.Context, account config.Account, recipient *models.Recipient, flow *models.Flow, nodeID string) error {
	node := flow.Node(nodeID)

	for jumps := 0; node != nil && node.Kind == models.NodeKindConnectFlow; jumps++ {
		if jumps >= e.maxJumps {
			return fmt.Errorf("recipient %s in flow %s: %w", recipient.ID, flow.ID, ErrJumpLimit)
		}

		target, err := e.flows.GetByID(ctx, node.TargetFlowID)
		if err != nil {
			return fmt.Errorf("failed to load connect-flow target %s: %w", node.TargetFlowID, err)
		}

		if target == nil || target.AccountID != account.AccountID {
			e.logger.WarnContext(ctx, "Connect-flow target missing, resetting to idle",
				"recipient_id", recipient.ID, "flow_id", flow.ID, "target_flow_id", node.TargetFlowID)

			return e.states.Clear(ctx, recipient.ID)
		}

		flow = target
		node = flow.Node(flow.Start)
	}

	if node == nil {
		e.logger.WarnContext(ctx, "Edge target missing, resetting to idle",
			"recipient_id", recipient.ID, "flow_id", flow.ID, "node_id", nodeID)

		return e.states.Clear(ctx, recipient.ID)
	}

	e.dispatchNode(ctx, account, recipient, node)

	if node.IsTerminal() {
		return e.states.Clear(ctx, recipient.ID)
	}

	return e.states.Set(ctx, &models.FlowState{
		RecipientID: recipient.ID,
		FlowID:      flow.ID,
		NodeID:      node.ID,
	})
}

func (e *Engine) applyFallback(ctx context.Context, account config.Account, recipient *models.Recipient, node *models.FlowNode) error {
	switch e.fallback {
	case FallbackReprompt:
		e.dispatchNode(ctx, account, recipient, node)

		return nil
	case FallbackReset:
		return e.states.Clear(ctx, recipient.ID)
	default:
		e.logger.DebugContext(ctx, "Reply matched no button, staying parked",
			"recipient_id", recipient.ID, "node_id", node.ID)

		return nil
	}
}

// dispatchNode is best-effort: failures are recorded on the message row and
// logged, never surfaced to the webhook path.
func (e *Engine) dispatchNode(ctx context.Context, account config.Account, recipient *models.Recipient, node *models.FlowNode) {
	_, err := e.adapter.DispatchNode(ctx, account, recipient, node)
	if err != nil {
		e.logger.ErrorContext(ctx, "Node dispatch failed",
			"recipient_id", recipient.ID, "node_id", node.ID, "error", err)
	}
}

func (e *Engine) resolve(ctx context.Context, state *models.FlowState) (*models.Flow, *models.FlowNode, error) {
	flow, err := e.flows.GetByID(ctx, state.FlowID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load flow %s: %w", state.FlowID, err)
	}

	if flow == nil {
		return nil, nil, nil
	}

	return flow, flow.Node(state.NodeID), nil
}

func (e *Engine) publishTriggered(ctx context.Context, account config.Account, recipient *models.Recipient, flow *models.Flow, trigger string) {
	if e.publisher == nil {
		return
	}

	event := events.FlowTriggered{
		BaseEvent:   events.NewBaseEvent(events.FlowTriggeredEvent, account.AccountID),
		FlowID:      flow.ID,
		FlowName:    flow.Name,
		RecipientID: recipient.ID,
		Trigger:     trigger,
	}

	err := e.publisher.Publish(ctx, account.UserID, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish flow.triggered event", "error", err)
	}
}

func (e *Engine) lock(recipientID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(recipientID))

	stripe := &e.stripes[h.Sum32()%stripeCount]
	stripe.Lock()

	return stripe.Unlock
}
