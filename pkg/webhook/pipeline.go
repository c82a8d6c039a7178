package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/zapflow/zapflow/pkg/config"
	"github.com/zapflow/zapflow/pkg/eventbus"
	"github.com/zapflow/zapflow/pkg/events"
	"github.com/zapflow/zapflow/pkg/flow"
	"github.com/zapflow/zapflow/pkg/models"
	"github.com/zapflow/zapflow/pkg/otelhelper"
	"github.com/zapflow/zapflow/pkg/persistence"
	"github.com/zapflow/zapflow/pkg/reconcile"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrInvalidVerifyToken indicates a webhook verification request with a
// wrong mode or token.
var ErrInvalidVerifyToken = errors.New("invalid webhook verification token")

const optOutKeyword = "stop"

// Pipeline turns provider callbacks into state transitions. The HTTP layer
// acks immediately; everything that can fail here is logged, not surfaced,
// to keep the provider from retry-storming.
type Pipeline struct {
	registry    *config.Registry
	recipients  persistence.RecipientRepository
	messages    persistence.MessageRepository
	campaigns   persistence.CampaignRepository
	engine      *flow.Engine
	reconciler  *reconcile.Reconciler
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	tracer      trace.Tracer
	verifyToken string
}

func NewPipeline(
	logger *slog.Logger,
	registry *config.Registry,
	recipients persistence.RecipientRepository,
	messages persistence.MessageRepository,
	campaigns persistence.CampaignRepository,
	engine *flow.Engine,
	reconciler *reconcile.Reconciler,
	publisher eventbus.EventPublisher,
	verifyToken string,
) *Pipeline {
	return &Pipeline{
		registry:    registry,
		recipients:  recipients,
		messages:    messages,
		campaigns:   campaigns,
		engine:      engine,
		reconciler:  reconciler,
		publisher:   publisher,
		logger:      logger.With("module", "webhook"),
		tracer:      otel.Tracer("webhook"),
		verifyToken: verifyToken,
	}
}

// Verify answers the provider's GET verification handshake, returning the
// challenge to echo back.
func (p *Pipeline) Verify(mode, token, challenge string) (string, error) {
	if mode != "subscribe" || token != p.verifyToken {
		return "", ErrInvalidVerifyToken
	}

	return challenge, nil
}

// HandleEvent processes one webhook POST body. Only a malformed envelope is
// an error; per-change failures are logged and swallowed.
func (p *Pipeline) HandleEvent(ctx context.Context, body []byte) error {
	checkEnvelope(ctx, p.logger, body)

	var envelope Envelope

	err := json.Unmarshal(body, &envelope)
	if err != nil {
		return fmt.Errorf("failed to decode webhook envelope: %w", err)
	}

	for _, entry := range envelope.Entry {
		for _, change := range entry.Changes {
			p.handleChange(ctx, change.Value)
		}
	}

	return nil
}

func (p *Pipeline) handleChange(ctx context.Context, value Value) {
	account, ok := p.registry.ByPhoneNumberID(value.Metadata.PhoneNumberID)
	if !ok {
		p.logger.WarnContext(ctx, "Webhook change for unregistered phone number",
			"phone_number_id", value.Metadata.PhoneNumberID)

		return
	}

	ctx, span := otelhelper.StartSpan(ctx, p.tracer, "webhook.change",
		attribute.String(otelhelper.AccountIDKey, account.AccountID),
		attribute.Int("webhook.statuses", len(value.Statuses)),
		attribute.Int("webhook.messages", len(value.Messages)),
	)
	defer span.End()

	for _, status := range value.Statuses {
		err := p.reconciler.HandleStatus(ctx, account, reconcile.StatusUpdate{
			WAMID:  status.ID,
			Status: status.Status,
			Error:  status.ErrorDetail(),
		})
		if err != nil {
			p.logger.ErrorContext(ctx, "Status reconciliation failed",
				"wamid", status.ID, "error", err)
			otelhelper.SetError(span, err, attribute.String(otelhelper.WAMIDKey, status.ID))
		}
	}

	for _, message := range value.Messages {
		p.handleInbound(ctx, account, value, message)
	}
}

func (p *Pipeline) handleInbound(ctx context.Context, account config.Account, value Value, inbound InboundMessage) {
	body := inbound.Body()

	recipient, message, created, err := p.resolveRecipient(ctx, account, value, inbound, body)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to resolve inbound sender",
			"phone", inbound.From, "error", err)
		otelhelper.SetError(trace.SpanFromContext(ctx), err)

		return
	}

	if isOptOut(body) && !recipient.OptedOut {
		recipient.OptedOut = true

		err = p.recipients.Save(ctx, recipient)
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to record opt-out",
				"recipient_id", recipient.ID, "error", err)
		} else {
			p.logger.InfoContext(ctx, "Recipient opted out", "recipient_id", recipient.ID)
		}
	}

	if recipient.ActiveCampaignID != nil {
		p.recordReply(ctx, recipient)
	}

	p.publishReceived(ctx, account, recipient, message, created)

	if recipient.OptedOut {
		return
	}

	// Flow automation runs detached: the webhook response must not wait on
	// provider sends, and an engine panic must not take the handler down.
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Flow engine panicked", "recipient_id", recipient.ID, "panic", r)
			}
		}()

		err := p.engine.HandleInbound(context.WithoutCancel(ctx), account, recipient, body)
		if err != nil {
			p.logger.Error("Flow engine failed for inbound message",
				"recipient_id", recipient.ID, "error", err)
		}
	}()
}

// resolveRecipient finds the sender by phone, creating unknown senders
// transactionally together with their first message row.
func (p *Pipeline) resolveRecipient(ctx context.Context, account config.Account, value Value, inbound InboundMessage, body string) (*models.Recipient, *models.Message, bool, error) {
	recipient, err := p.recipients.GetByPhone(ctx, account.AccountID, inbound.From)
	if err != nil {
		return nil, nil, false, err
	}

	if recipient != nil {
		message := newInboundMessage(account, recipient.ID, inbound, body)

		err = p.messages.Save(ctx, message)
		if err != nil {
			return nil, nil, false, fmt.Errorf("failed to store inbound message: %w", err)
		}

		if !recipient.HasConversation {
			recipient.HasConversation = true

			err = p.recipients.Save(ctx, recipient)
			if err != nil {
				return nil, nil, false, err
			}
		}

		return recipient, message, false, nil
	}

	recipient = &models.Recipient{
		AccountID:       account.AccountID,
		Phone:           inbound.From,
		Name:            contactName(value, inbound.From),
		HasConversation: true,
		Status:          models.RecipientStatusReplied,
	}

	message := newInboundMessage(account, "", inbound, body)

	err = p.recipients.CreateWithMessage(ctx, recipient, message)
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to create recipient with first message: %w", err)
	}

	return recipient, message, true, nil
}

func (p *Pipeline) recordReply(ctx context.Context, recipient *models.Recipient) {
	recipient.Status = models.RecipientStatusReplied

	err := p.recipients.Save(ctx, recipient)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to mark recipient replied",
			"recipient_id", recipient.ID, "error", err)
	}

	err = p.campaigns.AppendRecipientStat(ctx, *recipient.ActiveCampaignID, models.RecipientStat{
		RecipientID: recipient.ID,
		Name:        recipient.Name,
		Phone:       recipient.Phone,
		Status:      models.StatStatusReplied,
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to append replied stat",
			"campaign_id", *recipient.ActiveCampaignID, "recipient_id", recipient.ID, "error", err)
	}
}

func (p *Pipeline) publishReceived(ctx context.Context, account config.Account, recipient *models.Recipient, message *models.Message, created bool) {
	if p.publisher == nil {
		return
	}

	event := events.MessageReceived{
		BaseEvent:    events.NewBaseEvent(events.MessageReceivedEvent, account.AccountID),
		MessageID:    message.ID,
		RecipientID:  recipient.ID,
		Phone:        recipient.Phone,
		Body:         message.Body,
		NewRecipient: created,
	}

	err := p.publisher.Publish(ctx, account.UserID, event)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to publish message.received event", "error", err)
	}
}

func newInboundMessage(account config.Account, recipientID string, inbound InboundMessage, body string) *models.Message {
	return &models.Message{
		AccountID:   account.AccountID,
		RecipientID: recipientID,
		Direction:   models.MessageDirectionInbound,
		WAMID:       inbound.ID,
		Body:        body,
		Status:      models.MessageStatusDelivered,
	}
}

// isOptOut reports whether the body, case-folded and stripped of all
// whitespace, equals the stop keyword.
func isOptOut(body string) bool {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}

		return unicode.ToLower(r)
	}, body)

	return stripped == optOutKeyword
}

func contactName(value Value, phone string) string {
	for _, contact := range value.Contacts {
		if contact.WAID == phone {
			return contact.Profile.Name
		}
	}

	return ""
}
