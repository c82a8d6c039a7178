package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zapflow/zapflow/pkg/config"
	"github.com/zapflow/zapflow/pkg/models"
	"github.com/zapflow/zapflow/pkg/persistence"
)

// Adapter persists the outbound message lifecycle around provider sends:
// PENDING before the call, SENT with the wamid on success, FAILED with the
// captured error otherwise. It is shared by the flow engine and the campaign
// dispatcher.
type Adapter struct {
	client   Client
	messages persistence.MessageRepository
	logger   *slog.Logger
}

func NewAdapter(logger *slog.Logger, client Client, messages persistence.MessageRepository) *Adapter {
	return &Adapter{
		client:   client,
		messages: messages,
		logger:   logger.With("module", "dispatch"),
	}
}

// DispatchNode renders a flow node and sends it to the recipient. Connect
// flow nodes carry no payload and are resolved by the engine, never sent.
func (a *Adapter) DispatchNode(ctx context.Context, account config.Account, recipient *models.Recipient, node *models.FlowNode) (*models.Message, error) {
	payload, body, err := renderNode(recipient.Phone, node)
	if err != nil {
		return nil, err
	}

	return a.send(ctx, account, recipient, nil, body, payload)
}

// DispatchTemplate renders a campaign template send.
func (a *Adapter) DispatchTemplate(ctx context.Context, account config.Account, recipient *models.Recipient, campaignID string, template *TemplatePayload) (*models.Message, error) {
	payload := newPayload(recipient.Phone, "template")
	payload.Template = template

	var linkage *string
	if campaignID != "" {
		linkage = &campaignID
	}

	return a.send(ctx, account, recipient, linkage, "template:"+template.Name, payload)
}

func (a *Adapter) send(ctx context.Context, account config.Account, recipient *models.Recipient, campaignID *string, body string, payload *Payload) (*models.Message, error) {
	message := &models.Message{
		AccountID:   account.AccountID,
		RecipientID: recipient.ID,
		CampaignID:  campaignID,
		Direction:   models.MessageDirectionOutbound,
		Body:        body,
		Status:      models.MessageStatusPending,
	}

	err := a.messages.Save(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("failed to persist outbound message: %w", err)
	}

	wamid, sendErr := a.client.Send(ctx, account.PhoneNumberID, account.AccessToken, payload)
	if sendErr != nil {
		message.Status = models.MessageStatusFailed
		message.Error = sendErr.Error()

		err = a.messages.Save(ctx, message)
		if err != nil {
			a.logger.ErrorContext(ctx, "Failed to record send failure",
				"message_id", message.ID, "error", err)
		}

		return message, sendErr
	}

	message.Status = models.MessageStatusSent
	message.WAMID = wamid

	err = a.messages.Save(ctx, message)
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to record sent message",
			"message_id", message.ID, "wamid", wamid, "error", err)
	}

	return message, nil
}

// renderNode maps a node payload to the wire format. The second return is a
// short body stored on the message row.
func renderNode(to string, node *models.FlowNode) (*Payload, string, error) {
	switch node.Kind {
	case models.NodeKindMessage:
		if len(node.Buttons) > 0 {
			payload := newPayload(to, "interactive")
			payload.Interactive = &InteractivePayload{
				Type:   "button",
				Body:   InteractiveBody{Text: node.Text},
				Action: InteractiveAction{Buttons: renderButtons(node.Buttons)},
			}

			return payload, node.Text, nil
		}

		payload := newPayload(to, "text")
		payload.Text = &TextPayload{Body: node.Text}

		return payload, node.Text, nil

	case models.NodeKindImage:
		return renderMediaNode(to, node, "image")

	case models.NodeKindVideo:
		return renderMediaNode(to, node, "video")

	case models.NodeKindAudio:
		return renderMediaNode(to, node, "audio")

	case models.NodeKindDocument:
		return renderMediaNode(to, node, "document")

	case models.NodeKindConnectFlow:
		return nil, "", fmt.Errorf("connect-flow node %s carries no payload", node.ID)

	default:
		return nil, "", fmt.Errorf("unknown node kind %q", node.Kind)
	}
}

func renderMediaNode(to string, node *models.FlowNode, kind string) (*Payload, string, error) {
	if node.Media == nil || node.Media.ID == "" {
		return nil, "", fmt.Errorf("node %s: %w", node.ID, ErrMissingMedia)
	}

	media := &MediaPayload{ID: node.Media.ID}
	body := kind + ":" + node.Media.ID

	// Audio carries no caption on the wire; documents also carry a filename.
	switch kind {
	case "audio":
	case "document":
		media.Caption = node.Media.Caption
		media.Filename = node.Media.Filename
	default:
		media.Caption = node.Media.Caption
	}

	payload := newPayload(to, kind)

	switch kind {
	case "image":
		payload.Image = media
	case "video":
		payload.Video = media
	case "audio":
		payload.Audio = media
	case "document":
		payload.Document = media
	}

	return payload, body, nil
}

func renderButtons(buttons []models.Button) []InteractiveButton {
	rendered := make([]InteractiveButton, 0, len(buttons))

	for _, b := range buttons {
		rendered = append(rendered, InteractiveButton{
			Type:  "reply",
			Reply: ButtonReply{ID: b.Next, Title: b.Label},
		})
	}

	return rendered
}
