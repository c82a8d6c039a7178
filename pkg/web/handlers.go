package web

import (
	"encoding/json"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/zapflow/zapflow/pkg/campaign"
	"github.com/zapflow/zapflow/pkg/config"
	"github.com/zapflow/zapflow/pkg/flow"
	"github.com/zapflow/zapflow/pkg/models"
	"github.com/zapflow/zapflow/pkg/persistence"
	"github.com/zapflow/zapflow/pkg/webhook"
)

const accountHeader = "X-Account-ID"

// APIHandlers wires the HTTP routes to the flow service, the campaign
// dispatcher and the webhook pipeline.
type APIHandlers struct {
	flowService *flow.Service
	dispatcher  *campaign.Dispatcher
	scheduler   *campaign.Scheduler
	pipeline    *webhook.Pipeline
	registry    *config.Registry
	persistence persistence.Persistence
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewAPIHandlers(
	logger *slog.Logger,
	flowService *flow.Service,
	dispatcher *campaign.Dispatcher,
	scheduler *campaign.Scheduler,
	pipeline *webhook.Pipeline,
	registry *config.Registry,
	p persistence.Persistence,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		flowService: flowService,
		dispatcher:  dispatcher,
		scheduler:   scheduler,
		pipeline:    pipeline,
		registry:    registry,
		persistence: p,
		validator:   validate,
		logger:      logger.With("module", "web"),
	}
}

// VerifyWebhook answers the provider's GET handshake.
func (h *APIHandlers) VerifyWebhook(c fiber.Ctx) error {
	challenge, err := h.pipeline.Verify(
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
	)
	if err != nil {
		return forbidden(c, "invalid_verify_token", "webhook verification failed")
	}

	return c.SendString(challenge)
}

// ReceiveWebhook ingests a provider event POST. It always acks: processing
// failures are logged, never returned, so the provider does not retry-storm.
func (h *APIHandlers) ReceiveWebhook(c fiber.Ctx) error {
	err := h.pipeline.HandleEvent(c.Context(), c.Body())
	if err != nil {
		h.logger.Error("Webhook event processing failed", "error", err)
	}

	return c.SendString("EVENT_RECEIVED")
}

func (h *APIHandlers) GetFlows(c fiber.Ctx) error {
	accountID, err := h.accountID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	flows, err := h.flowService.List(c.Context(), accountID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"flows": flows})
}

func (h *APIHandlers) GetFlow(c fiber.Ctx) error {
	accountID, err := h.accountID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	found, err := h.flowService.Get(c.Context(), accountID, c.Params("id"))
	if err != nil {
		return handleFlowError(c, err)
	}

	return c.JSON(found)
}

func (h *APIHandlers) CreateFlow(c fiber.Ctx) error {
	accountID, req, err := h.parseFlowRequest(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	model := req.ToModel(accountID, "")

	err = h.flowService.Create(c.Context(), model)
	if err != nil {
		return handleFlowError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(model)
}

func (h *APIHandlers) UpdateFlow(c fiber.Ctx) error {
	accountID, req, err := h.parseFlowRequest(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	model := req.ToModel(accountID, c.Params("id"))

	err = h.flowService.Update(c.Context(), model)
	if err != nil {
		return handleFlowError(c, err)
	}

	return c.JSON(model)
}

func (h *APIHandlers) DeleteFlow(c fiber.Ctx) error {
	accountID, err := h.accountID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	err = h.flowService.Delete(c.Context(), accountID, c.Params("id"))
	if err != nil {
		return handleFlowError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// SendCampaign runs a batch synchronously and returns the per-recipient
// outcome list, or stores a scheduled campaign for the cron scheduler.
func (h *APIHandlers) SendCampaign(c fiber.Ctx) error {
	var req CampaignSendRequest

	err := json.Unmarshal(c.Body(), &req)
	if err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	err = h.validator.Struct(&req)
	if err != nil {
		return badRequest(c, err.Error())
	}

	account, ok := h.registry.ByPhoneNumberID(req.PhoneNumberID)
	if !ok {
		return badRequest(c, "unregistered phone_number_id")
	}

	model := &models.Campaign{
		AccountID:     account.AccountID,
		Name:          req.Name,
		TemplateName:  req.TemplateName,
		Language:      req.Language,
		PhoneNumberID: req.PhoneNumberID,
		RecipientIDs:  req.RecipientIDs,
		Schedule:      req.Schedule,
		Status:        models.CampaignStatusPending,
	}

	if req.Schedule != "" {
		model.Status = models.CampaignStatusScheduled

		err = h.persistence.Campaigns().Save(c.Context(), model)
		if err != nil {
			return internalError(c, err)
		}

		err = h.scheduler.Refresh(c.Context())
		if err != nil {
			h.logger.Error("Scheduler refresh failed", "campaign_id", model.ID, "error", err)
		}

		return c.Status(fiber.StatusAccepted).JSON(CampaignSendResponse{
			CampaignID: model.ID,
			Status:     model.Status,
		})
	}

	err = h.persistence.Campaigns().Save(c.Context(), model)
	if err != nil {
		return internalError(c, err)
	}

	outcomes, err := h.dispatcher.Run(c.Context(), account, model, req.Variables)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(CampaignSendResponse{
		CampaignID: model.ID,
		Status:     model.Status,
		Outcomes:   outcomes,
	})
}

func (h *APIHandlers) GetCampaign(c fiber.Ctx) error {
	found, err := h.persistence.Campaigns().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return internalError(c, err)
	}

	if found == nil {
		return notFound(c, "campaign not found")
	}

	return c.JSON(found)
}

// HealthCheck reports persistence health.
func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	err := h.persistence.HealthCheck(c.Context())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}

	return c.JSON(fiber.Map{"status": "healthy"})
}

func (h *APIHandlers) accountID(c fiber.Ctx) (string, error) {
	accountID := c.Get(accountHeader)
	if accountID == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, accountHeader+" header is required")
	}

	return accountID, nil
}

func (h *APIHandlers) parseFlowRequest(c fiber.Ctx) (string, *FlowRequest, error) {
	accountID, err := h.accountID(c)
	if err != nil {
		return "", nil, err
	}

	var req FlowRequest

	err = json.Unmarshal(c.Body(), &req)
	if err != nil {
		return "", nil, err
	}

	err = h.validator.Struct(&req)
	if err != nil {
		return "", nil, err
	}

	return accountID, &req, nil
}
