// Package main provides the Zapflow API server.
package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/zapflow/zapflow/pkg/campaign"
	"github.com/zapflow/zapflow/pkg/config"
	"github.com/zapflow/zapflow/pkg/dispatch"
	"github.com/zapflow/zapflow/pkg/eventbus"
	"github.com/zapflow/zapflow/pkg/flow"
	"github.com/zapflow/zapflow/pkg/notify"
	"github.com/zapflow/zapflow/pkg/persistence"
	"github.com/zapflow/zapflow/pkg/reconcile"
	"github.com/zapflow/zapflow/pkg/web"
	"github.com/zapflow/zapflow/pkg/webhook"
)

// Options is everything the API process needs beyond its collaborators.
type Options struct {
	VerifyToken    string
	GraphBaseURL   string
	FallbackPolicy string
	Workers        int
	NotifyPort     int
}

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	states      persistence.FlowStateRepository
	registry    *config.Registry
	eventBus    eventbus.EventBus
	options     Options

	scheduler    *campaign.Scheduler
	notifyServer *notify.Server
}

func NewAPI(
	logger *slog.Logger,
	p persistence.Persistence,
	states persistence.FlowStateRepository,
	registry *config.Registry,
	eventBus eventbus.EventBus,
	options Options,
) *API {
	return &API{
		logger:      logger,
		persistence: p,
		states:      states,
		registry:    registry,
		eventBus:    eventBus,
		options:     options,
	}
}

func (a *API) App() *fiber.App {
	client := dispatch.NewGraphClient(a.options.GraphBaseURL)
	adapter := dispatch.NewAdapter(a.logger, client, a.persistence.Messages())

	matcher := flow.NewMatcher(a.persistence.Flows())
	flowService := flow.NewService(a.logger, a.persistence.Flows())
	engine := flow.NewEngine(a.logger, a.persistence.Flows(), a.states, matcher, adapter,
		flow.WithFallbackPolicy(flow.FallbackPolicy(a.options.FallbackPolicy)),
		flow.WithPublisher(a.eventBus),
	)

	reconciler := reconcile.NewReconciler(a.logger,
		a.persistence.Recipients(), a.persistence.Messages(), a.persistence.Campaigns(),
		a.eventBus)

	dispatcher := campaign.NewDispatcher(a.logger,
		a.persistence.Recipients(), a.persistence.Campaigns(), adapter,
		campaign.WithWorkers(a.options.Workers),
		campaign.WithPublisher(a.eventBus),
	)

	a.scheduler = campaign.NewScheduler(a.logger, a.persistence.Campaigns(), dispatcher, a.registry)

	pipeline := webhook.NewPipeline(a.logger, a.registry,
		a.persistence.Recipients(), a.persistence.Messages(), a.persistence.Campaigns(),
		engine, reconciler, a.eventBus, a.options.VerifyToken)

	validate := validator.New(validator.WithRequiredStructEnabled())

	handlers := web.NewAPIHandlers(a.logger, flowService, dispatcher, a.scheduler,
		pipeline, a.registry, a.persistence, validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Zapflow API")
	})

	app.Get("/webhook", handlers.VerifyWebhook)
	app.Post("/webhook", handlers.ReceiveWebhook)

	f := app.Group("/flows")
	f.Get("/", handlers.GetFlows)
	f.Post("/", handlers.CreateFlow)
	f.Get("/:id", handlers.GetFlow)
	f.Put("/:id", handlers.UpdateFlow)
	f.Delete("/:id", handlers.DeleteFlow)

	c := app.Group("/campaigns")
	c.Post("/send", handlers.SendCampaign)
	c.Get("/:id", handlers.GetCampaign)

	app.Get("/health", handlers.HealthCheck)
	app.Get("/livez", func(c fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/readyz", handlers.HealthCheck)

	return app
}

func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	err := a.scheduler.Start(ctx)
	if err != nil {
		return err
	}

	manager := notify.NewManager(a.logger)
	subscriber := notify.NewSubscriber(a.logger, manager, a.registry)

	err = subscriber.Attach(ctx, a.eventBus)
	if err != nil {
		return err
	}

	a.notifyServer = notify.NewServer(a.logger, manager, a.options.NotifyPort)

	go func() {
		err := a.notifyServer.Start()
		if err != nil {
			a.logger.Error("Notification server failed", "error", err)
		}
	}()

	return app.Listen(":" + strconv.Itoa(port))
}

func (a *API) Shutdown(ctx context.Context) {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	if a.notifyServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		err := a.notifyServer.Shutdown(shutdownCtx)
		if err != nil {
			a.logger.Error("Failed to shut down notification server", "error", err)
		}
	}
}
