package main

import (
	"context"
	"os"
	"time"

	cli "github.com/urfave/cli/v3"
	"github.com/zapflow/zapflow/pkg/cmd"
	"github.com/zapflow/zapflow/pkg/config"
	"github.com/zapflow/zapflow/pkg/log"
	"github.com/zapflow/zapflow/pkg/otelhelper"
)

const defaultPort = 9080

func main() {
	command := &cli.Command{
		Name:                  "zapflow-api",
		Usage:                 "WhatsApp flow automation and message pipeline API",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.IntFlag{
				Name:    "notify-port",
				Usage:   "Port for the websocket notification server",
				Value:   defaultPort + 1,
				Sources: cli.EnvVars("NOTIFY_PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "state-url",
				Usage:   "Optional redis:// URL for the flow state store",
				Sources: cli.EnvVars("STATE_URL"),
			},
			&cli.DurationFlag{
				Name:    "state-ttl",
				Usage:   "Expiry for parked flow state (redis store only, 0 = never)",
				Sources: cli.EnvVars("STATE_TTL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "accounts-file",
				Usage:    "Path to the accounts registry YAML",
				Required: true,
				Sources:  cli.EnvVars("ACCOUNTS_FILE"),
			},
			&cli.StringFlag{
				Name:     "verify-token",
				Usage:    "Webhook verification token",
				Required: true,
				Sources:  cli.EnvVars("WEBHOOK_VERIFY_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "graph-base-url",
				Usage:   "Override the provider API base URL",
				Sources: cli.EnvVars("GRAPH_BASE_URL"),
			},
			&cli.StringFlag{
				Name:    "fallback-policy",
				Usage:   "Branching-node fallback (ignore, reprompt, reset)",
				Value:   "ignore",
				Sources: cli.EnvVars("FALLBACK_POLICY"),
			},
			&cli.IntFlag{
				Name:    "campaign-workers",
				Usage:   "Concurrent sends per campaign batch",
				Value:   8,
				Sources: cli.EnvVars("CAMPAIGN_WORKERS"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OTLP traces (endpoint from OTEL_EXPORTER_OTLP_ENDPOINT)",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("api")

	logger.InfoContext(ctx, "Initializing Zapflow API")

	if command.Bool("tracing") {
		_, err := otelhelper.NewTracer(ctx, "zapflow-api")
		if err != nil {
			return err
		}
	}

	registry, err := config.LoadRegistry(command.String("accounts-file"))
	if err != nil {
		return err
	}

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		err := persistence.Close(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	states, err := cmd.NewStateStore(ctx, logger, persistence,
		command.String("state-url"), command.Duration("state-ttl"))
	if err != nil {
		return err
	}

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), logger)
	if err != nil {
		return err
	}

	defer func() {
		err := eventBus.Close()
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	api := NewAPI(logger, persistence, states, registry, eventBus, Options{
		VerifyToken:    command.String("verify-token"),
		GraphBaseURL:   command.String("graph-base-url"),
		FallbackPolicy: command.String("fallback-policy"),
		Workers:        command.Int("campaign-workers"),
		NotifyPort:     command.Int("notify-port"),
	})

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		api.Shutdown(shutdownCtx)
	}()

	return api.Start(ctx, command.Int("port"))
}
