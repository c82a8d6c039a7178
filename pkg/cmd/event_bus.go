package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/zapflow/zapflow/pkg/channels/gochannel"
	"github.com/zapflow/zapflow/pkg/channels/kafka"
	"github.com/zapflow/zapflow/pkg/eventbus"
)

// NewEventBus creates the notification event bus. "kafka" is the production
// provider; "gochannel" keeps events in-process for development.
func NewEventBus(provider string, logger *slog.Logger) (eventbus.EventBus, error) {
	switch provider {
	case "kafka":
		brokers := strings.Split(os.Getenv("KAFKA_BROKERS"), ",")

		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), "zapflow", brokers)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
