package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/journey/pkg/channels/gochannel"
	"github.com/dukex/journey/pkg/channels/kafka"
	"github.com/dukex/journey/pkg/eventbus"
)

const serviceName = "journey"

// NewEventBus builds the event bus for provider: "gochannel" (in-process) or
// "kafka", which reads its brokers from a comma-separated list.
func NewEventBus(provider, brokers string, logger *slog.Logger) (eventbus.EventBus, error) {
	var (
		pub message.Publisher
		sub message.Subscriber
		err error
	)

	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err = kafka.CreateChannel(wmLogger, strings.Split(brokers, ","), serviceName)
	case "gochannel", "":
		pub, sub, err = gochannel.CreateChannel(wmLogger)
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s pub/sub: %w", provider, err)
	}

	return eventbus.NewWatermillEventBus(logger, pub, sub), nil
}
