// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/fluxor-io/fluxor/pkg/channels/gochannel"
	"github.com/fluxor-io/fluxor/pkg/channels/kafka"
	"github.com/fluxor-io/fluxor/pkg/eventbus"
)

// NewChannel builds the watermill publisher and subscriber for the given
// channel kind ("gochannel" or "kafka").
func NewChannel(kind string, logger *slog.Logger) (message.Publisher, message.Subscriber, error) {
	switch kind {
	case "gochannel":
		return gochannel.CreateChannel(watermill.NewSlogLogger(logger))
	case "kafka":
		return kafka.CreateChannel(watermill.NewSlogLogger(logger), "fluxor")
	default:
		return nil, nil, fmt.Errorf("unsupported channel kind: %s", kind)
	}
}

// NewEventBus builds an event bus on top of the given channel kind. A kind
// of "none" disables event publishing and returns nil.
func NewEventBus(kind string, logger *slog.Logger) (eventbus.EventBus, error) {
	if kind == "none" || kind == "" {
		return nil, nil
	}

	pub, sub, err := NewChannel(kind, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s pub/sub: %w", kind, err)
	}

	return eventbus.NewWatermillEventBus(pub, sub), nil
}
