package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/fluxor-io/fluxor/pkg/channels/gochannel"
	"github.com/fluxor-io/fluxor/pkg/config"
	"github.com/fluxor-io/fluxor/pkg/deadletter"
	"github.com/fluxor-io/fluxor/pkg/events"
	"github.com/redis/go-redis/v9"
)

// NewDeadLetterSink builds the dead letter sink selected by the
// configuration. The returned close function releases any underlying
// connection and is always safe to call.
func NewDeadLetterSink(ctx context.Context, cfg config.DeadLetterConfig, logger *slog.Logger) (deadletter.Sink, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Kind {
	case "none":
		return nil, noop, nil

	case "memory":
		return deadletter.NewMemory(), noop, nil

	case "log", "":
		return deadletter.NewLogging(logger), noop, nil

	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

		list := cfg.RedisList
		if list == "" {
			list = events.DeadLetterTopic
		}

		return deadletter.NewRedis(client, list), client.Close, nil

	case "postgres":
		sink, err := deadletter.NewPostgres(ctx, cfg.DatabaseURL, cfg.Table)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create postgres dead letter sink: %w", err)
		}

		return sink, sink.Close, nil

	case "publisher":
		pub, _, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create dead letter channel: %w", err)
		}

		return deadletter.NewPublisher(pub, events.DeadLetterTopic), pub.Close, nil

	default:
		return nil, noop, fmt.Errorf("unsupported dead letter kind: %s", cfg.Kind)
	}
}
