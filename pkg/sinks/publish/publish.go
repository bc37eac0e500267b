// Package publish provides a sink that marshals each item to JSON and
// publishes it on a message topic.
package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/fluxor-io/fluxor/pkg/pipeline"
)

const runIDMetadataKey = "run_id"

type Sink[T any] struct {
	publisher message.Publisher
	topic     string
}

func New[T any](publisher message.Publisher, topic string) *Sink[T] {
	return &Sink[T]{publisher: publisher, topic: topic}
}

func (s *Sink[T]) Consume(_ context.Context, run *pipeline.Context, item T) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}

	msg := message.NewMessage("out-"+watermill.NewULID(), payload)
	msg.Metadata.Set(runIDMetadataKey, run.RunID())

	if err := s.publisher.Publish(s.topic, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", s.topic, err)
	}

	return nil
}
