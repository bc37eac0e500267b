// Package channel provides a source consuming JSON items from a message
// subscriber, so a pipeline can be fed from Kafka or an in-memory channel.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/fluxor-io/fluxor/pkg/pipeline"
)

// Source decodes each received message payload into T. The stream ends when
// the subscription channel closes.
type Source[T any] struct {
	subscriber message.Subscriber
	topic      string
	messages   <-chan *message.Message
}

func New[T any](subscriber message.Subscriber, topic string) *Source[T] {
	return &Source[T]{subscriber: subscriber, topic: topic}
}

func (s *Source[T]) Next(ctx context.Context, _ *pipeline.Context) (T, error) {
	var zero T

	if s.messages == nil {
		messages, err := s.subscriber.Subscribe(ctx, s.topic)
		if err != nil {
			return zero, fmt.Errorf("subscribe to %s: %w", s.topic, err)
		}

		s.messages = messages
	}

	for {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case msg, ok := <-s.messages:
			if !ok {
				return zero, io.EOF
			}

			var item T

			if err := json.Unmarshal(msg.Payload, &item); err != nil {
				msg.Nack()

				return zero, fmt.Errorf("decode message %s: %w", msg.UUID, err)
			}

			msg.Ack()

			return item, nil
		}
	}
}
