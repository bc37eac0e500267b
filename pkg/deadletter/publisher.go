package deadletter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

const defaultDeadLetterTopic = "fluxor.deadletter"

// Publisher forwards entries to a watermill publisher, letting any message
// broker the caller wires in (in-memory channel, Kafka) act as the
// dead-letter destination.
type Publisher struct {
	publisher message.Publisher
	topic     string
}

// NewPublisher creates a watermill-backed sink. An empty topic falls back
// to the default topic.
func NewPublisher(publisher message.Publisher, topic string) *Publisher {
	if topic == "" {
		topic = defaultDeadLetterTopic
	}

	return &Publisher{publisher: publisher, topic: topic}
}

func (p *Publisher) Receive(_ context.Context, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode dead-letter entry: %w", err)
	}

	msg := message.NewMessage("dlq-"+watermill.NewULID(), payload)
	msg.Metadata.Set("node_id", entry.NodeID)
	msg.Metadata.Set("run_id", entry.RunID)

	err = p.publisher.Publish(p.topic, msg)
	if err != nil {
		return fmt.Errorf("failed to publish dead-letter entry: %w", err)
	}

	return nil
}
