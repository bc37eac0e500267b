package deadletter

import (
	"context"
	"encoding/json"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

const defaultRedisList = "fluxor:deadletter"

// Redis pushes entries onto a Redis list as JSON documents.
type Redis struct {
	client redis.UniversalClient
	list   string
}

// NewRedis creates a Redis-backed sink. An empty list name falls back to
// the default list.
func NewRedis(client redis.UniversalClient, list string) *Redis {
	if list == "" {
		list = defaultRedisList
	}

	return &Redis{client: client, list: list}
}

func (r *Redis) Receive(ctx context.Context, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode dead-letter entry: %w", err)
	}

	err = r.client.LPush(ctx, r.list, payload).Err()
	if err != nil {
		return fmt.Errorf("failed to push dead-letter entry to %s: %w", r.list, err)
	}

	return nil
}
