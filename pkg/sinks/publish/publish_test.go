package publish

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/fluxor-io/fluxor/pkg/channels/gochannel"
	"github.com/fluxor-io/fluxor/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkPublishesItems(t *testing.T) {
	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages, err := sub.Subscribe(ctx, "results")
	require.NoError(t, err)

	sink := New[map[string]int](pub, "results")
	run := pipeline.New()

	require.NoError(t, sink.Consume(ctx, run, map[string]int{"n": 42}))

	select {
	case msg := <-messages:
		var decoded map[string]int

		require.NoError(t, json.Unmarshal(msg.Payload, &decoded))
		assert.Equal(t, 42, decoded["n"])
		assert.Equal(t, run.RunID(), msg.Metadata.Get("run_id"))

		msg.Ack()
	case <-ctx.Done():
		t.Fatal("message was not published")
	}
}
