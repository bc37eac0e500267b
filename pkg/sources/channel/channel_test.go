package channel

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/fluxor-io/fluxor/pkg/channels/gochannel"
	"github.com/fluxor-io/fluxor/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func TestSourceDecodesMessages(t *testing.T) {
	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	src := New[payload](sub, "test.items")
	run := pipeline.New()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		item payload
		err  error
	}

	got := make(chan result, 1)

	go func() {
		item, err := src.Next(ctx, run)
		got <- result{item: item, err: err}
	}()

	// Give the subscription a moment to attach before publishing.
	time.Sleep(50 * time.Millisecond)

	raw, err := json.Marshal(payload{Name: "a", Value: 7})
	require.NoError(t, err)
	require.NoError(t, pub.Publish("test.items", message.NewMessage("m-1", raw)))

	res := <-got
	require.NoError(t, res.err)
	assert.Equal(t, payload{Name: "a", Value: 7}, res.item)
}

func TestSourceRejectsMalformedPayload(t *testing.T) {
	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	src := New[payload](sub, "test.items")
	run := pipeline.New()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan error, 1)

	go func() {
		_, err := src.Next(ctx, run)
		got <- err
	}()

	time.Sleep(50 * time.Millisecond)

	require.NoError(t, pub.Publish("test.items", message.NewMessage("m-2", []byte("not json"))))

	err = <-got
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode message")
}
