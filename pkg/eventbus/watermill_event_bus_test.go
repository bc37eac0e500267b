package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/fluxor-io/fluxor/pkg/channels/gochannel"
	"github.com/fluxor-io/fluxor/pkg/events"
	"github.com/fluxor-io/fluxor/pkg/observer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	return NewWatermillEventBus(pub, sub)
}

func TestWatermillEventBusRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)

	received := make(chan any, 1)

	require.NoError(t, bus.Handle(events.NodeFinishedEvent, func(_ context.Context, event any) error {
		received <- event

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	event := events.NodeFinished{
		BaseEvent: events.NewBaseEvent(events.NodeFinishedEvent, "run-1234"),
		NodeID:    "double",
		Status:    "completed",
	}

	require.NoError(t, bus.Publish(ctx, "run-1234", event))

	select {
	case got := <-received:
		finished, ok := got.(*events.NodeFinished)
		require.True(t, ok)
		assert.Equal(t, "double", finished.NodeID)
		assert.Equal(t, "run-1234", finished.RunID)
		assert.Equal(t, "completed", finished.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBusIgnoresUnhandledTypes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)

	require.NoError(t, bus.Subscribe(ctx))

	// No handler registered; the message must be acked and dropped.
	require.NoError(t, bus.Publish(ctx, "run-1",
		events.RunStarted{BaseEvent: events.NewBaseEvent(events.RunStartedEvent, "run-1")}))
}

func TestPublishingObserverForwardsEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)

	received := make(chan any, 4)

	require.NoError(t, bus.Handle(events.ItemDeadLetteredEvent, func(_ context.Context, event any) error {
		received <- event

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	obs := NewPublishingObserver(bus, nil)

	obs.ItemDeadLettered(ctx, observer.ItemEvent{
		RunID:   "run-9",
		NodeID:  "flaky",
		Attempt: 3,
	})

	select {
	case got := <-received:
		dead, ok := got.(*events.ItemDeadLettered)
		require.True(t, ok)
		assert.Equal(t, "flaky", dead.NodeID)
		assert.Equal(t, 3, dead.Attempts)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}
