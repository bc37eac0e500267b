package eventbus

import (
	"context"
	"log/slog"

	"github.com/fluxor-io/fluxor/pkg/events"
	"github.com/fluxor-io/fluxor/pkg/observer"
)

// NewPublishingObserver bridges engine observation to the event bus: every
// lifecycle notification becomes a published event, keyed by run id so one
// run's events stay ordered per partition. Publish failures are logged and
// swallowed; observation never fails a run.
func NewPublishingObserver(bus EventPublisher, logger *slog.Logger) observer.Observer {
	if logger == nil {
		logger = slog.Default()
	}

	return &publishing{bus: bus, logger: logger.With("module", "eventbus")}
}

type publishing struct {
	bus    EventPublisher
	logger *slog.Logger
}

func (p *publishing) publish(ctx context.Context, runID string, event Event) {
	if err := p.bus.Publish(ctx, runID, event); err != nil {
		p.logger.WarnContext(ctx, "failed to publish event",
			"event_type", event.GetType(), "run_id", runID, "error", err)
	}
}

func (p *publishing) NodeStarted(ctx context.Context, e observer.NodeEvent) {
	p.publish(ctx, e.RunID, events.NodeStarted{
		BaseEvent: events.NewBaseEvent(events.NodeStartedEvent, e.RunID),
		NodeID:    e.NodeID,
	})
}

func (p *publishing) NodeFinished(ctx context.Context, e observer.NodeEvent) {
	event := events.NodeFinished{
		BaseEvent: events.NewBaseEvent(events.NodeFinishedEvent, e.RunID),
		NodeID:    e.NodeID,
		Status:    string(e.Status),
		Restarts:  e.Restarts,
	}

	if e.Err != nil {
		event.Error = e.Err.Error()
	}

	p.publish(ctx, e.RunID, event)
}

func (p *publishing) NodeRestarted(ctx context.Context, e observer.NodeEvent) {
	event := events.NodeRestarted{
		BaseEvent: events.NewBaseEvent(events.NodeRestartedEvent, e.RunID),
		NodeID:    e.NodeID,
		Restarts:  e.Restarts,
	}

	if e.Err != nil {
		event.Error = e.Err.Error()
	}

	p.publish(ctx, e.RunID, event)
}

func (p *publishing) ItemProcessed(ctx context.Context, e observer.ItemEvent) {
	p.publish(ctx, e.RunID, events.ItemProcessed{
		BaseEvent: events.NewBaseEvent(events.ItemProcessedEvent, e.RunID),
		NodeID:    e.NodeID,
		Attempt:   e.Attempt,
	})
}

func (p *publishing) ItemFailed(ctx context.Context, e observer.ItemEvent) {
	event := events.ItemFailed{
		BaseEvent: events.NewBaseEvent(events.ItemFailedEvent, e.RunID),
		NodeID:    e.NodeID,
		Attempt:   e.Attempt,
	}

	if e.Err != nil {
		event.Error = e.Err.Error()
	}

	p.publish(ctx, e.RunID, event)
}

func (p *publishing) ItemDeadLettered(ctx context.Context, e observer.ItemEvent) {
	event := events.ItemDeadLettered{
		BaseEvent: events.NewBaseEvent(events.ItemDeadLetteredEvent, e.RunID),
		NodeID:    e.NodeID,
		Attempts:  e.Attempt,
	}

	if e.Err != nil {
		event.Error = e.Err.Error()
	}

	p.publish(ctx, e.RunID, event)
}

func (p *publishing) CircuitStateChanged(ctx context.Context, e observer.CircuitEvent) {
	p.publish(ctx, e.RunID, events.CircuitStateChanged{
		BaseEvent: events.NewBaseEvent(events.CircuitStateChangedEvent, e.RunID),
		NodeID:    e.NodeID,
		From:      e.From,
		To:        e.To,
	})
}
