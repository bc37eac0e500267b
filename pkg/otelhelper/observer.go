package otelhelper

import (
	"context"
	"sync"

	"github.com/fluxor-io/fluxor/pkg/observer"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TracingObserver opens one span per node run and annotates it with
// restarts and circuit transitions. Item-level events are deliberately not
// traced; they are too hot.
type TracingObserver struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]trace.Span
}

func NewTracingObserver(tracer trace.Tracer) *TracingObserver {
	return &TracingObserver{
		tracer: tracer,
		spans:  make(map[string]trace.Span),
	}
}

func spanKey(runID, nodeID string) string {
	return runID + "/" + nodeID
}

func (t *TracingObserver) NodeStarted(ctx context.Context, e observer.NodeEvent) {
	_, span := StartSpan(ctx, t.tracer, "node "+e.NodeID,
		attribute.String(RunIDKey, e.RunID),
		attribute.String(NodeIDKey, e.NodeID),
	)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.spans[spanKey(e.RunID, e.NodeID)] = span
}

func (t *TracingObserver) NodeFinished(_ context.Context, e observer.NodeEvent) {
	t.mu.Lock()
	span, ok := t.spans[spanKey(e.RunID, e.NodeID)]
	delete(t.spans, spanKey(e.RunID, e.NodeID))
	t.mu.Unlock()

	if !ok {
		return
	}

	span.SetAttributes(
		attribute.String("fluxor.node.status", string(e.Status)),
		attribute.Int("fluxor.node.restarts", e.Restarts),
	)

	if e.Err != nil {
		SetError(span, e.Err,
			attribute.String(RunIDKey, e.RunID),
			attribute.String(NodeIDKey, e.NodeID),
		)
	}

	span.End()
}

func (t *TracingObserver) NodeRestarted(_ context.Context, e observer.NodeEvent) {
	t.mu.Lock()
	span, ok := t.spans[spanKey(e.RunID, e.NodeID)]
	t.mu.Unlock()

	if !ok {
		return
	}

	span.AddEvent("node_restarted", trace.WithAttributes(
		attribute.Int("fluxor.node.restarts", e.Restarts),
	))
}

func (t *TracingObserver) ItemProcessed(context.Context, observer.ItemEvent) {}

func (t *TracingObserver) ItemFailed(context.Context, observer.ItemEvent) {}

func (t *TracingObserver) ItemDeadLettered(_ context.Context, e observer.ItemEvent) {
	t.mu.Lock()
	span, ok := t.spans[spanKey(e.RunID, e.NodeID)]
	t.mu.Unlock()

	if !ok {
		return
	}

	span.AddEvent("item_dead_lettered", trace.WithAttributes(
		attribute.Int(AttemptKey, e.Attempt),
	))
}

func (t *TracingObserver) CircuitStateChanged(_ context.Context, e observer.CircuitEvent) {
	t.mu.Lock()
	span, ok := t.spans[spanKey(e.RunID, e.NodeID)]
	t.mu.Unlock()

	if !ok {
		return
	}

	span.AddEvent("circuit_state_changed", trace.WithAttributes(
		attribute.String("fluxor.circuit.from", e.From),
		attribute.String("fluxor.circuit.to", e.To),
	))
}
