// Package observer defines the execution observation contracts consumed by
// external observability collaborators.
package observer

import (
	"context"
	"log/slog"
	"time"
)

// NodeStatus is the terminal state a node run reports.
type NodeStatus string

const (
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusCancelled NodeStatus = "cancelled"
)

// Outcome classifies a single item hop for lineage purposes.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeSkip    Outcome = "skip"
)

// NodeEvent describes a node lifecycle transition.
type NodeEvent struct {
	RunID    string
	NodeID   string
	Status   NodeStatus
	Err      error
	Restarts int
	At       time.Time
}

// ItemEvent describes the outcome of processing one item at one node.
type ItemEvent struct {
	RunID   string
	NodeID  string
	Attempt int
	Err     error
	At      time.Time
}

// CircuitEvent describes a circuit breaker state transition.
type CircuitEvent struct {
	RunID  string
	NodeID string
	From   string
	To     string
	At     time.Time
}

// Observer is notified about execution progress. Implementations must not
// block materially; all calls are best-effort and on the hot path.
type Observer interface {
	NodeStarted(ctx context.Context, event NodeEvent)
	NodeFinished(ctx context.Context, event NodeEvent)
	NodeRestarted(ctx context.Context, event NodeEvent)
	ItemProcessed(ctx context.Context, event ItemEvent)
	ItemFailed(ctx context.Context, event ItemEvent)
	ItemDeadLettered(ctx context.Context, event ItemEvent)
	CircuitStateChanged(ctx context.Context, event CircuitEvent)
}

// LineageHook receives one callback per item hop. It is purely additive and
// never alters control flow.
type LineageHook func(nodeID string, outcome Outcome, cardinality int)

// Noop discards all notifications.
type Noop struct{}

func (Noop) NodeStarted(context.Context, NodeEvent) {}

func (Noop) NodeFinished(context.Context, NodeEvent) {}

func (Noop) NodeRestarted(context.Context, NodeEvent) {}

func (Noop) ItemProcessed(context.Context, ItemEvent) {}

func (Noop) ItemFailed(context.Context, ItemEvent) {}

func (Noop) ItemDeadLettered(context.Context, ItemEvent) {}

func (Noop) CircuitStateChanged(context.Context, CircuitEvent) {}

type multi struct {
	observers []Observer
}

// Multi fans every notification out to all given observers.
func Multi(observers ...Observer) Observer {
	return &multi{observers: observers}
}

func (m *multi) NodeStarted(ctx context.Context, e NodeEvent) {
	for _, o := range m.observers {
		o.NodeStarted(ctx, e)
	}
}

func (m *multi) NodeFinished(ctx context.Context, e NodeEvent) {
	for _, o := range m.observers {
		o.NodeFinished(ctx, e)
	}
}

func (m *multi) NodeRestarted(ctx context.Context, e NodeEvent) {
	for _, o := range m.observers {
		o.NodeRestarted(ctx, e)
	}
}

func (m *multi) ItemProcessed(ctx context.Context, e ItemEvent) {
	for _, o := range m.observers {
		o.ItemProcessed(ctx, e)
	}
}

func (m *multi) ItemFailed(ctx context.Context, e ItemEvent) {
	for _, o := range m.observers {
		o.ItemFailed(ctx, e)
	}
}

func (m *multi) ItemDeadLettered(ctx context.Context, e ItemEvent) {
	for _, o := range m.observers {
		o.ItemDeadLettered(ctx, e)
	}
}

func (m *multi) CircuitStateChanged(ctx context.Context, e CircuitEvent) {
	for _, o := range m.observers {
		o.CircuitStateChanged(ctx, e)
	}
}

// Logging returns an observer writing structured entries to the given logger.
func Logging(logger *slog.Logger) Observer {
	return &logging{logger: logger}
}

type logging struct {
	logger *slog.Logger
}

func (l *logging) NodeStarted(ctx context.Context, e NodeEvent) {
	l.logger.DebugContext(ctx, "node started", "run_id", e.RunID, "node_id", e.NodeID)
}

func (l *logging) NodeFinished(ctx context.Context, e NodeEvent) {
	if e.Err != nil {
		l.logger.WarnContext(ctx, "node finished",
			"run_id", e.RunID, "node_id", e.NodeID, "status", e.Status, "error", e.Err)

		return
	}

	l.logger.DebugContext(ctx, "node finished",
		"run_id", e.RunID, "node_id", e.NodeID, "status", e.Status)
}

func (l *logging) NodeRestarted(ctx context.Context, e NodeEvent) {
	l.logger.WarnContext(ctx, "node restarted",
		"run_id", e.RunID, "node_id", e.NodeID, "restarts", e.Restarts, "error", e.Err)
}

func (l *logging) ItemProcessed(ctx context.Context, e ItemEvent) {
	l.logger.DebugContext(ctx, "item processed",
		"run_id", e.RunID, "node_id", e.NodeID, "attempt", e.Attempt)
}

func (l *logging) ItemFailed(ctx context.Context, e ItemEvent) {
	l.logger.WarnContext(ctx, "item failed",
		"run_id", e.RunID, "node_id", e.NodeID, "attempt", e.Attempt, "error", e.Err)
}

func (l *logging) ItemDeadLettered(ctx context.Context, e ItemEvent) {
	l.logger.ErrorContext(ctx, "item dead-lettered",
		"run_id", e.RunID, "node_id", e.NodeID, "attempt", e.Attempt, "error", e.Err)
}

func (l *logging) CircuitStateChanged(ctx context.Context, e CircuitEvent) {
	l.logger.WarnContext(ctx, "circuit state changed",
		"run_id", e.RunID, "node_id", e.NodeID, "from", e.From, "to", e.To)
}
