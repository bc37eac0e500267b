package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fluxor-io/fluxor/pkg/deadletter"
	"github.com/fluxor-io/fluxor/pkg/observer"
)

// ErrRetryBudgetExhausted marks an item that ran out of retries with no
// dead-letter sink configured.
var ErrRetryBudgetExhausted = errors.New("resilience: retry budget exhausted")

// ErrRestartLimitExceeded marks a node whose restart budget ran out.
var ErrRestartLimitExceeded = errors.New("resilience: restart limit exceeded")

// SupervisorConfig wires one node's supervisor.
type SupervisorConfig struct {
	RunID      string
	NodeID     string
	Policy     Policy
	Handler    ErrorHandler
	Breaker    *Breaker
	DeadLetter deadletter.Sink
	Observer   observer.Observer
	Logger     *slog.Logger
}

// Supervisor executes per-item attempts for one node, applying the retry
// budget, the circuit breaker, and the caller's item-level decisions.
type Supervisor struct {
	runID   string
	nodeID  string
	policy  Policy
	handler ErrorHandler
	breaker *Breaker
	sink    deadletter.Sink
	obs     observer.Observer
	logger  *slog.Logger
}

// NewSupervisor creates a supervisor. Missing handler, observer, and logger
// fall back to defaults.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	handler := cfg.Handler
	if handler == nil {
		handler = DefaultHandler()
	}

	obs := cfg.Observer
	if obs == nil {
		obs = observer.Noop{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	breaker := cfg.Breaker
	if breaker == nil {
		breaker = NewBreaker(cfg.Policy.Breaker)
	}

	return &Supervisor{
		runID:   cfg.RunID,
		nodeID:  cfg.NodeID,
		policy:  cfg.Policy,
		handler: handler,
		breaker: breaker,
		sink:    cfg.DeadLetter,
		obs:     obs,
		logger:  logger.With("node_id", cfg.NodeID),
	}
}

// Breaker exposes the node's circuit breaker.
func (s *Supervisor) Breaker() *Breaker {
	return s.breaker
}

// Do runs one item through attempt, retrying per policy and handler
// decisions. A nil return means the stream continues: the attempt succeeded,
// or the item was skipped or dead-lettered. A non-nil return escalates to a
// node-level failure.
//
// Cancellation is terminal, never retried.
func (s *Supervisor) Do(ctx context.Context, item any, attempt func(context.Context) error) error {
	for attemptN := 1; ; attemptN++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		var err error

		invoked := false

		if allowErr := s.breaker.Allow(); allowErr != nil {
			err = allowErr
		} else {
			invoked = true
			err = attempt(ctx)
		}

		if err == nil {
			s.breaker.RecordSuccess()
			s.obs.ItemProcessed(ctx, s.itemEvent(attemptN, nil))

			return nil
		}

		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return err
		}

		// Fail-fast rejections are not failures of the unit itself.
		if invoked {
			s.breaker.RecordFailure()
		}

		s.obs.ItemFailed(ctx, s.itemEvent(attemptN, err))

		decision := s.handler.ItemError(ctx, ItemFailure{
			RunID:   s.runID,
			NodeID:  s.nodeID,
			Item:    item,
			Attempt: attemptN,
			Err:     err,
		})

		switch decision {
		case DecisionRetry:
			if attemptN <= s.policy.MaxItemRetries {
				continue
			}

			return s.exhaust(ctx, item, attemptN, err)
		case DecisionSkip:
			s.logger.DebugContext(ctx, "item skipped after failure",
				"attempt", attemptN, "error", err)

			return nil
		case DecisionFail:
			return fmt.Errorf("item failed at node %s: %w", s.nodeID, err)
		default:
			return fmt.Errorf("item failed at node %s: %w", s.nodeID, err)
		}
	}
}

// exhaust routes an out-of-budget item to the dead-letter sink when one is
// configured, otherwise escalates.
func (s *Supervisor) exhaust(ctx context.Context, item any, attempts int, cause error) error {
	if s.sink == nil {
		return fmt.Errorf("%w at node %s: %w", ErrRetryBudgetExhausted, s.nodeID, cause)
	}

	entry := deadletter.Entry{
		RunID:    s.runID,
		NodeID:   s.nodeID,
		Item:     item,
		Error:    cause.Error(),
		Attempts: attempts,
		At:       time.Now(),
	}

	err := s.sink.Receive(ctx, entry)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to record dead-letter entry", "error", err)

		return fmt.Errorf("dead-letter sink failed for node %s: %w", s.nodeID, err)
	}

	s.obs.ItemDeadLettered(ctx, s.itemEvent(attempts, cause))

	return nil
}

func (s *Supervisor) itemEvent(attempt int, err error) observer.ItemEvent {
	return observer.ItemEvent{
		RunID:   s.runID,
		NodeID:  s.nodeID,
		Attempt: attempt,
		Err:     err,
		At:      time.Now(),
	}
}
