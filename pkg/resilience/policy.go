// Package resilience wraps node execution with per-item retry, node restart
// budgets, circuit breaking, and dead-letter routing.
package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ThresholdMode selects how the circuit breaker counts failures.
type ThresholdMode string

const (
	// ThresholdConsecutive opens the circuit after N failures in a row.
	ThresholdConsecutive ThresholdMode = "consecutive"
	// ThresholdWindowed opens the circuit after N failures inside the
	// sampling window, regardless of interleaved successes.
	ThresholdWindowed ThresholdMode = "windowed"
)

// BreakerConfig parameterizes one node's circuit breaker.
type BreakerConfig struct {
	Enabled          bool          `json:"enabled"`
	FailureThreshold int           `json:"failure_threshold" validate:"gte=1"`
	Mode             ThresholdMode `json:"mode"              validate:"oneof=consecutive windowed"`
	Window           time.Duration `json:"window"`
	OpenFor          time.Duration `json:"open_for"          validate:"gte=0"`
}

// Policy is the per-run resilience configuration.
type Policy struct {
	// MaxItemRetries is the number of resubmissions after the original
	// attempt; 2 means up to 3 invocations per item.
	MaxItemRetries int `json:"max_item_retries" validate:"gte=0"`

	// MaxNodeRestarts bounds total restarts of a node's stream in one run.
	MaxNodeRestarts int `json:"max_node_restarts" validate:"gte=0"`

	// MaxSequentialRestarts bounds restarts that made no progress since the
	// previous restart, catching non-convergent restart loops early.
	MaxSequentialRestarts int `json:"max_sequential_restarts" validate:"gte=0"`

	// MaterializationCap bounds buffered retry/reordering state, e.g. the
	// order-preserving parallel strategy's reorder buffer.
	MaterializationCap int `json:"materialization_cap" validate:"gte=1"`

	RestartBackoff time.Duration `json:"restart_backoff" validate:"gte=0"`

	Breaker BreakerConfig `json:"breaker"`
}

// DefaultPolicy returns the engine defaults: three invocations per item, a
// couple of node restarts, and a disabled breaker.
func DefaultPolicy() Policy {
	return Policy{
		MaxItemRetries:        2,
		MaxNodeRestarts:       2,
		MaxSequentialRestarts: 2,
		MaterializationCap:    1024,
		RestartBackoff:        100 * time.Millisecond,
		Breaker: BreakerConfig{
			Enabled:          false,
			FailureThreshold: 5,
			Mode:             ThresholdConsecutive,
			Window:           time.Minute,
			OpenFor:          30 * time.Second,
		},
	}
}

// Validate reports configuration errors.
func (p Policy) Validate() error {
	err := validate.Struct(p)
	if err != nil {
		return fmt.Errorf("invalid resilience policy: %w", err)
	}

	return nil
}

// ItemDecision is returned by the error handler for a single item failure.
type ItemDecision int

const (
	DecisionRetry ItemDecision = iota
	DecisionSkip
	DecisionFail
)

// PipelineDecision is returned by the error handler when a node's whole
// stream failed.
type PipelineDecision int

const (
	DecisionRestartNode PipelineDecision = iota
	DecisionContinueWithoutNode
	DecisionFailPipeline
)

// ItemFailure carries the context of one failed item attempt.
type ItemFailure struct {
	RunID   string
	NodeID  string
	Item    any
	Attempt int
	Err     error
}

// NodeFailure carries the context of a stream-wide node failure.
type NodeFailure struct {
	RunID    string
	NodeID   string
	Restarts int
	Err      error
}

// ErrorHandler supplies the caller's intent at both failure levels. The
// supervisor never guesses; it only executes the returned decision.
type ErrorHandler interface {
	ItemError(ctx context.Context, failure ItemFailure) ItemDecision
	NodeError(ctx context.Context, failure NodeFailure) PipelineDecision
}

// HandlerFuncs adapts plain functions to ErrorHandler. Nil funcs fall back
// to retrying items and failing the pipeline.
type HandlerFuncs struct {
	OnItem func(ctx context.Context, failure ItemFailure) ItemDecision
	OnNode func(ctx context.Context, failure NodeFailure) PipelineDecision
}

func (h HandlerFuncs) ItemError(ctx context.Context, failure ItemFailure) ItemDecision {
	if h.OnItem == nil {
		return DecisionRetry
	}

	return h.OnItem(ctx, failure)
}

func (h HandlerFuncs) NodeError(ctx context.Context, failure NodeFailure) PipelineDecision {
	if h.OnNode == nil {
		return DecisionFailPipeline
	}

	return h.OnNode(ctx, failure)
}

// DefaultHandler retries items within budget and fails the pipeline on
// stream-wide errors.
func DefaultHandler() ErrorHandler {
	return HandlerFuncs{}
}
