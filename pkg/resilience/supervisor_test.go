package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fluxor-io/fluxor/pkg/deadletter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func testPolicy(retries int) Policy {
	p := DefaultPolicy()
	p.MaxItemRetries = retries

	return p
}

func TestSupervisor_SuccessFirstAttempt(t *testing.T) {
	s := NewSupervisor(SupervisorConfig{
		RunID:  "run-1",
		NodeID: "double",
		Policy: testPolicy(2),
	})

	calls := 0

	err := s.Do(context.Background(), 1, func(context.Context) error {
		calls++

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestSupervisor_RetriesThenDeadLetters(t *testing.T) {
	sink := deadletter.NewMemory()
	s := NewSupervisor(SupervisorConfig{
		RunID:      "run-1",
		NodeID:     "always-fails",
		Policy:     testPolicy(2),
		DeadLetter: sink,
	})

	calls := 0

	err := s.Do(context.Background(), "item-1", func(context.Context) error {
		calls++

		return errBoom
	})

	// One original attempt plus two retries; failure contained via the sink.
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	entries := sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "always-fails", entries[0].NodeID)
	assert.Equal(t, "item-1", entries[0].Item)
	assert.Equal(t, 3, entries[0].Attempts)
	assert.Equal(t, errBoom.Error(), entries[0].Error)
}

func TestSupervisor_ExhaustionWithoutSinkEscalates(t *testing.T) {
	s := NewSupervisor(SupervisorConfig{
		RunID:  "run-1",
		NodeID: "always-fails",
		Policy: testPolicy(1),
	})

	err := s.Do(context.Background(), 1, func(context.Context) error {
		return errBoom
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetryBudgetExhausted)
	assert.ErrorIs(t, err, errBoom)
}

func TestSupervisor_SkipDecisionDropsItem(t *testing.T) {
	s := NewSupervisor(SupervisorConfig{
		RunID:  "run-1",
		NodeID: "skipper",
		Policy: testPolicy(5),
		Handler: HandlerFuncs{
			OnItem: func(context.Context, ItemFailure) ItemDecision {
				return DecisionSkip
			},
		},
	})

	calls := 0

	err := s.Do(context.Background(), 1, func(context.Context) error {
		calls++

		return errBoom
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls, "skip must not retry")
}

func TestSupervisor_FailDecisionEscalatesImmediately(t *testing.T) {
	s := NewSupervisor(SupervisorConfig{
		RunID:  "run-1",
		NodeID: "strict",
		Policy: testPolicy(5),
		Handler: HandlerFuncs{
			OnItem: func(context.Context, ItemFailure) ItemDecision {
				return DecisionFail
			},
		},
	})

	err := s.Do(context.Background(), 1, func(context.Context) error {
		return errBoom
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
}

func TestSupervisor_CancellationIsNotRetried(t *testing.T) {
	s := NewSupervisor(SupervisorConfig{
		RunID:  "run-1",
		NodeID: "cancelled",
		Policy: testPolicy(5),
	})

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := s.Do(ctx, 1, func(context.Context) error {
		calls++
		cancel()

		return context.Canceled
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestSupervisor_OpenCircuitFailsFastWithoutInvoking(t *testing.T) {
	policy := testPolicy(1)
	policy.Breaker = BreakerConfig{
		Enabled:          true,
		FailureThreshold: 1,
		Mode:             ThresholdConsecutive,
		OpenFor:          time.Hour,
	}

	sink := deadletter.NewMemory()
	s := NewSupervisor(SupervisorConfig{
		RunID:      "run-1",
		NodeID:     "guarded",
		Policy:     policy,
		DeadLetter: sink,
	})

	calls := 0
	attempt := func(context.Context) error {
		calls++

		return errBoom
	}

	// First item trips the breaker on its original attempt; its retry is
	// already rejected fast.
	require.NoError(t, s.Do(context.Background(), 1, attempt))
	assert.Equal(t, 1, calls)

	// Subsequent items never reach the processing unit.
	require.NoError(t, s.Do(context.Background(), 2, attempt))
	assert.Equal(t, 1, calls)

	entries := sink.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, ErrCircuitOpen.Error(), entries[0].Error)
	assert.Equal(t, ErrCircuitOpen.Error(), entries[1].Error)
}

func TestSupervisor_ItemFailureContext(t *testing.T) {
	var seen []ItemFailure

	s := NewSupervisor(SupervisorConfig{
		RunID:  "run-9",
		NodeID: "inspect",
		Policy: testPolicy(1),
		Handler: HandlerFuncs{
			OnItem: func(_ context.Context, f ItemFailure) ItemDecision {
				seen = append(seen, f)

				return DecisionRetry
			},
		},
		DeadLetter: deadletter.NewMemory(),
	})

	err := s.Do(context.Background(), "payload", func(context.Context) error {
		return errBoom
	})
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Equal(t, "run-9", seen[0].RunID)
	assert.Equal(t, "inspect", seen[0].NodeID)
	assert.Equal(t, "payload", seen[0].Item)
	assert.Equal(t, 1, seen[0].Attempt)
	assert.Equal(t, 2, seen[1].Attempt)
}
