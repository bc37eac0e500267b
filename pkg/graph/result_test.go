package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, o Outcome) []any {
	t.Helper()

	var items []any

	require.NoError(t, o.Each(func(item any) error {
		items = append(items, item)

		return nil
	}))

	return items
}

func TestReadyOutcome(t *testing.T) {
	o := Ready(42).out

	assert.False(t, o.Deferred())
	assert.NoError(t, o.Err())
	assert.Equal(t, 1, o.Count())
	assert.Equal(t, []any{42}, collect(t, o))
}

func TestNoneOutcome(t *testing.T) {
	o := None[int]().out

	assert.NoError(t, o.Err())
	assert.Zero(t, o.Count())
	assert.Empty(t, collect(t, o))
}

func TestFanOutcome(t *testing.T) {
	o := Fan(1, 2, 3).out

	assert.Equal(t, 3, o.Count())
	assert.Equal(t, []any{1, 2, 3}, collect(t, o))
}

func TestFaultOutcome(t *testing.T) {
	errBoom := errors.New("boom")

	o := Fault[int](errBoom).out

	assert.ErrorIs(t, o.Err(), errBoom)
	assert.Zero(t, o.Count())
}

func TestDeferResolves(t *testing.T) {
	wait := make(chan Result[int], 1)

	o := Defer(wait).out
	require.True(t, o.Deferred())

	go func() {
		time.Sleep(10 * time.Millisecond)
		wait <- Ready(7)
	}()

	resolved := o.Await(context.Background())
	assert.False(t, resolved.Deferred())
	assert.Equal(t, []any{7}, collect(t, resolved))
}

func TestDeferAbandoned(t *testing.T) {
	wait := make(chan Result[int])
	close(wait)

	resolved := Defer(wait).out.Await(context.Background())
	assert.ErrorIs(t, resolved.Err(), ErrDeferredAbandoned)
}

func TestDeferHonorsCancellation(t *testing.T) {
	wait := make(chan Result[int])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resolved := Defer(wait).out.Await(ctx)
	assert.ErrorIs(t, resolved.Err(), context.Canceled)
}

func TestEachStopsOnError(t *testing.T) {
	errStop := errors.New("stop")

	calls := 0

	err := Fan(1, 2, 3).out.Each(func(any) error {
		calls++

		return errStop
	})

	assert.ErrorIs(t, err, errStop)
	assert.Equal(t, 1, calls)
}
