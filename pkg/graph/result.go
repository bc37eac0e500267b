package graph

import "context"

// Outcome is the type-erased result shape the engine consumes. The ready
// path carries the value inline; only deferred results hold a continuation.
type Outcome struct {
	value    any
	hasValue bool
	fan      []any
	err      error
	wait     func(ctx context.Context) Outcome
}

// Deferred reports whether the result is still pending.
func (o Outcome) Deferred() bool {
	return o.wait != nil
}

// Await blocks until a deferred outcome resolves, honoring cancellation.
// Non-deferred outcomes return themselves unchanged.
func (o Outcome) Await(ctx context.Context) Outcome {
	resolved := o
	for resolved.wait != nil {
		resolved = resolved.wait(ctx)
	}

	return resolved
}

// Err returns the failure, if any. Await first.
func (o Outcome) Err() error {
	return o.err
}

// Count returns the number of emitted items. Await first.
func (o Outcome) Count() int {
	if o.hasValue {
		return 1
	}

	return len(o.fan)
}

// Each applies fn to every emitted item in order, stopping at the first
// error. Await first.
func (o Outcome) Each(fn func(item any) error) error {
	if o.hasValue {
		return fn(o.value)
	}

	for _, item := range o.fan {
		if err := fn(item); err != nil {
			return err
		}
	}

	return nil
}

// Result is the tagged union a Transform returns: Ready, None, Fan, Fault,
// or Defer. The Ready path allocates no suspension machinery.
type Result[O any] struct {
	out Outcome
}

// Ready wraps an immediately available value.
func Ready[O any](value O) Result[O] {
	return Result[O]{out: Outcome{value: value, hasValue: true}}
}

// None emits nothing for this input item.
func None[O any]() Result[O] {
	return Result[O]{}
}

// Fan emits several items for one input item.
func Fan[O any](values ...O) Result[O] {
	fan := make([]any, len(values))
	for i, v := range values {
		fan[i] = v
	}

	return Result[O]{out: Outcome{fan: fan}}
}

// Fault marks the item as failed.
func Fault[O any](err error) Result[O] {
	return Result[O]{out: Outcome{err: err}}
}

// Defer wraps a result that completes later, e.g. after external I/O. The
// runtime waits on the channel without blocking sibling items; a closed
// channel without a value resolves to ErrDeferredAbandoned.
func Defer[O any](wait <-chan Result[O]) Result[O] {
	return Result[O]{out: Outcome{wait: func(ctx context.Context) Outcome {
		select {
		case <-ctx.Done():
			return Outcome{err: ctx.Err()}
		case result, ok := <-wait:
			if !ok {
				return Outcome{err: ErrDeferredAbandoned}
			}

			return result.out
		}
	}}}
}
