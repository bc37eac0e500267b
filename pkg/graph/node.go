// Package graph defines the typed node model, the single-use builder, and
// the immutable execution plan the engine runs.
package graph

import (
	"context"

	"github.com/fluxor-io/fluxor/pkg/pipeline"
)

// Kind is the closed set of node variants.
type Kind string

const (
	KindSource    Kind = "source"
	KindTransform Kind = "transform"
	KindSink      Kind = "sink"
	KindComposite Kind = "composite"
)

// Source produces the items a pipeline starts from. Next returns io.EOF
// when the stream is exhausted; any other error fails the node's stream.
type Source[O any] interface {
	Next(ctx context.Context, run *pipeline.Context) (O, error)
}

// Transform converts one input item into zero or more output items, either
// immediately or through a deferred result.
type Transform[I, O any] interface {
	Process(ctx context.Context, run *pipeline.Context, item I) Result[O]
}

// Sink consumes items at the end of a pipeline. It never produces
// downstream items.
type Sink[I any] interface {
	Consume(ctx context.Context, run *pipeline.Context, item I) error
}

// Resettable is implemented by nodes that rebuild internal state when the
// supervisor restarts their stream.
type Resettable interface {
	Reset(ctx context.Context) error
}

// SourceFunc adapts a plain function to Source.
type SourceFunc[O any] func(ctx context.Context, run *pipeline.Context) (O, error)

func (f SourceFunc[O]) Next(ctx context.Context, run *pipeline.Context) (O, error) {
	return f(ctx, run)
}

// TransformFunc adapts the common one-in/one-out case: a returned error
// becomes a Fault, otherwise the value is Ready.
type TransformFunc[I, O any] func(ctx context.Context, run *pipeline.Context, item I) (O, error)

func (f TransformFunc[I, O]) Process(ctx context.Context, run *pipeline.Context, item I) Result[O] {
	out, err := f(ctx, run, item)
	if err != nil {
		return Fault[O](err)
	}

	return Ready(out)
}

// ProcessFunc adapts a function with full control over the result shape
// (None, Fan, Defer).
type ProcessFunc[I, O any] func(ctx context.Context, run *pipeline.Context, item I) Result[O]

func (f ProcessFunc[I, O]) Process(ctx context.Context, run *pipeline.Context, item I) Result[O] {
	return f(ctx, run, item)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc[I any] func(ctx context.Context, run *pipeline.Context, item I) error

func (f SinkFunc[I]) Consume(ctx context.Context, run *pipeline.Context, item I) error {
	return f(ctx, run, item)
}
