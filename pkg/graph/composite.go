package graph

import (
	"context"
	"fmt"
	"io"

	"github.com/fluxor-io/fluxor/pkg/pipeline"
)

// CompositeSpec is the declarative shape of a nested pipeline node. The
// engine interprets it: one child run per input item, on a child context
// derived per the inheritance flags.
type CompositeSpec struct {
	Child       *Plan
	Inherit     pipeline.Inheritance
	MultiOutput bool
}

// CompositeConfig configures a composite node.
type CompositeConfig struct {
	// Inherit selects which parent namespaces each child invocation starts
	// from. The zero value is full isolation.
	Inherit pipeline.Inheritance

	// MultiOutput permits more than one output item per input item. Without
	// it the composite contract is a bijection and a child run yielding
	// several items fails the pipeline.
	MultiOutput bool
}

// AddComposite registers a nested pipeline as a transform-shaped node. The
// child plan must start from a source producing I and end at a sink
// consuming O; each input item is seeded into a fresh child context under
// pipeline.CompositeInputKey and the outputs are gathered from
// pipeline.CompositeOutputKey.
func AddComposite[I, O any](b *Builder, id string, child *Plan, cfg CompositeConfig, opts ...NodeOption) TransformHandle[I, O] {
	n := b.register(id, KindComposite, typeFor[I](), typeFor[O](), child, opts)
	n.composite = &CompositeSpec{Child: child, Inherit: cfg.Inherit, MultiOutput: cfg.MultiOutput}

	if child == nil {
		b.errs = append(b.errs, fmt.Errorf("%w: composite %s has no child plan", ErrEmptyGraph, n.id))

		return TransformHandle[I, O]{node: n}
	}

	if got, want := child.Source().OutputType(), typeFor[I](); got != want {
		b.errs = append(b.errs, fmt.Errorf("%w: composite %s expects a child source of %s, got %s",
			ErrTypeMismatch, n.id, want, got))
	}

	if got, want := child.Sink().InputType(), typeFor[O](); got != want {
		b.errs = append(b.errs, fmt.Errorf("%w: composite %s expects a child sink of %s, got %s",
			ErrTypeMismatch, n.id, want, got))
	}

	return TransformHandle[I, O]{node: n}
}

// ContextSource feeds a child pipeline from the item seeded into its run
// context. It consumes the seed on first read and then reports end of
// stream, so every composite invocation processes exactly one item.
type ContextSource[O any] struct {
	// Key overrides the context item key; empty means
	// pipeline.CompositeInputKey.
	Key string
}

func (s ContextSource[O]) Next(_ context.Context, run *pipeline.Context) (O, error) {
	var zero O

	key := s.Key
	if key == "" {
		key = pipeline.CompositeInputKey
	}

	value, ok := run.Items().Get(key)
	if !ok {
		return zero, io.EOF
	}

	run.Items().Delete(key)

	item, ok := value.(O)
	if !ok {
		return zero, fmt.Errorf("%w: context item %q is %T", ErrTypeMismatch, key, value)
	}

	return item, nil
}

// ContextSink gathers a child pipeline's results into its run context, as a
// []any appended under the output key, where the composite runner collects
// them after the child run finishes.
type ContextSink[I any] struct {
	// Key overrides the context item key; empty means
	// pipeline.CompositeOutputKey.
	Key string
}

func (s ContextSink[I]) Consume(_ context.Context, run *pipeline.Context, item I) error {
	key := s.Key
	if key == "" {
		key = pipeline.CompositeOutputKey
	}

	var outputs []any

	if existing, ok := run.Items().Get(key); ok {
		outputs = existing.([]any)
	}

	run.Items().Set(key, append(outputs, item))

	return nil
}
