package graph

import (
	"context"
	"io"
	"testing"

	"github.com/fluxor-io/fluxor/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func childPlan(t *testing.T) *Plan {
	t.Helper()

	b := NewBuilder()

	src := AddSource(b, "in", ContextSource[int]{})
	tr := AddTransform(b, "double", double())
	sink := AddSink(b, "out", ContextSink[int]{})

	require.NoError(t, Connect(b, src, tr))
	require.NoError(t, Connect(b, tr, sink))

	plan, err := b.Build()
	require.NoError(t, err)

	return plan
}

func TestAddCompositeValidatesBoundaries(t *testing.T) {
	child := childPlan(t)

	b := NewBuilder()

	src := AddSource(b, "numbers", sliceSource(1, 2))
	comp := AddComposite[int, int](b, "nested", child, CompositeConfig{Inherit: pipeline.InheritAll()})
	sink := AddSink(b, "out", discard[int]())

	require.NoError(t, Connect(b, src, comp))
	require.NoError(t, Connect(b, comp, sink))

	plan, err := b.Build()
	require.NoError(t, err)

	n, ok := plan.Node("nested")
	require.True(t, ok)
	assert.Equal(t, KindComposite, n.Kind())
	require.NotNil(t, n.Composite())
	assert.Same(t, child, n.Composite().Child)
	assert.True(t, n.Composite().Inherit.Parameters)
}

func TestAddCompositeRejectsBoundaryMismatch(t *testing.T) {
	child := childPlan(t)

	b := NewBuilder()

	src := AddSource(b, "words", sliceSource(1))
	comp := AddComposite[string, int](b, "nested", child, CompositeConfig{})
	sink := AddSink(b, "out", discard[int]())

	_ = src
	require.NoError(t, Connect(b, comp, sink))

	_, err := b.Build()
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestAddCompositeRejectsNilChild(t *testing.T) {
	b := NewBuilder()

	AddComposite[int, int](b, "nested", nil, CompositeConfig{})

	_, err := b.Build()
	assert.ErrorIs(t, err, ErrEmptyGraph)
}

func TestContextSourceConsumesSeedOnce(t *testing.T) {
	run := pipeline.New()
	run.Items().Set(pipeline.CompositeInputKey, 41)

	src := ContextSource[int]{}

	item, err := src.Next(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, 41, item)

	_, err = src.Next(context.Background(), run)
	assert.ErrorIs(t, err, io.EOF)
}

func TestContextSourceWrongSeedType(t *testing.T) {
	run := pipeline.New()
	run.Items().Set(pipeline.CompositeInputKey, "not an int")

	_, err := ContextSource[int]{}.Next(context.Background(), run)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestContextSinkAppendsOutputs(t *testing.T) {
	run := pipeline.New()

	sink := ContextSink[int]{}
	require.NoError(t, sink.Consume(context.Background(), run, 1))
	require.NoError(t, sink.Consume(context.Background(), run, 2))

	value, ok := run.Items().Get(pipeline.CompositeOutputKey)
	require.True(t, ok)
	assert.Equal(t, []any{1, 2}, value)
}

func TestContextKeysOverride(t *testing.T) {
	run := pipeline.New()
	run.Items().Set("custom.in", 5)

	item, err := ContextSource[int]{Key: "custom.in"}.Next(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, 5, item)

	require.NoError(t, ContextSink[int]{Key: "custom.out"}.Consume(context.Background(), run, 10))

	value, ok := run.Items().Get("custom.out")
	require.True(t, ok)
	assert.Equal(t, []any{10}, value)
}
