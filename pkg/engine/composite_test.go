package engine

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/fluxor-io/fluxor/pkg/deadletter"
	"github.com/fluxor-io/fluxor/pkg/graph"
	"github.com/fluxor-io/fluxor/pkg/pipeline"
	"github.com/fluxor-io/fluxor/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doubleChild(t *testing.T) *graph.Plan {
	t.Helper()

	b := graph.NewBuilder()

	src := graph.AddSource[int](b, "in", graph.ContextSource[int]{})
	tr := graph.AddTransform(b, "double", doubler())
	out := graph.AddSink[int](b, "out", graph.ContextSink[int]{})

	require.NoError(t, graph.Connect(b, src, tr))
	require.NoError(t, graph.Connect(b, tr, out))

	plan, err := b.Build()
	require.NoError(t, err)

	return plan
}

func TestCompositeRoundTrip(t *testing.T) {
	child := doubleChild(t)

	b := graph.NewBuilder()

	src := graph.AddSource[int](b, "numbers", &intSource{items: []int{1, 2, 3}})
	comp := graph.AddComposite[int, int](b, "nested", child, graph.CompositeConfig{})
	sink := &collectSink[int]{}
	out := graph.AddSink[int](b, "collect", sink)

	require.NoError(t, graph.Connect(b, src, comp))
	require.NoError(t, graph.Connect(b, comp, out))

	plan, err := b.Build()
	require.NoError(t, err)

	_, err = NewRunner().RunPlan(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 4, 6}, sink.Items())
}

func TestCompositeNestedTwoLevels(t *testing.T) {
	inner := doubleChild(t)

	// Middle pipeline: context source -> inner composite -> context sink.
	mb := graph.NewBuilder()

	msrc := graph.AddSource[int](mb, "in", graph.ContextSource[int]{})
	mcomp := graph.AddComposite[int, int](mb, "inner", inner, graph.CompositeConfig{})
	mout := graph.AddSink[int](mb, "out", graph.ContextSink[int]{})

	require.NoError(t, graph.Connect(mb, msrc, mcomp))
	require.NoError(t, graph.Connect(mb, mcomp, mout))

	middle, err := mb.Build()
	require.NoError(t, err)

	b := graph.NewBuilder()

	src := graph.AddSource[int](b, "numbers", &intSource{items: []int{5}})
	comp := graph.AddComposite[int, int](b, "outer", middle, graph.CompositeConfig{})
	sink := &collectSink[int]{}
	out := graph.AddSink[int](b, "collect", sink)

	require.NoError(t, graph.Connect(b, src, comp))
	require.NoError(t, graph.Connect(b, comp, out))

	plan, err := b.Build()
	require.NoError(t, err)

	_, err = NewRunner().RunPlan(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, []int{10}, sink.Items())
}

func TestCompositeInheritsParameters(t *testing.T) {
	cb := graph.NewBuilder()

	csrc := graph.AddSource[int](cb, "in", graph.ContextSource[int]{})
	ctr := graph.AddTransform(cb, "scale",
		graph.TransformFunc[int, int](func(_ context.Context, run *pipeline.Context, item int) (int, error) {
			factor, _ := run.Parameters().Get("factor")

			return item * factor.(int), nil
		}))
	cout := graph.AddSink[int](cb, "out", graph.ContextSink[int]{})

	require.NoError(t, graph.Connect(cb, csrc, ctr))
	require.NoError(t, graph.Connect(cb, ctr, cout))

	child, err := cb.Build()
	require.NoError(t, err)

	b := graph.NewBuilder()

	src := graph.AddSource[int](b, "numbers", &intSource{items: []int{2, 3}})
	comp := graph.AddComposite[int, int](b, "nested", child,
		graph.CompositeConfig{Inherit: pipeline.Inheritance{Parameters: true}})
	sink := &collectSink[int]{}
	out := graph.AddSink[int](b, "collect", sink)

	require.NoError(t, graph.Connect(b, src, comp))
	require.NoError(t, graph.Connect(b, comp, out))

	plan, err := b.Build()
	require.NoError(t, err)

	_, err = NewRunner().RunPlan(context.Background(), plan,
		pipeline.WithParameters(map[string]any{"factor": 100}))
	require.NoError(t, err)

	assert.Equal(t, []int{200, 300}, sink.Items())
}

func TestCompositeIsolationHidesParentState(t *testing.T) {
	cb := graph.NewBuilder()

	csrc := graph.AddSource[int](cb, "in", graph.ContextSource[int]{})
	ctr := graph.AddTransform(cb, "probe",
		graph.TransformFunc[int, int](func(_ context.Context, run *pipeline.Context, item int) (int, error) {
			if _, ok := run.Parameters().Get("secret"); ok {
				return -1, nil
			}

			return item, nil
		}))
	cout := graph.AddSink[int](cb, "out", graph.ContextSink[int]{})

	require.NoError(t, graph.Connect(cb, csrc, ctr))
	require.NoError(t, graph.Connect(cb, ctr, cout))

	child, err := cb.Build()
	require.NoError(t, err)

	b := graph.NewBuilder()

	src := graph.AddSource[int](b, "numbers", &intSource{items: []int{9}})
	comp := graph.AddComposite[int, int](b, "nested", child, graph.CompositeConfig{})
	sink := &collectSink[int]{}
	out := graph.AddSink[int](b, "collect", sink)

	require.NoError(t, graph.Connect(b, src, comp))
	require.NoError(t, graph.Connect(b, comp, out))

	plan, err := b.Build()
	require.NoError(t, err)

	_, err = NewRunner().RunPlan(context.Background(), plan,
		pipeline.WithParameters(map[string]any{"secret": true}))
	require.NoError(t, err)

	assert.Equal(t, []int{9}, sink.Items())
}

func TestCompositeFanOut(t *testing.T) {
	cb := graph.NewBuilder()

	csrc := graph.AddSource[int](cb, "in", graph.ContextSource[int]{})
	ctr := graph.AddTransform(cb, "split",
		graph.ProcessFunc[int, int](func(_ context.Context, _ *pipeline.Context, item int) graph.Result[int] {
			return graph.Fan(item, item+1)
		}))
	cout := graph.AddSink[int](cb, "out", graph.ContextSink[int]{})

	require.NoError(t, graph.Connect(cb, csrc, ctr))
	require.NoError(t, graph.Connect(cb, ctr, cout))

	child, err := cb.Build()
	require.NoError(t, err)

	b := graph.NewBuilder()

	src := graph.AddSource[int](b, "numbers", &intSource{items: []int{10, 20}})
	comp := graph.AddComposite[int, int](b, "nested", child,
		graph.CompositeConfig{MultiOutput: true})
	sink := &collectSink[int]{}
	out := graph.AddSink[int](b, "collect", sink)

	require.NoError(t, graph.Connect(b, src, comp))
	require.NoError(t, graph.Connect(b, comp, out))

	plan, err := b.Build()
	require.NoError(t, err)

	_, err = NewRunner().RunPlan(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, []int{10, 11, 20, 21}, sink.Items())
}

func TestCompositeUndeclaredFanOutFailsRun(t *testing.T) {
	cb := graph.NewBuilder()

	csrc := graph.AddSource[int](cb, "in", graph.ContextSource[int]{})
	ctr := graph.AddTransform(cb, "split",
		graph.ProcessFunc[int, int](func(_ context.Context, _ *pipeline.Context, item int) graph.Result[int] {
			return graph.Fan(item, item+1)
		}))
	cout := graph.AddSink[int](cb, "out", graph.ContextSink[int]{})

	require.NoError(t, graph.Connect(cb, csrc, ctr))
	require.NoError(t, graph.Connect(cb, ctr, cout))

	child, err := cb.Build()
	require.NoError(t, err)

	b := graph.NewBuilder()

	src := graph.AddSource[int](b, "numbers", &intSource{items: []int{10}})
	comp := graph.AddComposite[int, int](b, "nested", child, graph.CompositeConfig{})
	sink := &collectSink[int]{}
	out := graph.AddSink[int](b, "collect", sink)

	require.NoError(t, graph.Connect(b, src, comp))
	require.NoError(t, graph.Connect(b, comp, out))

	plan, err := b.Build()
	require.NoError(t, err)

	dlq := deadletter.NewMemory()

	_, err = NewRunner().RunPlan(context.Background(), plan,
		pipeline.WithDeadLetter(dlq))
	require.ErrorIs(t, err, ErrAmbiguousCompositeOutput)

	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "nested", perr.NodeID)

	assert.Empty(t, dlq.Entries())
	assert.Empty(t, sink.Items())
}

func TestCompositeMissingOutputFailsRun(t *testing.T) {
	cb := graph.NewBuilder()

	var childRuns atomic.Int32

	csrc := graph.AddSource[int](cb, "in", graph.ContextSource[int]{})
	ctr := graph.AddTransform(cb, "swallow",
		graph.ProcessFunc[int, int](func(_ context.Context, _ *pipeline.Context, _ int) graph.Result[int] {
			childRuns.Add(1)

			return graph.None[int]()
		}))
	cout := graph.AddSink[int](cb, "out", graph.ContextSink[int]{})

	require.NoError(t, graph.Connect(cb, csrc, ctr))
	require.NoError(t, graph.Connect(cb, ctr, cout))

	child, err := cb.Build()
	require.NoError(t, err)

	b := graph.NewBuilder()

	src := graph.AddSource[int](b, "numbers", &intSource{items: []int{1}})
	comp := graph.AddComposite[int, int](b, "nested", child, graph.CompositeConfig{})
	sink := &collectSink[int]{}
	out := graph.AddSink[int](b, "collect", sink)

	require.NoError(t, graph.Connect(b, src, comp))
	require.NoError(t, graph.Connect(b, comp, out))

	plan, err := b.Build()
	require.NoError(t, err)

	dlq := deadletter.NewMemory()

	policy := resilience.DefaultPolicy()
	policy.MaxItemRetries = 3
	policy.RestartBackoff = 0

	_, err = NewRunner().RunPlan(context.Background(), plan,
		pipeline.WithPolicy(policy),
		pipeline.WithDeadLetter(dlq))
	require.ErrorIs(t, err, ErrMissingCompositeOutput)

	// A child run that swallows its input is a broken child plan, not a
	// transient failure: no retries, no dead-lettering.
	assert.Equal(t, int32(1), childRuns.Load())
	assert.Empty(t, dlq.Entries())
	assert.Empty(t, sink.Items())
}
