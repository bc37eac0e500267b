// Package testutil provides transforms, sinks and plan builders shared by
// tests and the bench command.
package testutil

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fluxor-io/fluxor/pkg/graph"
	"github.com/fluxor-io/fluxor/pkg/pipeline"
)

// Flaky wraps a transform and fails the first failures attempts for every
// item whose key matches. Attempts are counted per item key, so the retry
// path can be exercised deterministically.
type Flaky[T comparable] struct {
	inner    graph.Transform[T, T]
	failures int

	mu       sync.Mutex
	attempts map[T]int
}

func NewFlaky[T comparable](inner graph.Transform[T, T], failures int) *Flaky[T] {
	return &Flaky[T]{
		inner:    inner,
		failures: failures,
		attempts: make(map[T]int),
	}
}

func (f *Flaky[T]) Process(ctx context.Context, run *pipeline.Context, item T) graph.Result[T] {
	f.mu.Lock()
	f.attempts[item]++
	attempt := f.attempts[item]
	f.mu.Unlock()

	if attempt <= f.failures {
		return graph.Fault[T](fmt.Errorf("transient failure for %v (attempt %d)", item, attempt))
	}

	return f.inner.Process(ctx, run, item)
}

// Attempts reports how many times the given item has been processed.
func (f *Flaky[T]) Attempts(item T) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.attempts[item]
}

// Latency wraps a transform and sleeps a random duration up to max before
// each item, to shake out ordering assumptions in parallel strategies.
type Latency[I, O any] struct {
	inner graph.Transform[I, O]
	max   time.Duration
}

func NewLatency[I, O any](inner graph.Transform[I, O], max time.Duration) *Latency[I, O] {
	return &Latency[I, O]{inner: inner, max: max}
}

func (l *Latency[I, O]) Process(ctx context.Context, run *pipeline.Context, item I) graph.Result[O] {
	if l.max > 0 {
		select {
		case <-time.After(time.Duration(rand.Int63n(int64(l.max)))):
		case <-ctx.Done():
			return graph.Fault[O](ctx.Err())
		}
	}

	return l.inner.Process(ctx, run, item)
}

// CountingSink counts consumed items without retaining them.
type CountingSink[T any] struct {
	count atomic.Int64
}

func NewCountingSink[T any]() *CountingSink[T] {
	return &CountingSink[T]{}
}

func (s *CountingSink[T]) Consume(context.Context, *pipeline.Context, T) error {
	s.count.Add(1)

	return nil
}

func (s *CountingSink[T]) Count() int64 {
	return s.count.Load()
}

// Identity returns a transform that passes items through unchanged.
func Identity[T any]() graph.Transform[T, T] {
	return graph.TransformFunc[T, T](func(_ context.Context, _ *pipeline.Context, item T) (T, error) {
		return item, nil
	})
}

// RangeSource streams the integers [0, n).
type RangeSource struct {
	n   int
	pos int
}

func NewRangeSource(n int) *RangeSource {
	return &RangeSource{n: n}
}

func (s *RangeSource) Next(_ context.Context, _ *pipeline.Context) (int, error) {
	if s.pos >= s.n {
		return 0, io.EOF
	}

	item := s.pos
	s.pos++

	return item, nil
}

func (s *RangeSource) Reset(context.Context) error {
	s.pos = 0

	return nil
}
