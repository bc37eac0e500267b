// Package collect provides an in-memory sink gathering everything it
// consumes, mainly for tests and short-lived runs.
package collect

import (
	"context"
	"sync"

	"github.com/fluxor-io/fluxor/pkg/pipeline"
)

// Sink appends consumed items to an internal slice. It is safe for parallel
// sink strategies.
type Sink[T any] struct {
	mu    sync.Mutex
	items []T
}

func New[T any]() *Sink[T] {
	return &Sink[T]{}
}

func (s *Sink[T]) Consume(_ context.Context, _ *pipeline.Context, item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = append(s.items, item)

	return nil
}

// Items returns a copy of everything consumed so far.
func (s *Sink[T]) Items() []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]T, len(s.items))
	copy(items, s.items)

	return items
}

func (s *Sink[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.items)
}
