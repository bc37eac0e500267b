// Package slice provides an in-memory source backed by a fixed slice.
package slice

import (
	"context"
	"io"

	"github.com/fluxor-io/fluxor/pkg/pipeline"
)

// Source streams the items of a slice in order. It is restartable: a node
// restart rewinds it to the beginning.
type Source[T any] struct {
	items []T
	pos   int
}

func New[T any](items ...T) *Source[T] {
	return &Source[T]{items: items}
}

func (s *Source[T]) Next(_ context.Context, _ *pipeline.Context) (T, error) {
	var zero T

	if s.pos >= len(s.items) {
		return zero, io.EOF
	}

	item := s.items[s.pos]
	s.pos++

	return item, nil
}

// Reset rewinds the stream for a supervised restart.
func (s *Source[T]) Reset(_ context.Context) error {
	s.pos = 0

	return nil
}
