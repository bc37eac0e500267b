// Package pipe provides the pull-based streaming connections between pipeline nodes.
package pipe

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrClosed is returned by Emit after the pipe has been closed.
var ErrClosed = errors.New("pipe: emit on closed pipe")

// Reader is the consuming end of a pipe. A pipe has exactly one logical
// consumer; Next must not be called concurrently.
type Reader[T any] interface {
	// Next blocks until an item is available. It returns io.EOF when the
	// stream ended cleanly, the producer's terminal error when the stream
	// failed, or the context error on cancellation.
	Next(ctx context.Context) (T, error)

	// Remaining reports how many items are still expected, when the
	// producer declared a size up front. Callers use it for allocation
	// sizing only; it is advisory.
	Remaining() (int, bool)
}

// Writer is the producing end of a pipe. Emit may be called from multiple
// goroutines. Close is idempotent; the first call wins and must happen after
// the last Emit has returned, otherwise racing items may be dropped.
type Writer[T any] interface {
	Emit(ctx context.Context, item T) error
	Close(err error)
}

// Pipe is a bounded, channel-backed stream implementing both Reader and
// Writer ends.
type Pipe[T any] struct {
	ch     chan T
	closed chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error

	size     int
	sized    bool
	consumed int
}

// New creates a pipe buffering up to capacity items between producer and
// consumer. A capacity of zero yields a fully synchronous handoff.
func New[T any](capacity int) *Pipe[T] {
	if capacity < 0 {
		capacity = 0
	}

	return &Pipe[T]{
		ch:     make(chan T, capacity),
		closed: make(chan struct{}),
	}
}

// NewSized creates a pipe that additionally advertises the total number of
// items the producer intends to emit.
func NewSized[T any](capacity, size int) *Pipe[T] {
	p := New[T](capacity)
	p.size = size
	p.sized = true

	return p
}

func (p *Pipe[T]) Emit(ctx context.Context, item T) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}

	select {
	case p.ch <- item:
		return nil
	case <-p.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close terminates the stream. A nil err signals clean end-of-stream;
// a non-nil err is surfaced to the consumer once buffered items drain.
func (p *Pipe[T]) Close(err error) {
	p.once.Do(func() {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.closed)
	})
}

func (p *Pipe[T]) Next(ctx context.Context) (T, error) {
	var zero T

	// Buffered items win over a pending close so nothing in flight is lost.
	select {
	case item := <-p.ch:
		p.consumed++

		return item, nil
	default:
	}

	select {
	case item := <-p.ch:
		p.consumed++

		return item, nil
	case <-p.closed:
		select {
		case item := <-p.ch:
			p.consumed++

			return item, nil
		default:
			return zero, p.terminal()
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (p *Pipe[T]) Remaining() (int, bool) {
	if !p.sized {
		return 0, false
	}

	left := p.size - p.consumed
	if left < 0 {
		left = 0
	}

	return left, true
}

func (p *Pipe[T]) terminal() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}

	return io.EOF
}

type sliceReader[T any] struct {
	items []T
	pos   int
}

// FromSlice returns a reader streaming the given items with an exact
// remaining count.
func FromSlice[T any](items []T) Reader[T] {
	return &sliceReader[T]{items: items}
}

func (r *sliceReader[T]) Next(ctx context.Context) (T, error) {
	var zero T

	if err := ctx.Err(); err != nil {
		return zero, err
	}

	if r.pos >= len(r.items) {
		return zero, io.EOF
	}

	item := r.items[r.pos]
	r.pos++

	return item, nil
}

func (r *sliceReader[T]) Remaining() (int, bool) {
	return len(r.items) - r.pos, true
}
