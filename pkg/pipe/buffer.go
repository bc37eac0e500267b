package pipe

import (
	"context"
	"io"
	"sync"
)

// FullPolicy decides what happens when an item is put into a full buffer.
type FullPolicy int

const (
	// Block suspends the producer until space frees up (backpressure).
	Block FullPolicy = iota
	// DropNewest discards the arriving item.
	DropNewest
	// EvictOldest discards the oldest queued item to make room (shedding).
	EvictOldest
)

func (p FullPolicy) String() string {
	switch p {
	case Block:
		return "block"
	case DropNewest:
		return "drop_newest"
	case EvictOldest:
		return "evict_oldest"
	default:
		return "unknown"
	}
}

// Buffer is a bounded multi-producer, multi-consumer queue with a
// configurable full policy. Unlike Pipe it permits concurrent consumers,
// which is what the parallel execution strategy needs for its worker pool.
type Buffer[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []T
	max     int
	policy  FullPolicy
	closed  bool
	err     error
	dropped int
}

// NewBuffer creates a buffer holding at most max items. A max of zero or
// less falls back to a single slot.
func NewBuffer[T any](max int, policy FullPolicy) *Buffer[T] {
	if max <= 0 {
		max = 1
	}

	b := &Buffer[T]{max: max, policy: policy}
	b.cond = sync.NewCond(&b.mu)

	return b
}

// Put enqueues an item, applying the buffer's full policy. It returns
// ErrClosed after Close and the context error if cancelled while blocked.
func (b *Buffer[T]) Put(ctx context.Context, item T) error {
	stop := context.AfterFunc(ctx, func() {
		b.cond.Broadcast()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.items) >= b.max {
		if b.closed {
			return ErrClosed
		}

		switch b.policy {
		case DropNewest:
			b.dropped++

			return nil
		case EvictOldest:
			b.items = b.items[1:]
			b.dropped++
		case Block:
			if err := ctx.Err(); err != nil {
				return err
			}

			b.cond.Wait()
		}
	}

	if b.closed {
		return ErrClosed
	}

	b.items = append(b.items, item)
	b.cond.Broadcast()

	return nil
}

// Get dequeues the oldest item, blocking until one is available. After Close
// it drains remaining items, then returns the terminal error (io.EOF when
// the buffer was closed cleanly).
func (b *Buffer[T]) Get(ctx context.Context) (T, error) {
	var zero T

	stop := context.AfterFunc(ctx, func() {
		b.cond.Broadcast()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.items) == 0 {
		if b.closed {
			if b.err != nil {
				return zero, b.err
			}

			return zero, io.EOF
		}

		if err := ctx.Err(); err != nil {
			return zero, err
		}

		b.cond.Wait()
	}

	item := b.items[0]
	b.items = b.items[1:]
	b.cond.Broadcast()

	return item, nil
}

// Close marks the buffer terminal. Queued items stay consumable.
func (b *Buffer[T]) Close(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	b.err = err
	b.cond.Broadcast()
}

// Dropped reports how many items the full policy discarded.
func (b *Buffer[T]) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.dropped
}

// Len reports the number of queued items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.items)
}
