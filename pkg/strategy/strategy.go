// Package strategy schedules how one node's runtime pulls, processes, and
// pushes its stream: a single sequential worker, or a bounded parallel pool
// with configurable ordering and queueing behavior.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/fluxor-io/fluxor/pkg/pipe"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Kind selects the execution strategy variant.
type Kind string

const (
	KindSequential Kind = "sequential"
	KindParallel   Kind = "parallel"
)

// Config is the per-node strategy configuration.
type Config struct {
	Kind Kind `json:"kind" validate:"oneof=sequential parallel"`

	// Workers is the parallel pool size; zero falls back to NumCPU.
	Workers int `json:"workers" validate:"gte=0"`

	// QueueSize bounds the parallel input queue; zero falls back to twice
	// the worker count.
	QueueSize int `json:"queue_size" validate:"gte=0"`

	// OutputBuffer is the capacity of the node's outgoing pipe.
	OutputBuffer int `json:"output_buffer" validate:"gte=0"`

	// Ordered re-sequences parallel output into arrival order. Ordering is
	// a correctness property for the caller, not an implementation detail.
	Ordered bool `json:"ordered"`

	// FullPolicy decides what happens when the input queue is full.
	// Ordered mode requires Block: shedding would leave holes in the
	// resequencing window.
	FullPolicy pipe.FullPolicy `json:"full_policy"`

	// ReorderCap bounds buffered out-of-order completions in ordered mode;
	// zero lets the engine apply the policy's materialization cap.
	ReorderCap int `json:"reorder_cap" validate:"gte=0"`
}

// Sequential returns the default single-worker configuration.
func Sequential() Config {
	return Config{Kind: KindSequential}
}

// Parallel returns a parallel configuration with the given pool size.
func Parallel(workers int) Config {
	return Config{
		Kind:       KindParallel,
		Workers:    workers,
		FullPolicy: pipe.Block,
	}
}

// Ordered returns an order-preserving parallel configuration.
func Ordered(workers int) Config {
	cfg := Parallel(workers)
	cfg.Ordered = true

	return cfg
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err != nil {
		return fmt.Errorf("invalid strategy config: %w", err)
	}

	if c.Ordered && c.FullPolicy != pipe.Block {
		return fmt.Errorf("invalid strategy config: ordered mode requires the %s full policy, got %s",
			pipe.Block, c.FullPolicy)
	}

	return nil
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}

	return runtime.NumCPU()
}

func (c Config) queueSize() int {
	if c.QueueSize > 0 {
		return c.QueueSize
	}

	return 2 * c.workers()
}

func (c Config) reorderCap() int {
	if c.ReorderCap > 0 {
		return c.ReorderCap
	}

	return c.queueSize() + c.workers()
}

// UpstreamError marks a terminal error inherited from the upstream pipe, as
// opposed to a failure of this node's own processing.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream stream failed: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Proc processes one item, pushing zero or more outputs through emit.
// Retries, skips, and dead-lettering happen inside proc; a returned error is
// a terminal failure of the node's stream.
type Proc func(ctx context.Context, item any, emit func(item any) error) error

// Emit pushes one processed item downstream.
type Emit func(ctx context.Context, item any) error

// Run drives items from in through proc until end-of-stream, scheduling per
// the configuration. It returns nil on clean end-of-stream; the caller owns
// closing the downstream pipe.
func Run(ctx context.Context, cfg Config, in pipe.Reader[any], emit Emit, proc Proc) error {
	if cfg.Kind == KindParallel {
		if cfg.Ordered {
			return runOrdered(ctx, cfg, in, emit, proc)
		}

		return runUnordered(ctx, cfg, in, emit, proc)
	}

	return runSequential(ctx, in, emit, proc)
}

func runSequential(ctx context.Context, in pipe.Reader[any], emit Emit, proc Proc) error {
	for {
		item, err := in.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			if ctx.Err() != nil {
				return err
			}

			return &UpstreamError{Err: err}
		}

		err = proc(ctx, item, func(out any) error {
			return emit(ctx, out)
		})
		if err != nil {
			return err
		}
	}
}
