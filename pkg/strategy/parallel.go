package strategy

import (
	"context"
	"errors"
	"io"

	"github.com/fluxor-io/fluxor/pkg/pipe"
	"golang.org/x/sync/errgroup"
)

// runUnordered fans items over a worker pool and emits each result as soon
// as it completes. The input queue applies the configured full policy, so
// shedding modes drop or evict items under sustained overload.
func runUnordered(ctx context.Context, cfg Config, in pipe.Reader[any], emit Emit, proc Proc) error {
	queue := pipe.NewBuffer[any](cfg.queueSize(), cfg.FullPolicy)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer queue.Close(nil)

		for {
			item, err := in.Next(gctx)
			if errors.Is(err, io.EOF) {
				return nil
			}

			if err != nil {
				if gctx.Err() != nil {
					return err
				}

				return &UpstreamError{Err: err}
			}

			if err := queue.Put(gctx, item); err != nil {
				return err
			}
		}
	})

	for range cfg.workers() {
		g.Go(func() error {
			for {
				item, err := queue.Get(gctx)
				if errors.Is(err, io.EOF) {
					return nil
				}

				if err != nil {
					return err
				}

				err = proc(gctx, item, func(out any) error {
					return emit(gctx, out)
				})
				if err != nil {
					return err
				}
			}
		})
	}

	return g.Wait()
}

type ordResult struct {
	outputs []any
	err     error
}

// runOrdered fans items over a worker pool but releases outputs strictly in
// arrival order. Each item gets a one-shot result slot; the slots queue in
// arrival order and the collector drains them sequentially, so a slow item
// holds back later ones without idling the workers. The slot queue capacity
// bounds how many completed-but-unreleased results can pile up.
func runOrdered(ctx context.Context, cfg Config, in pipe.Reader[any], emit Emit, proc Proc) error {
	jobs := make(chan job, cfg.queueSize())
	slots := make(chan chan ordResult, cfg.reorderCap())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		defer close(slots)

		for {
			item, err := in.Next(gctx)
			if errors.Is(err, io.EOF) {
				return nil
			}

			if err != nil {
				if gctx.Err() != nil {
					return err
				}

				return &UpstreamError{Err: err}
			}

			slot := make(chan ordResult, 1)

			select {
			case slots <- slot:
			case <-gctx.Done():
				return gctx.Err()
			}

			select {
			case jobs <- job{item: item, result: slot}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	for range cfg.workers() {
		g.Go(func() error {
			for j := range jobs {
				var outputs []any

				err := proc(gctx, j.item, func(out any) error {
					outputs = append(outputs, out)

					return nil
				})

				select {
				case j.result <- ordResult{outputs: outputs, err: err}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}

			return nil
		})
	}

	g.Go(func() error {
		for slot := range slots {
			var res ordResult

			select {
			case res = <-slot:
			case <-gctx.Done():
				return gctx.Err()
			}

			if res.err != nil {
				return res.err
			}

			for _, out := range res.outputs {
				if err := emit(gctx, out); err != nil {
					return err
				}
			}
		}

		return nil
	})

	return g.Wait()
}

type job struct {
	item   any
	result chan ordResult
}
