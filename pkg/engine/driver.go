package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fluxor-io/fluxor/pkg/graph"
	"github.com/fluxor-io/fluxor/pkg/observer"
	"github.com/fluxor-io/fluxor/pkg/pipe"
	"github.com/fluxor-io/fluxor/pkg/pipeline"
	"github.com/fluxor-io/fluxor/pkg/resilience"
	"github.com/fluxor-io/fluxor/pkg/strategy"
)

// driver owns one node for the duration of a run: it pulls from the inbound
// pipe, schedules processing per the node's strategy, and closes the
// outbound pipe with the node's terminal state.
type driver struct {
	runner *Runner
	node   *graph.Node
	run    *pipeline.Context
	in     pipe.Reader[any]
	out    *pipe.Pipe[any]
	sup    *resilience.Supervisor
	logger *slog.Logger

	processed atomic.Int64

	mu       sync.Mutex
	status   observer.NodeStatus
	restarts int
	finalErr error
}

func (d *driver) drive(ctx context.Context) error {
	obs := d.run.Observer()

	d.setStatus(observer.NodeStatusRunning)
	obs.NodeStarted(ctx, d.event(observer.NodeStatusRunning, nil))

	err := d.supervise(ctx)

	status, terminal := d.terminal()

	if d.out != nil {
		d.out.Close(terminal)
	}

	obs.NodeFinished(ctx, d.event(status, terminal))

	return err
}

// supervise runs the node's stream, consulting the error handler on every
// stream-wide failure and enforcing the restart budgets.
func (d *driver) supervise(ctx context.Context) error {
	policy := d.run.Policy()

	restarts, sequential := 0, 0

	for {
		before := d.processed.Load()

		err := d.runOnce(ctx)
		if err == nil {
			d.finish(observer.NodeStatusCompleted, nil)

			return nil
		}

		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			d.finish(observer.NodeStatusCancelled, err)

			return err
		}

		// An upstream terminal error is attributed to the node it
		// originated at; this node just goes dark and cascades it.
		var upstream *strategy.UpstreamError
		if errors.As(err, &upstream) {
			d.finish(observer.NodeStatusFailed, err)

			return nil
		}

		// A violated composite output contract is a defect in the child
		// plan. It is never retried, restarted, or dead-lettered.
		if errors.Is(err, ErrMissingCompositeOutput) || errors.Is(err, ErrAmbiguousCompositeOutput) {
			d.finish(observer.NodeStatusFailed, err)

			return &PipelineError{NodeID: d.node.ID(), Err: err}
		}

		decision := d.run.ErrorHandler().NodeError(ctx, resilience.NodeFailure{
			RunID:    d.run.RunID(),
			NodeID:   d.node.ID(),
			Restarts: restarts,
			Err:      err,
		})

		switch decision {
		case resilience.DecisionRestartNode:
			if d.processed.Load() > before {
				sequential = 0
			}

			restarts++
			sequential++
			d.setRestarts(restarts)

			if restarts > policy.MaxNodeRestarts || sequential > policy.MaxSequentialRestarts {
				failure := fmt.Errorf("%w: node %s: %w", resilience.ErrRestartLimitExceeded, d.node.ID(), err)
				d.finish(observer.NodeStatusFailed, failure)

				return &PipelineError{NodeID: d.node.ID(), Err: failure}
			}

			if !sleepCtx(ctx, policy.RestartBackoff) {
				d.finish(observer.NodeStatusCancelled, ctx.Err())

				return ctx.Err()
			}

			if resettable, ok := d.node.Impl().(graph.Resettable); ok {
				if resetErr := resettable.Reset(ctx); resetErr != nil {
					failure := fmt.Errorf("reset node %s: %w", d.node.ID(), resetErr)
					d.finish(observer.NodeStatusFailed, failure)

					return &PipelineError{NodeID: d.node.ID(), Err: failure}
				}
			}

			d.logger.WarnContext(ctx, "restarting node stream", "restarts", restarts, "error", err)
			d.run.Observer().NodeRestarted(ctx, d.event(observer.NodeStatusRunning, err))

		case resilience.DecisionContinueWithoutNode:
			d.logger.WarnContext(ctx, "continuing without node", "error", err)

			if bypassErr := d.bypass(ctx); bypassErr != nil {
				d.finish(observer.NodeStatusCancelled, bypassErr)

				return bypassErr
			}

			d.finish(observer.NodeStatusCompleted, nil)

			return nil

		default:
			d.finish(observer.NodeStatusFailed, err)

			return &PipelineError{NodeID: d.node.ID(), Err: err}
		}
	}
}

func (d *driver) runOnce(ctx context.Context) error {
	switch d.node.Kind() {
	case graph.KindSource:
		return d.runSource(ctx)
	case graph.KindTransform:
		return strategy.Run(ctx, d.strategyConfig(), d.in, d.emit, d.transformProc)
	case graph.KindComposite:
		return strategy.Run(ctx, d.strategyConfig(), d.in, d.emit, d.compositeProc)
	case graph.KindSink:
		return strategy.Run(ctx, d.strategyConfig(), d.in, d.emit, d.sinkProc)
	default:
		return fmt.Errorf("node %s has unknown kind %s", d.node.ID(), d.node.Kind())
	}
}

func (d *driver) runSource(ctx context.Context) error {
	for {
		item, err := d.node.RunSource(ctx, d.run)
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return err
		}

		if err := d.out.Emit(ctx, item); err != nil {
			return err
		}

		d.processed.Add(1)
		d.run.Lineage(d.node.ID(), observer.OutcomeSuccess, 1)
	}
}

// transformProc processes one item: the supervised attempt materializes the
// outputs, then they flow downstream outside the retry scope so a blocked
// emit is never replayed.
func (d *driver) transformProc(ctx context.Context, item any, emit func(any) error) error {
	var outputs []any

	succeeded := false

	err := d.sup.Do(ctx, item, func(ctx context.Context) error {
		outcome := d.node.RunTransform(ctx, d.run, item).Await(ctx)
		if err := outcome.Err(); err != nil {
			return err
		}

		outputs = outputs[:0]

		_ = outcome.Each(func(out any) error {
			outputs = append(outputs, out)

			return nil
		})

		succeeded = true

		return nil
	})

	return d.deliver(succeeded, outputs, emit, err)
}

// compositeProc runs the child plan once per item on a derived context and
// collects the outputs the child sink left behind. Only the child run itself
// rides the retry loop; the output contract is checked afterwards, because a
// violated contract is a broken child plan, not a transient condition.
func (d *driver) compositeProc(ctx context.Context, item any, emit func(any) error) error {
	spec := d.node.Composite()

	var child *pipeline.Context

	succeeded := false

	err := d.sup.Do(ctx, item, func(ctx context.Context) error {
		child = d.run.Child(spec.Inherit)
		child.Items().Set(pipeline.CompositeInputKey, item)

		if _, err := d.runner.execute(ctx, spec.Child, child); err != nil {
			return err
		}

		succeeded = true

		return nil
	})
	if err != nil || !succeeded {
		return d.deliver(succeeded, nil, emit, err)
	}

	outputs, err := d.collectCompositeOutputs(child)
	if err != nil {
		d.run.Lineage(d.node.ID(), observer.OutcomeFailure, 0)

		return err
	}

	return d.deliver(true, outputs, emit, nil)
}

// collectCompositeOutputs extracts the child run's outputs and enforces the
// per-item cardinality contract.
func (d *driver) collectCompositeOutputs(child *pipeline.Context) ([]any, error) {
	spec := d.node.Composite()

	raw, ok := child.Items().Get(pipeline.CompositeOutputKey)
	if !ok {
		return nil, fmt.Errorf("%w: node %s", ErrMissingCompositeOutput, d.node.ID())
	}

	outputs, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: node %s collected %T", ErrAmbiguousCompositeOutput, d.node.ID(), raw)
	}

	if len(outputs) == 0 {
		return nil, fmt.Errorf("%w: node %s", ErrMissingCompositeOutput, d.node.ID())
	}

	if len(outputs) > 1 && !spec.MultiOutput {
		return nil, fmt.Errorf("%w: node %s produced %d outputs for one input",
			ErrAmbiguousCompositeOutput, d.node.ID(), len(outputs))
	}

	return outputs, nil
}

func (d *driver) sinkProc(ctx context.Context, item any, _ func(any) error) error {
	succeeded := false

	err := d.sup.Do(ctx, item, func(ctx context.Context) error {
		if err := d.node.RunSink(ctx, d.run, item); err != nil {
			return err
		}

		succeeded = true

		return nil
	})

	return d.deliver(succeeded, nil, nil, err)
}

// deliver finishes one item: lineage bookkeeping plus the downstream emits
// for a successful attempt. A nil err with succeeded false means the
// supervisor skipped or dead-lettered the item.
func (d *driver) deliver(succeeded bool, outputs []any, emit func(any) error, err error) error {
	if err != nil {
		d.run.Lineage(d.node.ID(), observer.OutcomeFailure, 0)

		return err
	}

	if !succeeded {
		d.run.Lineage(d.node.ID(), observer.OutcomeSkip, 0)

		return nil
	}

	for _, out := range outputs {
		if emitErr := emit(out); emitErr != nil {
			return emitErr
		}
	}

	d.processed.Add(1)
	d.run.Lineage(d.node.ID(), observer.OutcomeSuccess, len(outputs))

	return nil
}

func (d *driver) emit(ctx context.Context, item any) error {
	return d.out.Emit(ctx, item)
}

// bypass implements ContinueWithoutNode: remaining input passes through
// unchanged when the boundary types line up, otherwise it drains.
func (d *driver) bypass(ctx context.Context) error {
	if d.in == nil {
		return nil
	}

	identity := d.out != nil && d.node.InputType() == d.node.OutputType()

	for {
		item, err := d.in.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			if ctx.Err() != nil {
				return err
			}

			return nil
		}

		if !identity {
			continue
		}

		if err := d.out.Emit(ctx, item); err != nil {
			return err
		}
	}
}

func (d *driver) strategyConfig() strategy.Config {
	cfg := d.node.Strategy()
	if cfg.Ordered && cfg.ReorderCap == 0 {
		cfg.ReorderCap = d.run.Policy().MaterializationCap
	}

	return cfg
}

func (d *driver) event(status observer.NodeStatus, err error) observer.NodeEvent {
	d.mu.Lock()
	restarts := d.restarts
	d.mu.Unlock()

	return observer.NodeEvent{
		RunID:    d.run.RunID(),
		NodeID:   d.node.ID(),
		Status:   status,
		Err:      err,
		Restarts: restarts,
		At:       time.Now(),
	}
}

func (d *driver) setStatus(status observer.NodeStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.status = status
}

func (d *driver) setRestarts(restarts int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.restarts = restarts
}

func (d *driver) finish(status observer.NodeStatus, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.status = status
	d.finalErr = err
}

func (d *driver) terminal() (observer.NodeStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.status, d.finalErr
}

func (d *driver) report() NodeReport {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := NodeReport{
		Status:    d.status,
		Restarts:  d.restarts,
		Processed: d.processed.Load(),
	}

	if d.finalErr != nil {
		r.Error = d.finalErr.Error()
	}

	return r
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
