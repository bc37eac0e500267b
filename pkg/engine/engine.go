// Package engine executes compiled plans: one driver goroutine per node,
// bounded pipes between them, supervised item processing, and node restart
// budgets on stream-wide failures.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fluxor-io/fluxor/pkg/graph"
	"github.com/fluxor-io/fluxor/pkg/observer"
	"github.com/fluxor-io/fluxor/pkg/pipe"
	"github.com/fluxor-io/fluxor/pkg/pipeline"
	"github.com/fluxor-io/fluxor/pkg/resilience"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrMissingCompositeOutput marks a composite invocation whose child
	// run produced no output items.
	ErrMissingCompositeOutput = errors.New("engine: composite produced no output")

	// ErrAmbiguousCompositeOutput marks a child run whose output context
	// item is not the shape the composite runner collects.
	ErrAmbiguousCompositeOutput = errors.New("engine: composite output has unexpected shape")
)

// Definition declares a pipeline by populating a fresh builder. The run
// context is the one the resulting plan will execute on, so a definition can
// shape the graph from run parameters.
type Definition interface {
	Define(b *graph.Builder, run *pipeline.Context) error
}

// DefinitionFunc adapts a plain function to Definition.
type DefinitionFunc func(b *graph.Builder, run *pipeline.Context) error

func (f DefinitionFunc) Define(b *graph.Builder, run *pipeline.Context) error {
	return f(b, run)
}

// PipelineError attributes a terminal run failure to the node it started at.
type PipelineError struct {
	NodeID string
	Err    error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline failed at node %s: %v", e.NodeID, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NodeReport is the terminal state of one node in a finished run.
type NodeReport struct {
	Status    observer.NodeStatus `json:"status"`
	Restarts  int                 `json:"restarts"`
	Processed int64               `json:"processed"`
	Error     string              `json:"error,omitempty"`
}

// Report summarizes a finished run.
type Report struct {
	RunID     string                `json:"run_id"`
	StartedAt time.Time             `json:"started_at"`
	Duration  time.Duration         `json:"duration"`
	Nodes     map[string]NodeReport `json:"nodes"`
}

// Runner executes plans. The zero value is not usable; construct with
// NewRunner.
type Runner struct {
	logger *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{logger: slog.Default()}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run builds the definition and executes the resulting plan, both on the
// same fresh run context.
func (r *Runner) Run(ctx context.Context, def Definition, opts ...pipeline.Option) (*Report, error) {
	run := pipeline.New(append([]pipeline.Option{pipeline.WithLogger(r.logger)}, opts...)...)

	b := graph.NewBuilder()

	if err := def.Define(b, run); err != nil {
		return nil, fmt.Errorf("define pipeline: %w", err)
	}

	plan, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	return r.execute(ctx, plan, run)
}

// RunPlan executes a compiled plan on a fresh run context.
func (r *Runner) RunPlan(ctx context.Context, plan *graph.Plan, opts ...pipeline.Option) (*Report, error) {
	run := pipeline.New(append([]pipeline.Option{pipeline.WithLogger(r.logger)}, opts...)...)

	return r.execute(ctx, plan, run)
}

// RunPlanWith executes a plan on a caller-managed run context, e.g. one the
// caller wants to cancel or inspect afterwards.
func (r *Runner) RunPlanWith(ctx context.Context, plan *graph.Plan, run *pipeline.Context) (*Report, error) {
	return r.execute(ctx, plan, run)
}

// execute drives one plan on one run context. Composite nodes recurse into
// it with a derived child context.
func (r *Runner) execute(ctx context.Context, plan *graph.Plan, run *pipeline.Context) (*Report, error) {
	started := time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Bridge the run's own cancellation signal into the context tree.
	go func() {
		select {
		case <-run.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	nodes := plan.Nodes()

	pipes := make([]*pipe.Pipe[any], len(nodes)-1)
	for i, n := range nodes[:len(nodes)-1] {
		pipes[i] = pipe.New[any](outputBuffer(n))
	}

	run.Logger().InfoContext(runCtx, "run started", "nodes", len(nodes))

	drivers := make([]*driver, len(nodes))

	g, gctx := errgroup.WithContext(runCtx)

	for i, n := range nodes {
		d := &driver{
			runner: r,
			node:   n,
			run:    run,
			sup:    r.superviseNode(runCtx, run, n),
			logger: run.NodeLogger(n.ID()),
		}

		if i > 0 {
			d.in = pipes[i-1]
		}

		if i < len(pipes) {
			d.out = pipes[i]
		}

		drivers[i] = d

		g.Go(func() error {
			return d.drive(gctx)
		})
	}

	err := g.Wait()

	report := &Report{
		RunID:     run.RunID(),
		StartedAt: started,
		Duration:  time.Since(started),
		Nodes:     make(map[string]NodeReport, len(drivers)),
	}

	for _, d := range drivers {
		report.Nodes[d.node.ID()] = d.report()
	}

	if err != nil {
		run.Logger().ErrorContext(ctx, "run failed", "error", err, "duration", report.Duration)

		return report, err
	}

	run.Logger().InfoContext(ctx, "run completed", "duration", report.Duration)

	return report, nil
}

// superviseNode assembles the per-node supervisor, including a breaker that
// reports state transitions to the run's observer.
func (r *Runner) superviseNode(ctx context.Context, run *pipeline.Context, n *graph.Node) *resilience.Supervisor {
	breaker := resilience.NewBreaker(run.Policy().Breaker)

	breaker.OnStateChange(func(from, to resilience.BreakerState) {
		run.Observer().CircuitStateChanged(ctx, observer.CircuitEvent{
			RunID:  run.RunID(),
			NodeID: n.ID(),
			From:   from.String(),
			To:     to.String(),
			At:     time.Now(),
		})
	})

	return resilience.NewSupervisor(resilience.SupervisorConfig{
		RunID:      run.RunID(),
		NodeID:     n.ID(),
		Policy:     run.Policy(),
		Handler:    run.ErrorHandler(),
		Breaker:    breaker,
		DeadLetter: run.DeadLetter(),
		Observer:   run.Observer(),
		Logger:     run.NodeLogger(n.ID()),
	})
}

func outputBuffer(n *graph.Node) int {
	if size := n.Strategy().OutputBuffer; size > 0 {
		return size
	}

	return 16
}
