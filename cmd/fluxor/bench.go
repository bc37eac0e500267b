package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fluxor-io/fluxor/pkg/engine"
	"github.com/fluxor-io/fluxor/pkg/graph"
	"github.com/fluxor-io/fluxor/pkg/log"
	"github.com/fluxor-io/fluxor/pkg/strategy"
	"github.com/fluxor-io/fluxor/pkg/testutil"
	cli "github.com/urfave/cli/v3"
)

const benchLatency = time.Millisecond

func benchPlan(items int, cfg strategy.Config) (*graph.Plan, *testutil.CountingSink[int], error) {
	sink := testutil.NewCountingSink[int]()

	b := graph.NewBuilder()

	src := graph.AddSource[int](b, "range", testutil.NewRangeSource(items))
	work := graph.AddTransform(b, "work",
		testutil.NewLatency(testutil.Identity[int](), benchLatency),
		graph.WithStrategy(cfg))
	out := graph.AddSink[int](b, "count", sink)

	if err := graph.Connect(b, src, work); err != nil {
		return nil, nil, err
	}

	if err := graph.Connect(b, work, out); err != nil {
		return nil, nil, err
	}

	plan, err := b.Build()
	if err != nil {
		return nil, nil, err
	}

	return plan, sink, nil
}

func runBench(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))
	logger := log.WithModule("bench")

	items := command.Int("items")
	workers := command.Int("workers")

	configs := []struct {
		name string
		cfg  strategy.Config
	}{
		{"sequential", strategy.Sequential()},
		{"parallel", strategy.Parallel(workers)},
		{"ordered", strategy.Ordered(workers)},
	}

	runner := engine.NewRunner(engine.WithLogger(logger))

	for _, c := range configs {
		plan, sink, err := benchPlan(items, c.cfg)
		if err != nil {
			return err
		}

		started := time.Now()

		report, err := runner.RunPlan(ctx, plan)
		if err != nil {
			return fmt.Errorf("%s run failed: %w", c.name, err)
		}

		elapsed := time.Since(started)

		logger.InfoContext(ctx, "bench run finished",
			"strategy", c.name,
			"run_id", report.RunID,
			"items", sink.Count(),
			"duration", elapsed.Round(time.Millisecond),
			"items_per_second", int(float64(sink.Count())/elapsed.Seconds()))
	}

	return nil
}
