package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fluxor-io/fluxor/pkg/graph"
	"github.com/fluxor-io/fluxor/pkg/log"
	"github.com/fluxor-io/fluxor/pkg/pipeline"
	"github.com/fluxor-io/fluxor/pkg/sinks/logsink"
	"github.com/fluxor-io/fluxor/pkg/sources/schedule"
	"github.com/fluxor-io/fluxor/pkg/strategy"
)

const (
	rangePosKey      = "builtin.range.pos"
	defaultRangeSize = 100
	tickLimit        = 5
)

// rangeSource streams [0, count). Position lives in the run's item
// namespace, so the plan can be triggered any number of times and shared
// across concurrent runs.
func rangeSource() graph.Source[int] {
	return graph.SourceFunc[int](func(_ context.Context, run *pipeline.Context) (int, error) {
		count := defaultRangeSize
		if v, ok := run.Parameters().Get("count"); ok {
			if f, ok := v.(float64); ok {
				count = int(f)
			}
		}

		pos := 0
		if v, ok := run.Items().Get(rangePosKey); ok {
			pos, _ = v.(int)
		}

		if pos >= count {
			return 0, io.EOF
		}

		run.Items().Set(rangePosKey, pos+1)

		return pos, nil
	})
}

func squaresPlan() (*graph.Plan, error) {
	b := graph.NewBuilder()

	src := graph.AddSource[int](b, "range", rangeSource(), graph.WithShareable())
	sq := graph.AddTransform(b, "square", graph.TransformFunc[int, int](
		func(_ context.Context, _ *pipeline.Context, item int) (int, error) {
			return item * item, nil
		}), graph.WithStrategy(strategy.Parallel(4)))
	out := graph.AddSink[int](b, "log", logsink.New[int](log.WithModule("squares")))

	if err := graph.Connect(b, src, sq); err != nil {
		return nil, err
	}

	if err := graph.Connect(b, sq, out); err != nil {
		return nil, err
	}

	return b.Build()
}

func ticksPlan() (*graph.Plan, error) {
	src, err := schedule.New("* * * * *", tickLimit)
	if err != nil {
		return nil, err
	}

	b := graph.NewBuilder()

	ticks := graph.AddSource[schedule.Tick](b, "cron", src)
	format := graph.AddTransform(b, "format", graph.TransformFunc[schedule.Tick, string](
		func(_ context.Context, _ *pipeline.Context, tick schedule.Tick) (string, error) {
			return fmt.Sprintf("tick %d at %s", tick.Sequence, tick.At.Format("15:04:05")), nil
		}))
	out := graph.AddSink[string](b, "log", logsink.New[string](log.WithModule("ticks")))

	if err := graph.Connect(b, ticks, format); err != nil {
		return nil, err
	}

	if err := graph.Connect(b, format, out); err != nil {
		return nil, err
	}

	return b.Build()
}

// builtinLibrary registers the demonstration plans served out of the box.
func builtinLibrary() (*graph.Library, error) {
	library := graph.NewLibrary()

	plans := map[string]func() (*graph.Plan, error){
		"squares": squaresPlan,
		"ticks":   ticksPlan,
	}

	for id, build := range plans {
		plan, err := build()
		if err != nil {
			return nil, fmt.Errorf("failed to build plan %s: %w", id, err)
		}

		if err := library.Add(id, plan); err != nil {
			return nil, err
		}
	}

	return library, nil
}
