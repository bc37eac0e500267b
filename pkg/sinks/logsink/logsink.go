// Package logsink provides a sink writing each consumed item to the
// structured log.
package logsink

import (
	"context"
	"log/slog"

	"github.com/fluxor-io/fluxor/pkg/pipeline"
)

type Sink[T any] struct {
	logger *slog.Logger
	level  slog.Level
}

func New[T any](logger *slog.Logger) *Sink[T] {
	if logger == nil {
		logger = slog.Default()
	}

	return &Sink[T]{logger: logger.With("module", "logsink"), level: slog.LevelInfo}
}

func (s *Sink[T]) Consume(ctx context.Context, run *pipeline.Context, item T) error {
	s.logger.Log(ctx, s.level, "item consumed", "run_id", run.RunID(), "item", item)

	return nil
}
