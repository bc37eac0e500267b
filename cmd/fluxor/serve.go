package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/fluxor-io/fluxor/pkg/cmd"
	"github.com/fluxor-io/fluxor/pkg/config"
	"github.com/fluxor-io/fluxor/pkg/deadletter"
	"github.com/fluxor-io/fluxor/pkg/engine"
	"github.com/fluxor-io/fluxor/pkg/eventbus"
	"github.com/fluxor-io/fluxor/pkg/log"
	"github.com/fluxor-io/fluxor/pkg/observer"
	"github.com/fluxor-io/fluxor/pkg/otelhelper"
	"github.com/fluxor-io/fluxor/pkg/pipeline"
	"github.com/fluxor-io/fluxor/pkg/web"
	cli "github.com/urfave/cli/v3"
)

const shutdownTimeout = 10 * time.Second

func runServe(ctx context.Context, command *cli.Command) error {
	cfg, err := config.LoadOrDefault(command.String("config"))
	if err != nil {
		return err
	}

	if level := command.String("log-level"); level != "" {
		cfg.LogLevel = level
	}

	log.Setup(cfg.LogLevel)
	logger := log.WithModule("serve")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recorder := observer.NewRecorder(256)
	observers := []observer.Observer{recorder}

	bus, err := cmd.NewEventBus(cfg.EventBus.Kind, logger)
	if err != nil {
		return err
	}

	if bus != nil {
		defer func() {
			if err := bus.Close(); err != nil {
				logger.ErrorContext(ctx, "failed to close event bus", "error", err)
			}
		}()

		observers = append(observers, eventbus.NewPublishingObserver(bus, logger))
	}

	sink, closeSink, err := cmd.NewDeadLetterSink(ctx, cfg.DeadLetter, logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := closeSink(); err != nil {
			logger.ErrorContext(ctx, "failed to close dead letter sink", "error", err)
		}
	}()

	runOpts := []pipeline.Option{
		pipeline.WithPolicy(cfg.Policy),
	}

	if sink != nil {
		runOpts = append(runOpts, pipeline.WithDeadLetter(sink))
	}

	if command.Bool("tracing") {
		tracer, err := otelhelper.NewTracer(ctx, "fluxor")
		if err != nil {
			return err
		}

		observers = append(observers, otelhelper.NewTracingObserver(tracer))
		runOpts = append(runOpts, pipeline.WithTracer(tracer))
	}

	runOpts = append(runOpts, pipeline.WithObserver(observer.Multi(observers...)))

	// The memory sink doubles as the /deadletters data source.
	letters, _ := sink.(*deadletter.Memory)

	library, err := builtinLibrary()
	if err != nil {
		return err
	}

	runner := engine.NewRunner(engine.WithLogger(log.WithModule("engine")))
	handlers := web.NewAPIHandlers(library, recorder, runner, letters, logger, runOpts...)
	server := web.NewServer(handlers, logger)

	errCh := make(chan error, 1)

	go func() {
		errCh <- server.Start(cfg.Web.Addr)
	}()

	logger.InfoContext(ctx, "fluxor is ready",
		"addr", cfg.Web.Addr,
		"plans", len(library.IDs()),
		"event_bus", cfg.EventBus.Kind,
		"dead_letter", cfg.DeadLetter.Kind)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return nil
}
