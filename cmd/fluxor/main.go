package main

import (
	"context"
	"os"

	"github.com/fluxor-io/fluxor/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	logger := log.WithModule("fluxor")

	root := &cli.Command{
		Name:                  "fluxor",
		Usage:                 "Run and inspect streaming pipelines",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Serve the inspection API over the registered plans",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to the configuration file",
						Sources: cli.EnvVars("FLUXOR_CONFIG"),
					},
					&cli.StringFlag{
						Name:    "log-level",
						Usage:   "Log level (debug, info, warn, error)",
						Value:   "",
						Sources: cli.EnvVars("LOG_LEVEL"),
					},
					&cli.BoolFlag{
						Name:    "tracing",
						Usage:   "Export spans for node and item lifecycles",
						Sources: cli.EnvVars("FLUXOR_TRACING"),
					},
				},
				Action: runServe,
			},
			{
				Name:  "bench",
				Usage: "Run a synthetic pipeline through both execution strategies",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "items",
						Usage: "Number of items to stream",
						Value: 10000,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Worker count for the parallel strategies",
						Value: 4,
					},
					&cli.StringFlag{
						Name:    "log-level",
						Usage:   "Log level (debug, info, warn, error)",
						Value:   "info",
						Sources: cli.EnvVars("LOG_LEVEL"),
					},
				},
				Action: runBench,
			},
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
