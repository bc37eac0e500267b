package web

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

// Server hosts the inspection API.
type Server struct {
	handlers *APIHandlers
	logger   *slog.Logger
	app      *fiber.App
}

func NewServer(handlers *APIHandlers, logger *slog.Logger) *Server {
	return &Server{handlers: handlers, logger: logger}
}

func (s *Server) App() *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Fluxor")
	})

	p := app.Group("/plans")
	p.Get("/", s.handlers.GetPlans)
	p.Get("/:id", s.handlers.GetPlan)
	p.Post("/:id/runs", s.handlers.TriggerRun)

	r := app.Group("/runs")
	r.Get("/", s.handlers.GetRuns)
	r.Get("/:id", s.handlers.GetRun)

	app.Get("/deadletters", s.handlers.GetDeadLetters)
	app.Get("/health", s.handlers.HealthCheck)

	return app
}

// Start listens on addr and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start(addr string) error {
	s.app = s.App()

	s.logger.Info("starting inspection API", "addr", addr)

	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.app == nil {
		return nil
	}

	return s.app.ShutdownWithContext(ctx)
}
