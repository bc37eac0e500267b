package web

import (
	"context"
	"log/slog"
	"net/http"
	"sort"

	"github.com/fluxor-io/fluxor/pkg/deadletter"
	"github.com/fluxor-io/fluxor/pkg/engine"
	"github.com/fluxor-io/fluxor/pkg/graph"
	"github.com/fluxor-io/fluxor/pkg/observer"
	"github.com/fluxor-io/fluxor/pkg/pipeline"
	"github.com/gofiber/fiber/v3"
)

// APIHandlers serves the inspection endpoints over the plan library, the
// run recorder, and the dead letter store, and triggers runs on demand.
type APIHandlers struct {
	library  *graph.Library
	recorder *observer.Recorder
	runner   *engine.Runner
	letters  *deadletter.Memory
	runOpts  []pipeline.Option
	logger   *slog.Logger
}

func NewAPIHandlers(
	library *graph.Library,
	recorder *observer.Recorder,
	runner *engine.Runner,
	letters *deadletter.Memory,
	logger *slog.Logger,
	runOpts ...pipeline.Option,
) *APIHandlers {
	return &APIHandlers{
		library:  library,
		recorder: recorder,
		runner:   runner,
		letters:  letters,
		runOpts:  runOpts,
		logger:   logger,
	}
}

func (h *APIHandlers) GetPlans(c fiber.Ctx) error {
	ids := h.library.IDs()
	sort.Strings(ids)

	plans := make([]PlanSummary, 0, len(ids))

	for _, id := range ids {
		plan, ok := h.library.Get(id)
		if !ok {
			continue
		}

		plans = append(plans, PlanSummary{ID: id, Nodes: plan.Len()})
	}

	return c.JSON(fiber.Map{
		"plans":       plans,
		"total_count": len(plans),
	})
}

func (h *APIHandlers) GetPlan(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Plan ID is required")
	}

	plan, ok := h.library.Get(id)
	if !ok {
		return notFound(c, "Plan not found")
	}

	return c.JSON(PlanResponse{ID: id, Nodes: plan.Describe()})
}

// TriggerRun starts a run of a registered plan in the background and
// acknowledges it with the run id. Progress is observable under /runs.
func (h *APIHandlers) TriggerRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Plan ID is required")
	}

	plan, ok := h.library.Get(id)
	if !ok {
		return notFound(c, "Plan not found")
	}

	var req TriggerRunRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid request body: "+err.Error())
		}
	}

	opts := h.runOpts
	if len(req.Parameters) > 0 {
		opts = append(append([]pipeline.Option{}, opts...), pipeline.WithParameters(req.Parameters))
	}

	run := pipeline.New(opts...)

	go func() {
		// The run outlives the HTTP request that triggered it.
		if _, err := h.runner.RunPlanWith(context.Background(), plan, run); err != nil {
			h.logger.Error("triggered run failed",
				"plan_id", id,
				"run_id", run.RunID(),
				"error", err)
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(TriggerRunResponse{
		RunID:  run.RunID(),
		PlanID: id,
	})
}

func (h *APIHandlers) GetRuns(c fiber.Ctx) error {
	runs := h.recorder.Runs()

	return c.JSON(fiber.Map{
		"runs":        runs,
		"total_count": len(runs),
	})
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	report, ok := h.recorder.Run(id)
	if !ok {
		return notFound(c, "Run not found")
	}

	return c.JSON(report)
}

func (h *APIHandlers) GetDeadLetters(c fiber.Ctx) error {
	if h.letters == nil {
		return notFound(c, "Dead letter store is not configured")
	}

	entries := h.letters.Entries()

	return c.JSON(fiber.Map{
		"entries":     entries,
		"total_count": len(entries),
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"status": "healthy",
		"plans":  len(h.library.IDs()),
	})
}
