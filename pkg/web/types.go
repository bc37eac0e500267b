// Package web provides the HTTP inspection and trigger API over registered
// plans and recorded runs.
package web

import "github.com/fluxor-io/fluxor/pkg/graph"

// TriggerRunRequest is the request body for starting a run of a registered
// plan. Parameters seed the run's key/value store before the source starts.
type TriggerRunRequest struct {
	Parameters map[string]any `json:"parameters,omitempty"`
}

// TriggerRunResponse acknowledges an accepted run.
type TriggerRunResponse struct {
	RunID  string `json:"run_id"`
	PlanID string `json:"plan_id"`
}

// PlanSummary is the list view of a registered plan.
type PlanSummary struct {
	ID    string `json:"id"`
	Nodes int    `json:"nodes"`
}

// PlanResponse is the detail view of a registered plan.
type PlanResponse struct {
	ID    string                 `json:"id"`
	Nodes []graph.NodeDescriptor `json:"nodes"`
}
