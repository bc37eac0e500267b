package observer

import (
	"context"
	"sync"
	"time"
)

// NodeStats aggregates per-node counters for one run.
type NodeStats struct {
	NodeID       string     `json:"node_id"`
	Status       NodeStatus `json:"status"`
	Processed    int        `json:"processed"`
	Failed       int        `json:"failed"`
	DeadLettered int        `json:"dead_lettered"`
	Restarts     int        `json:"restarts"`
	LastError    string     `json:"last_error,omitempty"`
}

// RunReport is the recorded view of one pipeline run.
type RunReport struct {
	RunID      string                `json:"run_id"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at,omitempty"`
	Nodes      map[string]*NodeStats `json:"nodes"`
}

func (r *RunReport) clone() RunReport {
	nodes := make(map[string]*NodeStats, len(r.Nodes))
	for id, stats := range r.Nodes {
		s := *stats
		nodes[id] = &s
	}

	return RunReport{
		RunID:      r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Nodes:      nodes,
	}
}

// Recorder keeps in-memory reports for the most recent runs. It feeds the
// web inspector and tests.
type Recorder struct {
	mu    sync.Mutex
	runs  map[string]*RunReport
	order []string
	cap   int
}

// NewRecorder creates a recorder retaining up to capacity runs.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 64
	}

	return &Recorder{
		runs: make(map[string]*RunReport),
		cap:  capacity,
	}
}

func (r *Recorder) report(runID string) *RunReport {
	report, ok := r.runs[runID]
	if !ok {
		report = &RunReport{
			RunID:     runID,
			StartedAt: time.Now(),
			Nodes:     make(map[string]*NodeStats),
		}
		r.runs[runID] = report
		r.order = append(r.order, runID)

		if len(r.order) > r.cap {
			evicted := r.order[0]
			r.order = r.order[1:]
			delete(r.runs, evicted)
		}
	}

	return report
}

func (r *Recorder) stats(runID, nodeID string) *NodeStats {
	report := r.report(runID)

	stats, ok := report.Nodes[nodeID]
	if !ok {
		stats = &NodeStats{NodeID: nodeID, Status: NodeStatusRunning}
		report.Nodes[nodeID] = stats
	}

	return stats
}

func (r *Recorder) NodeStarted(_ context.Context, e NodeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats(e.RunID, e.NodeID).Status = NodeStatusRunning
}

func (r *Recorder) NodeFinished(_ context.Context, e NodeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := r.stats(e.RunID, e.NodeID)
	stats.Status = e.Status

	if e.Err != nil {
		stats.LastError = e.Err.Error()
	}

	r.report(e.RunID).FinishedAt = time.Now()
}

func (r *Recorder) NodeRestarted(_ context.Context, e NodeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := r.stats(e.RunID, e.NodeID)
	stats.Restarts = e.Restarts

	if e.Err != nil {
		stats.LastError = e.Err.Error()
	}
}

func (r *Recorder) ItemProcessed(_ context.Context, e ItemEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats(e.RunID, e.NodeID).Processed++
}

func (r *Recorder) ItemFailed(_ context.Context, e ItemEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := r.stats(e.RunID, e.NodeID)
	stats.Failed++

	if e.Err != nil {
		stats.LastError = e.Err.Error()
	}
}

func (r *Recorder) ItemDeadLettered(_ context.Context, e ItemEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats(e.RunID, e.NodeID).DeadLettered++
}

func (r *Recorder) CircuitStateChanged(context.Context, CircuitEvent) {}

// Runs returns copies of all retained reports, oldest first.
func (r *Recorder) Runs() []RunReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	reports := make([]RunReport, 0, len(r.order))
	for _, id := range r.order {
		reports = append(reports, r.runs[id].clone())
	}

	return reports
}

// Run returns a copy of the report for the given run id.
func (r *Recorder) Run(runID string) (RunReport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	report, ok := r.runs[runID]
	if !ok {
		return RunReport{}, false
	}

	return report.clone(), true
}
