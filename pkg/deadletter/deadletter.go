// Package deadletter collects items that exhausted their resilience budgets.
package deadletter

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Entry is one dead-lettered item together with its failure context.
type Entry struct {
	RunID    string    `json:"run_id"`
	NodeID   string    `json:"node_id"`
	Item     any       `json:"item"`
	Error    string    `json:"error"`
	Attempts int       `json:"attempts"`
	At       time.Time `json:"at"`
}

// Sink accepts dead-lettered entries. Implementations live outside the
// engine core (log, queue, database); failures to record are reported back
// but never retried by the engine.
type Sink interface {
	Receive(ctx context.Context, entry Entry) error
}

// Memory is an in-process sink, primarily for tests and local development.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Receive(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, entry)

	return nil
}

// Entries returns a copy of everything received so far.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, len(m.entries))
	copy(out, m.entries)

	return out
}

// Logging writes each entry to a structured logger.
type Logging struct {
	logger *slog.Logger
}

func NewLogging(logger *slog.Logger) *Logging {
	return &Logging{logger: logger}
}

func (l *Logging) Receive(ctx context.Context, entry Entry) error {
	l.logger.ErrorContext(ctx, "dead-lettered item",
		"run_id", entry.RunID,
		"node_id", entry.NodeID,
		"attempts", entry.Attempts,
		"error", entry.Error,
		"item", entry.Item,
	)

	return nil
}
