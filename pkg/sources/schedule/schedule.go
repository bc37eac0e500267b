// Package schedule provides a cron-driven source emitting one item per tick.
package schedule

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fluxor-io/fluxor/pkg/pipeline"
	"github.com/robfig/cron/v3"
)

// Tick is the item a schedule source emits.
type Tick struct {
	At       time.Time `json:"at"`
	Sequence int       `json:"sequence"`
}

// Source blocks until the next cron boundary and emits a Tick. A MaxTicks
// of zero streams forever; the run then ends through cancellation.
type Source struct {
	schedule cron.Schedule
	maxTicks int
	emitted  int
	now      func() time.Time
}

// New parses a standard five-field cron expression.
func New(cronExpr string, maxTicks int) (*Source, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	return &Source{schedule: schedule, maxTicks: maxTicks, now: time.Now}, nil
}

func (s *Source) Next(ctx context.Context, _ *pipeline.Context) (Tick, error) {
	if s.maxTicks > 0 && s.emitted >= s.maxTicks {
		return Tick{}, io.EOF
	}

	at := s.schedule.Next(s.now())

	timer := time.NewTimer(time.Until(at))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return Tick{}, ctx.Err()
	case <-timer.C:
	}

	s.emitted++

	return Tick{At: at, Sequence: s.emitted}, nil
}
