package scheduler

import (
	"context"

	"github.com/me/jobtracker/internal/tracker"
)

// Scheduler drives the tracker's reconcile-and-admit cycle on a fixed interval.
type Scheduler interface {
	// Start begins the loop. Blocks until ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the loop.
	Stop() error

	// Tick runs a single cycle. Used for testing.
	Tick(ctx context.Context) error
}

// Cycler is the work a Loop repeats. *tracker.Tracker implements it.
type Cycler interface {
	Cycle(ctx context.Context) (tracker.CycleResult, error)
}
