package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/me/jobtracker/internal/logging"
)

// Config holds scheduler configuration.
type Config struct {
	Interval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Interval: 5 * time.Second}
}

// Loop implements the Scheduler interface. It runs one cycle immediately,
// then sleeps Interval between the end of one cycle and the start of the next.
type Loop struct {
	cycler   Cycler
	config   Config
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewLoop creates a new scheduler loop.
func NewLoop(c Cycler, cfg Config, logger *slog.Logger) *Loop {
	return &Loop{
		cycler: c,
		config: cfg,
		logger: logging.OrDiscard(logger).With("component", "scheduler"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the loop. Blocks until ctx is cancelled or Stop is called.
// A cycle in progress always runs to completion.
func (l *Loop) Start(ctx context.Context) error {
	defer close(l.doneCh)
	l.logger.Info("scheduler started", "interval", l.config.Interval)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("scheduler stopping (context cancelled)")
			return ctx.Err()
		case <-l.stopCh:
			l.logger.Info("scheduler stopping (stop called)")
			return nil
		case <-timer.C:
			if err := l.Tick(ctx); err != nil {
				l.logger.Warn("tick error", "error", err)
			}
			timer.Reset(l.config.Interval)
		}
	}
}

// Stop gracefully shuts down the loop and waits for the current cycle to finish.
func (l *Loop) Stop() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	<-l.doneCh
	return nil
}

// Tick runs a single cycle. Cancellation of ctx does not interrupt it.
func (l *Loop) Tick(ctx context.Context) error {
	res, err := l.cycler.Cycle(context.WithoutCancel(ctx))
	if err != nil {
		return fmt.Errorf("cycle: %w", err)
	}
	l.logger.Debug("cycle complete",
		"discovered", len(res.Discovered),
		"finished", len(res.Finished),
		"submitted", len(res.Admit.Submitted),
		"queued", res.Admit.Remaining,
	)
	return nil
}
