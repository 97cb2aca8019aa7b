// Package tracker owns the tracker's mutable state: the current-job map, the
// completed-job history, and the submission queue. Every mutation happens
// under one mutex held for a full cycle or a full command.
package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/me/jobtracker/internal/logging"
	"github.com/me/jobtracker/internal/metrics"
	"github.com/me/jobtracker/internal/slurm"
	"github.com/me/jobtracker/internal/store"
	"github.com/me/jobtracker/pkg/model"
)

// Config holds tracker configuration.
type Config struct {
	MaxJobs      int
	Interval     time.Duration // reported by get_info; the loop owns the timing
	SearchBudget time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxJobs:      10,
		Interval:     5 * time.Second,
		SearchBudget: 10 * time.Second,
	}
}

// Tracker reconciles scheduler state against the persisted snapshot and
// admits queued submissions.
type Tracker struct {
	mu sync.Mutex

	current     map[string]*model.JobRecord
	history     model.History
	missed      map[string]int // polls each provisional record has gone unlisted
	queue       Queue
	lastCycle   time.Time
	cycles      uint64
	lastListErr error

	adapter slurm.Adapter
	store   store.StateStore
	archive store.Archive
	config  Config
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures optional Tracker dependencies.
type Option func(*Tracker)

// WithArchive mirrors finished jobs into a.
func WithArchive(a store.Archive) Option {
	return func(t *Tracker) {
		t.archive = a
	}
}

// WithClock replaces time.Now; used by tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// New creates a Tracker and loads persisted state from st.
func New(cfg Config, adapter slurm.Adapter, st store.StateStore, logger *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		adapter: adapter,
		store:   st,
		config:  cfg,
		logger:  logging.OrDiscard(logger).With("component", "tracker"),
		missed:  make(map[string]int),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	snap := st.LoadCurrent()
	t.current = snap.Jobs
	t.history = st.LoadHistory()

	// A job id is in exactly one of current and history.
	for id := range t.current {
		if _, done := t.history[id]; done {
			t.logger.Warn("job in both snapshot and history, keeping history", "job_id", id)
			delete(t.current, id)
		}
	}

	t.updateGauges()
	return t
}

// CycleResult summarizes one Cycle.
type CycleResult struct {
	Timestamp  time.Time
	Discovered []string
	Finished   []string
	Admit      AdmitResult
}

// Cycle runs one reconciliation followed by admission, holding the lock for
// both. A failed active-job listing skips reconciliation for this cycle and
// is returned; admission still runs against the last known running count.
func (t *Tracker) Cycle(ctx context.Context) (CycleResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := time.Now()
	defer func() {
		metrics.CyclesTotal.Inc()
		metrics.CycleDuration.Observe(time.Since(start).Seconds())
		t.updateGauges()
	}()

	now := t.now()
	res := CycleResult{Timestamp: now}

	running := len(t.current)
	diff, active, err := t.reconcile(ctx, now)
	t.lastListErr = err
	if err != nil {
		metrics.CycleFailuresTotal.Inc()
	} else {
		res.Discovered, res.Finished = diff.Discovered, diff.Finished
		running = active
	}

	res.Admit = t.admit(ctx, running, t.config.MaxJobs)
	if res.Admit.Remaining > 0 {
		t.logger.Info("tasks queued, waiting for job slots to free up", "queued", res.Admit.Remaining)
	}

	t.lastCycle = now
	t.cycles++
	return res, err
}

// Stats is a point-in-time summary used by health reporting.
type Stats struct {
	Running   int
	Completed int
	Queued    int
	Cycles    uint64
	LastCycle time.Time
	LastError string
}

// Stats returns current counts.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Stats{
		Running:   len(t.current),
		Completed: len(t.history),
		Queued:    t.queue.Len(),
		Cycles:    t.cycles,
		LastCycle: t.lastCycle,
	}
	if t.lastListErr != nil {
		s.LastError = t.lastListErr.Error()
	}
	return s
}

// updateGauges must be called with t.mu held.
func (t *Tracker) updateGauges() {
	metrics.RunningJobs.Set(float64(len(t.current)))
	metrics.CompletedJobs.Set(float64(len(t.history)))
	metrics.QueuedTasks.Set(float64(t.queue.Len()))
}
