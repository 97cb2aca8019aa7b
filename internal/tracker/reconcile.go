package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/me/jobtracker/internal/metrics"
	"github.com/me/jobtracker/internal/slurm"
	"github.com/me/jobtracker/pkg/model"
)

// Diff lists the job ids that changed between two snapshots.
type Diff struct {
	Discovered []string // in the new snapshot only
	Finished   []string // in the previous snapshot only
}

// Compare returns the ids present only in next (discovered) and only in prev
// (finished), each in job-id order.
func Compare(prev, next map[string]*model.JobRecord) Diff {
	var d Diff
	for id := range next {
		if _, ok := prev[id]; !ok {
			d.Discovered = append(d.Discovered, id)
		}
	}
	for id := range prev {
		if _, ok := next[id]; !ok {
			d.Finished = append(d.Finished, id)
		}
	}
	model.SortJobIDs(d.Discovered)
	model.SortJobIDs(d.Finished)
	return d
}

// provisionalGrace is how many polls a job we submitted may be missing from
// the listing before it is treated as finished.
const provisionalGrace = 1

// reconcile polls the scheduler, builds the new snapshot, archives finished
// jobs, and persists both files. It returns the number of active jobs: the
// distinct ids the scheduler reported plus submitted jobs it has not listed
// yet. On a listing failure nothing changes.
//
// Must be called with t.mu held.
func (t *Tracker) reconcile(ctx context.Context, now time.Time) (Diff, int, error) {
	jobs, err := t.adapter.ListActiveJobs(ctx)
	if err != nil {
		return Diff{}, 0, err
	}

	snap := model.NewSnapshot(now)
	reported := make(map[string]struct{}, len(jobs))
	for _, job := range jobs {
		reported[job.JobID] = struct{}{}
		if _, done := t.history[job.JobID]; done {
			t.logger.Warn("scheduler reports an archived job, not tracking it again", "job_id", job.JobID)
			continue
		}
		delete(t.missed, job.JobID)
		snap.Jobs[job.JobID] = t.observe(ctx, job, t.current[job.JobID], snap.Timestamp.Time)
	}

	diff := Compare(t.current, snap.Jobs)
	carried := 0
	finished := diff.Finished[:0]
	for _, id := range diff.Finished {
		prev := t.current[id]
		if !prev.State.IsActive() && t.missed[id] < provisionalGrace {
			// Submitted by us but not yet listed; squeue can lag sbatch.
			t.missed[id]++
			snap.Jobs[id] = prev
			carried++
			t.logger.Info("submitted job not yet listed by scheduler", "job_id", id, "missed_polls", t.missed[id])
			continue
		}
		delete(t.missed, id)
		finished = append(finished, id)
	}
	diff.Finished = finished
	for _, id := range diff.Finished {
		t.finish(ctx, t.current[id], snap.Timestamp)
	}
	for _, id := range diff.Discovered {
		rec := snap.Jobs[id]
		metrics.JobTransitionsTotal.WithLabelValues(metrics.TransitionDiscovered).Inc()
		t.logger.Info("new job detected", "job_id", id, "state", rec.State, "nodelist", rec.Nodelist)
	}

	t.logRunning(snap)

	t.current = snap.Jobs
	t.persist(snap)
	return diff, len(reported) + carried, nil
}

// observe builds the new record for one reported job, carrying forward what
// was learned in earlier cycles.
func (t *Tracker) observe(ctx context.Context, job slurm.ActiveJob, prev *model.JobRecord, now time.Time) *model.JobRecord {
	rec := &model.JobRecord{
		JobID:    job.JobID,
		Nodelist: job.Nodelist,
	}

	// The first observed start time is kept for the life of the job.
	if prev != nil && prev.StartTime != nil {
		st := *prev.StartTime
		rec.StartTime = &st
	} else {
		elapsed, err := slurm.ParseElapsed(job.Elapsed)
		if err != nil {
			t.logger.Error("unparseable elapsed time, treating as zero", "job_id", job.JobID, "elapsed", job.Elapsed, "error", err)
		}
		if elapsed > 0 {
			st := model.NewTimestamp(now.Add(-elapsed))
			rec.StartTime = &st
		}
	}

	if prev != nil {
		rec.Directory = prev.Directory
		rec.Filename = prev.Filename
	}

	if slurm.IsReasonState(job.Nodelist) {
		rec.State = model.JobStatePending
		return rec
	}
	rec.State = model.JobStateRunning
	if rec.HasOutputFile() {
		return rec
	}

	out := t.adapter.FindOutputFile(ctx, job.JobID, rec.Directory, t.config.SearchBudget)
	if out.Found() {
		metrics.OutputSearchesTotal.WithLabelValues(metrics.ResultFound).Inc()
		rec.Directory, rec.Filename = out.Directory, out.Filename
		t.logger.Debug("output file located", "job_id", job.JobID, "path", rec.OutputPath())
	} else {
		metrics.OutputSearchesTotal.WithLabelValues(metrics.ResultNotFound).Inc()
	}
	return rec
}

// logRunning writes the per-cycle summary of tracked jobs.
func (t *Tracker) logRunning(snap *model.Snapshot) {
	ids := snap.IDs()
	if len(ids) == 0 {
		t.logger.Info("no jobs running")
		return
	}
	t.logger.Info("jobs now running", "count", len(ids))
	for _, id := range ids {
		rec := snap.Jobs[id]
		start := "unknown"
		if rec.StartTime != nil {
			start = rec.StartTime.Format(time.RFC3339)
		}
		output := rec.OutputPath()
		if output == "" {
			output = "not found"
		}
		t.logger.Info("running job", "job_id", id, "state", rec.State, "start_time", start, "output", output, "nodelist", rec.Nodelist)
	}
}

// finish moves rec into history with the given end time.
func (t *Tracker) finish(ctx context.Context, rec *model.JobRecord, end model.Timestamp) {
	done := &model.CompletedJobRecord{JobRecord: *rec.Clone(), EndTime: end}
	t.history[rec.JobID] = done
	metrics.JobTransitionsTotal.WithLabelValues(metrics.TransitionFinished).Inc()
	t.logger.Info("job finished", "job_id", rec.JobID, "output", rec.OutputPath())

	if t.archive == nil {
		return
	}
	if err := t.archive.Append(ctx, done); err != nil {
		metrics.PersistenceErrorsTotal.Inc()
		t.logger.Error("archive append failed", "job_id", rec.JobID, "error", err)
	}
}

// persist writes the snapshot, then the history. Failures are counted and
// left for the next cycle to retry; the store has already logged them.
func (t *Tracker) persist(snap *model.Snapshot) {
	var perr *model.PersistenceError
	if err := t.store.SaveCurrent(snap); err != nil {
		if !errors.As(err, &perr) {
			t.logger.Error("save snapshot failed", "error", err)
		}
		metrics.PersistenceErrorsTotal.Inc()
	}
	if err := t.store.SaveHistory(t.history); err != nil {
		if !errors.As(err, &perr) {
			t.logger.Error("save history failed", "error", err)
		}
		metrics.PersistenceErrorsTotal.Inc()
	}
}
