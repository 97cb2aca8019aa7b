package tracker

import (
	"context"
	"fmt"
	"os"

	"github.com/me/jobtracker/internal/metrics"
	"github.com/me/jobtracker/internal/slurm"
	"github.com/me/jobtracker/pkg/model"
)

// Queue is a FIFO of pending submission requests. It is not safe for
// concurrent use; Tracker guards it with its mutex.
type Queue struct {
	tasks []model.SubmissionTask
}

// Enqueue appends task to the back of the queue.
func (q *Queue) Enqueue(task model.SubmissionTask) {
	q.tasks = append(q.tasks, task)
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	return len(q.tasks)
}

// Tasks returns a copy of the queued tasks in order.
func (q *Queue) Tasks() []model.SubmissionTask {
	out := make([]model.SubmissionTask, len(q.tasks))
	copy(out, q.tasks)
	return out
}

func (q *Queue) pop() (model.SubmissionTask, bool) {
	if len(q.tasks) == 0 {
		return model.SubmissionTask{}, false
	}
	task := q.tasks[0]
	q.tasks[0] = model.SubmissionTask{}
	q.tasks = q.tasks[1:]
	return task, true
}

// AdmitResult summarizes one admission pass.
type AdmitResult struct {
	Submitted []string // new job ids, in submission order
	Dropped   int      // tasks removed for a missing directory or script
	Failed    int      // tasks removed after the submit command failed
	Remaining int      // tasks still queued
}

// admit pops tasks while running < maxJobs. Tasks whose directory or script
// no longer exists are dropped without counting against the limit. A failed
// submission is dropped too; it is logged and not retried.
//
// Must be called with t.mu held.
func (t *Tracker) admit(ctx context.Context, running, maxJobs int) AdmitResult {
	var res AdmitResult
	for running < maxJobs {
		task, ok := t.queue.pop()
		if !ok {
			break
		}

		if err := validateTask(task); err != nil {
			res.Dropped++
			metrics.SubmissionsTotal.WithLabelValues(metrics.ResultDropped).Inc()
			t.logger.Error("dropping queued task", "working_dir", task.WorkingDir, "script_name", task.ScriptName, "error", err)
			continue
		}

		jobID, err := t.adapter.Submit(ctx, task.WorkingDir, task.ScriptName)
		if err != nil {
			res.Failed++
			metrics.SubmissionsTotal.WithLabelValues(metrics.ResultFailed).Inc()
			t.logger.Error("submission failed", "working_dir", task.WorkingDir, "script_name", task.ScriptName, "error", err)
			continue
		}

		if _, dup := t.current[jobID]; !dup {
			if _, done := t.history[jobID]; !done {
				t.current[jobID] = &model.JobRecord{
					JobID:     jobID,
					Directory: task.WorkingDir,
					Filename:  slurm.OutputFileName(jobID),
					State:     model.JobStateDiscovered,
				}
			}
		}
		res.Submitted = append(res.Submitted, jobID)
		running++
		metrics.SubmissionsTotal.WithLabelValues(metrics.ResultSubmitted).Inc()
		t.logger.Info("job submitted", "job_id", jobID, "working_dir", task.WorkingDir, "script_name", task.ScriptName)
	}
	res.Remaining = t.queue.Len()
	return res
}

func validateTask(task model.SubmissionTask) error {
	info, err := os.Stat(task.WorkingDir)
	switch {
	case err != nil:
		return &model.ConfigurationError{Task: task, Reason: fmt.Sprintf("working directory: %v", err)}
	case !info.IsDir():
		return &model.ConfigurationError{Task: task, Reason: "working directory is not a directory"}
	}
	info, err = os.Stat(task.ScriptPath())
	switch {
	case err != nil:
		return &model.ConfigurationError{Task: task, Reason: fmt.Sprintf("script: %v", err)}
	case info.IsDir():
		return &model.ConfigurationError{Task: task, Reason: "script is a directory"}
	}
	return nil
}
