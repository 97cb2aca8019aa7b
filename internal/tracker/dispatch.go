package tracker

import (
	"strings"

	"github.com/me/jobtracker/pkg/model"
)

// HandleRequest decodes a raw command and dispatches it. A malformed request
// returns a *model.ProtocolError and leaves state untouched.
func (t *Tracker) HandleRequest(body []byte) (any, error) {
	cmd, err := model.DecodeCommand(body)
	if err != nil {
		return nil, err
	}
	return t.HandleCommand(cmd), nil
}

// HandleCommand executes one client command atomically with respect to the
// reconciliation cycle.
func (t *Tracker) HandleCommand(cmd model.Command) any {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch cmd.Kind {
	case model.CommandSubmitTask:
		if cmd.Submit == nil || strings.TrimSpace(cmd.Submit.WorkingDir) == "" {
			return model.StatusResponse{Status: model.StatusInvalidRequest, Error: "submit_task requires args.working_dir"}
		}
		task := cmd.Submit.WithDefaults()
		t.queue.Enqueue(task)
		t.updateGauges()
		t.logger.Info("task queued", "working_dir", task.WorkingDir, "script_name", task.ScriptName, "queued", t.queue.Len())
		return model.StatusResponse{Status: model.StatusQueued}

	case model.CommandGetStatus:
		running := make([]string, 0, len(t.current))
		for id := range t.current {
			running = append(running, id)
		}
		model.SortJobIDs(running)
		return model.JobListResponse{
			RunningJobs:   running,
			CompletedJobs: t.history.IDs(),
		}

	case model.CommandGetQueue:
		return model.QueueResponse{
			Status:      model.StatusQueueRetrieved,
			QueuedTasks: t.queue.Tasks(),
		}

	case model.CommandGetInfo:
		return model.InfoResponse{
			Status:             model.StatusOK,
			MaxJobs:            t.config.MaxJobs,
			Interval:           t.config.Interval.Seconds(),
			RunningJobsCount:   len(t.current),
			CompletedJobsCount: len(t.history),
			QueuedTasksCount:   t.queue.Len(),
		}

	default:
		t.logger.Debug("unknown command", "command", cmd.Name)
		return model.StatusResponse{Status: model.StatusUnknownCommand}
	}
}
