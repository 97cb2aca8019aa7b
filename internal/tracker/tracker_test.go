package tracker

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/jobtracker/internal/logging"
	"github.com/me/jobtracker/internal/slurm"
	"github.com/me/jobtracker/internal/store"
	"github.com/me/jobtracker/pkg/model"
)

type fakeAdapter struct {
	mu        sync.Mutex
	jobs      []slurm.ActiveJob
	listErr   error
	nextIDs   []string
	submitErr error
	files     map[string]slurm.OutputFile
	submits   []model.SubmissionTask
	searches  []string
}

func (f *fakeAdapter) ListActiveJobs(context.Context) ([]slurm.ActiveJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]slurm.ActiveJob(nil), f.jobs...), nil
}

func (f *fakeAdapter) Submit(_ context.Context, dir, script string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, model.SubmissionTask{WorkingDir: dir, ScriptName: script})
	if f.submitErr != nil {
		return "", f.submitErr
	}
	id := f.nextIDs[0]
	f.nextIDs = f.nextIDs[1:]
	return id, nil
}

func (f *fakeAdapter) FindOutputFile(_ context.Context, jobID, _ string, _ time.Duration) slurm.OutputFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, jobID)
	return f.files[jobID]
}

type fakeArchive struct {
	appended []string
}

func (a *fakeArchive) Append(_ context.Context, rec *model.CompletedJobRecord) error {
	a.appended = append(a.appended, rec.JobID)
	return nil
}

func (a *fakeArchive) Close() error { return nil }

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }
func running(id, elapsed, nodes string) slurm.ActiveJob {
	return slurm.ActiveJob{JobID: id, Elapsed: elapsed, Nodelist: nodes}
}

type harness struct {
	tr      *Tracker
	adapter *fakeAdapter
	store   *store.JSONStore
	clock   *clock
	dir     string
}

func newHarness(t *testing.T, maxJobs int, opts ...Option) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		adapter: &fakeAdapter{files: map[string]slurm.OutputFile{}},
		store:   store.NewJSONStore(filepath.Join(dir, "current.json"), filepath.Join(dir, "history.json"), nil),
		clock:   &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		dir:     dir,
	}
	cfg := Config{MaxJobs: maxJobs, Interval: 5 * time.Second, SearchBudget: time.Second}
	opts = append([]Option{WithClock(h.clock.now)}, opts...)
	h.tr = New(cfg, h.adapter, h.store, nil, opts...)
	return h
}

func (h *harness) cycle(t *testing.T) CycleResult {
	t.Helper()
	res, err := h.tr.Cycle(context.Background())
	require.NoError(t, err)
	return res
}

func newTaskDir(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, script), []byte("#!/bin/sh\n"), 0o755))
	return dir
}

func TestCompare(t *testing.T) {
	prev := map[string]*model.JobRecord{"A": {}, "B": {}}
	next := map[string]*model.JobRecord{"B": {}, "C": {}}

	d := Compare(prev, next)
	assert.Equal(t, []string{"C"}, d.Discovered)
	assert.Equal(t, []string{"A"}, d.Finished)

	d = Compare(nil, nil)
	assert.Empty(t, d.Discovered)
	assert.Empty(t, d.Finished)
}

func TestCycle_StartTimeIsSticky(t *testing.T) {
	h := newHarness(t, 10)
	h.adapter.jobs = []slurm.ActiveJob{running("100", "10:00", "node01")}
	t0 := h.clock.t

	h.cycle(t)
	rec := h.tr.current["100"]
	require.NotNil(t, rec.StartTime)
	assert.True(t, rec.StartTime.Equal(t0.Add(-10*time.Minute)))

	// A different elapsed reading must not move the recorded start.
	h.clock.advance(5 * time.Minute)
	h.adapter.jobs = []slurm.ActiveJob{running("100", "1:00:00", "node01")}
	h.cycle(t)

	rec = h.tr.current["100"]
	require.NotNil(t, rec.StartTime)
	assert.True(t, rec.StartTime.Equal(t0.Add(-10*time.Minute)))
}

func TestCycle_ZeroElapsedLeavesStartUnset(t *testing.T) {
	h := newHarness(t, 10)
	h.adapter.jobs = []slurm.ActiveJob{running("7", "0:00", "(Priority)")}
	h.cycle(t)
	assert.Nil(t, h.tr.current["7"].StartTime)

	h.clock.advance(time.Minute)
	h.adapter.jobs = []slurm.ActiveJob{running("7", "0:30", "node02")}
	h.cycle(t)
	rec := h.tr.current["7"]
	require.NotNil(t, rec.StartTime)
	assert.True(t, rec.StartTime.Equal(h.clock.t.Add(-30*time.Second)))
	assert.Equal(t, model.JobStateRunning, rec.State)
}

func TestCycle_FinishedAndDiscovered(t *testing.T) {
	archive := &fakeArchive{}
	h := newHarness(t, 10, WithArchive(archive))
	h.adapter.jobs = []slurm.ActiveJob{running("A", "1:00", "n1"), running("B", "2:00", "n2")}
	h.cycle(t)

	h.clock.advance(5 * time.Second)
	h.adapter.jobs = []slurm.ActiveJob{running("B", "2:05", "n2"), running("C", "0:01", "n3")}
	res := h.cycle(t)

	assert.Equal(t, []string{"A"}, res.Finished)
	assert.Equal(t, []string{"C"}, res.Discovered)
	assert.Equal(t, []string{"A"}, archive.appended)

	done, ok := h.tr.history["A"]
	require.True(t, ok)
	assert.True(t, done.EndTime.Equal(h.clock.t))
	assert.Equal(t, "n1", done.Nodelist)

	assert.ElementsMatch(t, []string{"B", "C"}, keys(h.tr.current))
	for id := range h.tr.current {
		_, inHistory := h.tr.history[id]
		assert.False(t, inHistory, "job %s in both current and history", id)
	}

	// Both files reflect the cycle.
	snap := h.store.LoadCurrent()
	assert.ElementsMatch(t, []string{"B", "C"}, snap.IDs())
	assert.True(t, snap.Timestamp.Equal(h.clock.t))
	assert.Equal(t, []string{"A"}, h.store.LoadHistory().IDs())
}

func TestCycle_ListFailureChangesNothing(t *testing.T) {
	h := newHarness(t, 10)
	h.adapter.jobs = []slurm.ActiveJob{running("1", "1:00", "n1")}
	h.cycle(t)

	h.adapter.listErr = &model.TransientError{Op: "squeue", Err: errors.New("timeout")}
	_, err := h.tr.Cycle(context.Background())

	var terr *model.TransientError
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, h.tr.current, "1")
	assert.Empty(t, h.tr.history)
	assert.Equal(t, "squeue failed: timeout", h.tr.Stats().LastError)
}

func TestCycle_PendingJobSkipsSearch(t *testing.T) {
	h := newHarness(t, 10)
	h.adapter.jobs = []slurm.ActiveJob{running("5", "0:00", "(Resources)")}
	h.cycle(t)

	assert.Empty(t, h.adapter.searches)
	assert.Equal(t, model.JobStatePending, h.tr.current["5"].State)
}

func TestCycle_OutputFileCachedOnceFound(t *testing.T) {
	h := newHarness(t, 10)
	h.adapter.jobs = []slurm.ActiveJob{running("9", "1:00", "n1")}

	h.cycle(t)
	assert.Equal(t, []string{"9"}, h.adapter.searches)
	assert.False(t, h.tr.current["9"].HasOutputFile())

	// Not found is retried on the next cycle.
	h.adapter.files["9"] = slurm.OutputFile{Directory: "/scratch/run", Filename: "slurm-9.out"}
	h.cycle(t)
	assert.Equal(t, []string{"9", "9"}, h.adapter.searches)
	assert.Equal(t, "/scratch/run/slurm-9.out", h.tr.current["9"].OutputPath())

	// Found is never searched again.
	h.cycle(t)
	assert.Len(t, h.adapter.searches, 2)
	assert.Equal(t, "/scratch/run/slurm-9.out", h.tr.current["9"].OutputPath())
}

func TestCycle_ArchivedJobNotTrackedAgain(t *testing.T) {
	h := newHarness(t, 10)
	h.adapter.jobs = []slurm.ActiveJob{running("3", "1:00", "n1")}
	h.cycle(t)
	h.adapter.jobs = nil
	h.cycle(t)
	require.Contains(t, h.tr.history, "3")

	h.adapter.jobs = []slurm.ActiveJob{running("3", "1:10", "n1")}
	h.cycle(t)
	assert.NotContains(t, h.tr.current, "3")
	assert.Contains(t, h.tr.history, "3")
}

func TestAdmit_RespectsMaxJobs(t *testing.T) {
	h := newHarness(t, 2)
	h.adapter.nextIDs = []string{"101", "102", "103"}
	dirs := make([]string, 3)
	for i := range dirs {
		dirs[i] = newTaskDir(t, "submit.sh")
		h.tr.HandleCommand(model.NewSubmitCommand(dirs[i], ""))
	}

	res := h.cycle(t)
	assert.Equal(t, []string{"101", "102"}, res.Admit.Submitted)
	assert.Equal(t, 1, res.Admit.Remaining)
	require.Len(t, h.adapter.submits, 2)
	assert.Equal(t, dirs[0], h.adapter.submits[0].WorkingDir)
	assert.Equal(t, "submit.sh", h.adapter.submits[0].ScriptName)

	rec := h.tr.current["101"]
	require.NotNil(t, rec)
	assert.Equal(t, model.JobStateDiscovered, rec.State)
	assert.Equal(t, dirs[0], rec.Directory)
	assert.Equal(t, "slurm-101.out", rec.Filename)

	q := h.tr.HandleCommand(model.NewCommand(model.CommandGetQueue)).(model.QueueResponse)
	require.Len(t, q.QueuedTasks, 1)
	assert.Equal(t, dirs[2], q.QueuedTasks[0].WorkingDir)
}

func TestHandleCommand_BlankScriptNameDefaults(t *testing.T) {
	h := newHarness(t, 1)
	h.adapter.nextIDs = []string{"77"}
	dir := newTaskDir(t, model.DefaultScriptName)

	got := h.tr.HandleCommand(model.Command{
		Kind:   model.CommandSubmitTask,
		Name:   "submit_task",
		Submit: &model.SubmissionTask{WorkingDir: dir},
	})
	assert.Equal(t, model.StatusResponse{Status: model.StatusQueued}, got)
	require.Len(t, h.tr.queue.Tasks(), 1)
	assert.Equal(t, model.DefaultScriptName, h.tr.queue.Tasks()[0].ScriptName)

	res := h.cycle(t)
	assert.Equal(t, []string{"77"}, res.Admit.Submitted)
	assert.Zero(t, res.Admit.Dropped)
	require.Len(t, h.adapter.submits, 1)
	assert.Equal(t, model.DefaultScriptName, h.adapter.submits[0].ScriptName)
}

func TestHandleCommand_SubmitWithoutWorkingDir(t *testing.T) {
	h := newHarness(t, 1)
	got := h.tr.HandleCommand(model.Command{
		Kind:   model.CommandSubmitTask,
		Name:   "submit_task",
		Submit: &model.SubmissionTask{ScriptName: "run.sh"},
	})
	assert.Equal(t, model.StatusInvalidRequest, got.(model.StatusResponse).Status)
	assert.Zero(t, h.tr.Stats().Queued)
}

func TestCycle_SubmittedJobSurvivesMissedPoll(t *testing.T) {
	h := newHarness(t, 5)
	h.adapter.nextIDs = []string{"500"}
	h.tr.HandleCommand(model.NewSubmitCommand(newTaskDir(t, "submit.sh"), ""))

	res := h.cycle(t)
	require.Equal(t, []string{"500"}, res.Admit.Submitted)

	// squeue has not caught up with sbatch yet.
	h.clock.advance(5 * time.Second)
	res = h.cycle(t)
	assert.Empty(t, res.Finished)
	assert.Contains(t, h.tr.current, "500")
	assert.NotContains(t, h.tr.history, "500")

	h.adapter.jobs = []slurm.ActiveJob{running("500", "00:05", "node01")}
	for i := 0; i < 2; i++ {
		h.clock.advance(5 * time.Second)
		h.cycle(t)
	}

	status := h.tr.HandleCommand(model.NewCommand(model.CommandGetStatus)).(model.JobListResponse)
	assert.Equal(t, []string{"500"}, status.RunningJobs)
	assert.Empty(t, status.CompletedJobs)
	rec := h.tr.current["500"]
	assert.Equal(t, model.JobStateRunning, rec.State)
	assert.Equal(t, "slurm-500.out", rec.Filename)
}

func TestCycle_SubmittedJobArchivedAfterGrace(t *testing.T) {
	h := newHarness(t, 5)
	h.adapter.nextIDs = []string{"600"}
	h.tr.HandleCommand(model.NewSubmitCommand(newTaskDir(t, "submit.sh"), ""))
	h.cycle(t)

	h.cycle(t)
	require.Contains(t, h.tr.current, "600")

	res := h.cycle(t)
	assert.Equal(t, []string{"600"}, res.Finished)
	assert.NotContains(t, h.tr.current, "600")
	assert.Contains(t, h.tr.history, "600")
}

func TestAdmit_UnlistedSubmissionsHoldSlots(t *testing.T) {
	h := newHarness(t, 1)
	h.adapter.nextIDs = []string{"700", "701"}
	h.tr.HandleCommand(model.NewSubmitCommand(newTaskDir(t, "submit.sh"), ""))
	h.tr.HandleCommand(model.NewSubmitCommand(newTaskDir(t, "submit.sh"), ""))

	res := h.cycle(t)
	assert.Equal(t, []string{"700"}, res.Admit.Submitted)

	res = h.cycle(t)
	assert.Empty(t, res.Admit.Submitted)
	assert.Equal(t, 1, res.Admit.Remaining)
}

func TestAdmit_UsesReportedRunningCount(t *testing.T) {
	h := newHarness(t, 2)
	h.adapter.jobs = []slurm.ActiveJob{running("1", "1:00", "n1"), running("2", "1:00", "n2")}
	h.adapter.nextIDs = []string{"3"}
	h.tr.HandleCommand(model.NewSubmitCommand(newTaskDir(t, "job.sh"), "job.sh"))

	res := h.cycle(t)
	assert.Empty(t, res.Admit.Submitted)
	assert.Equal(t, 1, res.Admit.Remaining)

	h.adapter.jobs = h.adapter.jobs[:1]
	res = h.cycle(t)
	assert.Equal(t, []string{"3"}, res.Admit.Submitted)
	assert.Equal(t, 0, res.Admit.Remaining)
}

func TestAdmit_DropsInvalidTasksWithoutUsingSlots(t *testing.T) {
	h := newHarness(t, 1)
	h.adapter.nextIDs = []string{"55"}
	good := newTaskDir(t, "submit.sh")
	h.tr.HandleCommand(model.NewSubmitCommand(filepath.Join(t.TempDir(), "gone"), "submit.sh"))
	h.tr.HandleCommand(model.NewSubmitCommand(good, "missing.sh"))
	h.tr.HandleCommand(model.NewSubmitCommand(good, "submit.sh"))

	res := h.cycle(t)
	assert.Equal(t, 2, res.Admit.Dropped)
	assert.Equal(t, []string{"55"}, res.Admit.Submitted)
	assert.Equal(t, 0, res.Admit.Remaining)
	assert.Len(t, h.adapter.submits, 1)
}

func TestAdmit_DroppedTaskLogsError(t *testing.T) {
	h := newHarness(t, 1)
	var buf bytes.Buffer
	h.tr.logger = logging.NewLoggerWithWriter(slog.LevelError, "text", &buf)
	h.tr.HandleCommand(model.NewSubmitCommand(filepath.Join(t.TempDir(), "gone"), ""))

	res := h.cycle(t)
	assert.Equal(t, 1, res.Admit.Dropped)
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "dropping queued task")
}

func TestAdmit_SubmitFailureDropsTask(t *testing.T) {
	h := newHarness(t, 5)
	h.adapter.submitErr = &model.TransientError{Op: "sbatch", Err: errors.New("exit status 1")}
	h.tr.HandleCommand(model.NewSubmitCommand(newTaskDir(t, "submit.sh"), ""))

	res := h.cycle(t)
	assert.Equal(t, 1, res.Admit.Failed)
	assert.Equal(t, 0, res.Admit.Remaining)
	assert.Empty(t, h.tr.current)
}

func TestAdmit_ZeroMaxJobsAdmitsNothing(t *testing.T) {
	h := newHarness(t, 0)
	h.tr.HandleCommand(model.NewSubmitCommand(newTaskDir(t, "submit.sh"), ""))
	res := h.cycle(t)
	assert.Empty(t, res.Admit.Submitted)
	assert.Equal(t, 1, res.Admit.Remaining)
}

func TestHandleCommand(t *testing.T) {
	h := newHarness(t, 4)
	h.adapter.jobs = []slurm.ActiveJob{running("10", "1:00", "n1"), running("9", "1:00", "n1")}
	h.cycle(t)
	h.adapter.jobs = h.adapter.jobs[1:]
	h.cycle(t)

	got := h.tr.HandleCommand(model.NewSubmitCommand("/work/a", "run.sh"))
	assert.Equal(t, model.StatusResponse{Status: model.StatusQueued}, got)

	status := h.tr.HandleCommand(model.NewCommand(model.CommandGetStatus)).(model.JobListResponse)
	assert.Equal(t, []string{"9"}, status.RunningJobs)
	assert.Equal(t, []string{"10"}, status.CompletedJobs)

	queue := h.tr.HandleCommand(model.NewCommand(model.CommandGetQueue)).(model.QueueResponse)
	assert.Equal(t, model.StatusQueueRetrieved, queue.Status)
	assert.Equal(t, []model.SubmissionTask{{WorkingDir: "/work/a", ScriptName: "run.sh"}}, queue.QueuedTasks)

	info := h.tr.HandleCommand(model.NewCommand(model.CommandGetInfo)).(model.InfoResponse)
	assert.Equal(t, model.InfoResponse{
		Status:             model.StatusOK,
		MaxJobs:            4,
		Interval:           5,
		RunningJobsCount:   1,
		CompletedJobsCount: 1,
		QueuedTasksCount:   1,
	}, info)

	unknown := h.tr.HandleCommand(model.Command{Kind: model.CommandUnknown, Name: "reboot"})
	assert.Equal(t, model.StatusResponse{Status: model.StatusUnknownCommand}, unknown)
}

func TestHandleRequest(t *testing.T) {
	h := newHarness(t, 4)

	resp, err := h.tr.HandleRequest([]byte(`{"command":"submit_task","args":{"working_dir":"/w"}}`))
	require.NoError(t, err)
	assert.Equal(t, model.StatusResponse{Status: model.StatusQueued}, resp)
	assert.Equal(t, "submit.sh", h.tr.queue.Tasks()[0].ScriptName)

	_, err = h.tr.HandleRequest([]byte(`{not json`))
	var perr *model.ProtocolError
	assert.ErrorAs(t, err, &perr)

	_, err = h.tr.HandleRequest([]byte(`{"command":"submit_task","args":{}}`))
	assert.ErrorAs(t, err, &perr)
	assert.Equal(t, 1, h.tr.Stats().Queued)
}

func TestNew_LoadsPersistedState(t *testing.T) {
	h := newHarness(t, 10)
	h.adapter.jobs = []slurm.ActiveJob{running("1", "1:00", "n1"), running("2", "1:00", "n2")}
	h.cycle(t)
	h.adapter.jobs = h.adapter.jobs[1:]
	h.cycle(t)

	restarted := New(Config{MaxJobs: 10}, h.adapter, h.store, nil)
	s := restarted.Stats()
	assert.Equal(t, 1, s.Running)
	assert.Equal(t, 1, s.Completed)
	assert.Contains(t, restarted.current, "2")
	assert.Equal(t, "2", restarted.current["2"].JobID)
}

func TestNew_DropsSnapshotEntriesAlreadyInHistory(t *testing.T) {
	dir := t.TempDir()
	st := store.NewJSONStore(filepath.Join(dir, "c.json"), filepath.Join(dir, "h.json"), nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	snap := model.NewSnapshot(now)
	snap.Jobs["1"] = &model.JobRecord{JobID: "1", Nodelist: "n1"}
	snap.Jobs["2"] = &model.JobRecord{JobID: "2", Nodelist: "n2"}
	require.NoError(t, st.SaveCurrent(snap))
	require.NoError(t, st.SaveHistory(model.History{
		"1": {JobRecord: model.JobRecord{JobID: "1"}, EndTime: model.NewTimestamp(now)},
	}))

	tr := New(DefaultConfig(), &fakeAdapter{}, st, nil)
	assert.Equal(t, []string{"2"}, keys(tr.current))
	assert.Contains(t, tr.history, "1")
}

func TestConcurrentCommandsDuringCycles(t *testing.T) {
	h := newHarness(t, 100)
	h.adapter.nextIDs = make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		h.adapter.nextIDs = append(h.adapter.nextIDs, strconv.Itoa(1000+i))
	}
	dir := newTaskDir(t, "submit.sh")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.tr.HandleCommand(model.NewSubmitCommand(dir, ""))
			h.tr.HandleCommand(model.NewCommand(model.CommandGetInfo))
		}()
	}
	for i := 0; i < 5; i++ {
		_, _ = h.tr.Cycle(context.Background())
	}
	wg.Wait()
	_, _ = h.tr.Cycle(context.Background())

	assert.Len(t, h.adapter.submits, 50)
	assert.Equal(t, 0, h.tr.Stats().Queued)
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	model.SortJobIDs(out)
	return out
}
