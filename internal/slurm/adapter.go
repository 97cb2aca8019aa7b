// Package slurm wraps the external batch scheduler behind a narrow interface:
// list the current user's active jobs, submit a script, and locate a job's
// output file.
package slurm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/me/jobtracker/internal/logging"
	"github.com/me/jobtracker/pkg/model"
)

// ActiveJob is one row of the scheduler's active-job listing.
type ActiveJob struct {
	JobID    string
	Elapsed  string // TIME column, e.g. "1-02:03:04"
	Nodelist string // NODELIST(REASON) column, node names or "(Reason)"
}

// OutputFile locates a job's output file. The zero value means "not found".
type OutputFile struct {
	Directory string
	Filename  string
}

// Found reports whether the file was located.
func (f OutputFile) Found() bool {
	return f.Filename != ""
}

// Adapter is the tracker's view of the scheduler.
type Adapter interface {
	// ListActiveJobs returns the current user's active jobs. A failed,
	// timed-out, or unparseable query returns a *model.TransientError.
	ListActiveJobs(ctx context.Context) ([]ActiveJob, error)

	// Submit runs the submission script with workingDir as its working
	// directory and returns the new job id.
	Submit(ctx context.Context, workingDir, scriptName string) (string, error)

	// FindOutputFile searches for jobID's output file within budget,
	// restricted to directory when it is non-empty.
	FindOutputFile(ctx context.Context, jobID, directory string, budget time.Duration) OutputFile
}

// Runner executes an external command and captures its output.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands as local OS processes.
type ExecRunner struct{}

// Run executes name with args in dir.
func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	return stdoutBuf.Bytes(), stderrBuf.Bytes(), err
}

// Config configures a CLIAdapter.
type Config struct {
	User          string // squeue -u value; empty means --me
	SqueueCommand string
	SbatchCommand string
	SearchRoot    string // root for unrestricted output-file searches; empty means $HOME
}

// CLIAdapter implements Adapter with the squeue and sbatch command-line tools.
type CLIAdapter struct {
	config Config
	runner Runner
	logger *slog.Logger
}

// Option configures optional CLIAdapter dependencies.
type Option func(*CLIAdapter)

// WithRunner replaces the process runner; used by tests.
func WithRunner(r Runner) Option {
	return func(a *CLIAdapter) {
		a.runner = r
	}
}

// NewCLIAdapter creates a CLIAdapter.
func NewCLIAdapter(cfg Config, logger *slog.Logger, opts ...Option) *CLIAdapter {
	if cfg.SqueueCommand == "" {
		cfg.SqueueCommand = "squeue"
	}
	if cfg.SbatchCommand == "" {
		cfg.SbatchCommand = "sbatch"
	}
	a := &CLIAdapter{
		config: cfg,
		runner: ExecRunner{},
		logger: logging.OrDiscard(logger).With("component", "slurm"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ListActiveJobs runs squeue for the configured user and parses its table.
func (a *CLIAdapter) ListActiveJobs(ctx context.Context) ([]ActiveJob, error) {
	args := []string{"--me"}
	if a.config.User != "" {
		args = []string{"-u", a.config.User}
	}

	stdout, stderr, err := a.runner.Run(ctx, "", a.config.SqueueCommand, args...)
	if err != nil {
		return nil, &model.TransientError{Op: "squeue", Output: diagnostic(stdout, stderr), Err: err}
	}

	jobs, skipped, err := ParseSqueue(string(stdout))
	if err != nil {
		return nil, &model.TransientError{Op: "squeue", Output: strings.TrimSpace(string(stdout)), Err: err}
	}
	for _, id := range skipped {
		a.logger.Warn("missing time for job, skipping", "job_id", id)
	}
	if len(jobs) == 0 {
		a.logger.Warn("no jobs found in squeue output")
	}
	return jobs, nil
}

// Submit runs sbatch scriptName inside workingDir.
func (a *CLIAdapter) Submit(ctx context.Context, workingDir, scriptName string) (string, error) {
	stdout, stderr, err := a.runner.Run(ctx, workingDir, a.config.SbatchCommand, scriptName)
	if err != nil {
		return "", &model.TransientError{Op: "sbatch", Output: diagnostic(stdout, stderr), Err: err}
	}

	out := strings.TrimSpace(string(stdout))
	jobID, ok := ParseJobID(out)
	if !ok {
		return "", &model.TransientError{Op: "sbatch", Output: diagnostic(stdout, stderr), Err: errUnexpectedOutput}
	}
	a.logger.Info("submitted", "job_id", jobID, "working_dir", workingDir, "script_name", scriptName, "message", out)
	return jobID, nil
}

var errUnexpectedOutput = errors.New("unexpected output")

// diagnostic returns the most useful captured text: stderr when present,
// otherwise stdout.
func diagnostic(stdout, stderr []byte) string {
	if s := strings.TrimSpace(string(stderr)); s != "" {
		return s
	}
	return strings.TrimSpace(string(stdout))
}

// OutputFileName is the scheduler's default output file name for jobID.
func OutputFileName(jobID string) string {
	return fmt.Sprintf("slurm-%s.out", jobID)
}
