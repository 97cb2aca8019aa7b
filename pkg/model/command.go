package model

import (
	"encoding/json"
	"strings"
)

// DefaultScriptName is used when submit_task omits script_name.
const DefaultScriptName = "submit.sh"

// CommandKind enumerates the requests the tracker understands.
type CommandKind int

const (
	CommandUnknown CommandKind = iota
	CommandSubmitTask
	CommandGetStatus
	CommandGetQueue
	CommandGetInfo
)

var commandNames = map[CommandKind]string{
	CommandSubmitTask: "submit_task",
	CommandGetStatus:  "get_status",
	CommandGetQueue:   "get_queue",
	CommandGetInfo:    "get_info",
}

// String returns the wire name of the command kind.
func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseCommandKind maps a wire name to its kind. Unrecognized names yield CommandUnknown.
func ParseCommandKind(name string) CommandKind {
	for k, n := range commandNames {
		if n == name {
			return k
		}
	}
	return CommandUnknown
}

// Command is a decoded request. Submit is set only for CommandSubmitTask.
type Command struct {
	Kind   CommandKind
	Name   string
	Submit *SubmissionTask
}

// NewSubmitCommand builds a submit_task command. A blank scriptName means
// DefaultScriptName.
func NewSubmitCommand(workingDir, scriptName string) Command {
	task := SubmissionTask{WorkingDir: workingDir, ScriptName: scriptName}.WithDefaults()
	return Command{
		Kind:   CommandSubmitTask,
		Name:   CommandSubmitTask.String(),
		Submit: &task,
	}
}

// NewCommand builds an argument-less command of the given kind.
func NewCommand(kind CommandKind) Command {
	return Command{Kind: kind, Name: kind.String()}
}

type commandWire struct {
	Command string          `json:"command"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// MarshalJSON encodes the command in the wire format.
func (c Command) MarshalJSON() ([]byte, error) {
	w := commandWire{Command: c.Name}
	if w.Command == "" {
		w.Command = c.Kind.String()
	}
	if c.Kind == CommandSubmitTask && c.Submit != nil {
		args, err := json.Marshal(c.Submit)
		if err != nil {
			return nil, err
		}
		w.Args = args
	}
	return json.Marshal(w)
}

// DecodeCommand parses a request body. An undecodable body or a submit_task
// without a working_dir yields a *ProtocolError. An unrecognized command name
// is not an error; it decodes to CommandUnknown.
func DecodeCommand(data []byte) (Command, error) {
	var w commandWire
	if err := json.Unmarshal(data, &w); err != nil {
		return Command{}, &ProtocolError{Reason: "invalid JSON", Err: err}
	}

	cmd := Command{Kind: ParseCommandKind(w.Command), Name: w.Command}
	if cmd.Kind != CommandSubmitTask {
		return cmd, nil
	}

	var task SubmissionTask
	if len(w.Args) > 0 && string(w.Args) != "null" {
		if err := json.Unmarshal(w.Args, &task); err != nil {
			return Command{}, &ProtocolError{Reason: "invalid submit_task args", Err: err}
		}
	}
	if strings.TrimSpace(task.WorkingDir) == "" {
		return Command{}, &ProtocolError{Reason: "submit_task requires args.working_dir"}
	}
	task = task.WithDefaults()
	cmd.Submit = &task
	return cmd, nil
}

// Response status strings.
const (
	StatusQueued         = "queued"
	StatusQueueRetrieved = "Queue retrieved"
	StatusOK             = "OK"
	StatusUnknownCommand = "Unknown command"
	StatusInvalidRequest = "invalid request"
)

// StatusResponse answers submit_task and unrecognized commands.
type StatusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// JobListResponse answers get_status.
type JobListResponse struct {
	RunningJobs   []string `json:"running_jobs"`
	CompletedJobs []string `json:"completed_jobs"`
}

// QueueResponse answers get_queue.
type QueueResponse struct {
	Status      string           `json:"status"`
	QueuedTasks []SubmissionTask `json:"queued_tasks"`
}

// InfoResponse answers get_info. Interval is in seconds.
type InfoResponse struct {
	Status             string  `json:"status"`
	MaxJobs            int     `json:"max_jobs"`
	Interval           float64 `json:"interval"`
	RunningJobsCount   int     `json:"running_jobs_count"`
	CompletedJobsCount int     `json:"completed_jobs_count"`
	QueuedTasksCount   int     `json:"queued_tasks_count"`
}
