package model

import "fmt"

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrValidation   ErrorCode = "VALIDATION_ERROR"
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrRateLimited  ErrorCode = "RATE_LIMITED"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
)

// APIError is a structured error returned by the transport layer.
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// TransientError is a failed, timed-out, or unparseable call to the external
// scheduler. The cycle that hit it leaves tracked state unchanged; the next
// cycle retries.
type TransientError struct {
	Op     string // "squeue", "sbatch", ...
	Output string // captured diagnostic text, if any
	Err    error
}

func (e *TransientError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Op)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *TransientError) Unwrap() error { return e.Err }

// ConfigurationError means a queued task cannot be submitted as given.
// The task is dropped; the caller must resubmit.
type ConfigurationError struct {
	Task   SubmissionTask
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("task %s: %s", e.Task.ScriptPath(), e.Reason)
}

// PersistenceError is a failed write of the snapshot, history, or archive.
// In-memory state stays authoritative.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ProtocolError is a malformed command payload.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %v", e.Reason, e.Err)
	}
	return "protocol: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }
