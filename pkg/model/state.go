package model

// JobState is the tracker's view of where a scheduler job is in its lifecycle.
//
// These values are persisted in the snapshot file.
type JobState string

const (
	// JobStateDiscovered marks a job the tracker submitted itself and has not
	// yet seen in a scheduler poll.
	JobStateDiscovered JobState = "discovered"
	// JobStateRunning marks a job assigned to one or more nodes.
	JobStateRunning JobState = "running"
	// JobStatePending marks a job whose NODELIST(REASON) field holds a
	// scheduler reason such as "(Resources)" instead of a node name.
	JobStatePending JobState = "pending"
)

// String returns the string representation of the job state.
func (s JobState) String() string {
	return string(s)
}

// IsActive reports whether the scheduler has reported the job at least once.
func (s JobState) IsActive() bool {
	switch s {
	case JobStateRunning, JobStatePending:
		return true
	}
	return false
}
