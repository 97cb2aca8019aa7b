package model

import (
	"cmp"
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// legacyTimestampLayouts are accepted when reading files written by older
// tracker versions, which stored naive local times.
var legacyTimestampLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Timestamp is a wall-clock instant persisted as an RFC 3339 string.
type Timestamp struct {
	time.Time
}

// NewTimestamp normalizes t to UTC and strips the monotonic reading so that
// values survive a JSON round trip unchanged.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.Round(0).UTC()}
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = parsed.UTC()
		return nil
	}
	for _, layout := range legacyTimestampLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", s)
}

// JobRecord is the tracker's metadata for one job the scheduler reports as active.
type JobRecord struct {
	JobID     string     `json:"-"`
	StartTime *Timestamp `json:"start_time"`
	Directory string     `json:"directory,omitempty"`
	Filename  string     `json:"filename,omitempty"`
	Nodelist  string     `json:"nodelist"`
	State     JobState   `json:"state,omitempty"`
}

// HasOutputFile reports whether the job's output file location is known.
func (r *JobRecord) HasOutputFile() bool {
	return r.Filename != ""
}

// OutputPath joins Directory and Filename, or returns "" when the file is unknown.
func (r *JobRecord) OutputPath() string {
	if r.Filename == "" {
		return ""
	}
	return filepath.Join(r.Directory, r.Filename)
}

// Clone returns a deep copy of the record.
func (r *JobRecord) Clone() *JobRecord {
	c := *r
	if r.StartTime != nil {
		st := *r.StartTime
		c.StartTime = &st
	}
	return &c
}

// CompletedJobRecord is a JobRecord moved to History once the scheduler
// stopped reporting it.
type CompletedJobRecord struct {
	JobRecord
	EndTime Timestamp `json:"end_time"`
}

// Snapshot is the set of jobs believed active as of Timestamp.
type Snapshot struct {
	Timestamp Timestamp             `json:"timestamp"`
	Jobs      map[string]*JobRecord `json:"jobs"`
}

// NewSnapshot returns an empty snapshot stamped with ts.
func NewSnapshot(ts time.Time) *Snapshot {
	return &Snapshot{
		Timestamp: NewTimestamp(ts),
		Jobs:      make(map[string]*JobRecord),
	}
}

// IDs returns the tracked job ids in scheduler order (numeric where possible).
func (s *Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.Jobs))
	for id := range s.Jobs {
		ids = append(ids, id)
	}
	SortJobIDs(ids)
	return ids
}

// History is the append-only archive of finished jobs keyed by job id.
type History map[string]*CompletedJobRecord

// IDs returns the archived job ids in scheduler order.
func (h History) IDs() []string {
	ids := make([]string, 0, len(h))
	for id := range h {
		ids = append(ids, id)
	}
	SortJobIDs(ids)
	return ids
}

// SubmissionTask is a queued request to run ScriptName from WorkingDir.
type SubmissionTask struct {
	WorkingDir string `json:"working_dir"`
	ScriptName string `json:"script_name"`
}

// WithDefaults returns t with a blank ScriptName replaced by DefaultScriptName.
func (t SubmissionTask) WithDefaults() SubmissionTask {
	if strings.TrimSpace(t.ScriptName) == "" {
		t.ScriptName = DefaultScriptName
	}
	return t
}

// ScriptPath returns the full path of the submission script.
func (t SubmissionTask) ScriptPath() string {
	return filepath.Join(t.WorkingDir, t.ScriptName)
}

// SortJobIDs orders job ids numerically when both parse as integers and
// lexically otherwise, so "9" sorts before "10".
func SortJobIDs(ids []string) {
	slices.SortFunc(ids, compareJobIDs)
}

func compareJobIDs(a, b string) int {
	an, aerr := strconv.ParseUint(a, 10, 64)
	bn, berr := strconv.ParseUint(b, 10, 64)
	switch {
	case aerr == nil && berr == nil:
		return cmp.Compare(an, bn)
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	}
	return strings.Compare(a, b)
}
