package slurm

import (
	"fmt"
	"regexp"
	"strings"
)

// Column headers required in squeue output.
const (
	ColumnJobID    = "JOBID"
	ColumnTime     = "TIME"
	ColumnNodelist = "NODELIST(REASON)"
)

var submittedRe = regexp.MustCompile(`Submitted batch job (\d+)`)

// ParseJobID extracts the job id from sbatch's success message.
func ParseJobID(output string) (string, bool) {
	m := submittedRe.FindStringSubmatch(output)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParseSqueue parses squeue's whitespace-separated table, locating columns by
// header name. Rows with an empty TIME value are returned in skipped.
// Output without a header row is an error; a header-only table is an empty
// result.
func ParseSqueue(output string) (jobs []ActiveJob, skipped []string, err error) {
	var lines []string
	for _, l := range strings.Split(output, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return nil, nil, fmt.Errorf("empty squeue output")
	}

	header := strings.Fields(lines[0])
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	for _, col := range []string{ColumnJobID, ColumnTime, ColumnNodelist} {
		if _, ok := idx[col]; !ok {
			return nil, nil, fmt.Errorf("squeue header missing column %s", col)
		}
	}
	jobCol, timeCol, nodeCol := idx[ColumnJobID], idx[ColumnTime], idx[ColumnNodelist]
	nodeIsLast := nodeCol == len(header)-1

	jobs = make([]ActiveJob, 0, len(lines)-1)
	for _, row := range lines[1:] {
		cols := strings.Fields(row)
		if len(cols) <= jobCol {
			continue
		}
		job := ActiveJob{JobID: cols[jobCol]}
		if timeCol < len(cols) {
			job.Elapsed = cols[timeCol]
		}
		if nodeCol < len(cols) {
			if nodeIsLast {
				// Reasons such as "(ReqNodeNotAvail, Reserved for maintenance)" contain spaces.
				job.Nodelist = strings.Join(cols[nodeCol:], " ")
			} else {
				job.Nodelist = cols[nodeCol]
			}
		}
		if strings.TrimSpace(job.Elapsed) == "" {
			skipped = append(skipped, job.JobID)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, skipped, nil
}
