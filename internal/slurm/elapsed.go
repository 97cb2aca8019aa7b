package slurm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseElapsed parses a squeue TIME value: D-HH:MM:SS, HH:MM:SS, MM:SS, or SS.
func ParseElapsed(text string) (time.Duration, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, fmt.Errorf("empty elapsed time")
	}

	var days int
	if dayPart, rest, ok := strings.Cut(s, "-"); ok {
		d, err := parseField(dayPart)
		if err != nil {
			return 0, fmt.Errorf("elapsed time %q: days: %w", text, err)
		}
		days = d
		s = rest
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("elapsed time %q: too many fields", text)
	}
	fields := make([]int, len(parts))
	for i, p := range parts {
		v, err := parseField(p)
		if err != nil {
			return 0, fmt.Errorf("elapsed time %q: %w", text, err)
		}
		fields[i] = v
	}

	var h, m, sec int
	switch len(fields) {
	case 3:
		h, m, sec = fields[0], fields[1], fields[2]
	case 2:
		m, sec = fields[0], fields[1]
	case 1:
		sec = fields[0]
	}

	var total int64
	for _, part := range []struct{ n, unit int64 }{
		{int64(days), 86400}, {int64(h), 3600}, {int64(m), 60}, {int64(sec), 1},
	} {
		if part.n > (maxElapsedSeconds-total)/part.unit {
			return 0, fmt.Errorf("elapsed time %q: out of range", text)
		}
		total += part.n * part.unit
	}
	return time.Duration(total) * time.Second, nil
}

// maxElapsedSeconds is the largest elapsed time a time.Duration can hold.
const maxElapsedSeconds = math.MaxInt64 / int64(time.Second)

func parseField(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative value %q", s)
	}
	return v, nil
}

// ElapsedToSeconds is ParseElapsed in whole seconds; unparseable input yields 0.
func ElapsedToSeconds(text string) int {
	d, err := ParseElapsed(text)
	if err != nil {
		return 0
	}
	return int(d / time.Second)
}

// IsReasonState reports whether a NODELIST(REASON) value is a pending reason
// rather than an assigned node list: empty, or wrapped in parentheses.
func IsReasonState(field string) bool {
	f := strings.TrimSpace(field)
	return f == "" || (strings.HasPrefix(f, "(") && strings.HasSuffix(f, ")"))
}
