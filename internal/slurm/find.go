package slurm

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// FindOutputFile looks for a file named like *slurm-<jobID>.out (case
// insensitive). With a directory it checks only that directory's entries;
// otherwise it walks the search root. The search stops when budget elapses;
// a timeout or no match returns the zero OutputFile.
func (a *CLIAdapter) FindOutputFile(ctx context.Context, jobID, directory string, budget time.Duration) OutputFile {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	pattern := "*" + escapeMeta(strings.ToLower(OutputFileName(jobID)))
	a.logger.Info("searching for job file", "job_id", jobID, "directory", directory)

	var (
		found OutputFile
		err   error
	)
	if directory != "" {
		found, err = searchDir(ctx, directory, pattern)
	} else {
		root := a.config.SearchRoot
		if root == "" {
			root, err = os.UserHomeDir()
			if err != nil {
				a.logger.Warn("search root unavailable", "job_id", jobID, "error", err)
				return OutputFile{}
			}
		}
		found, err = searchTree(ctx, root, pattern)
	}

	switch {
	case ctx.Err() != nil && !found.Found():
		a.logger.Warn("search for job file timed out", "job_id", jobID, "budget", budget)
	case err != nil:
		a.logger.Warn("search for job file failed", "job_id", jobID, "error", err)
	case !found.Found():
		a.logger.Debug("job file not found", "job_id", jobID)
	}
	return found
}

// searchDir checks the entries of dir without descending.
func searchDir(ctx context.Context, dir, pattern string) (OutputFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return OutputFile{}, err
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return OutputFile{}, ctx.Err()
		}
		if e.IsDir() {
			continue
		}
		if matchName(pattern, e.Name()) {
			return OutputFile{Directory: dir, Filename: e.Name()}, nil
		}
	}
	return OutputFile{}, nil
}

// searchTree walks root depth-first and returns the first match. Unreadable
// directories are skipped.
func searchTree(ctx context.Context, root, pattern string) (OutputFile, error) {
	var found OutputFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return filepath.SkipAll
		}
		if err != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !matchName(pattern, d.Name()) {
			return nil
		}
		found = OutputFile{Directory: filepath.Dir(path), Filename: d.Name()}
		return filepath.SkipAll
	})
	return found, err
}

func matchName(pattern, name string) bool {
	ok, err := doublestar.Match(pattern, strings.ToLower(name))
	return err == nil && ok
}

// escapeMeta escapes glob metacharacters so a job id such as "12_[3]" matches literally.
func escapeMeta(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '{', '}', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
