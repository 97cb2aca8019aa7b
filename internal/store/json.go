package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/me/jobtracker/internal/logging"
	"github.com/me/jobtracker/pkg/model"
)

// JSONStore implements StateStore with two indented JSON files.
type JSONStore struct {
	currentPath string
	historyPath string
	logger      *slog.Logger
}

// NewJSONStore creates a store for the given snapshot and history paths.
func NewJSONStore(currentPath, historyPath string, logger *slog.Logger) *JSONStore {
	return &JSONStore{
		currentPath: currentPath,
		historyPath: historyPath,
		logger:      logging.OrDiscard(logger).With("component", "store"),
	}
}

// LoadCurrent reads the snapshot file. Record JobIDs are filled from the map keys.
func (s *JSONStore) LoadCurrent() *model.Snapshot {
	var snap model.Snapshot
	if !s.readJSON(s.currentPath, "current job data", &snap) {
		return model.NewSnapshot(time.Now())
	}
	if snap.Jobs == nil {
		snap.Jobs = make(map[string]*model.JobRecord)
	}
	for id, rec := range snap.Jobs {
		if rec == nil {
			delete(snap.Jobs, id)
			continue
		}
		rec.JobID = id
	}
	s.logger.Info("loaded current job data", "path", s.currentPath, "jobs", len(snap.Jobs))
	return &snap
}

// LoadHistory reads the history file.
func (s *JSONStore) LoadHistory() model.History {
	var hist model.History
	if !s.readJSON(s.historyPath, "job history", &hist) || hist == nil {
		return model.History{}
	}
	for id, rec := range hist {
		if rec == nil {
			delete(hist, id)
			continue
		}
		rec.JobID = id
	}
	s.logger.Info("loaded job history", "path", s.historyPath, "jobs", len(hist))
	return hist
}

// SaveCurrent overwrites the snapshot file.
func (s *JSONStore) SaveCurrent(snap *model.Snapshot) error {
	if err := writeJSON(s.currentPath, snap); err != nil {
		s.logger.Error("save current job data", "path", s.currentPath, "error", err)
		return &model.PersistenceError{Path: s.currentPath, Err: err}
	}
	s.logger.Debug("saved current job data", "path", s.currentPath, "jobs", len(snap.Jobs))
	return nil
}

// SaveHistory overwrites the history file.
func (s *JSONStore) SaveHistory(hist model.History) error {
	if hist == nil {
		hist = model.History{}
	}
	if err := writeJSON(s.historyPath, hist); err != nil {
		s.logger.Error("save job history", "path", s.historyPath, "error", err)
		return &model.PersistenceError{Path: s.historyPath, Err: err}
	}
	s.logger.Debug("saved job history", "path", s.historyPath, "jobs", len(hist))
	return nil
}

// readJSON decodes path into v. It returns false, after logging, when the
// file is missing, empty, or malformed.
func (s *JSONStore) readJSON(path, what string, v any) bool {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("no existing "+what+" found", "path", path)
		return false
	}
	if err != nil {
		s.logger.Warn("read "+what, "path", path, "error", err)
		return false
	}
	if len(bytes.TrimSpace(b)) == 0 {
		s.logger.Warn(what+" file is empty", "path", path)
		return false
	}
	if err := json.Unmarshal(b, v); err != nil {
		s.logger.Warn("malformed "+what+", starting empty", "path", path, "error", err)
		return false
	}
	return true
}

// writeJSON writes v through a temp file in the target directory and renames
// it into place.
func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	b = append(b, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
