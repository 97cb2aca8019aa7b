package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/jobtracker/internal/logging"
	"github.com/me/jobtracker/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteArchive mirrors History into a SQLite table. Rows are only ever
// inserted; a job id already archived is left untouched.
type SQLiteArchive struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteArchive opens (or creates) a SQLite database at dbPath.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteArchive(dbPath string, logger *slog.Logger) (*SQLiteArchive, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}

	return &SQLiteArchive{
		db:     db,
		logger: logging.OrDiscard(logger).With("component", "archive"),
	}, nil
}

// Close closes the underlying database connection.
func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}

// Migrate creates all required tables and indexes.
func (a *SQLiteArchive) Migrate(ctx context.Context) error {
	a.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, a.db)
}

// Append inserts rec unless its job id is already archived.
func (a *SQLiteArchive) Append(ctx context.Context, rec *model.CompletedJobRecord) error {
	a.logger.Debug("sql", "op", "insert", "table", "completed_jobs", "job_id", rec.JobID)

	var start any
	if rec.StartTime != nil && !rec.StartTime.IsZero() {
		start = rec.StartTime.UTC().Format(time.RFC3339Nano)
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO completed_jobs (job_id, start_time, end_time, directory, filename, nodelist, state, archived_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.JobID, start, rec.EndTime.UTC().Format(time.RFC3339Nano),
		rec.Directory, rec.Filename, rec.Nodelist, string(rec.State),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return &model.PersistenceError{Path: "completed_jobs", Err: err}
	}
	return nil
}
