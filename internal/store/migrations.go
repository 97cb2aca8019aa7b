package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for the archive tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS completed_jobs (
		job_id      TEXT PRIMARY KEY,
		start_time  TEXT,
		end_time    TEXT NOT NULL,
		directory   TEXT NOT NULL DEFAULT '',
		filename    TEXT NOT NULL DEFAULT '',
		nodelist    TEXT NOT NULL DEFAULT '',
		state       TEXT NOT NULL DEFAULT '',
		archived_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_completed_jobs_end_time ON completed_jobs(end_time)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
