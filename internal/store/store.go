package store

import (
	"context"

	"github.com/me/jobtracker/pkg/model"
)

// StateStore persists the current-job snapshot and the completed-job history.
//
// Loads never fail: a missing or malformed file yields an empty value.
// Saves return a *model.PersistenceError on failure; the caller keeps its
// in-memory state and retries on the next cycle.
type StateStore interface {
	LoadCurrent() *model.Snapshot
	LoadHistory() model.History
	SaveCurrent(snap *model.Snapshot) error
	SaveHistory(hist model.History) error
}

// Archive is an append-only sink for finished jobs.
type Archive interface {
	Append(ctx context.Context, rec *model.CompletedJobRecord) error
	Close() error
}
