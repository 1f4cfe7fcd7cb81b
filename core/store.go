package core

import (
	"context"
	"time"
)

// RunFilter narrows FindByUser queries.
type RunFilter struct {
	// Status restricts results to runs in the given status. Empty matches
	// all statuses.
	Status RunStatus
	// Limit bounds the number of returned runs. Zero means no limit.
	Limit int
	// Offset skips the given number of runs, newest first.
	Offset int
}

// RunStore persists runs and their evolving step state, context, ledger and
// execution log. The engine saves after every state-changing event (step
// start/complete/fail, run start/pause/resume/cancel/complete) so a crash
// between events loses at most one in-flight step's progress.
//
// Implementations must be safe for concurrent use and must snapshot the run
// (Run.Clone) before serializing it, since the driving goroutine keeps
// mutating the live object. Results are ordered newest first.
type RunStore interface {
	// Save persists the current state of the run, replacing any previous
	// record with the same ID.
	Save(ctx context.Context, run *Run) error

	// FindByID loads one run. Returns ErrRunNotFound when absent.
	FindByID(ctx context.Context, runID string) (*Run, error)

	// FindByUser lists a user's runs, newest first, narrowed by filter.
	FindByUser(ctx context.Context, userID string, filter RunFilter) ([]*Run, error)

	// DeleteOlderThan removes terminal runs whose last update is older
	// than age and returns the number of removed records.
	DeleteOlderThan(ctx context.Context, age time.Duration) (int, error)
}
