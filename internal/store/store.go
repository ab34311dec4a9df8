// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"global-universe/internal/models"
)

// TableStore persists date-keyed tables by name.
type TableStore interface {
	// Load returns the stored table, or nil when none exists.
	Load(name string) (*models.Table, error)
	// Save atomically replaces the stored table.
	Save(name string, t *models.Table) error
	// Lock serialises load-merge-save cycles on one name. Call the returned
	// func to release.
	Lock(name string) func()
}

// RunLedger records update runs for later inspection.
type RunLedger interface {
	RecordRun(ctx context.Context, summary *models.RunSummary) error
	ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error)
	RunEntries(ctx context.Context, runID string, status models.Status) ([]models.SummaryRow, error)
	SymbolHistory(ctx context.Context, symbol string, limit int) ([]models.SummaryRow, error)

	GetLastSync(kind models.RunKind) time.Time
	SetLastSync(kind models.RunKind, t time.Time) error

	Close() error
}

// RunFilter represents filters for querying runs.
type RunFilter struct {
	Kind  models.RunKind
	Since time.Time
	Limit int
}

// RunRecord is the stored header of one run.
type RunRecord struct {
	ID         string
	Kind       models.RunKind
	StartedAt  time.Time
	FinishedAt time.Time
	Entries    int
	Updated    int
	Errors     int
}

// Duration returns how long the run took.
func (r RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
