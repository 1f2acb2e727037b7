package repository

import (
	"context"
	"time"

	"github.com/biuroflow/scheduler/internal/models"
)

// HistoryFilter narrows execution-history queries. Nil fields match all.
type HistoryFilter struct {
	Status *models.ExecutionStatus
	From   *time.Time
	To     *time.Time
}

// ExecutionLogRepository is the append-only record of firing attempts. At
// most one entry exists per (job id, scheduled at); inserts for an already
// recorded instant are silently ignored, which makes missed-instant
// resolution idempotent.
type ExecutionLogRepository interface {
	// Insert appends an entry. Returns false when an entry for the same
	// (job id, scheduled at) already exists.
	Insert(ctx context.Context, entry *models.ExecutionLogEntry) (bool, error)

	// Finalize moves a running entry to its terminal status. Terminal
	// entries are never touched again.
	Finalize(ctx context.Context, id string, status models.ExecutionStatus, completedAt time.Time, executionID, errMsg *string) error

	ListByJob(ctx context.Context, jobID string, filter HistoryFilter, page, pageSize int) (*models.PaginationResult[models.ExecutionLogEntry], error)

	// ScheduledInstants returns the distinct scheduled_at values recorded
	// for a job in (from, to], regardless of status.
	ScheduledInstants(ctx context.Context, jobID string, from, to time.Time) ([]time.Time, error)

	// LastCompleted returns the most recent successfully completed entry,
	// or nil when the job never completed.
	LastCompleted(ctx context.Context, jobID string) (*models.ExecutionLogEntry, error)

	Close() error
}
