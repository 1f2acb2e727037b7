// Package repository defines the persistence contracts for scheduled jobs
// and their execution log.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/biuroflow/scheduler/internal/models"
)

var (
	ErrJobNotFound = errors.New("scheduled job not found")

	// ErrDuplicateTrigger is returned when registering a second job for
	// the same trigger id.
	ErrDuplicateTrigger = errors.New("trigger already has a scheduled job")

	// ErrVersionConflict is returned when a compare-and-set update lost
	// against a concurrent administrative change.
	ErrVersionConflict = errors.New("job was modified concurrently")
)

// JobRepository is the persisted registry of scheduled jobs. Rows are
// mutated by the poller/dispatcher while it holds the distributed lock, or
// by administrative calls under version compare-and-set.
type JobRepository interface {
	Create(ctx context.Context, job *models.ScheduledJob) error
	GetByID(ctx context.Context, id string) (*models.ScheduledJob, error)
	GetByTriggerID(ctx context.Context, triggerID string) (*models.ScheduledJob, error)

	// FetchDueJobs returns active, not-running jobs with next_run_at <=
	// now, most urgent priority first, earliest next_run_at first, capped
	// at limit.
	FetchDueJobs(ctx context.Context, now time.Time, limit int) ([]models.ScheduledJob, error)

	// SetActive flips is_active under compare-and-set.
	SetActive(ctx context.Context, id string, active bool, version int64) error

	// MarkRunning durably sets is_running and last_run_at before the
	// workflow engine is invoked.
	MarkRunning(ctx context.Context, id string, lastRunAt time.Time) error

	// RecordSuccess / RecordFailure / RecordSkip finish one firing: clear
	// is_running where applicable, bump the matching counters exactly
	// once and persist the recomputed next_run_at.
	RecordSuccess(ctx context.Context, id string, nextRunAt time.Time) error
	RecordFailure(ctx context.Context, id string, nextRunAt time.Time) error
	RecordSkip(ctx context.Context, id string, nextRunAt time.Time) error

	// AddSkippedRuns bumps the skipped counter for policy-skipped
	// candidate instants discovered while advancing the schedule.
	AddSkippedRuns(ctx context.Context, id string, delta int64) error

	UpdateNextRun(ctx context.Context, id string, nextRunAt time.Time) error

	// FlagEvaluationError deactivates a job whose schedule can no longer
	// be evaluated and records why. The job drops out of due queries
	// until an operator intervenes.
	FlagEvaluationError(ctx context.Context, id string, errMsg string) error

	// ForceClearRunning is the administrative unstick action. It does not
	// stop any underlying execution.
	ForceClearRunning(ctx context.Context, id string) error

	// FetchStuckJobs lists jobs still flagged running whose last run
	// started before olderThan.
	FetchStuckJobs(ctx context.Context, olderThan time.Time) ([]models.ScheduledJob, error)

	Close() error
}
