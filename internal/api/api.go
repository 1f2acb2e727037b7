// Package api exposes the administrative HTTP surface: job registration and
// lifecycle, schedule previews, execution history and missed-execution
// handling.
package api

import (
	"context"
	"time"

	"github.com/biuroflow/scheduler/internal/models"
	"github.com/biuroflow/scheduler/internal/repository"
	"github.com/biuroflow/scheduler/internal/scheduler"
)

// SchedulerService is the slice of the scheduler the HTTP layer needs.
type SchedulerService interface {
	RegisterJob(ctx context.Context, req scheduler.RegisterJobRequest) (*models.ScheduledJob, error)
	GetJob(ctx context.Context, id string) (*models.ScheduledJob, error)
	PauseJob(ctx context.Context, id string) error
	ResumeJob(ctx context.Context, id string) error
	GetNextFireTimes(ctx context.Context, id string, count int) ([]time.Time, error)
	GetExecutionHistory(ctx context.Context, jobID string, filter repository.HistoryFilter, page, pageSize int) (*models.PaginationResult[models.ExecutionLogEntry], error)
	CheckMissedExecutions(ctx context.Context, jobID string) ([]time.Time, error)
	ResolveMissedExecutions(ctx context.Context, jobID string, instants []time.Time, strategy scheduler.Strategy) error
	TriggerNow(ctx context.Context, id string) error
	ListStuckJobs(ctx context.Context, threshold time.Duration) ([]models.ScheduledJob, error)
	ForceReleaseJob(ctx context.Context, id string) error
}

// HealthChecker reports whether the service's backing stores are reachable.
type HealthChecker func(ctx context.Context) error
