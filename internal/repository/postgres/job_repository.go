// Package postgres implements the repository contracts over PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/biuroflow/scheduler/internal/models"
	"github.com/biuroflow/scheduler/internal/repository"
)

const uniqueViolation = "23505"

const jobColumns = `
	id, workflow_id, trigger_id, expression, timezone,
	skip_weekends, skip_holidays, holiday_calendar_code,
	prevent_overlap, catch_up_missed, priority,
	next_run_at, last_run_at, is_running, is_active, last_error,
	total_runs, successful_runs, failed_runs, skipped_runs,
	version, created_at, updated_at`

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, job *models.ScheduledJob) error {
	job.ID = uuid.New().String()
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	job.Version = 1

	query := `
		INSERT INTO scheduled_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
		        $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`

	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.WorkflowID, job.TriggerID, job.Expression, job.Timezone,
		job.SkipPolicy.SkipWeekends, job.SkipPolicy.SkipHolidays, job.SkipPolicy.HolidayCalendarCode,
		job.ConcurrencyPolicy.PreventOverlap, job.ConcurrencyPolicy.CatchUpMissed, job.ConcurrencyPolicy.Priority,
		job.NextRunAt, job.LastRunAt, job.IsRunning, job.IsActive, job.LastError,
		job.TotalRuns, job.SuccessfulRuns, job.FailedRuns, job.SkippedRuns,
		job.Version, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", repository.ErrDuplicateTrigger, job.TriggerID)
		}
		return fmt.Errorf("insert scheduled job: %w", err)
	}
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.ScheduledJob, error) {
	query := `SELECT ` + jobColumns + ` FROM scheduled_jobs WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *JobRepository) GetByTriggerID(ctx context.Context, triggerID string) (*models.ScheduledJob, error) {
	query := `SELECT ` + jobColumns + ` FROM scheduled_jobs WHERE trigger_id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, triggerID))
}

func (r *JobRepository) FetchDueJobs(ctx context.Context, now time.Time, limit int) ([]models.ScheduledJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM scheduled_jobs
		WHERE is_active = TRUE AND is_running = FALSE AND next_run_at <= $1
		ORDER BY
			CASE priority
				WHEN 'critical' THEN 3
				WHEN 'high' THEN 2
				WHEN 'normal' THEN 1
				ELSE 0
			END DESC,
			next_run_at ASC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.ScheduledJob
	for rows.Next() {
		job, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (r *JobRepository) SetActive(ctx context.Context, id string, active bool, version int64) error {
	query := `
		UPDATE scheduled_jobs
		SET is_active = $1, last_error = NULL, version = version + 1, updated_at = now()
		WHERE id = $2 AND version = $3
	`

	res, err := r.db.ExecContext(ctx, query, active, id, version)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	if affected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return repository.ErrVersionConflict
	}
	return nil
}

func (r *JobRepository) MarkRunning(ctx context.Context, id string, lastRunAt time.Time) error {
	query := `
		UPDATE scheduled_jobs
		SET is_running = TRUE, last_run_at = $1, version = version + 1, updated_at = now()
		WHERE id = $2
	`
	return r.exec(ctx, query, "mark running", lastRunAt, id)
}

func (r *JobRepository) RecordSuccess(ctx context.Context, id string, nextRunAt time.Time) error {
	query := `
		UPDATE scheduled_jobs
		SET is_running = FALSE,
		    total_runs = total_runs + 1,
		    successful_runs = successful_runs + 1,
		    next_run_at = $1,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $2
	`
	return r.exec(ctx, query, "record success", nextRunAt, id)
}

func (r *JobRepository) RecordFailure(ctx context.Context, id string, nextRunAt time.Time) error {
	query := `
		UPDATE scheduled_jobs
		SET is_running = FALSE,
		    total_runs = total_runs + 1,
		    failed_runs = failed_runs + 1,
		    next_run_at = $1,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $2
	`
	return r.exec(ctx, query, "record failure", nextRunAt, id)
}

func (r *JobRepository) RecordSkip(ctx context.Context, id string, nextRunAt time.Time) error {
	query := `
		UPDATE scheduled_jobs
		SET skipped_runs = skipped_runs + 1,
		    next_run_at = $1,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $2
	`
	return r.exec(ctx, query, "record skip", nextRunAt, id)
}

func (r *JobRepository) AddSkippedRuns(ctx context.Context, id string, delta int64) error {
	if delta == 0 {
		return nil
	}
	query := `
		UPDATE scheduled_jobs
		SET skipped_runs = skipped_runs + $1, version = version + 1, updated_at = now()
		WHERE id = $2
	`
	return r.exec(ctx, query, "add skipped runs", delta, id)
}

func (r *JobRepository) UpdateNextRun(ctx context.Context, id string, nextRunAt time.Time) error {
	query := `
		UPDATE scheduled_jobs
		SET next_run_at = $1, version = version + 1, updated_at = now()
		WHERE id = $2
	`
	return r.exec(ctx, query, "update next run", nextRunAt, id)
}

func (r *JobRepository) FlagEvaluationError(ctx context.Context, id string, errMsg string) error {
	query := `
		UPDATE scheduled_jobs
		SET is_active = FALSE, last_error = $1, version = version + 1, updated_at = now()
		WHERE id = $2
	`
	return r.exec(ctx, query, "flag evaluation error", errMsg, id)
}

func (r *JobRepository) ForceClearRunning(ctx context.Context, id string) error {
	query := `
		UPDATE scheduled_jobs
		SET is_running = FALSE, version = version + 1, updated_at = now()
		WHERE id = $1
	`
	return r.exec(ctx, query, "force clear running", id)
}

func (r *JobRepository) FetchStuckJobs(ctx context.Context, olderThan time.Time) ([]models.ScheduledJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM scheduled_jobs
		WHERE is_running = TRUE AND last_run_at < $1
		ORDER BY last_run_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, olderThan)
	if err != nil {
		return nil, fmt.Errorf("fetch stuck jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.ScheduledJob
	for rows.Next() {
		job, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (r *JobRepository) Close() error {
	return r.db.Close()
}

func (r *JobRepository) exec(ctx context.Context, query, op string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrJobNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *JobRepository) scanOne(row *sql.Row) (*models.ScheduledJob, error) {
	job, err := r.scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrJobNotFound
	}
	return job, err
}

func (r *JobRepository) scanRow(row rowScanner) (*models.ScheduledJob, error) {
	var job models.ScheduledJob
	err := row.Scan(
		&job.ID, &job.WorkflowID, &job.TriggerID, &job.Expression, &job.Timezone,
		&job.SkipPolicy.SkipWeekends, &job.SkipPolicy.SkipHolidays, &job.SkipPolicy.HolidayCalendarCode,
		&job.ConcurrencyPolicy.PreventOverlap, &job.ConcurrencyPolicy.CatchUpMissed, &job.ConcurrencyPolicy.Priority,
		&job.NextRunAt, &job.LastRunAt, &job.IsRunning, &job.IsActive, &job.LastError,
		&job.TotalRuns, &job.SuccessfulRuns, &job.FailedRuns, &job.SkippedRuns,
		&job.Version, &job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan scheduled job: %w", err)
	}
	return &job, nil
}
