package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/biuroflow/scheduler/internal/models"
	"github.com/biuroflow/scheduler/internal/repository"
)

const logColumns = `
	id, job_id, execution_id, scheduled_at, started_at, completed_at,
	status, skip_reason, error_message, triggered_by, created_at`

type ExecutionLogRepository struct {
	db *sql.DB
}

func NewExecutionLogRepository(db *sql.DB) *ExecutionLogRepository {
	return &ExecutionLogRepository{db: db}
}

func (r *ExecutionLogRepository) Insert(ctx context.Context, entry *models.ExecutionLogEntry) (bool, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO scheduled_execution_log (` + logColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (job_id, scheduled_at) DO NOTHING
	`

	res, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.JobID, entry.ExecutionID, entry.ScheduledAt,
		entry.StartedAt, entry.CompletedAt, entry.Status,
		entry.SkipReason, entry.ErrorMessage, entry.TriggeredBy, entry.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert execution log entry: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert execution log entry: %w", err)
	}
	return affected == 1, nil
}

func (r *ExecutionLogRepository) Finalize(ctx context.Context, id string, status models.ExecutionStatus, completedAt time.Time, executionID, errMsg *string) error {
	// Terminal entries are immutable: only a running entry may move.
	query := `
		UPDATE scheduled_execution_log
		SET status = $1, completed_at = $2,
		    execution_id = COALESCE($3, execution_id),
		    error_message = $4
		WHERE id = $5 AND status = $6
	`

	res, err := r.db.ExecContext(ctx, query, status, completedAt, executionID, errMsg, id, models.StatusRunning)
	if err != nil {
		return fmt.Errorf("finalize execution log entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize execution log entry: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("finalize execution log entry: %w", repository.ErrJobNotFound)
	}
	return nil
}

func (r *ExecutionLogRepository) ListByJob(ctx context.Context, jobID string, filter repository.HistoryFilter, page, pageSize int) (*models.PaginationResult[models.ExecutionLogEntry], error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize

	where := "job_id = $1"
	args := []any{jobID}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where += fmt.Sprintf(" AND scheduled_at >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where += fmt.Sprintf(" AND scheduled_at <= $%d", len(args))
	}

	var totalItems int
	countQuery := `SELECT COUNT(*) FROM scheduled_execution_log WHERE ` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalItems); err != nil {
		return nil, fmt.Errorf("count execution log entries: %w", err)
	}

	selectQuery := `SELECT ` + logColumns + `
		FROM scheduled_execution_log
		WHERE ` + where + fmt.Sprintf(`
		ORDER BY scheduled_at DESC
		LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, pageSize, offset)

	rows, err := r.db.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("list execution log entries: %w", err)
	}
	defer rows.Close()

	var entries []models.ExecutionLogEntry
	for rows.Next() {
		var e models.ExecutionLogEntry
		if err := rows.Scan(
			&e.ID, &e.JobID, &e.ExecutionID, &e.ScheduledAt, &e.StartedAt, &e.CompletedAt,
			&e.Status, &e.SkipReason, &e.ErrorMessage, &e.TriggeredBy, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan execution log entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	totalPages := int(math.Ceil(float64(totalItems) / float64(pageSize)))
	return &models.PaginationResult[models.ExecutionLogEntry]{
		Items:           entries,
		TotalItems:      totalItems,
		Page:            page,
		PageSize:        pageSize,
		TotalPages:      totalPages,
		HasNextPage:     page < totalPages,
		HasPreviousPage: page > 1,
	}, nil
}

func (r *ExecutionLogRepository) ScheduledInstants(ctx context.Context, jobID string, from, to time.Time) ([]time.Time, error) {
	query := `
		SELECT scheduled_at FROM scheduled_execution_log
		WHERE job_id = $1 AND scheduled_at > $2 AND scheduled_at <= $3
		ORDER BY scheduled_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, jobID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list scheduled instants: %w", err)
	}
	defer rows.Close()

	var instants []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan scheduled instant: %w", err)
		}
		instants = append(instants, t)
	}
	return instants, rows.Err()
}

func (r *ExecutionLogRepository) LastCompleted(ctx context.Context, jobID string) (*models.ExecutionLogEntry, error) {
	query := `
		SELECT ` + logColumns + `
		FROM scheduled_execution_log
		WHERE job_id = $1 AND status = $2
		ORDER BY scheduled_at DESC
		LIMIT 1
	`

	var e models.ExecutionLogEntry
	err := r.db.QueryRowContext(ctx, query, jobID, models.StatusCompleted).Scan(
		&e.ID, &e.JobID, &e.ExecutionID, &e.ScheduledAt, &e.StartedAt, &e.CompletedAt,
		&e.Status, &e.SkipReason, &e.ErrorMessage, &e.TriggeredBy, &e.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last completed entry: %w", err)
	}
	return &e, nil
}

func (r *ExecutionLogRepository) Close() error {
	return r.db.Close()
}
