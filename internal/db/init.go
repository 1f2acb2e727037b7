// Package db owns schema initialization for the scheduler's tables.
package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Init creates the scheduler tables when they do not exist yet. Callers run
// it under the distributed lock so concurrent replicas do not race the DDL.
func Init(ctx context.Context, db *sql.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS scheduled_jobs (
		id TEXT PRIMARY KEY,
		workflow_id TEXT NOT NULL,
		trigger_id TEXT NOT NULL UNIQUE,
		expression TEXT NOT NULL,
		timezone TEXT NOT NULL,
		skip_weekends BOOLEAN NOT NULL DEFAULT FALSE,
		skip_holidays BOOLEAN NOT NULL DEFAULT FALSE,
		holiday_calendar_code TEXT NOT NULL DEFAULT '',
		prevent_overlap BOOLEAN NOT NULL DEFAULT TRUE,
		catch_up_missed BOOLEAN NOT NULL DEFAULT FALSE,
		priority TEXT NOT NULL DEFAULT 'normal',
		next_run_at TIMESTAMPTZ NOT NULL,
		last_run_at TIMESTAMPTZ,
		is_running BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_error TEXT,
		total_runs BIGINT NOT NULL DEFAULT 0,
		successful_runs BIGINT NOT NULL DEFAULT 0,
		failed_runs BIGINT NOT NULL DEFAULT 0,
		skipped_runs BIGINT NOT NULL DEFAULT 0,
		version BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_scheduled_jobs_due
		ON scheduled_jobs (next_run_at)
		WHERE is_active AND NOT is_running`,

	`CREATE TABLE IF NOT EXISTS scheduled_execution_log (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL REFERENCES scheduled_jobs (id),
		execution_id TEXT,
		scheduled_at TIMESTAMPTZ NOT NULL,
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		status TEXT NOT NULL,
		skip_reason TEXT,
		error_message TEXT,
		triggered_by TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (job_id, scheduled_at)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_scheduled_execution_log_job_status
		ON scheduled_execution_log (job_id, status)`,

	`CREATE TABLE IF NOT EXISTS holiday_calendar (
		calendar_code TEXT NOT NULL,
		date DATE NOT NULL,
		name TEXT NOT NULL,
		PRIMARY KEY (calendar_code, date)
	)`,
}
