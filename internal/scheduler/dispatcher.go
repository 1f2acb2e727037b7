package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/biuroflow/scheduler/internal/clock"
	"github.com/biuroflow/scheduler/internal/executor"
	"github.com/biuroflow/scheduler/internal/logger"
	"github.com/biuroflow/scheduler/internal/models"
	"github.com/biuroflow/scheduler/internal/repository"
)

// Dispatcher hands due jobs to the workflow engine and records every
// outcome. A firing is attempted at most once: the unique
// (job id, scheduled at) log entry is written before the engine is invoked,
// so a duplicate dispatch of the same instant aborts without executing.
type Dispatcher struct {
	jobs     repository.JobRepository
	history  repository.ExecutionLogRepository
	engine   executor.WorkflowExecutor
	skip     *SkipPolicyEvaluator
	clock    clock.Clock
	log      logger.Logger
}

func NewDispatcher(jobs repository.JobRepository, history repository.ExecutionLogRepository, engine executor.WorkflowExecutor, skip *SkipPolicyEvaluator, clk clock.Clock, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		jobs:    jobs,
		history: history,
		engine:  engine,
		skip:    skip,
		clock:   clk,
		log:     log,
	}
}

// Dispatch processes one due job from a poll cycle: overlap prevention,
// skip policy, execution, then schedule advancement. The scheduler never
// retries a failed firing — the next scheduled instant is the retry
// boundary.
func (d *Dispatcher) Dispatch(ctx context.Context, job *models.ScheduledJob) error {
	scheduledAt := job.NextRunAt

	if job.ConcurrencyPolicy.PreventOverlap && job.IsRunning {
		return d.skipFiring(ctx, job, scheduledAt, models.SkipReasonOverlap)
	}

	shouldSkip, reason, err := d.skip.ShouldSkip(ctx, scheduledAt, job.SkipPolicy, job.Timezone)
	if err != nil {
		// Transient lookup failure; the job stays due and is retried
		// next cycle.
		return fmt.Errorf("evaluate skip policy for job %s: %w", job.ID, err)
	}
	if shouldSkip {
		return d.skipFiring(ctx, job, scheduledAt, reason)
	}

	if err := d.Execute(ctx, job, scheduledAt, models.TriggeredByScheduler); err != nil {
		return err
	}
	return d.advance(ctx, job, scheduledAt, terminalOutcomeNone)
}

// Execute performs the invocation steps shared by scheduled, manual and
// catch-up firings: durably mark the job running, append the running log
// entry, invoke the engine and finalize. Catch-up and manual firings do not
// advance the schedule; the caller owns that.
func (d *Dispatcher) Execute(ctx context.Context, job *models.ScheduledJob, scheduledAt time.Time, triggeredBy string) error {
	now := d.clock.Now()
	entry := &models.ExecutionLogEntry{
		JobID:       job.ID,
		ScheduledAt: scheduledAt,
		StartedAt:   &now,
		Status:      models.StatusRunning,
		TriggeredBy: triggeredBy,
	}

	inserted, err := d.history.Insert(ctx, entry)
	if err != nil {
		return fmt.Errorf("record running entry for job %s: %w", job.ID, err)
	}
	if !inserted {
		// This instant was already attempted. At-most-once wins over
		// a duplicate firing.
		d.log.Warn("firing already recorded, not executing",
			logger.String("job_id", job.ID),
			logger.Time("scheduled_at", scheduledAt),
		)
		return nil
	}

	if err := d.jobs.MarkRunning(ctx, job.ID, now); err != nil {
		return fmt.Errorf("mark job %s running: %w", job.ID, err)
	}

	handle, execErr := d.engine.Execute(ctx, job.WorkflowID, executor.TriggerContext{
		JobID:       job.ID,
		ScheduledAt: scheduledAt,
		TriggeredBy: triggeredBy,
	})

	completedAt := d.clock.Now()
	if execErr != nil {
		msg := execErr.Error()
		if err := d.history.Finalize(ctx, entry.ID, models.StatusFailed, completedAt, nil, &msg); err != nil {
			d.log.Error("failed to finalize failed entry", logger.String("job_id", job.ID), logger.Error(err))
		}
		if err := d.jobs.RecordFailure(ctx, job.ID, job.NextRunAt); err != nil {
			return fmt.Errorf("record failure for job %s: %w", job.ID, err)
		}
		d.log.Warn("workflow execution failed",
			logger.String("job_id", job.ID),
			logger.String("workflow_id", job.WorkflowID),
			logger.String("error", msg),
		)
		return nil
	}

	var executionID *string
	if handle != nil {
		executionID = &handle.ExecutionID
	}
	if err := d.history.Finalize(ctx, entry.ID, models.StatusCompleted, completedAt, executionID, nil); err != nil {
		d.log.Error("failed to finalize completed entry", logger.String("job_id", job.ID), logger.Error(err))
	}
	if err := d.jobs.RecordSuccess(ctx, job.ID, job.NextRunAt); err != nil {
		return fmt.Errorf("record success for job %s: %w", job.ID, err)
	}

	d.log.Info("workflow execution completed",
		logger.String("job_id", job.ID),
		logger.String("workflow_id", job.WorkflowID),
		logger.Duration("duration", completedAt.Sub(now)),
	)
	return nil
}

// skipFiring records a skipped attempt for the due instant and moves the
// schedule past it.
func (d *Dispatcher) skipFiring(ctx context.Context, job *models.ScheduledJob, scheduledAt time.Time, reason string) error {
	entry := &models.ExecutionLogEntry{
		JobID:       job.ID,
		ScheduledAt: scheduledAt,
		Status:      models.StatusSkipped,
		SkipReason:  &reason,
		TriggeredBy: models.TriggeredByScheduler,
	}
	if _, err := d.history.Insert(ctx, entry); err != nil {
		return fmt.Errorf("record skipped entry for job %s: %w", job.ID, err)
	}

	d.log.Info("firing skipped",
		logger.String("job_id", job.ID),
		logger.Time("scheduled_at", scheduledAt),
		logger.String("reason", reason),
	)
	return d.advance(ctx, job, scheduledAt, terminalOutcomeSkip)
}

type terminalOutcome int

const (
	// terminalOutcomeNone: counters were already settled (success or
	// failure path); advancement only moves next_run_at.
	terminalOutcomeNone terminalOutcome = iota
	// terminalOutcomeSkip: the due instant itself was skipped and its
	// counter increment rides along with the schedule update.
	terminalOutcomeSkip
)

// advance walks the cron schedule strictly after `from` until an instant
// satisfies the skip policy, appending a skipped log entry for every
// rejected candidate on the way, then persists the new next_run_at. The
// stored next_run_at therefore never lands on a skipped date while the log
// still shows why each candidate was passed over.
func (d *Dispatcher) advance(ctx context.Context, job *models.ScheduledJob, from time.Time, outcome terminalOutcome) error {
	next, skipped, err := d.skip.walkSchedule(ctx, job, from)
	if err != nil {
		// Lookahead exhausted (or the expression stopped yielding
		// instants): flag the job and take it out of due queries
		// until an operator intervenes.
		msg := err.Error()
		if flagErr := d.jobs.FlagEvaluationError(ctx, job.ID, msg); flagErr != nil {
			return fmt.Errorf("flag evaluation error for job %s: %w", job.ID, flagErr)
		}
		d.log.Error("job deactivated: schedule evaluation failed",
			logger.String("job_id", job.ID),
			logger.String("error", msg),
		)
		return nil
	}

	var newlySkipped int64
	for _, cand := range skipped {
		reason := cand.reason
		entry := &models.ExecutionLogEntry{
			JobID:       job.ID,
			ScheduledAt: cand.at,
			Status:      models.StatusSkipped,
			SkipReason:  &reason,
			TriggeredBy: models.TriggeredByScheduler,
		}
		inserted, err := d.history.Insert(ctx, entry)
		if err != nil {
			return fmt.Errorf("record skipped candidate for job %s: %w", job.ID, err)
		}
		if inserted {
			newlySkipped++
		}
	}

	if outcome == terminalOutcomeSkip {
		if err := d.jobs.RecordSkip(ctx, job.ID, next); err != nil {
			return fmt.Errorf("record skip for job %s: %w", job.ID, err)
		}
	} else {
		if err := d.jobs.UpdateNextRun(ctx, job.ID, next); err != nil {
			return fmt.Errorf("update next run for job %s: %w", job.ID, err)
		}
	}
	if err := d.jobs.AddSkippedRuns(ctx, job.ID, newlySkipped); err != nil {
		return fmt.Errorf("add skipped runs for job %s: %w", job.ID, err)
	}

	job.NextRunAt = next
	return nil
}
