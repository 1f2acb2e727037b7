package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/biuroflow/scheduler/internal/calendar"
	"github.com/biuroflow/scheduler/internal/clock"
	"github.com/biuroflow/scheduler/internal/logger"
	"github.com/biuroflow/scheduler/internal/models"
	"github.com/biuroflow/scheduler/internal/repository"
)

const (
	// MaxPreviewCount bounds the fire-time preview endpoint.
	MaxPreviewCount = 50
	// DefaultStuckThreshold is how long a job may stay in running state
	// before the stuck-job listing surfaces it.
	DefaultStuckThreshold = time.Hour
)

// RegisterJobRequest carries everything needed to schedule a workflow.
type RegisterJobRequest struct {
	WorkflowID        string                   `json:"workflow_id"`
	TriggerID         string                   `json:"trigger_id"`
	Expression        string                   `json:"expression"`
	Timezone          string                   `json:"timezone"`
	SkipPolicy        models.SkipPolicy        `json:"skip_policy"`
	ConcurrencyPolicy models.ConcurrencyPolicy `json:"concurrency_policy"`
}

// Service is the administrative surface: job registration and lifecycle,
// previews, history, and missed-execution handling. The poller runs
// independently of it.
type Service struct {
	jobs       repository.JobRepository
	history    repository.ExecutionLogRepository
	cron       CronEvaluator
	calendar   calendar.HolidayCalendar
	skip       *SkipPolicyEvaluator
	dispatcher *Dispatcher
	reconciler *Reconciler
	clock      clock.Clock
	log        logger.Logger
}

func NewService(
	jobs repository.JobRepository,
	history repository.ExecutionLogRepository,
	cron CronEvaluator,
	cal calendar.HolidayCalendar,
	skip *SkipPolicyEvaluator,
	dispatcher *Dispatcher,
	reconciler *Reconciler,
	clk clock.Clock,
	log logger.Logger,
) *Service {
	return &Service{
		jobs:       jobs,
		history:    history,
		cron:       cron,
		calendar:   cal,
		skip:       skip,
		dispatcher: dispatcher,
		reconciler: reconciler,
		clock:      clk,
		log:        log,
	}
}

// RegisterJob validates the request, computes the first valid fire instant
// and persists the job. Registration is rejected outright for an invalid
// expression, an unknown timezone or a holiday policy pointing at a calendar
// the system does not carry.
func (s *Service) RegisterJob(ctx context.Context, req RegisterJobRequest) (*models.ScheduledJob, error) {
	if req.WorkflowID == "" {
		return nil, fmt.Errorf("workflow_id is required")
	}
	if req.TriggerID == "" {
		return nil, fmt.Errorf("trigger_id is required")
	}
	if err := s.cron.Validate(req.Expression, req.Timezone); err != nil {
		return nil, err
	}

	if req.SkipPolicy.SkipHolidays {
		if req.SkipPolicy.HolidayCalendarCode == "" {
			return nil, fmt.Errorf("%w: holiday skipping requires a calendar code", ErrUnknownCalendar)
		}
		known, err := s.calendar.HasCalendar(ctx, req.SkipPolicy.HolidayCalendarCode)
		if err != nil {
			return nil, fmt.Errorf("calendar lookup: %w", err)
		}
		if !known {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCalendar, req.SkipPolicy.HolidayCalendarCode)
		}
	}

	priority, err := models.ParsePriority(string(req.ConcurrencyPolicy.Priority))
	if err != nil {
		return nil, err
	}
	req.ConcurrencyPolicy.Priority = priority

	now := s.clock.Now()
	next, err := s.skip.NextValidFireTime(ctx, req.Expression, req.Timezone, req.SkipPolicy, now)
	if err != nil {
		return nil, err
	}

	job := &models.ScheduledJob{
		WorkflowID:        req.WorkflowID,
		TriggerID:         req.TriggerID,
		Expression:        req.Expression,
		Timezone:          req.Timezone,
		SkipPolicy:        req.SkipPolicy,
		ConcurrencyPolicy: req.ConcurrencyPolicy,
		NextRunAt:         next,
		IsActive:          true,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	s.log.Info("job registered",
		logger.String("job_id", job.ID),
		logger.String("workflow_id", job.WorkflowID),
		logger.String("trigger_id", job.TriggerID),
		logger.Time("next_run_at", next),
	)
	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id string) (*models.ScheduledJob, error) {
	return s.jobs.GetByID(ctx, id)
}

// PauseJob takes a job out of the evaluation loop. An in-flight execution is
// not interrupted; it finishes on its own terms.
func (s *Service) PauseJob(ctx context.Context, id string) error {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !job.IsActive {
		return nil
	}
	if err := s.jobs.SetActive(ctx, id, false, job.Version); err != nil {
		return err
	}
	s.log.Info("job paused", logger.String("job_id", id))
	return nil
}

// ResumeJob reactivates a paused job. The schedule restarts from now: the
// next fire instant is recomputed, so instants that fell into the paused
// window never fire (they surface through CheckMissed instead).
func (s *Service) ResumeJob(ctx context.Context, id string) error {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}

	next, err := s.skip.NextValidFireTime(ctx, job.Expression, job.Timezone, job.SkipPolicy, s.clock.Now())
	if err != nil {
		return err
	}

	if err := s.jobs.SetActive(ctx, id, true, job.Version); err != nil {
		return err
	}
	if err := s.jobs.UpdateNextRun(ctx, id, next); err != nil {
		return err
	}

	s.log.Info("job resumed", logger.String("job_id", id), logger.Time("next_run_at", next))
	return nil
}

// GetNextFireTimes previews the upcoming valid fire instants without
// touching persisted state.
func (s *Service) GetNextFireTimes(ctx context.Context, id string, count int) ([]time.Time, error) {
	if count <= 0 {
		count = 1
	}
	if count > MaxPreviewCount {
		count = MaxPreviewCount
	}

	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	instants := make([]time.Time, 0, count)
	cursor := s.clock.Now()
	for len(instants) < count {
		next, err := s.skip.NextValidFireTime(ctx, job.Expression, job.Timezone, job.SkipPolicy, cursor)
		if err != nil {
			return nil, err
		}
		instants = append(instants, next)
		cursor = next
	}
	return instants, nil
}

func (s *Service) GetExecutionHistory(ctx context.Context, jobID string, filter repository.HistoryFilter, page, pageSize int) (*models.PaginationResult[models.ExecutionLogEntry], error) {
	if _, err := s.jobs.GetByID(ctx, jobID); err != nil {
		return nil, err
	}
	return s.history.ListByJob(ctx, jobID, filter, page, pageSize)
}

func (s *Service) CheckMissedExecutions(ctx context.Context, jobID string) ([]time.Time, error) {
	return s.reconciler.CheckMissed(ctx, jobID)
}

func (s *Service) ResolveMissedExecutions(ctx context.Context, jobID string, instants []time.Time, strategy Strategy) error {
	return s.reconciler.Resolve(ctx, jobID, instants, strategy)
}

// TriggerNow fires a job immediately, outside its schedule. The stored
// next_run_at is untouched; the firing shows up in the log as a manual one.
func (s *Service) TriggerNow(ctx context.Context, id string) error {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.ConcurrencyPolicy.PreventOverlap && job.IsRunning {
		return fmt.Errorf("job %s is already running", id)
	}
	return s.dispatcher.Execute(ctx, job, s.clock.Now(), models.TriggeredByManual)
}

// ListStuckJobs returns jobs that have reported running for longer than the
// threshold, usually after a crash between MarkRunning and finalization.
func (s *Service) ListStuckJobs(ctx context.Context, threshold time.Duration) ([]models.ScheduledJob, error) {
	if threshold <= 0 {
		threshold = DefaultStuckThreshold
	}
	return s.jobs.FetchStuckJobs(ctx, s.clock.Now().Add(-threshold))
}

// ForceReleaseJob clears a stuck running flag so the job becomes due again.
// Operator judgement call: the underlying workflow may still be executing.
func (s *Service) ForceReleaseJob(ctx context.Context, id string) error {
	if _, err := s.jobs.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.jobs.ForceClearRunning(ctx, id); err != nil {
		return err
	}
	s.log.Warn("running flag force-cleared", logger.String("job_id", id))
	return nil
}
