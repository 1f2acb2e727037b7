package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/biuroflow/scheduler/internal/clock"
	"github.com/biuroflow/scheduler/internal/logger"
	"github.com/biuroflow/scheduler/internal/models"
	"github.com/biuroflow/scheduler/internal/repository"
)

// Resolution strategies for missed fire instants. The caller always picks
// one explicitly; nothing is resolved automatically.
type Strategy string

const (
	// StrategySkip marks every missed instant as missed without running
	// anything.
	StrategySkip Strategy = "skip"
	// StrategyRunLatest executes only the most recent missed instant.
	StrategyRunLatest Strategy = "run_latest"
	// StrategyRunAll executes every missed instant in chronological order.
	StrategyRunAll Strategy = "run_all"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategySkip, StrategyRunLatest, StrategyRunAll:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// maxMissedInstants caps how far back a gap scan walks. A job that was down
// for longer surfaces the cap-sized prefix; resolving it moves the window.
const maxMissedInstants = 1000

// Reconciler detects gaps between expected and recorded fire instants
// (typically after downtime) and applies the caller-chosen resolution.
type Reconciler struct {
	jobs       repository.JobRepository
	history    repository.ExecutionLogRepository
	skip       *SkipPolicyEvaluator
	dispatcher *Dispatcher
	clock      clock.Clock
	log        logger.Logger

	// markRemainderMissed controls whether run_latest records the
	// skipped-over instants as missed or leaves them for a later
	// explicit resolution.
	markRemainderMissed bool
}

func NewReconciler(jobs repository.JobRepository, history repository.ExecutionLogRepository, skip *SkipPolicyEvaluator, dispatcher *Dispatcher, clk clock.Clock, log logger.Logger, markRemainderMissed bool) *Reconciler {
	return &Reconciler{
		jobs:                jobs,
		history:             history,
		skip:                skip,
		dispatcher:          dispatcher,
		clock:               clk,
		log:                 log,
		markRemainderMissed: markRemainderMissed,
	}
}

// CheckMissed returns the expected fire instants since the job's last
// completed firing (or its creation) that have no execution log entry.
func (r *Reconciler) CheckMissed(ctx context.Context, jobID string) ([]time.Time, error) {
	job, err := r.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	from := job.CreatedAt
	last, err := r.history.LastCompleted(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if last != nil {
		from = last.ScheduledAt
	}
	now := r.clock.Now()

	expected, err := r.expectedInstants(ctx, job, from, now)
	if err != nil {
		return nil, err
	}

	recorded, err := r.history.ScheduledInstants(ctx, jobID, from, now)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]struct{}, len(recorded))
	for _, t := range recorded {
		seen[t.UnixNano()] = struct{}{}
	}

	var missed []time.Time
	for _, t := range expected {
		if _, ok := seen[t.UnixNano()]; !ok {
			missed = append(missed, t)
		}
	}
	return missed, nil
}

// Resolve applies a strategy to a set of missed instants. Already-resolved
// instants are no-ops thanks to the (job id, scheduled at) uniqueness of the
// execution log, so duplicate calls are safe.
func (r *Reconciler) Resolve(ctx context.Context, jobID string, instants []time.Time, strategy Strategy) error {
	if _, err := ParseStrategy(string(strategy)); err != nil {
		return err
	}
	if len(instants) == 0 {
		return nil
	}

	job, err := r.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}

	sorted := make([]time.Time, len(instants))
	copy(sorted, instants)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	switch strategy {
	case StrategySkip:
		return r.markMissed(ctx, jobID, sorted)

	case StrategyRunAll:
		var firstErr error
		for _, instant := range sorted {
			if err := r.dispatcher.Execute(ctx, job, instant, models.TriggeredByCatchUp); err != nil {
				r.log.Error("catch-up execution failed",
					logger.String("job_id", jobID),
					logger.Time("scheduled_at", instant),
					logger.Error(err),
				)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		return firstErr

	case StrategyRunLatest:
		latest := sorted[len(sorted)-1]
		if r.markRemainderMissed {
			if err := r.markMissed(ctx, jobID, sorted[:len(sorted)-1]); err != nil {
				return err
			}
		}
		return r.dispatcher.Execute(ctx, job, latest, models.TriggeredByCatchUp)
	}
	return nil
}

func (r *Reconciler) markMissed(ctx context.Context, jobID string, instants []time.Time) error {
	for _, instant := range instants {
		entry := &models.ExecutionLogEntry{
			JobID:       jobID,
			ScheduledAt: instant,
			Status:      models.StatusMissed,
			TriggeredBy: models.TriggeredByCatchUp,
		}
		if _, err := r.history.Insert(ctx, entry); err != nil {
			return fmt.Errorf("mark instant missed: %w", err)
		}
	}
	return nil
}

func (r *Reconciler) expectedInstants(ctx context.Context, job *models.ScheduledJob, from, to time.Time) ([]time.Time, error) {
	var expected []time.Time
	cursor := from
	for len(expected) < maxMissedInstants {
		next, err := r.skip.NextValidFireTime(ctx, job.Expression, job.Timezone, job.SkipPolicy, cursor)
		if err != nil {
			return nil, err
		}
		if next.After(to) {
			return expected, nil
		}
		expected = append(expected, next)
		cursor = next
	}

	r.log.Warn("missed-instant scan truncated",
		logger.String("job_id", job.ID),
		logger.Int("cap", maxMissedInstants),
	)
	return expected, nil
}
