package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/biuroflow/scheduler/internal/calendar"
	"github.com/biuroflow/scheduler/internal/models"
)

// DefaultMaxLookahead bounds the next-valid-instant search. 366 candidates
// covers a daily schedule for a full year of skipped dates.
const DefaultMaxLookahead = 366

// CronEvaluator computes fire instants from a cron expression and timezone.
// Implemented by cronexpr.Evaluator.
type CronEvaluator interface {
	Validate(expr, timezone string) error
	NextFireTime(expr, timezone string, after time.Time) (time.Time, error)
}

// SkipPolicyEvaluator combines the weekend rule with holiday calendar
// lookups and searches for fire instants that satisfy both.
type SkipPolicyEvaluator struct {
	cron         CronEvaluator
	calendar     calendar.HolidayCalendar
	maxLookahead int
}

func NewSkipPolicyEvaluator(cron CronEvaluator, cal calendar.HolidayCalendar, maxLookahead int) *SkipPolicyEvaluator {
	if maxLookahead <= 0 {
		maxLookahead = DefaultMaxLookahead
	}
	return &SkipPolicyEvaluator{cron: cron, calendar: cal, maxLookahead: maxLookahead}
}

// ShouldSkip decides whether an instant violates the job's skip policy and
// returns the reason when it does. The weekend check is calendar-agnostic
// (Saturday/Sunday in the job's timezone); the holiday check is a point
// lookup by local date.
func (s *SkipPolicyEvaluator) ShouldSkip(ctx context.Context, instant time.Time, policy models.SkipPolicy, timezone string) (bool, string, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return false, "", fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	local := instant.In(loc)

	if policy.SkipWeekends {
		if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return true, models.SkipReasonWeekend, nil
		}
	}

	if policy.SkipHolidays {
		isHoliday, name, err := s.calendar.IsHoliday(ctx, local, policy.HolidayCalendarCode)
		if err != nil {
			return false, "", fmt.Errorf("holiday lookup: %w", err)
		}
		if isHoliday {
			reason := models.SkipReasonHoliday
			if name != "" {
				reason += ":" + name
			}
			return true, reason, nil
		}
	}

	return false, "", nil
}

type skippedCandidate struct {
	at     time.Time
	reason string
}

// walkSchedule advances a job's schedule strictly past `from`, collecting
// every policy-rejected candidate until one sticks. Bounded like
// NextValidFireTime.
func (s *SkipPolicyEvaluator) walkSchedule(ctx context.Context, job *models.ScheduledJob, from time.Time) (time.Time, []skippedCandidate, error) {
	cursor := from
	var skipped []skippedCandidate
	for i := 0; i < s.maxLookahead; i++ {
		next, err := s.cron.NextFireTime(job.Expression, job.Timezone, cursor)
		if err != nil {
			return time.Time{}, nil, err
		}

		skip, reason, err := s.ShouldSkip(ctx, next, job.SkipPolicy, job.Timezone)
		if err != nil {
			return time.Time{}, nil, err
		}
		if !skip {
			return next, skipped, nil
		}
		skipped = append(skipped, skippedCandidate{at: next, reason: reason})
		cursor = next
	}
	return time.Time{}, nil, fmt.Errorf("%w: %d candidates after %s", ErrNoValidFireTime, s.maxLookahead, from.Format(time.RFC3339))
}

// NextValidFireTime iterates the cron schedule forward from `after` until an
// instant passes the skip policy. The search aborts with ErrNoValidFireTime
// after maxLookahead candidates so a calendar that rejects every date cannot
// loop forever.
func (s *SkipPolicyEvaluator) NextValidFireTime(ctx context.Context, expr, timezone string, policy models.SkipPolicy, after time.Time) (time.Time, error) {
	cursor := after
	for i := 0; i < s.maxLookahead; i++ {
		next, err := s.cron.NextFireTime(expr, timezone, cursor)
		if err != nil {
			return time.Time{}, err
		}

		skip, _, err := s.ShouldSkip(ctx, next, policy, timezone)
		if err != nil {
			return time.Time{}, err
		}
		if !skip {
			return next, nil
		}
		cursor = next
	}
	return time.Time{}, fmt.Errorf("%w: %d candidates after %s", ErrNoValidFireTime, s.maxLookahead, after.Format(time.RFC3339))
}
