package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biuroflow/scheduler/internal/calendar"
	"github.com/biuroflow/scheduler/internal/cronexpr"
	"github.com/biuroflow/scheduler/internal/models"
	"github.com/biuroflow/scheduler/internal/repository"
)

func TestRegisterJobComputesFirstValidFire(t *testing.T) {
	// Tuesday afternoon; the next 09:00 candidate is Labour Day.
	env := newTestEnv(time.Date(2024, time.April, 30, 12, 0, 0, 0, time.UTC))

	job, err := env.service.RegisterJob(context.Background(), RegisterJobRequest{
		WorkflowID: "wf-invoices",
		TriggerID:  "trg-monthly-invoices",
		Expression: "0 9 * * *",
		Timezone:   "Europe/Warsaw",
		SkipPolicy: models.SkipPolicy{
			SkipWeekends:        true,
			SkipHolidays:        true,
			HolidayCalendarCode: calendar.CalendarCodePL,
		},
	})
	require.NoError(t, err)

	assert.True(t, job.IsActive)
	assert.Equal(t, models.PriorityNormal, job.ConcurrencyPolicy.Priority)
	wantNext := time.Date(2024, time.May, 2, 9, 0, 0, 0, warsaw)
	assert.True(t, job.NextRunAt.Equal(wantNext), "next_run_at = %s, want %s", job.NextRunAt, wantNext)
}

func TestRegisterJobRejectsBadInput(t *testing.T) {
	env := newTestEnv(time.Date(2024, time.April, 30, 12, 0, 0, 0, time.UTC))
	valid := RegisterJobRequest{
		WorkflowID: "wf-invoices",
		TriggerID:  "trg-1",
		Expression: "0 9 * * 1-5",
		Timezone:   "Europe/Warsaw",
	}

	t.Run("invalid expression", func(t *testing.T) {
		req := valid
		req.Expression = "not cron"
		_, err := env.service.RegisterJob(context.Background(), req)
		require.ErrorIs(t, err, cronexpr.ErrInvalidExpression)
	})

	t.Run("unknown timezone", func(t *testing.T) {
		req := valid
		req.Timezone = "Europe/Atlantis"
		_, err := env.service.RegisterJob(context.Background(), req)
		require.ErrorIs(t, err, cronexpr.ErrUnknownTimezone)
	})

	t.Run("holiday policy without calendar", func(t *testing.T) {
		req := valid
		req.SkipPolicy = models.SkipPolicy{SkipHolidays: true}
		_, err := env.service.RegisterJob(context.Background(), req)
		require.ErrorIs(t, err, ErrUnknownCalendar)
	})

	t.Run("unknown calendar", func(t *testing.T) {
		req := valid
		req.SkipPolicy = models.SkipPolicy{SkipHolidays: true, HolidayCalendarCode: "DE"}
		_, err := env.service.RegisterJob(context.Background(), req)
		require.ErrorIs(t, err, ErrUnknownCalendar)
	})

	t.Run("unknown priority", func(t *testing.T) {
		req := valid
		req.ConcurrencyPolicy.Priority = "urgent"
		_, err := env.service.RegisterJob(context.Background(), req)
		require.Error(t, err)
	})

	t.Run("duplicate trigger", func(t *testing.T) {
		_, err := env.service.RegisterJob(context.Background(), valid)
		require.NoError(t, err)
		_, err = env.service.RegisterJob(context.Background(), valid)
		require.ErrorIs(t, err, repository.ErrDuplicateTrigger)
	})
}

func TestPauseAndResume(t *testing.T) {
	env := newTestEnv(time.Date(2024, time.April, 30, 12, 0, 0, 0, time.UTC))

	job := weekdayJob(models.SkipPolicy{}, models.ConcurrencyPolicy{}, time.Date(2024, time.May, 1, 9, 0, 0, 0, warsaw))
	env.jobs.add(job)

	require.NoError(t, env.service.PauseJob(context.Background(), job.ID))
	stored, err := env.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	// Pausing a paused job is a no-op.
	require.NoError(t, env.service.PauseJob(context.Background(), job.ID))

	// Resuming a week later restarts the schedule from now rather than
	// firing everything that fell into the pause window.
	env.clock.Set(time.Date(2024, time.May, 6, 12, 0, 0, 0, time.UTC)) // Monday afternoon
	require.NoError(t, env.service.ResumeJob(context.Background(), job.ID))

	stored, err = env.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
	wantNext := time.Date(2024, time.May, 7, 9, 0, 0, 0, warsaw)
	assert.True(t, stored.NextRunAt.Equal(wantNext), "next_run_at = %s, want %s", stored.NextRunAt, wantNext)
	assert.Zero(t, env.engine.callCount())
}

func TestTriggerNowLeavesScheduleAlone(t *testing.T) {
	now := time.Date(2024, time.April, 30, 12, 0, 0, 0, time.UTC)
	env := newTestEnv(now)

	nextRunAt := time.Date(2024, time.May, 1, 9, 0, 0, 0, warsaw)
	job := weekdayJob(models.SkipPolicy{}, models.ConcurrencyPolicy{}, nextRunAt)
	env.jobs.add(job)

	require.NoError(t, env.service.TriggerNow(context.Background(), job.ID))

	require.Equal(t, 1, env.engine.callCount())
	trigger := env.engine.callAt(0)
	assert.True(t, trigger.ScheduledAt.Equal(now))
	assert.Equal(t, models.TriggeredByManual, trigger.TriggeredBy)

	stored, err := env.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.True(t, stored.NextRunAt.Equal(nextRunAt))
	assert.Equal(t, int64(1), stored.SuccessfulRuns)
}

func TestTriggerNowRespectsOverlapPrevention(t *testing.T) {
	env := newTestEnv(time.Date(2024, time.April, 30, 12, 0, 0, 0, time.UTC))

	job := weekdayJob(models.SkipPolicy{}, models.ConcurrencyPolicy{PreventOverlap: true}, time.Date(2024, time.May, 1, 9, 0, 0, 0, warsaw))
	job.IsRunning = true
	env.jobs.add(job)

	err := env.service.TriggerNow(context.Background(), job.ID)
	require.Error(t, err)
	assert.Zero(t, env.engine.callCount())
}

func TestGetNextFireTimesPreview(t *testing.T) {
	// Friday afternoon; a weekday schedule previews Mon, Tue, Wed.
	env := newTestEnv(time.Date(2024, time.May, 10, 12, 0, 0, 0, time.UTC))

	job := weekdayJob(models.SkipPolicy{SkipWeekends: true}, models.ConcurrencyPolicy{}, time.Date(2024, time.May, 13, 9, 0, 0, 0, warsaw))
	env.jobs.add(job)

	instants, err := env.service.GetNextFireTimes(context.Background(), job.ID, 3)
	require.NoError(t, err)
	require.Len(t, instants, 3)

	want := []time.Time{
		time.Date(2024, time.May, 13, 9, 0, 0, 0, warsaw),
		time.Date(2024, time.May, 14, 9, 0, 0, 0, warsaw),
		time.Date(2024, time.May, 15, 9, 0, 0, 0, warsaw),
	}
	for i := range want {
		assert.True(t, instants[i].Equal(want[i]), "instants[%d] = %s, want %s", i, instants[i], want[i])
	}

	// Preview is read-only.
	stored, err := env.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.True(t, stored.NextRunAt.Equal(job.NextRunAt))
}

func TestGetExecutionHistoryFiltersByStatus(t *testing.T) {
	env := newTestEnv(time.Date(2024, time.May, 10, 12, 0, 0, 0, time.UTC))

	job := weekdayJob(models.SkipPolicy{}, models.ConcurrencyPolicy{}, time.Date(2024, time.May, 13, 9, 0, 0, 0, warsaw))
	env.jobs.add(job)

	reason := models.SkipReasonWeekend
	for day, status := range map[int]models.ExecutionStatus{
		6: models.StatusCompleted,
		7: models.StatusFailed,
		8: models.StatusCompleted,
	} {
		entry := &models.ExecutionLogEntry{
			JobID:       job.ID,
			ScheduledAt: time.Date(2024, time.May, day, 9, 0, 0, 0, warsaw),
			Status:      status,
			TriggeredBy: models.TriggeredByScheduler,
		}
		if status == models.StatusSkipped {
			entry.SkipReason = &reason
		}
		_, err := env.history.Insert(context.Background(), entry)
		require.NoError(t, err)
	}

	completed := models.StatusCompleted
	result, err := env.service.GetExecutionHistory(context.Background(), job.ID, repository.HistoryFilter{Status: &completed}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalItems)
	for _, entry := range result.Items {
		assert.Equal(t, models.StatusCompleted, entry.Status)
	}

	_, err = env.service.GetExecutionHistory(context.Background(), "missing", repository.HistoryFilter{}, 1, 10)
	require.ErrorIs(t, err, repository.ErrJobNotFound)
}

func TestStuckJobListingAndForceRelease(t *testing.T) {
	now := time.Date(2024, time.May, 10, 12, 0, 0, 0, time.UTC)
	env := newTestEnv(now)

	job := weekdayJob(models.SkipPolicy{}, models.ConcurrencyPolicy{}, now.Add(time.Hour))
	job.IsRunning = true
	started := now.Add(-2 * time.Hour)
	job.LastRunAt = &started
	env.jobs.add(job)

	healthy := weekdayJob(models.SkipPolicy{}, models.ConcurrencyPolicy{}, now.Add(time.Hour))
	healthy.IsRunning = true
	recent := now.Add(-time.Minute)
	healthy.LastRunAt = &recent
	env.jobs.add(healthy)

	stuck, err := env.service.ListStuckJobs(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, job.ID, stuck[0].ID)

	require.NoError(t, env.service.ForceReleaseJob(context.Background(), job.ID))
	stored, err := env.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsRunning)
}
