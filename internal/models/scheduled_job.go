package models

import "time"

// SkipPolicy controls which candidate fire dates a job refuses to run on.
type SkipPolicy struct {
	SkipWeekends        bool   `json:"skip_weekends"`
	SkipHolidays        bool   `json:"skip_holidays"`
	HolidayCalendarCode string `json:"holiday_calendar_code,omitempty"`
}

// ConcurrencyPolicy controls overlap prevention and catch-up behaviour.
type ConcurrencyPolicy struct {
	PreventOverlap bool     `json:"prevent_overlap"`
	CatchUpMissed  bool     `json:"catch_up_missed"`
	Priority       Priority `json:"priority"`
}

// ScheduledJob is the persisted registration of a cron trigger for a
// workflow. WorkflowID and TriggerID are opaque identifiers owned by the
// workflow engine; the scheduler never interprets them.
type ScheduledJob struct {
	ID         string `json:"id"`
	WorkflowID string `json:"workflow_id"`
	TriggerID  string `json:"trigger_id"`

	Expression string `json:"expression"`
	Timezone   string `json:"timezone"`

	SkipPolicy        SkipPolicy        `json:"skip_policy"`
	ConcurrencyPolicy ConcurrencyPolicy `json:"concurrency_policy"`

	NextRunAt time.Time  `json:"next_run_at"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	IsRunning bool       `json:"is_running"`
	IsActive  bool       `json:"is_active"`
	LastError *string    `json:"last_error,omitempty"`

	TotalRuns      int64 `json:"total_runs"`
	SuccessfulRuns int64 `json:"successful_runs"`
	FailedRuns     int64 `json:"failed_runs"`
	SkippedRuns    int64 `json:"skipped_runs"`

	// Version guards administrative updates with compare-and-set. The
	// poller mutates rows only while holding the distributed lock.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
