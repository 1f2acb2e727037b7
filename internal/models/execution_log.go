package models

import "time"

// ExecutionLogEntry is the append-only audit record of one attempted firing.
// At most one entry exists per (JobID, ScheduledAt); entries are immutable
// once terminal.
type ExecutionLogEntry struct {
	ID    string `json:"id"`
	JobID string `json:"job_id"`

	// ExecutionID is the handle returned by the workflow engine, set only
	// for firings that actually started.
	ExecutionID *string `json:"execution_id,omitempty"`

	ScheduledAt time.Time  `json:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Status       ExecutionStatus `json:"status"`
	SkipReason   *string         `json:"skip_reason,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	TriggeredBy  string          `json:"triggered_by"`

	CreatedAt time.Time `json:"created_at"`
}

// Duration returns the wall time between start and completion, or zero when
// the entry never ran to a terminal state.
func (e *ExecutionLogEntry) Duration() time.Duration {
	if e.StartedAt == nil || e.CompletedAt == nil {
		return 0
	}
	return e.CompletedAt.Sub(*e.StartedAt)
}
