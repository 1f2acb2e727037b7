package models

import "fmt"

// ExecutionStatus is the lifecycle state of a single scheduled firing attempt.
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
	StatusSkipped   ExecutionStatus = "skipped"
	StatusMissed    ExecutionStatus = "missed"
)

func (s ExecutionStatus) String() string {
	return string(s)
}

// IsTerminal reports whether an entry in this status is immutable.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped, StatusMissed:
		return true
	}
	return false
}

var AllStatuses = []ExecutionStatus{
	StatusPending,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusSkipped,
	StatusMissed,
}

func ParseExecutionStatus(s string) (ExecutionStatus, error) {
	for _, status := range AllStatuses {
		if ExecutionStatus(s) == status {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown execution status: %q", s)
}

type Transition struct {
	From ExecutionStatus
	To   ExecutionStatus
}

var ValidTransitions = []Transition{
	{From: StatusPending, To: StatusRunning},
	{From: StatusPending, To: StatusSkipped},
	{From: StatusPending, To: StatusMissed},
	{From: StatusRunning, To: StatusCompleted},
	{From: StatusRunning, To: StatusFailed},
}

func IsValidTransition(from, to ExecutionStatus) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// TriggeredBy values recorded on every log entry.
const (
	TriggeredByScheduler = "scheduler"
	TriggeredByManual    = "manual"
	TriggeredByCatchUp   = "catch_up"
)

// Skip reasons recorded on skipped entries. Holiday skips carry the holiday
// name appended after a colon, e.g. "holiday:Labour Day".
const (
	SkipReasonOverlap = "overlap"
	SkipReasonWeekend = "weekend"
	SkipReasonHoliday = "holiday"
)
