// Package executor defines the contract to the external workflow-execution
// engine. The scheduler treats workflow ids as opaque tokens and never
// interprets what a triggered workflow does.
package executor

import (
	"context"
	"time"
)

// TriggerContext is passed to the engine with every firing.
type TriggerContext struct {
	JobID       string    `json:"job_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	TriggeredBy string    `json:"triggered_by"`
}

// ExecutionHandle identifies one engine-side execution.
type ExecutionHandle struct {
	ExecutionID string `json:"execution_id"`
}

// WorkflowExecutor runs a workflow and reports the terminal outcome.
// Execute returns once the execution finished (or failed to start); a nil
// error means the workflow completed. Synchronous engines may block here for
// the whole run — the dispatcher always calls Execute from a worker, off the
// poll-cycle critical path.
type WorkflowExecutor interface {
	Execute(ctx context.Context, workflowID string, trigger TriggerContext) (*ExecutionHandle, error)
}
