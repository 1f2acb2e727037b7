package executor

import (
	"context"

	"github.com/google/uuid"

	"github.com/biuroflow/scheduler/internal/logger"
)

// Noop acknowledges every trigger without running anything. It stands in for
// the workflow engine in deployments that only exercise the scheduling side.
type Noop struct {
	log logger.Logger
}

func NewNoop(log logger.Logger) *Noop {
	return &Noop{log: log}
}

func (n *Noop) Execute(_ context.Context, workflowID string, trigger TriggerContext) (*ExecutionHandle, error) {
	handle := &ExecutionHandle{ExecutionID: uuid.New().String()}
	n.log.Info("workflow triggered",
		logger.String("workflow_id", workflowID),
		logger.String("job_id", trigger.JobID),
		logger.String("execution_id", handle.ExecutionID),
		logger.Time("scheduled_at", trigger.ScheduledAt),
		logger.String("triggered_by", trigger.TriggeredBy),
	)
	return handle, nil
}
