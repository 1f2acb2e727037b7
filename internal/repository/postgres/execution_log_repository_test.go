package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biuroflow/scheduler/internal/models"
)

func newLogRepo(t *testing.T) (*ExecutionLogRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewExecutionLogRepository(db), mock
}

func TestExecutionLogInsert(t *testing.T) {
	repo, mock := newLogRepo(t)

	mock.ExpectExec("INSERT INTO scheduled_execution_log").
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &models.ExecutionLogEntry{
		JobID:       "job-1",
		ScheduledAt: time.Now(),
		Status:      models.StatusSkipped,
		TriggeredBy: models.TriggeredByScheduler,
	}
	inserted, err := repo.Insert(context.Background(), entry)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEmpty(t, entry.ID)
}

func TestExecutionLogInsert_DuplicateInstantIgnored(t *testing.T) {
	repo, mock := newLogRepo(t)

	// ON CONFLICT DO NOTHING reports zero affected rows.
	mock.ExpectExec("INSERT INTO scheduled_execution_log").
		WillReturnResult(sqlmock.NewResult(0, 0))

	entry := &models.ExecutionLogEntry{
		JobID:       "job-1",
		ScheduledAt: time.Now(),
		Status:      models.StatusMissed,
		TriggeredBy: models.TriggeredByCatchUp,
	}
	inserted, err := repo.Insert(context.Background(), entry)
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestExecutionLogFinalize_OnlyRunningEntries(t *testing.T) {
	repo, mock := newLogRepo(t)

	mock.ExpectExec("UPDATE scheduled_execution_log").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Finalize(context.Background(), "entry-1", models.StatusCompleted, time.Now(), nil, nil)
	assert.Error(t, err, "finalizing a non-running entry must fail")
}

func TestExecutionLogLastCompleted_None(t *testing.T) {
	repo, mock := newLogRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM scheduled_execution_log").
		WithArgs("job-1", string(models.StatusCompleted)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	entry, err := repo.LastCompleted(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Nil(t, entry)
}
