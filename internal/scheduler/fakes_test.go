package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/biuroflow/scheduler/internal/calendar"
	"github.com/biuroflow/scheduler/internal/clock"
	"github.com/biuroflow/scheduler/internal/cronexpr"
	"github.com/biuroflow/scheduler/internal/executor"
	"github.com/biuroflow/scheduler/internal/logger"
	"github.com/biuroflow/scheduler/internal/models"
	"github.com/biuroflow/scheduler/internal/repository"
)

type memoryJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*models.ScheduledJob
}

func newMemoryJobRepo() *memoryJobRepo {
	return &memoryJobRepo{jobs: make(map[string]*models.ScheduledJob)}
}

// add stores a job as-is, bypassing the Create bookkeeping, so tests can
// control CreatedAt and Version.
func (r *memoryJobRepo) add(job *models.ScheduledJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Version == 0 {
		job.Version = 1
	}
	cp := *job
	r.jobs[job.ID] = &cp
}

func (r *memoryJobRepo) Create(_ context.Context, job *models.ScheduledJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.jobs {
		if existing.TriggerID == job.TriggerID {
			return fmt.Errorf("%w: %s", repository.ErrDuplicateTrigger, job.TriggerID)
		}
	}
	job.ID = uuid.New().String()
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	job.Version = 1
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *memoryJobRepo) GetByID(_ context.Context, id string) (*models.ScheduledJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (r *memoryJobRepo) GetByTriggerID(_ context.Context, triggerID string) (*models.ScheduledJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.jobs {
		if job.TriggerID == triggerID {
			cp := *job
			return &cp, nil
		}
	}
	return nil, repository.ErrJobNotFound
}

func (r *memoryJobRepo) FetchDueJobs(_ context.Context, now time.Time, limit int) ([]models.ScheduledJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []models.ScheduledJob
	for _, job := range r.jobs {
		if job.IsActive && !job.IsRunning && !job.NextRunAt.After(now) {
			due = append(due, *job)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		ri, rj := due[i].ConcurrencyPolicy.Priority.Rank(), due[j].ConcurrencyPolicy.Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return due[i].NextRunAt.Before(due[j].NextRunAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *memoryJobRepo) SetActive(_ context.Context, id string, active bool, version int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return repository.ErrJobNotFound
	}
	if job.Version != version {
		return repository.ErrVersionConflict
	}
	job.IsActive = active
	job.LastError = nil
	job.Version++
	return nil
}

func (r *memoryJobRepo) MarkRunning(_ context.Context, id string, lastRunAt time.Time) error {
	return r.update(id, func(job *models.ScheduledJob) {
		job.IsRunning = true
		job.LastRunAt = &lastRunAt
	})
}

func (r *memoryJobRepo) RecordSuccess(_ context.Context, id string, nextRunAt time.Time) error {
	return r.update(id, func(job *models.ScheduledJob) {
		job.IsRunning = false
		job.TotalRuns++
		job.SuccessfulRuns++
		job.NextRunAt = nextRunAt
	})
}

func (r *memoryJobRepo) RecordFailure(_ context.Context, id string, nextRunAt time.Time) error {
	return r.update(id, func(job *models.ScheduledJob) {
		job.IsRunning = false
		job.TotalRuns++
		job.FailedRuns++
		job.NextRunAt = nextRunAt
	})
}

func (r *memoryJobRepo) RecordSkip(_ context.Context, id string, nextRunAt time.Time) error {
	return r.update(id, func(job *models.ScheduledJob) {
		job.SkippedRuns++
		job.NextRunAt = nextRunAt
	})
}

func (r *memoryJobRepo) AddSkippedRuns(_ context.Context, id string, delta int64) error {
	if delta == 0 {
		return nil
	}
	return r.update(id, func(job *models.ScheduledJob) {
		job.SkippedRuns += delta
	})
}

func (r *memoryJobRepo) UpdateNextRun(_ context.Context, id string, nextRunAt time.Time) error {
	return r.update(id, func(job *models.ScheduledJob) {
		job.NextRunAt = nextRunAt
	})
}

func (r *memoryJobRepo) FlagEvaluationError(_ context.Context, id string, errMsg string) error {
	return r.update(id, func(job *models.ScheduledJob) {
		job.IsActive = false
		job.LastError = &errMsg
	})
}

func (r *memoryJobRepo) ForceClearRunning(_ context.Context, id string) error {
	return r.update(id, func(job *models.ScheduledJob) {
		job.IsRunning = false
	})
}

func (r *memoryJobRepo) FetchStuckJobs(_ context.Context, olderThan time.Time) ([]models.ScheduledJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stuck []models.ScheduledJob
	for _, job := range r.jobs {
		if job.IsRunning && job.LastRunAt != nil && job.LastRunAt.Before(olderThan) {
			stuck = append(stuck, *job)
		}
	}
	sort.Slice(stuck, func(i, j int) bool {
		return stuck[i].LastRunAt.Before(*stuck[j].LastRunAt)
	})
	return stuck, nil
}

func (r *memoryJobRepo) Close() error { return nil }

func (r *memoryJobRepo) update(id string, fn func(*models.ScheduledJob)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return repository.ErrJobNotFound
	}
	fn(job)
	job.Version++
	job.UpdatedAt = time.Now()
	return nil
}

type memoryLogRepo struct {
	mu      sync.Mutex
	entries []*models.ExecutionLogEntry
	byKey   map[string]*models.ExecutionLogEntry
}

func newMemoryLogRepo() *memoryLogRepo {
	return &memoryLogRepo{byKey: make(map[string]*models.ExecutionLogEntry)}
}

func entryKey(jobID string, scheduledAt time.Time) string {
	return jobID + "|" + scheduledAt.UTC().Format(time.RFC3339Nano)
}

func (r *memoryLogRepo) Insert(_ context.Context, entry *models.ExecutionLogEntry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := entryKey(entry.JobID, entry.ScheduledAt)
	if _, exists := r.byKey[key]; exists {
		return false, nil
	}
	entry.ID = uuid.New().String()
	entry.CreatedAt = time.Now()
	cp := *entry
	r.entries = append(r.entries, &cp)
	r.byKey[key] = &cp
	return true, nil
}

func (r *memoryLogRepo) Finalize(_ context.Context, id string, status models.ExecutionStatus, completedAt time.Time, executionID, errMsg *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.entries {
		if entry.ID != id {
			continue
		}
		if entry.Status != models.StatusRunning {
			return fmt.Errorf("entry %s is not running", id)
		}
		entry.Status = status
		entry.CompletedAt = &completedAt
		if executionID != nil {
			entry.ExecutionID = executionID
		}
		entry.ErrorMessage = errMsg
		return nil
	}
	return fmt.Errorf("entry %s not found", id)
}

func (r *memoryLogRepo) ListByJob(_ context.Context, jobID string, filter repository.HistoryFilter, page, pageSize int) (*models.PaginationResult[models.ExecutionLogEntry], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []models.ExecutionLogEntry
	for _, entry := range r.entries {
		if entry.JobID != jobID {
			continue
		}
		if filter.Status != nil && entry.Status != *filter.Status {
			continue
		}
		if filter.From != nil && entry.ScheduledAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && entry.ScheduledAt.After(*filter.To) {
			continue
		}
		matched = append(matched, *entry)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ScheduledAt.After(matched[j].ScheduledAt)
	})

	total := len(matched)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	totalPages := (total + pageSize - 1) / pageSize
	return &models.PaginationResult[models.ExecutionLogEntry]{
		Items:           matched[start:end],
		TotalItems:      total,
		Page:            page,
		PageSize:        pageSize,
		TotalPages:      totalPages,
		HasNextPage:     page < totalPages,
		HasPreviousPage: page > 1,
	}, nil
}

func (r *memoryLogRepo) ScheduledInstants(_ context.Context, jobID string, from, to time.Time) ([]time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var instants []time.Time
	for _, entry := range r.entries {
		if entry.JobID != jobID {
			continue
		}
		if entry.ScheduledAt.After(from) && !entry.ScheduledAt.After(to) {
			instants = append(instants, entry.ScheduledAt)
		}
	}
	sort.Slice(instants, func(i, j int) bool { return instants[i].Before(instants[j]) })
	return instants, nil
}

func (r *memoryLogRepo) LastCompleted(_ context.Context, jobID string) (*models.ExecutionLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last *models.ExecutionLogEntry
	for _, entry := range r.entries {
		if entry.JobID != jobID || entry.Status != models.StatusCompleted {
			continue
		}
		if last == nil || entry.ScheduledAt.After(last.ScheduledAt) {
			last = entry
		}
	}
	if last == nil {
		return nil, nil
	}
	cp := *last
	return &cp, nil
}

func (r *memoryLogRepo) Close() error { return nil }

// entriesFor returns a job's entries sorted by scheduled instant.
func (r *memoryLogRepo) entriesFor(jobID string) []models.ExecutionLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ExecutionLogEntry
	for _, entry := range r.entries {
		if entry.JobID == jobID {
			out = append(out, *entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out
}

type fakeEngine struct {
	mu    sync.Mutex
	calls []executor.TriggerContext
	err   error
	panic bool
}

func (f *fakeEngine) Execute(_ context.Context, _ string, trigger executor.TriggerContext) (*executor.ExecutionHandle, error) {
	f.mu.Lock()
	f.calls = append(f.calls, trigger)
	n := len(f.calls)
	f.mu.Unlock()
	if f.panic {
		panic("engine exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	return &executor.ExecutionHandle{ExecutionID: fmt.Sprintf("exec-%d", n)}, nil
}

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeEngine) callAt(i int) executor.TriggerContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

type fakeLock struct {
	mu       sync.Mutex
	allow    bool
	held     bool
	acquires int
	releases int
}

func (l *fakeLock) TryAcquire(_ context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquires++
	if !l.allow || l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *fakeLock) Release(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}
	l.held = false
	l.releases++
	return nil
}

func (l *fakeLock) Extend(_ context.Context, _ time.Duration) error { return nil }

func (l *fakeLock) IsHeld(_ context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held, nil
}

// testEnv wires the scheduler core against in-memory collaborators. The
// calendar is pre-seeded with the Polish statutory holidays for 2024/2025.
type testEnv struct {
	jobs       *memoryJobRepo
	history    *memoryLogRepo
	engine     *fakeEngine
	cal        *calendar.MemoryCalendar
	clock      *clock.Fake
	cron       *cronexpr.Evaluator
	skip       *SkipPolicyEvaluator
	dispatcher *Dispatcher
	reconciler *Reconciler
	service    *Service
}

func newTestEnv(now time.Time) *testEnv {
	env := &testEnv{
		jobs:    newMemoryJobRepo(),
		history: newMemoryLogRepo(),
		engine:  &fakeEngine{},
		cal:     calendar.NewMemoryCalendar(),
		clock:   clock.NewFake(now),
		cron:    cronexpr.New(),
	}
	calendar.SeedPolish(env.cal, 2024, 2025)
	log := logger.NewNopLogger()
	env.skip = NewSkipPolicyEvaluator(env.cron, env.cal, 0)
	env.dispatcher = NewDispatcher(env.jobs, env.history, env.engine, env.skip, env.clock, log)
	env.reconciler = NewReconciler(env.jobs, env.history, env.skip, env.dispatcher, env.clock, log, true)
	env.service = NewService(env.jobs, env.history, env.cron, env.cal, env.skip, env.dispatcher, env.reconciler, env.clock, log)
	return env
}

func logNop() logger.Logger {
	return logger.NewNopLogger()
}

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

var warsaw = mustLoad("Europe/Warsaw")

func weekdayJob(policy models.SkipPolicy, concurrency models.ConcurrencyPolicy, nextRunAt time.Time) *models.ScheduledJob {
	return &models.ScheduledJob{
		ID:                uuid.New().String(),
		WorkflowID:        "wf-invoices",
		TriggerID:         "trg-" + strings.Split(uuid.New().String(), "-")[0],
		Expression:        "0 9 * * 1-5",
		Timezone:          "Europe/Warsaw",
		SkipPolicy:        policy,
		ConcurrencyPolicy: concurrency,
		NextRunAt:         nextRunAt,
		IsActive:          true,
		CreatedAt:         nextRunAt.Add(-24 * time.Hour),
	}
}
