package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/biuroflow/scheduler/internal/clock"
	"github.com/biuroflow/scheduler/internal/lock"
	"github.com/biuroflow/scheduler/internal/logger"
	"github.com/biuroflow/scheduler/internal/models"
	"github.com/biuroflow/scheduler/internal/repository"
)

const (
	DefaultPollInterval = 10 * time.Second
	DefaultBatchSize    = 10
)

// Poller drives the evaluation loop. Every tick it makes one non-blocking
// attempt on the distributed lock; when denied, the whole cycle is skipped —
// another replica is doing the work. Within a held cycle, due jobs are
// dispatched through a bounded worker pool so one slow workflow never blocks
// the rest of the batch.
type Poller struct {
	dispatcher *Dispatcher
	jobs       repository.JobRepository
	lock       lock.DistributedLockManager
	clock      clock.Clock
	log        logger.Logger

	interval  time.Duration
	batchSize int
	sem       *semaphore.Weighted
	wg        sync.WaitGroup
}

func NewPoller(dispatcher *Dispatcher, jobs repository.JobRepository, lockManager lock.DistributedLockManager, clk clock.Clock, log logger.Logger, interval time.Duration, batchSize, workerCount int) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if workerCount <= 0 {
		workerCount = batchSize
	}
	return &Poller{
		dispatcher: dispatcher,
		jobs:       jobs,
		lock:       lockManager,
		clock:      clk,
		log:        log,
		interval:   interval,
		batchSize:  batchSize,
		sem:        semaphore.NewWeighted(int64(workerCount)),
	}
}

// Run blocks until ctx is cancelled, then waits for in-flight dispatches.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info("poller started", logger.Duration("interval", p.interval), logger.Int("batch_size", p.batchSize))

	for {
		select {
		case <-ctx.Done():
			p.log.Info("poller stopping")
			p.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	acquired, err := p.lock.TryAcquire(ctx)
	if err != nil {
		// Coordination store unavailable: skip the entire cycle,
		// retry next interval.
		p.log.Warn("lock acquisition failed, skipping cycle", logger.Error(err))
		return
	}
	if !acquired {
		p.log.Debug("lock held elsewhere, skipping cycle")
		return
	}
	defer func() {
		if err := p.lock.Release(ctx); err != nil {
			p.log.Debug("lock release failed", logger.Error(err))
		}
	}()

	now := p.clock.Now()
	due, err := p.jobs.FetchDueJobs(ctx, now, p.batchSize)
	if err != nil {
		p.log.Error("failed to fetch due jobs", logger.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}

	p.log.Debug("processing due jobs", logger.Int("count", len(due)))

	for _, job := range due {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return
		}
		p.wg.Add(1)

		go func(job models.ScheduledJob) {
			defer p.sem.Release(1)
			defer p.wg.Done()
			p.processJob(ctx, &job)
		}(job)
	}
}

// processJob isolates one job: neither an error nor a panic may take down
// the loop or the rest of the batch.
func (p *Poller) processJob(ctx context.Context, job *models.ScheduledJob) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("panic while dispatching job",
				logger.String("job_id", job.ID),
				logger.String("panic", fmt.Sprintf("%v", r)),
			)
		}
	}()

	if err := p.dispatcher.Dispatch(ctx, job); err != nil {
		p.log.Error("dispatch failed",
			logger.String("job_id", job.ID),
			logger.Error(err),
		)
	}
}
