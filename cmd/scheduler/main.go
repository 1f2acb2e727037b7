package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/biuroflow/scheduler/internal/api"
	"github.com/biuroflow/scheduler/internal/calendar"
	"github.com/biuroflow/scheduler/internal/clock"
	"github.com/biuroflow/scheduler/internal/config"
	"github.com/biuroflow/scheduler/internal/cronexpr"
	"github.com/biuroflow/scheduler/internal/db"
	"github.com/biuroflow/scheduler/internal/executor"
	"github.com/biuroflow/scheduler/internal/lock"
	"github.com/biuroflow/scheduler/internal/logger"
	"github.com/biuroflow/scheduler/internal/models"
	"github.com/biuroflow/scheduler/internal/repository/postgres"
	"github.com/biuroflow/scheduler/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sqlDB, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer sqlDB.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	lockManager := lock.NewRedisLockManager(redisClient, cfg.Scheduler.LockKey, cfg.Scheduler.LockTTL)

	if err := initSchema(ctx, sqlDB, lockManager, log); err != nil {
		return err
	}

	jobs := postgres.NewJobRepository(sqlDB)
	history := postgres.NewExecutionLogRepository(sqlDB)
	holidays := postgres.NewHolidayCalendar(sqlDB)

	if err := seedPolishCalendar(ctx, holidays); err != nil {
		return fmt.Errorf("seed holiday calendar: %w", err)
	}

	clk := clock.New()
	cron := cronexpr.New()
	skip := scheduler.NewSkipPolicyEvaluator(cron, holidays, cfg.Scheduler.MaxLookaheadDays)
	engine := executor.NewNoop(log)
	dispatcher := scheduler.NewDispatcher(jobs, history, engine, skip, clk, log)
	reconciler := scheduler.NewReconciler(jobs, history, skip, dispatcher, clk, log, cfg.Scheduler.MarkRemainderMissed)
	service := scheduler.NewService(jobs, history, cron, holidays, skip, dispatcher, reconciler, clk, log)
	poller := scheduler.NewPoller(dispatcher, jobs, lockManager, clk, log,
		cfg.Scheduler.PollInterval, cfg.Scheduler.BatchSize, cfg.Scheduler.WorkerCount)

	health := func(ctx context.Context) error {
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	}

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewRouter(service, health, log),
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("http server listening", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("poller: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", logger.Error(err))
	}
	log.Info("scheduler stopped")
	return nil
}

// initSchema runs the DDL under the distributed lock so replicas starting
// together do not race each other.
func initSchema(ctx context.Context, sqlDB *sql.DB, lockManager *lock.RedisLockManager, log logger.Logger) error {
	for {
		acquired, err := lockManager.TryAcquire(ctx)
		if err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		if acquired {
			break
		}
		log.Info("waiting for migration lock")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	defer func() {
		if err := lockManager.Release(ctx); err != nil {
			log.Warn("release migration lock", logger.Error(err))
		}
	}()

	return db.Init(ctx, sqlDB)
}

func seedPolishCalendar(ctx context.Context, holidays *postgres.HolidayCalendar) error {
	year := time.Now().Year()
	var rows []models.Holiday
	for _, y := range []int{year, year + 1} {
		for _, h := range calendar.PolishHolidays(y) {
			rows = append(rows, models.Holiday{
				Date:         h.Date,
				CalendarCode: calendar.CalendarCodePL,
				Name:         h.Name,
			})
		}
	}
	return holidays.Seed(ctx, rows)
}
