package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// ScheduleTime is a time of day at which every active connection is synced.
type ScheduleTime struct {
	Hour   int
	Minute int
}

// String returns the time in HH:MM format.
func (st ScheduleTime) String() string {
	return fmt.Sprintf("%02d:%02d", st.Hour, st.Minute)
}

// ParseScheduleTime parses a time string in HH:MM format.
func ParseScheduleTime(s string) (ScheduleTime, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return ScheduleTime{}, fmt.Errorf("invalid time format (expected HH:MM): %w", err)
	}

	if hour < 0 || hour > 23 {
		return ScheduleTime{}, fmt.Errorf("invalid hour: %d (must be 0-23)", hour)
	}
	if minute < 0 || minute > 59 {
		return ScheduleTime{}, fmt.Errorf("invalid minute: %d (must be 0-59)", minute)
	}

	return ScheduleTime{Hour: hour, Minute: minute}, nil
}

// Config holds the schedule settings.
type Config struct {
	ScheduleTimes []string
	RunOnStartup  bool
	Location      *time.Location
}

// JobProvider lists the jobs of one sweep.
type JobProvider func(context.Context) ([]Job, error)

// Scheduler submits a sweep of jobs to the worker pool at fixed times of day.
type Scheduler struct {
	cron          gocron.Scheduler
	job           gocron.Job
	pool          *WorkerPool
	scheduleTimes []ScheduleTime
	runOnStartup  bool
	jobProvider   JobProvider
	logger        *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler registers a daily job at every configured time. The pool is
// shared with other producers and is not stopped by Shutdown.
func NewScheduler(cfg Config, pool *WorkerPool, provider JobProvider, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pool == nil || provider == nil {
		return nil, errors.New("scheduler requires a worker pool and a job provider")
	}

	times := make([]ScheduleTime, 0, len(cfg.ScheduleTimes))
	atTimes := make([]gocron.AtTime, 0, len(cfg.ScheduleTimes))
	for _, raw := range cfg.ScheduleTimes {
		st, err := ParseScheduleTime(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse schedule time %q: %w", raw, err)
		}
		times = append(times, st)
		atTimes = append(atTimes, gocron.NewAtTime(uint(st.Hour), uint(st.Minute), 0))
	}
	if len(times) == 0 {
		return nil, errors.New("at least one schedule time is required")
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	cron, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:          cron,
		pool:          pool,
		scheduleTimes: times,
		runOnStartup:  cfg.RunOnStartup,
		jobProvider:   provider,
		logger:        logger.Named("scheduler"),
		ctx:           ctx,
		cancel:        cancel,
	}

	s.job, err = cron.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(atTimes[0], atTimes[1:]...)),
		gocron.NewTask(func() { s.runJobs() }),
		gocron.WithName("sync-active-connections"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to register scheduled sync: %w", err)
	}

	s.logger.Info("Scheduler initialized", zap.Strings("times", cfg.ScheduleTimes))
	return s, nil
}

// Start begins the schedule and optionally runs one sweep immediately.
func (s *Scheduler) Start() {
	s.cron.Start()

	if s.runOnStartup {
		s.logger.Info("Running initial sweep on startup")
		s.TriggerNow()
	}

	if next, err := s.NextRun(); err == nil {
		s.logger.Info("Scheduler started", zap.Time("next_run", next))
	}
}

// TriggerNow runs one sweep in the background.
func (s *Scheduler) TriggerNow() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runJobs()
	}()
}

// runJobs asks the provider for this sweep's jobs and hands them to the pool.
// It returns the number of jobs accepted.
func (s *Scheduler) runJobs() int {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	jobs, err := s.jobProvider(ctx)
	if err != nil {
		s.logger.Error("Failed to fetch jobs", zap.Error(err))
		return 0
	}
	if len(jobs) == 0 {
		s.logger.Info("No jobs to process")
		return 0
	}

	return s.pool.SubmitBatch(jobs)
}

// NextRun returns the next scheduled sweep.
func (s *Scheduler) NextRun() (time.Time, error) {
	return s.job.NextRun()
}

// ScheduleTimes returns the configured times of day.
func (s *Scheduler) ScheduleTimes() []ScheduleTime {
	return s.scheduleTimes
}

// Shutdown stops the schedule and waits up to timeout for in-flight sweeps.
func (s *Scheduler) Shutdown(timeout time.Duration) {
	s.cancel()

	if err := s.cron.Shutdown(); err != nil {
		s.logger.Warn("Scheduler shutdown", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped")
	case <-time.After(timeout):
		s.logger.Warn("Timeout waiting for sweeps to finish", zap.Duration("timeout", timeout))
	}
}
