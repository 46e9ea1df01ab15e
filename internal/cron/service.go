package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/packfinderz-settlement/pkg/logger"
	"github.com/angelmondragon/packfinderz-settlement/pkg/metrics"
)

const defaultTick = time.Minute

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Locks    Locker
	Metrics  *metrics.CronJobMetrics
	// Tick is how often the service checks for due jobs.
	Tick time.Duration
	Now  func() time.Time
}

// Service executes registered cron jobs, each on its own cadence and under its own lock.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	locks    Locker
	metrics  *metrics.CronJobMetrics
	tick     time.Duration
	now      func() time.Time
	nextRun  map[string]time.Time
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("locker required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	tick := params.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		locks:    params.Locks,
		metrics:  params.Metrics,
		tick:     tick,
		now:      now,
		nextRun:  map[string]time.Time{},
	}, nil
}

// Run starts the cron loop until the context is canceled. Every job runs once at startup.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.runDue(ctx); err != nil {
		s.logg.Error(ctx, "scheduled run failed", err)
	}
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runDue(ctx); err != nil {
				s.logg.Error(ctx, "scheduled run failed", err)
			}
		}
	}
}

// runDue runs every job whose next slot has passed and returns the combined job errors.
func (s *Service) runDue(ctx context.Context) error {
	var errs error
	for _, entry := range s.registry.Entries() {
		name := entry.Job.Name()
		now := s.now()
		if next, ok := s.nextRun[name]; ok && now.Before(next) {
			continue
		}
		s.nextRun[name] = now.Add(entry.Every)
		if err := s.runLocked(ctx, entry); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errs
}

func (s *Service) runLocked(ctx context.Context, entry Entry) error {
	name := entry.Job.Name()
	unlock, locked, err := s.locks.TryLock(ctx, name, entry.Every)
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		s.logg.Info(s.logg.WithField(ctx, "job", name), "job held by another cron instance; skipping")
		s.metrics.IncSkipped(name)
		return nil
	}
	defer func() {
		if relErr := unlock(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()
	return s.runJob(ctx, entry.Job)
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	s.logg.Info(jobCtx, "job start")
	start := time.Now()
	err := job.Run(jobCtx)
	duration := time.Since(start)
	s.metrics.ObserveRun(job.Name(), duration, err)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return err
	}
	s.logg.Info(jobCtx, "job completed")
	return nil
}
