package cron

import (
	"context"
	"errors"
	"time"

	"go.uber.org/multierr"

	"github.com/lectern-edu/lectern-payments/pkg/logger"
	"github.com/lectern-edu/lectern-payments/pkg/metrics"
)

const (
	defaultInterval   = 15 * time.Minute
	defaultJobTimeout = 5 * time.Minute
)

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger     *logger.Logger
	Registry   *Registry
	Lock       Lock
	Metrics    *metrics.CronJobMetrics
	Interval   time.Duration
	JobTimeout time.Duration
}

// Service runs every registered job once per interval. The Redis lease keeps
// cycles from overlapping across worker replicas.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

// Report summarises one cycle. Skipped is set when another replica held the
// lease; Failures joins the errors of every job that failed.
type Report struct {
	Skipped  bool
	Ran      []string
	Failures error
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("cron: logger required")
	case params.Lock == nil:
		return nil, errors.New("cron: lock required")
	}
	s := &Service{
		logg:       params.Logger,
		registry:   params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
	}
	if s.registry == nil {
		s.registry = &Registry{}
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.jobTimeout <= 0 {
		s.jobTimeout = defaultJobTimeout
	}
	return s, nil
}

// Run executes a cycle immediately and then once per interval, measured from
// the end of the previous cycle, until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	s.logg.Info(s.logg.WithField(ctx, "jobs", s.registry.Names()), "cron.started")
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron.stopped")
			return ctx.Err()
		case <-timer.C:
		}
		report, err := s.runCycle(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "cron.cycle_failed", err)
		case report.Failures != nil:
			failed := len(multierr.Errors(report.Failures))
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"failed": failed, "ran": len(report.Ran)}), "cron.cycle_partial")
		}
		timer.Reset(s.interval)
	}
}

func (s *Service) runCycle(ctx context.Context) (Report, error) {
	var report Report
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return report, err
	}
	if !locked {
		report.Skipped = true
		s.logg.Debug(ctx, "cron.cycle_skipped")
		return report, nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "cron.release_failed", err)
		}
	}()

	for _, job := range s.registry.Jobs() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Ran = append(report.Ran, job.Name())
		if err := s.runJob(ctx, job); err != nil {
			report.Failures = multierr.Append(report.Failures, err)
		}
	}
	return report, nil
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	ctx = s.logg.WithField(ctx, "job", job.Name())
	jobCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()

	start := time.Now()
	err := job.Run(jobCtx)
	elapsed := time.Since(start)
	s.metrics.Record(job.Name(), elapsed, err)

	ctx = s.logg.WithField(ctx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "cron.job_failed", err)
		return err
	}
	s.logg.Info(ctx, "cron.job_done")
	return nil
}
