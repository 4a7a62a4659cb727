// Package service wires ingest runs into sinks, locks and the scheduled cycle.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"yutai-ranker/internal/alerting"
	"yutai-ranker/internal/orchestrator"
	"yutai-ranker/internal/scheduler"
	"yutai-ranker/internal/storage"
)

// RunReport is what one ingest job reports back to the cycle.
type RunReport struct {
	Job         string
	RunID       string
	Summary     orchestrator.Summary
	FailedCodes []string
	Interrupted bool
}

// Job is one ingest run, e.g. the benefit scrape or the price collection.
type Job struct {
	Name string
	Run  func(ctx context.Context) (RunReport, error)
}

// Options configure the cycle.
type Options struct {
	AdvisoryLockKey int64
	// NotifyOnFailureOnly suppresses summaries of runs without failures.
	NotifyOnFailureOnly bool
}

// Service runs jobs under an advisory lock and reports their summaries.
type Service struct {
	scheduler *scheduler.Scheduler
	jobs      []Job
	locker    storage.AdvisoryLocker
	notifier  alerting.Notifier
	opts      Options
	logger    zerolog.Logger
}

// New constructs the cycle service. sched is only needed by Run; locker and
// notifier may be nil.
func New(opts Options, sched *scheduler.Scheduler, jobs []Job, locker storage.AdvisoryLocker, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	return &Service{
		scheduler: sched,
		jobs:      jobs,
		locker:    locker,
		notifier:  notifier,
		opts:      opts,
		logger:    logger.With().Str("component", "service").Logger(),
	}
}

// Run begins the scheduled loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick 执行一次完整的采集周期。
func (s *Service) ProcessTick(ctx context.Context, at time.Time) error {
	_, err := s.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("cycle at %s: %w", at.UTC().Format(time.RFC3339), err)
	}
	return nil
}

// RunOnce runs every job in order and returns their reports. It returns no
// reports and no error when another process holds the lock.
func (s *Service) RunOnce(ctx context.Context) ([]RunReport, error) {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return nil, err
	}
	if !proceed {
		s.logger.Warn().Int64("lock_key", s.opts.AdvisoryLockKey).Msg("skip cycle because advisory lock held elsewhere")
		return nil, nil
	}
	if unlock != nil {
		defer unlock()
	}

	reports := make([]RunReport, 0, len(s.jobs))
	for _, job := range s.jobs {
		report, err := job.Run(ctx)
		if report.Job == "" {
			report.Job = job.Name
		}
		if err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Str("job", job.Name).Msg("job failed")
			return reports, fmt.Errorf("%s: %w", job.Name, err)
		}
		reports = append(reports, report)
		s.notify(report)
		if ctx.Err() != nil {
			return reports, ctx.Err()
		}
	}
	return reports, nil
}

func (s *Service) notify(report RunReport) {
	if s.notifier == nil {
		return
	}
	sum := report.Summary
	if s.opts.NotifyOnFailureOnly && sum.Failed == 0 && sum.PersistFailed == 0 && !report.Interrupted {
		return
	}
	note := alerting.Notification{
		Job:           report.Job,
		RunID:         report.RunID,
		Finished:      time.Now(),
		Elapsed:       sum.Elapsed,
		Succeeded:     sum.Succeeded,
		Failed:        sum.Failed,
		Skipped:       sum.Skipped,
		NotFound:      sum.NotFound,
		NoBenefit:     sum.NoBenefit,
		BenefitFound:  sum.BenefitFound,
		Records:       sum.Records,
		PersistFailed: sum.PersistFailed,
		FailedCodes:   report.FailedCodes,
		Interrupted:   report.Interrupted,
	}
	// the run context may already be cancelled at shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("job", report.Job).Msg("failed to dispatch run summary")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.AdvisoryLockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.AdvisoryLockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
