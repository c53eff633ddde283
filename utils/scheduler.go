package utils

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RetryPolicy bounds how often a scheduled job is attempted per run.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Delay: 30 * time.Second}

// ScheduledJob is one unit of periodic work.
type ScheduledJob func(ctx context.Context) error

// Scheduler runs named jobs on cron specs, retrying failed runs.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		// A run still going when the next one is due is skipped.
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Schedule registers job under spec.
func (s *Scheduler) Schedule(spec, name string, policy RetryPolicy, job ScheduledJob) (cron.EntryID, error) {
	return s.cron.AddFunc(spec, func() {
		s.runWithRetry(name, policy, job)
	})
}

func (s *Scheduler) runWithRetry(name string, policy RetryPolicy, job ScheduledJob) bool {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		err := job(s.ctx)
		if err == nil {
			s.logger.Debug("Scheduled job finished", zap.String("job", name), zap.Int("attempt", attempt))
			return true
		}
		s.logger.Warn("Scheduled job failed",
			zap.String("job", name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err))
		if attempt == attempts {
			break
		}
		select {
		case <-s.ctx.Done():
			return false
		case <-time.After(policy.Delay):
		}
	}
	s.logger.Error("Scheduled job gave up after retries", zap.String("job", name), zap.Int("attempts", attempts))
	return false
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels pending retries and waits for running jobs.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}
