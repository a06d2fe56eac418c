package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
	"github.com/custodia-labs/sercha-social/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-social/internal/telemetry"
)

// schedulerLockName guards one poll cycle across instances.
const schedulerLockName = "refresh-scheduler"

// ConnectionRefresher refreshes one connection. The OAuth service
// implements it.
type ConnectionRefresher interface {
	RefreshConnection(ctx context.Context, userID string, platform domain.Platform, trigger domain.RefreshTrigger) (*domain.PlatformConnection, error)
}

// RefreshScheduler runs durable proactive refresh jobs.
// It runs on worker nodes and polls the job store for due jobs.
//
// For multi-worker deployments, configure a DistributedLock so each job
// is run by one instance per cycle.
type RefreshScheduler struct {
	jobs      driven.RefreshJobStore
	refresher ConnectionRefresher
	states    driven.OAuthStateStore
	lock      driven.DistributedLock
	logger    *slog.Logger
	now       func() time.Time

	// Internal state
	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	interval time.Duration

	batchSize int
	lockTTL   time.Duration
}

// RefreshSchedulerConfig holds configuration for the refresh scheduler.
type RefreshSchedulerConfig struct {
	Jobs         driven.RefreshJobStore
	Refresher    ConnectionRefresher
	StateStore   driven.OAuthStateStore // Optional: expired states are swept each cycle
	Lock         driven.DistributedLock // Optional: distributed lock for multi-instance coordination
	Logger       *slog.Logger
	PollInterval time.Duration // How often to check for due jobs (default: 1m)
	BatchSize    int           // Max jobs per cycle (default: 100)
	LockTTL      time.Duration // TTL for the distributed lock (default: 2x poll interval)
	Now          func() time.Time
}

// NewRefreshScheduler creates a new refresh scheduler.
func NewRefreshScheduler(cfg RefreshSchedulerConfig) *RefreshScheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.PollInterval
	if interval <= 0 {
		interval = time.Minute
	}

	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 2 * interval
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &RefreshScheduler{
		jobs:      cfg.Jobs,
		refresher: cfg.Refresher,
		states:    cfg.StateStore,
		lock:      cfg.Lock,
		logger:    logger,
		now:       now,
		interval:  interval,
		batchSize: batch,
		lockTTL:   lockTTL,
	}
}

// Start begins the scheduler loop.
// It runs until Stop is called or context is cancelled.
func (s *RefreshScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("refresh scheduler starting", "poll_interval", s.interval, "batch_size", s.batchSize)

	go s.run(ctx)

	return nil
}

// Stop gracefully stops the scheduler.
func (s *RefreshScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.mu.Unlock()

	// Wait for the current cycle to finish
	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("refresh scheduler stopped")
}

// Running reports whether the loop is active.
func (s *RefreshScheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *RefreshScheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("refresh scheduler context cancelled")
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs one poll cycle and returns the number of jobs processed.
// If a distributed lock is configured and held elsewhere, nothing runs.
func (s *RefreshScheduler) RunOnce(ctx context.Context) int {
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, schedulerLockName, s.lockTTL)
		if err != nil {
			s.logger.Warn("failed to acquire scheduler lock, skipping cycle", "error", err)
			return 0
		}
		if !acquired {
			s.logger.Debug("scheduler lock held by another instance, skipping cycle")
			return 0
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx), schedulerLockName); err != nil {
				s.logger.Warn("failed to release scheduler lock", "error", err)
			}
		}()
	}

	now := s.now()
	if n, err := s.jobs.CountDue(ctx, now); err == nil {
		telemetry.SetRefreshJobsDue(n)
	}

	jobs, err := s.jobs.Due(ctx, now, s.batchSize)
	if err != nil {
		s.logger.Error("failed to get due refresh jobs", "error", err)
		return 0
	}

	processed := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		s.runJob(ctx, job)
		processed++
	}

	if s.states != nil {
		if err := s.states.Cleanup(ctx); err != nil {
			s.logger.Warn("failed to clean up oauth states", "error", err)
		}
	}

	return processed
}

// runJob refreshes one connection. A failed refresh is retried on the
// next interval; a missing connection or credential drops the job.
func (s *RefreshScheduler) runJob(ctx context.Context, job *domain.RefreshJob) {
	logger := s.logger.With("platform", job.Platform, "user_id", job.UserID)

	if job.Interval <= 0 {
		logger.Warn("refresh job has no interval, dropping")
		s.deleteJob(ctx, job)
		return
	}

	_, err := s.refresher.RefreshConnection(ctx, job.UserID, job.Platform, domain.RefreshTriggerScheduled)
	ranAt := s.now()

	var lastError string
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrMissingCredential):
		logger.Info("no refreshable connection, dropping refresh job", "reason", err)
		s.deleteJob(ctx, job)
		return
	case err != nil:
		lastError = err.Error()
		logger.Warn("scheduled refresh failed, retrying next interval",
			"attempts", job.Attempts+1,
			"error", err,
		)
	default:
		logger.Info("scheduled refresh succeeded")
	}

	next := ranAt.Add(job.Interval)
	if err := s.jobs.Reschedule(ctx, job.UserID, job.Platform, ranAt, next, lastError); err != nil {
		logger.Error("failed to reschedule refresh job", "error", err)
	}
}

func (s *RefreshScheduler) deleteJob(ctx context.Context, job *domain.RefreshJob) {
	if err := s.jobs.Delete(ctx, job.UserID, job.Platform); err != nil {
		s.logger.Warn("failed to delete refresh job", "platform", job.Platform, "user_id", job.UserID, "error", err)
	}
}
