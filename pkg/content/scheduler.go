package content

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultPurgeSchedule runs the retention purge daily at 3 AM.
const DefaultPurgeSchedule = "0 3 * * *"

// Purger removes cache entries past retention.
type Purger interface {
	Purge(ctx context.Context) (int, error)
}

// RetentionScheduler runs a Purger on a cron schedule.
type RetentionScheduler struct {
	purger   Purger
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// NewRetentionScheduler creates a scheduler. An empty schedule selects
// DefaultPurgeSchedule.
func NewRetentionScheduler(purger Purger, schedule string, logger *slog.Logger) *RetentionScheduler {
	if schedule == "" {
		schedule = DefaultPurgeSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionScheduler{
		purger:   purger,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger.With("component", "content.retention"),
	}
}

// Start schedules purging. It stops when ctx is canceled.
//
// Common cron expressions:
//   - "0 3 * * *"    - Daily at 3 AM
//   - "0 */6 * * *"  - Every 6 hours
//   - "@every 1h"    - Hourly from start
func (s *RetentionScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule purge: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("content retention scheduler started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunOnce performs one purge cycle and returns the number of removed entries.
func (s *RetentionScheduler) RunOnce(ctx context.Context) int {
	deleted, err := s.purger.Purge(ctx)
	if err != nil {
		s.logger.Error("scheduled content purge failed", "error", err)
		return 0
	}

	if deleted > 0 {
		s.logger.Info("scheduled content purge completed", "deleted_count", deleted)
	} else {
		s.logger.Debug("scheduled content purge completed, nothing to delete")
	}
	return deleted
}

// Stop stops the scheduler and waits for a running purge to complete.
func (s *RetentionScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("content retention scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *RetentionScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled purge time.
func (s *RetentionScheduler) NextRun() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}, false
	}
	return entries[0].Next, true
}
