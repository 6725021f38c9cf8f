package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"listingsync/internal/publish"
)

// Syncer refreshes the platform status of stale publications
type Syncer interface {
	SyncStale(ctx context.Context, hoursStale int) (*publish.SyncReport, error)
}

// Config configures the scheduler
type Config struct {
	Interval   time.Duration // time between sync passes
	StaleHours int           // publications not synced for this long are polled
	Timeout    time.Duration // upper bound for one pass, zero means Interval
}

// Scheduler runs periodic status syncs of stale publications
type Scheduler struct {
	syncer   Syncer
	config   Config
	stopChan chan struct{}
	stopOnce sync.Once
	logger   *slog.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(syncer Syncer, config Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = config.Interval
	}
	return &Scheduler{
		syncer:   syncer,
		config:   config,
		stopChan: make(chan struct{}),
		logger:   logger.With("component", "scheduler"),
	}
}

// Start begins the scheduler loop. It blocks until Stop is called.
func (s *Scheduler) Start() {
	s.logger.Info("Scheduler started",
		"interval", s.config.Interval,
		"stale_hours", s.config.StaleHours)
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.stopChan:
			s.logger.Info("Scheduler stopped")
			return
		}
	}
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// tick performs one sync pass. Errors are logged and the loop continues.
func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	// Abandon the pass if Stop is called mid-way
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	report, err := s.syncer.SyncStale(ctx, s.config.StaleHours)
	if err != nil {
		s.logger.Error("Stale publication sync failed", "error", err)
		return
	}

	s.logger.Debug("Scheduler tick",
		"checked", report.Checked,
		"updated", report.Updated,
		"failed", report.Failed)
}
