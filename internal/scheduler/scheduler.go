// Package scheduler keeps the snapshot cache warm by periodically syncing
// a trailing window and mirroring it to the remote tier.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/nisab/internal/cadence"
	"github.com/newthinker/nisab/internal/core"
	"github.com/newthinker/nisab/internal/syncer"
)

// Runner performs the work of one cycle. *syncer.Syncer implements it.
type Runner interface {
	SyncRange(ctx context.Context, req syncer.Request) (*syncer.Report, error)
	Mirror(ctx context.Context, req syncer.Request) (*syncer.MirrorReport, error)
	MirrorEnabled() bool
}

// Notifier receives the report of each cycle. *notifier.Registry implements it.
type Notifier interface {
	NotifyAll(ctx context.Context, report *syncer.Report) map[string]error
}

// Config controls the refresh loop.
type Config struct {
	Interval       time.Duration
	LookbackMonths int
}

// Scheduler runs a refresh cycle at startup and then once per interval.
type Scheduler struct {
	runner   Runner
	logger   *zap.Logger
	interval time.Duration
	lookback int
	now      func() time.Time

	notifier     Notifier
	onlyFailures bool

	mu         sync.RWMutex
	running    bool
	cancel     context.CancelFunc
	cycles     int
	lastRun    time.Time
	lastReport *syncer.Report
}

// New creates a scheduler. A non-positive interval defaults to 6 hours.
func New(runner Runner, cfg Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Hour
	}
	if cfg.LookbackMonths < 0 {
		cfg.LookbackMonths = 0
	}
	return &Scheduler{
		runner:   runner,
		logger:   logger,
		interval: cfg.Interval,
		lookback: cfg.LookbackMonths,
		now:      time.Now,
	}
}

// SetNotifier sends cycle reports to n. With onlyFailures, clean runs
// are not reported. Call before Start.
func (s *Scheduler) SetNotifier(n Notifier, onlyFailures bool) {
	s.notifier = n
	s.onlyFailures = onlyFailures
}

// Window returns the range a cycle covers: from the first of the month
// LookbackMonths before today, through today.
func (s *Scheduler) Window(today time.Time) (start, end time.Time) {
	end = core.Day(today)
	start = cadence.FirstOfMonth(end).AddDate(0, -s.lookback, 0)
	if start.Before(cadence.EarliestDate) {
		start = cadence.EarliestDate
	}
	return start, end
}

// Start blocks until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.Info("scheduler starting",
		zap.Duration("interval", s.interval),
		zap.Int("lookback_months", s.lookback),
		zap.Bool("mirror", s.runner.MirrorEnabled()),
	)

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down")
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// Stop stops the refresh loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// RunOnce performs a single refresh cycle.
func (s *Scheduler) RunOnce(ctx context.Context) {
	today := core.Today(s.now())
	start, end := s.Window(today)
	req := syncer.Request{Start: start, End: end, Today: today}

	report, err := s.runner.SyncRange(ctx, req)
	if err != nil {
		s.logger.Error("scheduled sync failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.cycles++
	s.lastRun = s.now().UTC()
	s.lastReport = report
	s.mu.Unlock()

	s.notify(ctx, report)

	if ctx.Err() != nil || !s.runner.MirrorEnabled() {
		return
	}
	if _, err := s.runner.Mirror(ctx, req); err != nil {
		s.logger.Warn("scheduled mirror failed", zap.Error(err))
	}
}

// notify skips clean runs when onlyFailures is set. Items that failed only
// because no provider is configured do not count, so an unkeyed
// deployment is not paged every cycle.
func (s *Scheduler) notify(ctx context.Context, report *syncer.Report) {
	if s.notifier == nil || (s.onlyFailures && report.Actionable() == 0) {
		return
	}
	for name, err := range s.notifier.NotifyAll(context.WithoutCancel(ctx), report) {
		s.logger.Warn("notification failed", zap.String("notifier", name), zap.Error(err))
	}
}

// Stats returns scheduler state for status endpoints.
func (s *Scheduler) Stats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"running":  s.running,
		"interval": s.interval.String(),
		"cycles":   s.cycles,
	}
	if !s.lastRun.IsZero() {
		stats["last_run"] = s.lastRun
	}
	if s.lastReport != nil {
		stats["last_run_id"] = s.lastReport.RunID
		stats["last_failed"] = s.lastReport.Failed
	}
	return stats
}
