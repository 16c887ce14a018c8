package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"crm_reminders/internal/app"
	"crm_reminders/internal/infra/metrics"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const defaultCycleTimeout = 50 * time.Second

// CycleProcessor runs one due-reminder cycle.
type CycleProcessor interface {
	ProcessDueReminders(ctx context.Context) (app.CycleSummary, error)
}

// CycleLocker guards cycles across replicas. TryLock reports ok=false when
// another holder owns the lock; unlock must be called when ok is true.
type CycleLocker interface {
	TryLock(ctx context.Context) (unlock func(), ok bool, err error)
}

type Config struct {
	CronSpec     string // e.g. "* * * * *" or "@every 30s"
	CycleTimeout time.Duration
	Locker       CycleLocker // Optional
}

// ReminderScheduler triggers reminder cycles on a cron schedule. At most one
// cycle runs at a time in this process: a tick that arrives while a cycle is
// in flight is dropped, not queued.
type ReminderScheduler struct {
	processor CycleProcessor
	locker    CycleLocker
	logger    *logrus.Entry
	cronSpec  string
	timeout   time.Duration

	mu         sync.Mutex
	cronEngine *cron.Cron
	running    bool

	busy atomic.Bool
}

func NewReminderScheduler(p CycleProcessor, cfg Config, logger *logrus.Entry) *ReminderScheduler {
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = defaultCycleTimeout
	}
	return &ReminderScheduler{
		processor: p,
		locker:    cfg.Locker,
		logger:    logger.WithField("component", "reminder_scheduler"),
		cronSpec:  cfg.CronSpec,
		timeout:   cfg.CycleTimeout,
	}
}

// Start registers the cycle job and starts the timer. Calling Start on a
// running scheduler logs a warning and does nothing.
func (s *ReminderScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Warn("Reminder scheduler already running, ignoring Start")
		return nil
	}

	cronLogger := cron.PrintfLogger(s.logger)
	engine := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger)),
	)
	if _, err := engine.AddFunc(s.cronSpec, func() { s.Tick(context.Background()) }); err != nil {
		return fmt.Errorf("could not add reminder cycle job %q: %w", s.cronSpec, err)
	}
	engine.Start()

	s.cronEngine = engine
	s.running = true
	s.logger.WithField("cron_spec", s.cronSpec).Info("Reminder scheduler started")
	return nil
}

// Stop removes the timer. A cycle already in flight is not interrupted; the
// returned context is done once it has finished.
func (s *ReminderScheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	ctx := s.cronEngine.Stop()
	s.cronEngine = nil
	s.running = false
	s.logger.Info("Reminder scheduler stopped")
	return ctx
}

// IsRunning reports whether the timer is active.
func (s *ReminderScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// IsBusy reports whether a cycle is in flight.
func (s *ReminderScheduler) IsBusy() bool {
	return s.busy.Load()
}

// Tick runs one cycle unless one is already in flight (or another replica
// holds the cycle lock). ran is false when the tick was dropped.
func (s *ReminderScheduler) Tick(ctx context.Context) (summary app.CycleSummary, ran bool) {
	if !s.busy.CompareAndSwap(false, true) {
		s.logger.Warn("Previous reminder cycle still running, skipping tick")
		metrics.TicksSkipped.WithLabelValues("busy").Inc()
		return summary, false
	}
	defer s.busy.Store(false)

	if s.locker != nil {
		unlock, ok, err := s.locker.TryLock(ctx)
		if err != nil {
			s.logger.WithError(err).Error("Could not acquire reminder cycle lock")
			metrics.CyclesTotal.WithLabelValues("lock_error").Inc()
			return summary, false
		}
		if !ok {
			s.logger.Debug("Reminder cycle lock held elsewhere, skipping tick")
			metrics.TicksSkipped.WithLabelValues("locked").Inc()
			return summary, false
		}
		defer unlock()
	}

	return s.runCycle(ctx), true
}

func (s *ReminderScheduler) runCycle(parent context.Context) (summary app.CycleSummary) {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.CycleDuration.Observe(time.Since(start).Seconds())
		if rec := recover(); rec != nil {
			s.logger.WithField("panic", rec).Error("Reminder cycle panicked")
			metrics.CyclesTotal.WithLabelValues("panic").Inc()
		}
	}()

	summary, err := s.processor.ProcessDueReminders(ctx)
	if err != nil {
		var cycleErr *app.CycleError
		if errors.As(err, &cycleErr) {
			s.logger.WithError(cycleErr.Err).WithField("op", cycleErr.Op).Error("Reminder cycle aborted")
		} else {
			s.logger.WithError(err).Error("Reminder cycle failed")
		}
		metrics.CyclesTotal.WithLabelValues("error").Inc()
		return summary
	}
	metrics.CyclesTotal.WithLabelValues("ok").Inc()
	return summary
}
