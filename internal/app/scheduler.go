package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sufield/pkdpa/internal/bg"
	"github.com/sufield/pkdpa/internal/domain"
	"github.com/sufield/pkdpa/internal/ports"
)

// defaultWarmupDelay is how long after Start the one-shot warm-up sync check
// fires. It gives the LDAP pool time to come up before the first comparison.
const defaultWarmupDelay = 10 * time.Second

// Scheduler drives the daily maintenance cycle: sync check, optional
// certificate revalidation, and optional auto-reconciliation when the check
// reports a discrepancy.
//
// The run loop is a monitor: a mutex plus condition variable guarded by
// three predicates (stopping, forced trigger, timer fired). Manual triggers
// raised while a cycle is running are queued, not dropped: the force flag
// stays set and the loop re-enters a cycle as soon as the current one ends.
// At most one cycle runs at a time, and at most one scheduled cycle runs per
// calendar day.
type Scheduler struct {
	syncChecker ports.SyncChecker
	revalidator ports.Revalidator
	reconciler  ports.Reconciler
	configStore ports.SyncConfigStore
	runner      bg.Runner
	clock       func() time.Time
	logger      *zap.Logger
	warmupDelay time.Duration

	mu                sync.Mutex
	cond              *sync.Cond
	cfg               ports.SyncConfig
	forceDaily        bool
	timerFired        bool
	reloadRequested   bool
	stopping          bool
	cycleRunning      bool
	lastDailySyncDate string
	timer             *time.Timer
	stopped           chan struct{}
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerClock injects the time source.
func WithSchedulerClock(clock func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.clock = clock }
}

// WithSchedulerLogger sets a structured logger.
func WithSchedulerLogger(logger *zap.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithWarmupDelay overrides the warm-up delay (tests shrink it).
func WithWarmupDelay(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.warmupDelay = d }
}

// NewScheduler wires the daily cycle over the three maintenance services.
func NewScheduler(syncChecker ports.SyncChecker, revalidator ports.Revalidator, reconciler ports.Reconciler, configStore ports.SyncConfigStore, runner bg.Runner, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		syncChecker: syncChecker,
		revalidator: revalidator,
		reconciler:  reconciler,
		configStore: configStore,
		runner:      runner,
		clock:       time.Now,
		logger:      zap.NewNop(),
		warmupDelay: defaultWarmupDelay,
		stopped:     make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads the persisted configuration, schedules the warm-up check, and
// launches the run loop.
func (s *Scheduler) Start(ctx context.Context) error {
	cfg, err := s.configStore.Load(ctx)
	if err != nil {
		s.logger.Warn("sync config not loaded, using defaults", zap.Error(err))
		cfg = ports.DefaultSyncConfig()
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	s.runner.Do(func() { s.warmup(ctx) })
	s.runner.Do(func() { s.loop(ctx) })

	s.logger.Info("scheduler started",
		zap.Bool("daily_enabled", cfg.DailySyncEnabled),
		zap.Int("hour", cfg.DailySyncHour),
		zap.Int("minute", cfg.DailySyncMinute))
	return nil
}

// warmup runs the one-shot post-start sync check.
func (s *Scheduler) warmup(ctx context.Context) {
	select {
	case <-time.After(s.warmupDelay):
	case <-ctx.Done():
		return
	}
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	if _, err := s.syncChecker.RunSyncCheck(ctx, "STARTUP"); err != nil {
		s.logger.Warn("warm-up sync check failed", zap.Error(err))
	}
}

// loop is the monitor. It recomputes the wait to the next scheduled
// occurrence each iteration, sleeps on the condition variable until a
// predicate flips, and runs at most one cycle per wake.
func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.stopped)
	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.stopping {
		s.armTimer()

		for !s.stopping && !s.forceDaily && !s.timerFired && !s.reloadRequested {
			s.cond.Wait()
		}
		s.disarmTimer()
		if s.stopping {
			return
		}
		if s.reloadRequested && !s.forceDaily && !s.timerFired {
			// Config changed; go around and re-arm with the new schedule.
			s.reloadRequested = false
			continue
		}
		s.reloadRequested = false

		forced := s.forceDaily
		s.forceDaily = false
		s.timerFired = false

		if !forced && !s.cfg.DailySyncEnabled {
			continue
		}
		today := s.clock().Format("2006-01-02")
		if !forced && s.lastDailySyncDate == today {
			continue
		}

		s.cycleRunning = true
		cfg := s.cfg
		s.mu.Unlock()

		trigger := "DAILY_SYNC"
		if forced {
			trigger = "MANUAL"
		}
		s.runCycle(ctx, cfg, trigger)

		s.mu.Lock()
		s.lastDailySyncDate = today
		s.cycleRunning = false
		s.cond.Broadcast()
	}
}

// armTimer points the wake-up timer at the next HH:MM occurrence.
func (s *Scheduler) armTimer() {
	wait := nextOccurrence(s.clock(), s.cfg.DailySyncHour, s.cfg.DailySyncMinute)
	s.timer = time.AfterFunc(wait, func() {
		s.mu.Lock()
		s.timerFired = true
		s.cond.Broadcast()
		s.mu.Unlock()
	})
}

func (s *Scheduler) disarmTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// runCycle executes one maintenance cycle outside the monitor lock.
func (s *Scheduler) runCycle(ctx context.Context, cfg ports.SyncConfig, trigger string) {
	s.logger.Info("daily cycle starting", zap.String("trigger", trigger))

	status, err := s.syncChecker.RunSyncCheck(ctx, trigger)
	if err != nil {
		s.logger.Error("daily sync check failed", zap.Error(err))
	}

	if cfg.RevalidateCertsOnSync && s.revalidator != nil {
		if _, err := s.revalidator.Revalidate(ctx, trigger); err != nil {
			s.logger.Error("daily revalidation failed", zap.Error(err))
		}
	}

	if cfg.AutoReconcile && s.reconciler != nil && status != nil && status.State == domain.SyncDiscrepancy {
		if _, err := s.reconciler.Reconcile(ctx, ports.ReconcileOptions{
			TriggeredBy:  trigger,
			SyncStatusID: status.ID,
		}); err != nil {
			s.logger.Error("auto-reconciliation failed", zap.Error(err))
		}
	}

	s.logger.Info("daily cycle finished", zap.String("trigger", trigger))
}

// TriggerNow queues an immediate cycle. Safe to call at any time; triggers
// raised during a running cycle execute once it completes.
func (s *Scheduler) TriggerNow() {
	s.mu.Lock()
	s.forceDaily = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Reload refreshes the configuration from the store and re-arms the wait.
func (s *Scheduler) Reload(ctx context.Context) error {
	cfg, err := s.configStore.Load(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.reloadRequested = true
	s.cond.Broadcast()
	s.mu.Unlock()
	s.logger.Info("scheduler configuration reloaded",
		zap.Bool("daily_enabled", cfg.DailySyncEnabled),
		zap.Int("hour", cfg.DailySyncHour),
		zap.Int("minute", cfg.DailySyncMinute))
	return nil
}

// Stop shuts the loop down and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopping = true
	s.cond.Broadcast()
	s.mu.Unlock()
	<-s.stopped
}

// nextOccurrence computes the wait until the next HH:MM, rolling to
// tomorrow when today's slot has passed.
func nextOccurrence(now time.Time, hour, minute int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}
