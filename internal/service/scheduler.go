package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"hypertoken/internal/cache"
	cronrunner "hypertoken/internal/cron"
)

// ErrCycleInProgress is returned by Trigger while another cycle holds the lock.
var ErrCycleInProgress = errors.New("token sync cycle already in progress")

const cycleLockKey = "tokens:sync-lock"

type Cycler interface {
	RunCycle(ctx context.Context) (CycleResult, error)
}

type SchedulerConfig struct {
	// Spec is a robfig/cron spec, e.g. "@every 60s".
	Spec       string
	LockTTL    time.Duration
	RunOnStart bool
	Clock      clockwork.Clock
}

// Scheduler runs cycles on a cron cadence and on demand. Runs never overlap:
// each one takes a lock in the cache first. With a shared cache backend the
// lock also holds across processes. The holder renews the lock every LockTTL/3
// while its cycle runs, so LockTTL only bounds how long a crashed holder can
// block later runs.
type Scheduler struct {
	cycler Cycler
	locks  cache.Store
	logger *zap.Logger
	cfg    SchedulerConfig

	runner *cronrunner.Runner
	wg     sync.WaitGroup
}

func NewScheduler(cycler Cycler, locks cache.Store, logger *zap.Logger, cfg SchedulerConfig) *Scheduler {
	if locks == nil {
		locks = cache.NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Spec == "" {
		cfg.Spec = "@every 60s"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		cycler: cycler,
		locks:  locks,
		logger: logger,
		cfg:    cfg,
	}
}

// Start registers the cron entry and, when configured, kicks off one cycle
// right away. Jobs run with ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.runner = cronrunner.New(s.logger, ctx)
	if _, err := s.runner.Add("token-sync", s.cfg.Spec, s.tick); err != nil {
		return fmt.Errorf("register token sync: %w", err)
	}
	if s.cfg.RunOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tick(ctx)
		}()
	}
	s.runner.Start()
	return nil
}

// Stop waits for the running cycle, if any.
func (s *Scheduler) Stop() {
	if s.runner != nil {
		s.runner.Stop()
	}
	s.wg.Wait()
}

// Trigger runs one cycle synchronously.
func (s *Scheduler) Trigger(ctx context.Context) (CycleResult, error) {
	return s.run(ctx, "manual")
}

func (s *Scheduler) tick(ctx context.Context) {
	_, err := s.run(ctx, "scheduled")
	switch {
	case errors.Is(err, ErrCycleInProgress):
		s.logger.Info("token sync tick skipped, previous cycle still running")
	case err != nil:
		s.logger.Error("scheduled token sync failed", zap.Error(err))
	}
}

func (s *Scheduler) run(ctx context.Context, trigger string) (CycleResult, error) {
	owner := []byte(uuid.NewString())
	ok, err := s.locks.SetNX(ctx, cycleLockKey, owner, s.cfg.LockTTL)
	if err != nil {
		return CycleResult{}, fmt.Errorf("acquire sync lock: %w", err)
	}
	if !ok {
		return CycleResult{}, ErrCycleInProgress
	}
	renewCtx, stopRenew := context.WithCancel(context.WithoutCancel(ctx))
	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		s.renewLock(renewCtx, owner)
	}()
	defer func() {
		stopRenew()
		<-renewed
		if _, err := s.locks.DeleteIfEquals(context.WithoutCancel(ctx), cycleLockKey, owner); err != nil {
			s.logger.Warn("release sync lock failed", zap.Error(err))
		}
	}()

	s.logger.Info("token sync cycle started", zap.String("trigger", trigger))
	return s.cycler.RunCycle(ctx)
}

func (s *Scheduler) renewLock(ctx context.Context, owner []byte) {
	ticker := s.cfg.Clock.NewTicker(s.cfg.LockTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			ok, err := s.locks.ExpireIfEquals(ctx, cycleLockKey, owner, s.cfg.LockTTL)
			switch {
			case err != nil:
				s.logger.Warn("renew sync lock failed", zap.Error(err))
			case !ok:
				s.logger.Warn("sync lock lost while cycle running")
			}
		}
	}
}
