// Package ratelimit admits outbound calls against a per-interval weight budget
// and a bounded number of concurrent slots, retrying calls the upstream
// rejects with a rate-limit status.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrRateLimited marks an upstream rejection that should be retried.
	ErrRateLimited = errors.New("rate limited")

	// ErrRetriesExhausted wraps the last rate-limit error once MaxRetries is spent.
	ErrRetriesExhausted = errors.New("rate limit retries exhausted")

	// ErrWeightExceedsBudget is returned for a weight no window could ever admit.
	ErrWeightExceedsBudget = errors.New("weight exceeds budget")
)

type Config struct {
	WeightBudget  int
	Interval      time.Duration
	MaxConcurrent int
	MaxRetries    int
	BaseBackoff   time.Duration
}

func DefaultConfig() Config {
	return Config{
		WeightBudget:  1200,
		Interval:      time.Minute,
		MaxConcurrent: 5,
		MaxRetries:    5,
		BaseBackoff:   time.Second,
	}
}

type Option func(*Limiter)

func WithClock(c clockwork.Clock) Option {
	return func(l *Limiter) {
		if c != nil {
			l.clock = c
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// Limiter is safe for concurrent use. One instance should be shared by every
// client that draws on the same upstream quota.
type Limiter struct {
	cfg    Config
	clock  clockwork.Clock
	logger *zap.Logger
	slots  *semaphore.Weighted

	waiting atomic.Int64

	mu     sync.Mutex
	window int64
	used   int
}

func New(cfg Config, opts ...Option) *Limiter {
	def := DefaultConfig()
	if cfg.WeightBudget <= 0 {
		cfg.WeightBudget = def.WeightBudget
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	l := &Limiter{
		cfg:   cfg,
		clock: clockwork.NewRealClock(),
		slots: semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Execute runs op once it has been admitted. Admission reserves weight from
// the current window (waiting for the next window boundary when the budget
// is spent) and then takes a concurrency slot; waiters get slots in
// submission order. Rate-limited failures are retried after
// BaseBackoff*2^attempt through the same admission path. Spent weight is
// never refunded.
func (l *Limiter) Execute(ctx context.Context, weight int, op func(ctx context.Context) error) error {
	if l == nil {
		return op(ctx)
	}
	if weight < 0 {
		weight = 0
	}
	if weight > l.cfg.WeightBudget {
		return fmt.Errorf("%w: %d > %d", ErrWeightExceedsBudget, weight, l.cfg.WeightBudget)
	}
	for attempt := 0; ; attempt++ {
		if err := l.admit(ctx, weight); err != nil {
			return err
		}
		err := l.run(ctx, op)
		if err == nil {
			return nil
		}
		if !IsRateLimited(err) {
			return err
		}
		if attempt >= l.cfg.MaxRetries {
			return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt+1, err)
		}
		backoff := l.cfg.BaseBackoff * time.Duration(1<<attempt)
		if l.logger != nil {
			l.logger.Warn("rate limited, backing off",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
				zap.Int("weight", weight),
			)
		}
		if err := l.sleep(ctx, backoff); err != nil {
			return err
		}
	}
}

// Do is Execute for operations that produce a value.
func Do[T any](ctx context.Context, l *Limiter, weight int, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := l.Execute(ctx, weight, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Used reports the weight consumed in the current window.
func (l *Limiter) Used() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollLocked(l.clock.Now())
	return l.used
}

func (l *Limiter) admit(ctx context.Context, weight int) error {
	for {
		l.mu.Lock()
		now := l.clock.Now()
		l.rollLocked(now)
		if l.used+weight <= l.cfg.WeightBudget {
			l.used += weight
			l.mu.Unlock()
			return nil
		}
		wait := l.untilNextWindow(now)
		used := l.used
		l.mu.Unlock()

		if l.logger != nil {
			l.logger.Debug("weight budget spent, waiting for next window",
				zap.Int("used", used),
				zap.Int("weight", weight),
				zap.Duration("wait", wait),
			)
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Waiting reports how many admitted operations are queued for a slot.
func (l *Limiter) Waiting() int {
	return int(l.waiting.Load())
}

func (l *Limiter) run(ctx context.Context, op func(ctx context.Context) error) error {
	l.waiting.Add(1)
	err := l.slots.Acquire(ctx, 1)
	l.waiting.Add(-1)
	if err != nil {
		return err
	}
	defer l.slots.Release(1)
	return op(ctx)
}

// rollLocked resets the counter when now has crossed into a new window.
// Windows are aligned to the wall clock, not to the limiter's creation.
func (l *Limiter) rollLocked(now time.Time) {
	n := now.UnixNano()
	window := n - n%int64(l.cfg.Interval)
	if window != l.window {
		l.window = window
		l.used = 0
	}
}

func (l *Limiter) untilNextWindow(now time.Time) time.Duration {
	return l.cfg.Interval - time.Duration(now.UnixNano()%int64(l.cfg.Interval))
}

func (l *Limiter) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := l.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.Chan():
		return nil
	}
}

// IsRateLimited reports whether err is an upstream rate-limit rejection:
// either it wraps ErrRateLimited or something in its chain reports
// RateLimited() == true.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var rl interface{ RateLimited() bool }
	return errors.As(err, &rl) && rl.RateLimited()
}
