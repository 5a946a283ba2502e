package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"hypertoken/internal/cache"
)

type stubCycler struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	err     error
}

func (c *stubCycler) RunCycle(ctx context.Context) (CycleResult, error) {
	c.calls.Add(1)
	if c.started != nil {
		c.started <- struct{}{}
	}
	if c.release != nil {
		select {
		case <-c.release:
		case <-ctx.Done():
			return CycleResult{}, ctx.Err()
		}
	}
	return CycleResult{Listed: 1}, c.err
}

func TestScheduler_TriggerRunsCycle(t *testing.T) {
	cy := &stubCycler{}
	s := NewScheduler(cy, nil, zaptest.NewLogger(t), SchedulerConfig{})

	res, err := s.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Listed)
	assert.EqualValues(t, 1, cy.calls.Load())
}

func TestScheduler_TriggerWhileRunning(t *testing.T) {
	cy := &stubCycler{started: make(chan struct{}, 1), release: make(chan struct{})}
	s := NewScheduler(cy, cache.NewMemoryStore(), zaptest.NewLogger(t), SchedulerConfig{})

	done := make(chan error, 1)
	go func() {
		_, err := s.Trigger(context.Background())
		done <- err
	}()
	<-cy.started

	_, err := s.Trigger(context.Background())
	require.ErrorIs(t, err, ErrCycleInProgress)

	close(cy.release)
	require.NoError(t, <-done)
	assert.EqualValues(t, 1, cy.calls.Load())
}

func TestScheduler_TickSkippedWhileLocked(t *testing.T) {
	ctx := context.Background()
	locks := cache.NewMemoryStore()
	ok, err := locks.SetNX(ctx, cycleLockKey, []byte("other-process"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	cy := &stubCycler{}
	s := NewScheduler(cy, locks, zaptest.NewLogger(t), SchedulerConfig{})
	s.tick(ctx)
	assert.EqualValues(t, 0, cy.calls.Load())

	// Our release must not steal someone else's lock.
	v, found, err := locks.Get(ctx, cycleLockKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("other-process"), v)
}

func TestScheduler_FailedCycleDoesNotBlockNextRun(t *testing.T) {
	cy := &stubCycler{err: errors.New("store unavailable")}
	s := NewScheduler(cy, cache.NewMemoryStore(), zaptest.NewLogger(t), SchedulerConfig{})

	s.tick(context.Background())
	_, err := s.Trigger(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCycleInProgress)
	assert.EqualValues(t, 2, cy.calls.Load())
}

func TestScheduler_StaleLockExpires(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClock()
	locks := cache.NewMemoryStoreWithClock(fc)
	_, err := locks.SetNX(ctx, cycleLockKey, []byte("crashed"), 10*time.Minute)
	require.NoError(t, err)

	cy := &stubCycler{}
	s := NewScheduler(cy, locks, zaptest.NewLogger(t), SchedulerConfig{LockTTL: 10 * time.Minute})

	_, err = s.Trigger(ctx)
	require.ErrorIs(t, err, ErrCycleInProgress)

	fc.Advance(10 * time.Minute)
	_, err = s.Trigger(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, cy.calls.Load())
}

type countingLocks struct {
	*cache.MemoryStore
	renewals atomic.Int32
}

func (c *countingLocks) ExpireIfEquals(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := c.MemoryStore.ExpireIfEquals(ctx, key, value, ttl)
	if ok {
		c.renewals.Add(1)
	}
	return ok, err
}

func TestScheduler_RenewsLockDuringLongCycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	fc := clockwork.NewFakeClock()
	locks := &countingLocks{MemoryStore: cache.NewMemoryStoreWithClock(fc)}
	cy := &stubCycler{started: make(chan struct{}, 1), release: make(chan struct{})}
	s := NewScheduler(cy, locks, zaptest.NewLogger(t), SchedulerConfig{LockTTL: 30 * time.Second, Clock: fc})

	done := make(chan error, 1)
	go func() {
		_, err := s.Trigger(ctx)
		done <- err
	}()
	<-cy.started
	require.NoError(t, fc.BlockUntilContext(ctx, 1))

	// Four renewal periods take the cycle past the original TTL.
	for i := 1; i <= 4; i++ {
		fc.Advance(10 * time.Second)
		require.Eventually(t, func() bool { return locks.renewals.Load() == int32(i) }, 2*time.Second, time.Millisecond)
	}
	ok, err := locks.SetNX(ctx, cycleLockKey, []byte("intruder"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	close(cy.release)
	require.NoError(t, <-done)

	ok, err = locks.SetNX(ctx, cycleLockKey, []byte("next"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestScheduler_StartRunsImmediately(t *testing.T) {
	cy := &stubCycler{started: make(chan struct{}, 1)}
	s := NewScheduler(cy, nil, zaptest.NewLogger(t), SchedulerConfig{Spec: "@every 1h", RunOnStart: true})

	require.NoError(t, s.Start(context.Background()))
	select {
	case <-cy.started:
	case <-time.After(2 * time.Second):
		t.Fatal("no cycle at start")
	}
	s.Stop()
	assert.EqualValues(t, 1, cy.calls.Load())
}

func TestScheduler_StartRejectsBadSpec(t *testing.T) {
	s := NewScheduler(&stubCycler{}, nil, zaptest.NewLogger(t), SchedulerConfig{Spec: "whenever"})
	require.Error(t, s.Start(context.Background()))
}
