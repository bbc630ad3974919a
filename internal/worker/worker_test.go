package worker

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iliyamo/inventory-reservation/internal/service"
)

type expireRecorder struct {
	mu  sync.Mutex
	ids []string
	hit chan string
}

func newExpireRecorder() *expireRecorder {
	return &expireRecorder{hit: make(chan string, 16)}
}

func (e *expireRecorder) expire(ctx context.Context, id string) (service.ExpireResult, error) {
	e.mu.Lock()
	e.ids = append(e.ids, id)
	e.mu.Unlock()
	e.hit <- id
	return service.ExpireExpired, nil
}

func TestLocalScheduler_Fires(t *testing.T) {
	rec := newExpireRecorder()
	s := NewLocalScheduler(rec.expire, zaptest.NewLogger(t))
	defer s.Stop()

	require.NoError(t, s.ScheduleExpiry(context.Background(), "r1", 10*time.Millisecond))
	select {
	case id := <-rec.hit:
		assert.Equal(t, "r1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("expiry did not fire")
	}
	assert.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestLocalScheduler_RescheduleReplaces(t *testing.T) {
	rec := newExpireRecorder()
	s := NewLocalScheduler(rec.expire, nil)

	require.NoError(t, s.ScheduleExpiry(context.Background(), "r1", time.Hour))
	require.NoError(t, s.ScheduleExpiry(context.Background(), "r1", 5*time.Millisecond))
	assert.Equal(t, 1, s.Pending())

	<-rec.hit
	s.Stop()
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"r1"}, rec.ids)
}

func TestLocalScheduler_StopCancels(t *testing.T) {
	rec := newExpireRecorder()
	s := NewLocalScheduler(rec.expire, nil)

	require.NoError(t, s.ScheduleExpiry(context.Background(), "r1", time.Hour))
	s.Stop()
	assert.Zero(t, s.Pending())
	assert.ErrorIs(t, s.ScheduleExpiry(context.Background(), "r2", time.Millisecond), ErrSchedulerStopped)
	assert.Empty(t, rec.ids)
}

type fakeLease struct {
	grant    bool
	err      error
	acquired atomic.Int32
	released atomic.Int32
}

func (f *fakeLease) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	f.acquired.Add(1)
	return f.grant, f.err
}

func (f *fakeLease) Release(ctx context.Context) error {
	f.released.Add(1)
	return nil
}

func countingSweep(n *atomic.Int32, err error) SweepFunc {
	return func(ctx context.Context) (int, error) {
		n.Add(1)
		return 2, err
	}
}

func TestSweeper_RunOnceRespectsLease(t *testing.T) {
	var calls atomic.Int32
	lease := &fakeLease{grant: false}
	s := NewSweeper(countingSweep(&calls, nil), time.Minute, lease, zaptest.NewLogger(t))

	assert.False(t, s.RunOnce(context.Background()))
	assert.Zero(t, calls.Load())

	lease.grant = true
	assert.True(t, s.RunOnce(context.Background()))
	assert.EqualValues(t, 1, calls.Load())
}

func TestSweeper_LeaseErrorStillSweeps(t *testing.T) {
	var calls atomic.Int32
	lease := &fakeLease{err: errors.New("redis down")}
	s := NewSweeper(countingSweep(&calls, nil), time.Minute, lease, nil)

	assert.True(t, s.RunOnce(context.Background()))
	assert.EqualValues(t, 1, calls.Load())
}

func TestSweeper_RunTicksUntilCancelled(t *testing.T) {
	var calls atomic.Int32
	lease := &fakeLease{grant: true}
	s := NewSweeper(countingSweep(&calls, errors.New("one failed")), 10*time.Millisecond, lease, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.EqualValues(t, 1, lease.released.Load())
}

// TestRedisLease runs against a real server when REDIS_TEST_ADDR is set.
func TestRedisLease(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	ctx := context.Background()
	key := "test:lease:" + time.Now().Format("150405.000000")
	defer rdb.Del(ctx, key)

	a := NewRedisLease(rdb, key)
	b := NewRedisLease(rdb, key)

	ok, err := a.Acquire(ctx, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// The holder can extend.
	ok, err = a.Acquire(ctx, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	// Release by a non-holder is ignored.
	require.NoError(t, b.Release(ctx))
	ok, err = b.Acquire(ctx, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Release(ctx))
	ok, err = b.Acquire(ctx, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
