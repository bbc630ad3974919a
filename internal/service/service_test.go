package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iliyamo/inventory-reservation/internal/model"
	"github.com/iliyamo/inventory-reservation/internal/repository"
)

// fakeClock is a settable clock shared by the services under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingScheduler remembers every scheduled expiry.
type recordingScheduler struct {
	mu    sync.Mutex
	calls map[string]time.Duration
	err   error
}

func (s *recordingScheduler) ScheduleExpiry(ctx context.Context, id string, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]time.Duration)
	}
	s.calls[id] = delay
	return s.err
}

func (s *recordingScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// recordingRecorder keeps audit entries in memory and can be made to fail.
type recordingRecorder struct {
	mu      sync.Mutex
	entries []model.AuditLog
	err     error
}

func (r *recordingRecorder) Record(ctx context.Context, e model.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, e)
	return nil
}

func (r *recordingRecorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

type fixture struct {
	store  *repository.MemoryStore
	clock  *fakeClock
	sched  *recordingScheduler
	audit  *recordingRecorder
	res    *ReservationService
	orders *OrderService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	store := repository.NewMemoryStore(2 * time.Second)
	clock := newFakeClock()
	sched := &recordingScheduler{}
	rec := &recordingRecorder{}
	ledger := NewStockLedger(log)
	return &fixture{
		store: store,
		clock: clock,
		sched: sched,
		audit: rec,
		res: NewReservationService(store, ledger, sched, rec, ReservationConfig{
			HoldDuration:   10 * time.Minute,
			SweepBatchSize: 100,
			Now:            clock.Now,
		}, log),
		orders: NewOrderService(store, ledger, rec, clock.Now, log),
	}
}

func (f *fixture) product(t *testing.T, total int64, price string) uint64 {
	t.Helper()
	p := &model.Product{
		Name:           "Widget",
		TotalStock:     total,
		AvailableStock: total,
		Price:          decimal.RequireFromString(price),
	}
	require.NoError(t, f.store.CreateProduct(context.Background(), p))
	return p.ID
}

func (f *fixture) counters(t *testing.T, id uint64) model.Product {
	t.Helper()
	p, err := f.store.GetProduct(context.Background(), id)
	require.NoError(t, err)
	require.True(t, p.Balanced(), "product %d unbalanced: %+v", id, *p)
	return *p
}

// corrupt bumps total without touching the other counters, bypassing
// the ledger, so the row no longer balances.
func (f *fixture) corrupt(t *testing.T, id uint64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.WithinTx(ctx, func(tx repository.Tx) error {
		p, err := tx.LockProduct(ctx, id)
		if err != nil {
			return err
		}
		p.TotalStock++
		return tx.UpdateProductStock(ctx, p)
	}))
}

var errAuditDown = errors.New("audit store unavailable")
