package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/inventory-reservation/internal/model"
)

// placeOrder reserves qty of each product and turns the holds into an order.
func (f *fixture) placeOrder(t *testing.T, qty map[uint64]int64) *model.Order {
	t.Helper()
	ctx := context.Background()
	var ids []string
	for pid, q := range qty {
		r, err := f.res.ReserveStock(ctx, pid, q)
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}
	o, err := f.orders.PlaceOrder(ctx, nil, ids)
	require.NoError(t, err)
	return o
}

func (f *fixture) status(t *testing.T, orderID uint64) model.OrderStatus {
	t.Helper()
	o, err := f.orders.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	return o.Status
}

func TestPlaceOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, 10, "2.50")
	b := f.product(t, 10, "4.00")

	ra, err := f.res.ReserveStock(ctx, a, 2)
	require.NoError(t, err)
	rb, err := f.res.ReserveStock(ctx, b, 1)
	require.NoError(t, err)

	uid := uint64(7)
	o, err := f.orders.PlaceOrder(ctx, &uid, []string{rb.ID, ra.ID, ra.ID})
	require.NoError(t, err)
	assert.Equal(t, model.OrderPending, o.Status)
	require.Len(t, o.Items, 2)
	assert.Equal(t, "9", o.TotalPrice().String())
	require.NotNil(t, o.UserID)
	assert.Equal(t, uid, *o.UserID)

	// Units stay reserved, now owned by the order.
	assert.EqualValues(t, 2, f.counters(t, a).ReservedStock)
	assert.EqualValues(t, 1, f.counters(t, b).ReservedStock)

	got, err := f.res.GetReservation(ctx, ra.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, model.CloseOrdered, got.CloseReason)

	// The deferred expiry firing later must not give the units back.
	res, err := f.res.ExpireReservation(ctx, ra.ID)
	require.NoError(t, err)
	assert.Equal(t, ExpireAlreadyInactive, res)
	assert.EqualValues(t, 2, f.counters(t, a).ReservedStock)

	assert.Contains(t, f.audit.actions(), ActionOrderPlaced)
}

func TestPlaceOrder_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.product(t, 10, "1")

	_, err := f.orders.PlaceOrder(ctx, nil, nil)
	assert.ErrorIs(t, err, ErrEmptyOrder)

	_, err = f.orders.PlaceOrder(ctx, nil, []string{"missing"})
	assert.ErrorIs(t, err, ErrNotFound)

	released, err := f.res.ReserveStock(ctx, id, 1)
	require.NoError(t, err)
	_, err = f.res.ReleaseReservation(ctx, released.ID)
	require.NoError(t, err)
	_, err = f.orders.PlaceOrder(ctx, nil, []string{released.ID})
	assert.ErrorIs(t, err, ErrReservationInactive)

	stale, err := f.res.ReserveStock(ctx, id, 1)
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	_, err = f.orders.PlaceOrder(ctx, nil, []string{stale.ID})
	assert.ErrorIs(t, err, ErrReservationExpired)

	// All-or-nothing: a good reservation alongside a bad one stays active.
	fresh, err := f.res.ReserveStock(ctx, id, 1)
	require.NoError(t, err)
	_, err = f.orders.PlaceOrder(ctx, nil, []string{fresh.ID, released.ID})
	require.Error(t, err)
	got, err := f.res.GetReservation(ctx, fresh.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}

func TestChangeStatus_ConfirmMovesToSold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, 10, "1")
	b := f.product(t, 10, "1")
	o := f.placeOrder(t, map[uint64]int64{a: 3, b: 2})

	got, err := f.orders.ChangeStatus(ctx, o.ID, model.OrderConfirmed)
	require.NoError(t, err)
	assert.Equal(t, model.OrderConfirmed, got.Status)

	pa := f.counters(t, a)
	assert.EqualValues(t, 0, pa.ReservedStock)
	assert.EqualValues(t, 3, pa.SoldStock)
	assert.EqualValues(t, 7, pa.AvailableStock)
	pb := f.counters(t, b)
	assert.EqualValues(t, 2, pb.SoldStock)

	entries := f.audit.entries
	last := entries[len(entries)-1]
	assert.Equal(t, ActionOrderStatusUpdated, last.Action)
	assert.Contains(t, string(last.OldValue), `"PENDING"`)
	assert.Contains(t, string(last.NewValue), `"CONFIRMED"`)
}

func TestChangeStatus_CancelPendingReleases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, 6, "1")
	o := f.placeOrder(t, map[uint64]int64{a: 4})

	_, err := f.orders.ChangeStatus(ctx, o.ID, model.OrderCancelled)
	require.NoError(t, err)

	p := f.counters(t, a)
	assert.EqualValues(t, 6, p.AvailableStock)
	assert.EqualValues(t, 0, p.ReservedStock)
}

func TestChangeStatus_CancelConfirmedRestocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, 5, "1")
	o := f.placeOrder(t, map[uint64]int64{a: 2})
	_, err := f.orders.ChangeStatus(ctx, o.ID, model.OrderConfirmed)
	require.NoError(t, err)

	_, err = f.orders.ChangeStatus(ctx, o.ID, model.OrderCancelled)
	require.NoError(t, err)
	assert.Equal(t, model.OrderCancelled, f.status(t, o.ID))

	p := f.counters(t, a)
	assert.EqualValues(t, 5, p.AvailableStock)
	assert.EqualValues(t, 0, p.ReservedStock)
	assert.EqualValues(t, 0, p.SoldStock)
}

func TestChangeStatus_CancelConfirmedKeepsOtherHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, 10, "1")
	o := f.placeOrder(t, map[uint64]int64{a: 2})
	_, err := f.orders.ChangeStatus(ctx, o.ID, model.OrderConfirmed)
	require.NoError(t, err)

	other, err := f.res.ReserveStock(ctx, a, 3)
	require.NoError(t, err)

	_, err = f.orders.ChangeStatus(ctx, o.ID, model.OrderCancelled)
	require.NoError(t, err)
	p := f.counters(t, a)
	assert.EqualValues(t, 7, p.AvailableStock)
	assert.EqualValues(t, 3, p.ReservedStock)
	assert.EqualValues(t, 0, p.SoldStock)

	// The unrelated hold still expires cleanly.
	f.clock.Advance(f.res.HoldDuration())
	res, err := f.res.ExpireReservation(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, ExpireExpired, res)
	p = f.counters(t, a)
	assert.EqualValues(t, 10, p.AvailableStock)
	assert.EqualValues(t, 0, p.ReservedStock)
}

func TestChangeStatus_FullLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, 5, "1")
	o := f.placeOrder(t, map[uint64]int64{a: 1})

	for _, s := range []model.OrderStatus{model.OrderConfirmed, model.OrderProcessing, model.OrderShipped, model.OrderDelivered} {
		_, err := f.orders.ChangeStatus(ctx, o.ID, s)
		require.NoError(t, err, "to %s", s)
	}
	assert.Equal(t, model.OrderDelivered, f.status(t, o.ID))
	p := f.counters(t, a)
	assert.EqualValues(t, 1, p.SoldStock)
	assert.EqualValues(t, 4, p.AvailableStock)
}

func TestChangeStatus_InvalidTransitionLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, 5, "1")
	o := f.placeOrder(t, map[uint64]int64{a: 2})

	for _, s := range []model.OrderStatus{model.OrderConfirmed, model.OrderProcessing, model.OrderShipped} {
		_, err := f.orders.ChangeStatus(ctx, o.ID, s)
		require.NoError(t, err)
	}
	before := f.counters(t, a)
	n := len(f.audit.actions())

	_, err := f.orders.ChangeStatus(ctx, o.ID, model.OrderCancelled)
	require.ErrorIs(t, err, ErrInvalidTransition)
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, model.OrderShipped, te.From)
	assert.Equal(t, model.OrderCancelled, te.To)

	assert.Equal(t, model.OrderShipped, f.status(t, o.ID))
	assert.Equal(t, before, f.counters(t, a))
	assert.Len(t, f.audit.actions(), n)
}

func TestChangeStatus_TerminalStatesReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, 5, "1")
	o := f.placeOrder(t, map[uint64]int64{a: 1})
	_, err := f.orders.ChangeStatus(ctx, o.ID, model.OrderCancelled)
	require.NoError(t, err)

	for _, s := range []model.OrderStatus{model.OrderPending, model.OrderConfirmed, model.OrderProcessing, model.OrderShipped, model.OrderDelivered} {
		_, err := f.orders.ChangeStatus(ctx, o.ID, s)
		assert.ErrorIs(t, err, ErrInvalidTransition, "CANCELLED -> %s", s)
	}
	assert.EqualValues(t, 5, f.counters(t, a).AvailableStock)
}

func TestChangeStatus_SameStatusIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, 5, "1")
	o := f.placeOrder(t, map[uint64]int64{a: 2})
	_, err := f.orders.ChangeStatus(ctx, o.ID, model.OrderConfirmed)
	require.NoError(t, err)
	before := f.counters(t, a)
	n := len(f.audit.actions())

	got, err := f.orders.ChangeStatus(ctx, o.ID, model.OrderConfirmed)
	require.NoError(t, err)
	assert.Equal(t, model.OrderConfirmed, got.Status)
	assert.Equal(t, before, f.counters(t, a))
	assert.Len(t, f.audit.actions(), n)
}

func TestChangeStatus_ConfirmFailureIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	good := f.product(t, 5, "1")
	bad := f.product(t, 5, "1")
	o := f.placeOrder(t, map[uint64]int64{good: 2, bad: 1})
	f.corrupt(t, bad)

	_, err := f.orders.ChangeStatus(ctx, o.ID, model.OrderConfirmed)
	require.ErrorIs(t, err, ErrInvariantViolation)

	assert.Equal(t, model.OrderPending, f.status(t, o.ID))
	p := f.counters(t, good)
	assert.EqualValues(t, 2, p.ReservedStock)
	assert.EqualValues(t, 0, p.SoldStock)
}

func TestChangeStatus_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orders.ChangeStatus(ctx, 1, model.OrderStatus("LOST"))
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.orders.ChangeStatus(ctx, 999, model.OrderConfirmed)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChangeStatus_AuditFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, 5, "1")
	o := f.placeOrder(t, map[uint64]int64{a: 1})
	f.audit.err = errAuditDown

	got, err := f.orders.ChangeStatus(ctx, o.ID, model.OrderConfirmed)
	require.NoError(t, err)
	assert.Equal(t, model.OrderConfirmed, got.Status)
	assert.EqualValues(t, 1, f.counters(t, a).SoldStock)
}

func TestUniqueSorted(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, uniqueSorted([]string{"c", "a", "", "b", "a"}))
	assert.Empty(t, uniqueSorted([]string{"", ""}))
}
