package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/inventory-reservation/internal/repository"
)

func TestStockLedger_Moves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.product(t, 10, "2.50")
	ledger := NewStockLedger(nil)

	require.NoError(t, f.store.WithinTx(ctx, func(tx repository.Tx) error {
		if _, err := ledger.Reserve(ctx, tx, id, 4); err != nil {
			return err
		}
		if _, err := ledger.Confirm(ctx, tx, id, 3); err != nil {
			return err
		}
		_, err := ledger.Release(ctx, tx, id, 1)
		return err
	}))

	p := f.counters(t, id)
	assert.EqualValues(t, 7, p.AvailableStock)
	assert.EqualValues(t, 0, p.ReservedStock)
	assert.EqualValues(t, 3, p.SoldStock)
}

func TestStockLedger_RestockReversesConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.product(t, 6, "1")
	ledger := NewStockLedger(nil)

	require.NoError(t, f.store.WithinTx(ctx, func(tx repository.Tx) error {
		if _, err := ledger.Reserve(ctx, tx, id, 3); err != nil {
			return err
		}
		if _, err := ledger.Confirm(ctx, tx, id, 2); err != nil {
			return err
		}
		_, err := ledger.Restock(ctx, tx, id, 2)
		return err
	}))

	p := f.counters(t, id)
	assert.EqualValues(t, 5, p.AvailableStock)
	assert.EqualValues(t, 1, p.ReservedStock)
	assert.EqualValues(t, 0, p.SoldStock)
}

func TestStockLedger_RejectsBadQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.product(t, 10, "1")
	ledger := NewStockLedger(nil)

	for _, qty := range []int64{0, -1} {
		err := f.store.WithinTx(ctx, func(tx repository.Tx) error {
			_, err := ledger.Reserve(ctx, tx, id, qty)
			return err
		})
		assert.ErrorIs(t, err, ErrInvalidQuantity, "qty=%d", qty)
	}
	assert.EqualValues(t, 10, f.counters(t, id).AvailableStock)
}

func TestStockLedger_InsufficientStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.product(t, 2, "1")
	ledger := NewStockLedger(nil)

	err := f.store.WithinTx(ctx, func(tx repository.Tx) error {
		_, err := ledger.Reserve(ctx, tx, id, 3)
		return err
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	p := f.counters(t, id)
	assert.EqualValues(t, 2, p.AvailableStock)
	assert.EqualValues(t, 0, p.ReservedStock)
}

func TestStockLedger_ReleaseMoreThanReserved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.product(t, 5, "1")
	ledger := NewStockLedger(nil)

	for _, op := range []ledgerOp{ledger.Release, ledger.Confirm, ledger.Restock} {
		err := f.store.WithinTx(ctx, func(tx repository.Tx) error {
			_, err := op(ctx, tx, id, 1)
			return err
		})
		assert.ErrorIs(t, err, ErrInvariantViolation)
	}
	assert.EqualValues(t, 5, f.counters(t, id).AvailableStock)
}

func TestStockLedger_UnbalancedRowIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.product(t, 5, "1")
	ledger := NewStockLedger(nil)
	f.corrupt(t, id)

	err := f.store.WithinTx(ctx, func(tx repository.Tx) error {
		_, err := ledger.Reserve(ctx, tx, id, 1)
		return err
	})
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestStockLedger_MissingProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ledger := NewStockLedger(nil)

	err := f.store.WithinTx(ctx, func(tx repository.Tx) error {
		_, err := ledger.Reserve(ctx, tx, 999, 1)
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
}
