package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/inventory-reservation/internal/model"
	"github.com/iliyamo/inventory-reservation/internal/repository"
)

// StockLedger moves units between the available, reserved and sold
// counters of a product.  Every operation runs inside the caller's unit
// of work: it locks the product row, checks the move, applies it,
// verifies available+reserved+sold == total and writes the row back.
// Any error leaves the caller's transaction to be rolled back.
type StockLedger struct {
	log *zap.Logger
}

// NewStockLedger returns a ledger that reports invariant violations to log.
func NewStockLedger(log *zap.Logger) *StockLedger {
	if log == nil {
		log = zap.NewNop()
	}
	return &StockLedger{log: log}
}

// Reserve moves qty units from available to reserved.
func (l *StockLedger) Reserve(ctx context.Context, tx repository.Tx, productID uint64, qty int64) (*model.Product, error) {
	return l.move(ctx, tx, productID, qty, "reserve", func(p *model.Product) error {
		if p.AvailableStock < qty {
			return fmt.Errorf("%w: product %d has %d available, %d requested",
				ErrInsufficientStock, p.ID, p.AvailableStock, qty)
		}
		p.AvailableStock -= qty
		p.ReservedStock += qty
		return nil
	})
}

// Release moves qty units from reserved back to available.  Callers
// guarantee qty <= reserved; the check is repeated here.
func (l *StockLedger) Release(ctx context.Context, tx repository.Tx, productID uint64, qty int64) (*model.Product, error) {
	return l.move(ctx, tx, productID, qty, "release", func(p *model.Product) error {
		if p.ReservedStock < qty {
			return l.violation(p, "release", qty)
		}
		p.ReservedStock -= qty
		p.AvailableStock += qty
		return nil
	})
}

// Confirm moves qty units from reserved to sold.
func (l *StockLedger) Confirm(ctx context.Context, tx repository.Tx, productID uint64, qty int64) (*model.Product, error) {
	return l.move(ctx, tx, productID, qty, "confirm", func(p *model.Product) error {
		if p.ReservedStock < qty {
			return l.violation(p, "confirm", qty)
		}
		p.ReservedStock -= qty
		p.SoldStock += qty
		return nil
	})
}

// Restock moves qty units from sold back to available.  It reverses a
// Confirm when a confirmed order is cancelled.
func (l *StockLedger) Restock(ctx context.Context, tx repository.Tx, productID uint64, qty int64) (*model.Product, error) {
	return l.move(ctx, tx, productID, qty, "restock", func(p *model.Product) error {
		if p.SoldStock < qty {
			return l.violation(p, "restock", qty)
		}
		p.SoldStock -= qty
		p.AvailableStock += qty
		return nil
	})
}

func (l *StockLedger) move(ctx context.Context, tx repository.Tx, productID uint64, qty int64, op string, apply func(p *model.Product) error) (*model.Product, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}
	p, err := tx.LockProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("lock product %d: %w", productID, err)
	}
	if !p.Balanced() {
		return nil, l.violation(p, op, qty)
	}
	if err := apply(p); err != nil {
		return nil, err
	}
	if !p.Balanced() {
		return nil, l.violation(p, op, qty)
	}
	if err := tx.UpdateProductStock(ctx, p); err != nil {
		return nil, fmt.Errorf("update product %d: %w", productID, err)
	}
	return p, nil
}

func (l *StockLedger) violation(p *model.Product, op string, qty int64) error {
	l.log.Error("stock invariant violation",
		zap.String("op", op),
		zap.Uint64("product_id", p.ID),
		zap.Int64("quantity", qty),
		zap.Int64("total", p.TotalStock),
		zap.Int64("available", p.AvailableStock),
		zap.Int64("reserved", p.ReservedStock),
		zap.Int64("sold", p.SoldStock),
	)
	return fmt.Errorf("%w: %s %d on product %d (total=%d available=%d reserved=%d sold=%d)",
		ErrInvariantViolation, op, qty, p.ID, p.TotalStock, p.AvailableStock, p.ReservedStock, p.SoldStock)
}
