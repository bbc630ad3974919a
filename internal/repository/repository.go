package repository

import (
	"context"
	"time"

	"github.com/iliyamo/inventory-reservation/internal/model"
)

// Store is the persistence collaborator of the core.  Reads outside a
// unit of work are plain snapshots; every mutation of stock counters,
// reservations or order status goes through WithinTx.
type Store interface {
	// WithinTx runs fn inside a unit of work.  The unit is committed when
	// fn returns nil and rolled back otherwise; locks taken through the
	// Tx are held until then.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	CreateProduct(ctx context.Context, p *model.Product) error
	GetProduct(ctx context.Context, id uint64) (*model.Product, error)
	GetReservation(ctx context.Context, id string) (*model.Reservation, error)
	// ListExpiredReservations returns up to limit active reservations
	// whose expires_at is at or before now, oldest first.
	ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error)
	// GetOrder returns the order with its items; each item's UnitPrice
	// is the product's current price.
	GetOrder(ctx context.Context, id uint64) (*model.Order, error)
	InsertAuditLog(ctx context.Context, entry *model.AuditLog) error
}

// Tx is a unit of work holding exclusive row locks.  Lock* methods block
// until the lock is granted, the store's lock wait elapses
// (ErrLockTimeout) or ctx is done.  Update* methods require the row to
// have been locked through the same Tx.
type Tx interface {
	LockProduct(ctx context.Context, id uint64) (*model.Product, error)
	UpdateProductStock(ctx context.Context, p *model.Product) error

	CreateReservation(ctx context.Context, r *model.Reservation) error
	LockReservation(ctx context.Context, id string) (*model.Reservation, error)
	UpdateReservation(ctx context.Context, r *model.Reservation) error

	// CreateOrder inserts the order and its items and populates the
	// generated IDs.  The new order is locked by the Tx.
	CreateOrder(ctx context.Context, o *model.Order) error
	LockOrder(ctx context.Context, id uint64) (*model.Order, error)
	UpdateOrderStatus(ctx context.Context, o *model.Order) error
}
