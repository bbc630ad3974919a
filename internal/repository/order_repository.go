package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/inventory-reservation/internal/model"
)

// OrderRepo provides access to the orders and order_items tables.  The
// unit price of an item is joined in from products at read time; it is
// not stored with the item.
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo returns a new OrderRepo bound to the given database.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanOrder(row interface{ Scan(...any) error }) (*model.Order, error) {
	var (
		o      model.Order
		status string
		userID sql.NullInt64
	)
	if err := row.Scan(&o.ID, &status, &userID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	if userID.Valid {
		uid := uint64(userID.Int64)
		o.UserID = &uid
	}
	return &o, nil
}

// loadItems fills o.Items ordered by item id.  No product row is locked
// here; the stock ledger locks products itself in ascending id order.
func loadItems(ctx context.Context, q queryer, o *model.Order) error {
	const itemQ = `SELECT oi.id, oi.order_id, oi.product_id, oi.quantity, oi.reservation_id, p.price
                   FROM order_items oi
                   JOIN products p ON p.id = oi.product_id
                   WHERE oi.order_id = ?
                   ORDER BY oi.id`
	rows, err := q.QueryContext(ctx, itemQ, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	o.Items = make([]model.OrderItem, 0)
	for rows.Next() {
		var it model.OrderItem
		var resID sql.NullString
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &resID, &it.UnitPrice); err != nil {
			return err
		}
		it.ReservationID = resID.String
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

// GetByID returns an order and its items without locking.
func (r *OrderRepo) GetByID(ctx context.Context, id uint64) (*model.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT id, status, user_id, created_at, updated_at FROM orders WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if err := loadItems(ctx, r.db, o); err != nil {
		return nil, err
	}
	return o, nil
}

// LockTx reads the order row with SELECT ... FOR UPDATE and loads its items.
func (r *OrderRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Order, error) {
	o, err := scanOrder(tx.QueryRowContext(ctx, `SELECT id, status, user_id, created_at, updated_at FROM orders WHERE id = ? FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if err := loadItems(ctx, tx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// CreateTx inserts the order and its items in one transaction and
// populates the generated IDs.
func (r *OrderRepo) CreateTx(ctx context.Context, tx *sql.Tx, o *model.Order) error {
	var userID sql.NullInt64
	if o.UserID != nil {
		userID = sql.NullInt64{Int64: int64(*o.UserID), Valid: true}
	}
	const q = `INSERT INTO orders (status, user_id, created_at, updated_at) VALUES (?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, string(o.Status), userID, o.CreatedAt.UTC(), o.UpdatedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = uint64(id)
	if len(o.Items) == 0 {
		return nil
	}
	// Items are inserted one by one so each generated ID can be read back.
	const itemQ = `INSERT INTO order_items (order_id, product_id, quantity, reservation_id) VALUES (?, ?, ?, ?)`
	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		var resID sql.NullString
		if strings.TrimSpace(it.ReservationID) != "" {
			resID = sql.NullString{String: it.ReservationID, Valid: true}
		}
		ir, err := tx.ExecContext(ctx, itemQ, it.OrderID, it.ProductID, it.Quantity, resID)
		if err != nil {
			return err
		}
		itemID, err := ir.LastInsertId()
		if err != nil {
			return err
		}
		it.ID = uint64(itemID)
	}
	return nil
}

// UpdateStatusTx writes the status of a locked order.
func (r *OrderRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, o *model.Order) error {
	const q = `UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`
	res, err := tx.ExecContext(ctx, q, string(o.Status), o.UpdatedAt.UTC(), o.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
