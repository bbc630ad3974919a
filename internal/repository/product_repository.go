package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/inventory-reservation/internal/model"
)

// ProductRepo provides access to the products table.  Stock counters are
// only written through UpdateStockTx by a caller that already holds the
// row lock obtained with LockTx.
type ProductRepo struct {
	db *sql.DB
}

// NewProductRepo returns a new ProductRepo bound to the provided database.
func NewProductRepo(db *sql.DB) *ProductRepo { return &ProductRepo{db: db} }

const productColumns = `id, name, total_stock, available_stock, reserved_stock, sold_stock, price, updated_at`

// scanProduct reads one products row in productColumns order.
func scanProduct(row interface{ Scan(...any) error }) (*model.Product, error) {
	var p model.Product
	if err := row.Scan(&p.ID, &p.Name, &p.TotalStock, &p.AvailableStock, &p.ReservedStock, &p.SoldStock, &p.Price, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Create inserts a product and populates its generated ID and
// updated_at.  The caller is responsible for passing balanced counters.
func (r *ProductRepo) Create(ctx context.Context, p *model.Product) error {
	const q = `INSERT INTO products (name, total_stock, available_stock, reserved_stock, sold_stock, price) VALUES (?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, p.Name, p.TotalStock, p.AvailableStock, p.ReservedStock, p.SoldStock, p.Price)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	got, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*p = *got
	return nil
}

// GetByID returns a product snapshot without locking.  ErrNotFound is
// returned when no row matches.
func (r *ProductRepo) GetByID(ctx context.Context, id uint64) (*model.Product, error) {
	return scanProduct(r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id))
}

// LockTx reads the product with SELECT ... FOR UPDATE so concurrent
// units of work touching the same product serialize on its row lock.
func (r *ProductRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Product, error) {
	return scanProduct(tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ? FOR UPDATE`, id))
}

// UpdateStockTx writes the four stock counters of a locked product.
func (r *ProductRepo) UpdateStockTx(ctx context.Context, tx *sql.Tx, p *model.Product) error {
	const q = `UPDATE products
               SET total_stock = ?, available_stock = ?, reserved_stock = ?, sold_stock = ?, updated_at = UTC_TIMESTAMP()
               WHERE id = ?`
	res, err := tx.ExecContext(ctx, q, p.TotalStock, p.AvailableStock, p.ReservedStock, p.SoldStock, p.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
