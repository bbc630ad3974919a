package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/inventory-reservation/internal/model"
)

// ReservationRepo provides access to the reservations table.  All
// timestamps are stored in UTC.  Rows are never deleted; an inactive
// reservation stays behind with its close reason for audit purposes.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, product_id, quantity, created_at, expires_at, is_active, closed_at, close_reason`

func scanReservation(row interface{ Scan(...any) error }) (*model.Reservation, error) {
	var (
		r        model.Reservation
		closedAt sql.NullTime
		reason   sql.NullString
	)
	if err := row.Scan(&r.ID, &r.ProductID, &r.Quantity, &r.CreatedAt, &r.ExpiresAt, &r.IsActive, &closedAt, &reason); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if closedAt.Valid {
		t := closedAt.Time.UTC()
		r.ClosedAt = &t
	}
	if reason.Valid {
		r.CloseReason = model.CloseReason(reason.String)
	}
	return &r, nil
}

// CreateTx inserts a reservation within the provided transaction.  The
// ID is generated by the caller.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	const q = `INSERT INTO reservations (id, product_id, quantity, created_at, expires_at, is_active) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, res.ID, res.ProductID, res.Quantity, res.CreatedAt.UTC(), res.ExpiresAt.UTC(), res.IsActive)
	return err
}

// GetByID returns a reservation without locking it.
func (r *ReservationRepo) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
	return scanReservation(r.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
}

// LockTx reads the reservation with SELECT ... FOR UPDATE.
func (r *ReservationRepo) LockTx(ctx context.Context, tx *sql.Tx, id string) (*model.Reservation, error) {
	return scanReservation(tx.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ? FOR UPDATE`, id))
}

// UpdateTx persists the active flag and close columns of a locked reservation.
func (r *ReservationRepo) UpdateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	var closedAt sql.NullTime
	if res.ClosedAt != nil {
		closedAt = sql.NullTime{Time: res.ClosedAt.UTC(), Valid: true}
	}
	var reason sql.NullString
	if res.CloseReason != "" {
		reason = sql.NullString{String: string(res.CloseReason), Valid: true}
	}
	const q = `UPDATE reservations SET is_active = ?, closed_at = ?, close_reason = ? WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, res.IsActive, closedAt, reason, res.ID)
	return err
}

// ListExpired returns up to limit active reservations that expired at or
// before now.  The rows are not locked; each one is re-read under lock
// when it is expired, so a row handled concurrently is simply skipped.
func (r *ReservationRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + `
               FROM reservations
               WHERE is_active = 1 AND expires_at <= ?
               ORDER BY expires_at, id
               LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
