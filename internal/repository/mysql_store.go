package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/inventory-reservation/internal/model"
)

// MySQL error numbers that indicate contention rather than a bug.
const (
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// MySQLStore implements Store on top of the table repositories.  Row
// locks are InnoDB record locks taken with SELECT ... FOR UPDATE and held
// until the transaction commits or rolls back.
type MySQLStore struct {
	db           *sql.DB
	lockWait     time.Duration
	products     *ProductRepo
	reservations *ReservationRepo
	orders       *OrderRepo
	audit        *AuditRepo
}

var _ Store = (*MySQLStore)(nil)

// NewMySQLStore wires the repositories around db.  lockWait becomes the
// session innodb_lock_wait_timeout of every unit of work, rounded up to
// whole seconds.
func NewMySQLStore(db *sql.DB, lockWait time.Duration) *MySQLStore {
	return &MySQLStore{
		db:           db,
		lockWait:     lockWait,
		products:     NewProductRepo(db),
		reservations: NewReservationRepo(db),
		orders:       NewOrderRepo(db),
		audit:        NewAuditRepo(db),
	}
}

// mapMySQLError translates lock wait timeouts and deadlocks into the
// store-independent sentinels.
func mapMySQLError(err error) error {
	if err == nil {
		return nil
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlLockWaitTimeout:
			return fmt.Errorf("%w: %v", ErrLockTimeout, err)
		case mysqlDeadlock:
			return fmt.Errorf("%w: %v", ErrBusy, err)
		}
	}
	return err
}

func lockWaitSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// WithinTx begins a READ COMMITTED transaction, bounds its lock waits and
// runs fn.  Row locks give the isolation the core needs; gap locks from
// REPEATABLE READ are not required.
func (s *MySQLStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return mapMySQLError(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()
	if s.lockWait > 0 {
		stmt := fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", lockWaitSeconds(s.lockWait))
		if _, err := sqlTx.ExecContext(ctx, stmt); err != nil {
			return mapMySQLError(err)
		}
	}
	tx := &mysqlTx{s: s, tx: sqlTx, locked: make(map[string]struct{})}
	if err := fn(tx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return mapMySQLError(err)
	}
	committed = true
	return nil
}

func (s *MySQLStore) CreateProduct(ctx context.Context, p *model.Product) error {
	return s.products.Create(ctx, p)
}

func (s *MySQLStore) GetProduct(ctx context.Context, id uint64) (*model.Product, error) {
	return s.products.GetByID(ctx, id)
}

func (s *MySQLStore) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	return s.reservations.GetByID(ctx, id)
}

func (s *MySQLStore) ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error) {
	return s.reservations.ListExpired(ctx, now, limit)
}

func (s *MySQLStore) GetOrder(ctx context.Context, id uint64) (*model.Order, error) {
	return s.orders.GetByID(ctx, id)
}

func (s *MySQLStore) InsertAuditLog(ctx context.Context, entry *model.AuditLog) error {
	return s.audit.Insert(ctx, entry)
}

// mysqlTx tracks which rows it locked so Update* can enforce the
// lock-before-write contract the same way the memory store does.
type mysqlTx struct {
	s      *MySQLStore
	tx     *sql.Tx
	locked map[string]struct{}
}

func (t *mysqlTx) mark(key string) { t.locked[key] = struct{}{} }

func (t *mysqlTx) holds(key string) bool {
	_, ok := t.locked[key]
	return ok
}

func (t *mysqlTx) LockProduct(ctx context.Context, id uint64) (*model.Product, error) {
	p, err := t.s.products.LockTx(ctx, t.tx, id)
	if err != nil {
		return nil, mapMySQLError(err)
	}
	t.mark(productKey(id))
	return p, nil
}

func (t *mysqlTx) UpdateProductStock(ctx context.Context, p *model.Product) error {
	if !t.holds(productKey(p.ID)) {
		return ErrNotLocked
	}
	return mapMySQLError(t.s.products.UpdateStockTx(ctx, t.tx, p))
}

func (t *mysqlTx) CreateReservation(ctx context.Context, r *model.Reservation) error {
	if err := t.s.reservations.CreateTx(ctx, t.tx, r); err != nil {
		return mapMySQLError(err)
	}
	t.mark(reservationKey(r.ID))
	return nil
}

func (t *mysqlTx) LockReservation(ctx context.Context, id string) (*model.Reservation, error) {
	r, err := t.s.reservations.LockTx(ctx, t.tx, id)
	if err != nil {
		return nil, mapMySQLError(err)
	}
	t.mark(reservationKey(id))
	return r, nil
}

func (t *mysqlTx) UpdateReservation(ctx context.Context, r *model.Reservation) error {
	if !t.holds(reservationKey(r.ID)) {
		return ErrNotLocked
	}
	return mapMySQLError(t.s.reservations.UpdateTx(ctx, t.tx, r))
}

func (t *mysqlTx) CreateOrder(ctx context.Context, o *model.Order) error {
	if err := t.s.orders.CreateTx(ctx, t.tx, o); err != nil {
		return mapMySQLError(err)
	}
	t.mark(orderKey(o.ID))
	return nil
}

func (t *mysqlTx) LockOrder(ctx context.Context, id uint64) (*model.Order, error) {
	o, err := t.s.orders.LockTx(ctx, t.tx, id)
	if err != nil {
		return nil, mapMySQLError(err)
	}
	t.mark(orderKey(id))
	return o, nil
}

func (t *mysqlTx) UpdateOrderStatus(ctx context.Context, o *model.Order) error {
	if !t.holds(orderKey(o.ID)) {
		return ErrNotLocked
	}
	return mapMySQLError(t.s.orders.UpdateStatusTx(ctx, t.tx, o))
}
