package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/inventory-reservation/internal/model"
)

// MemoryStore is an in-process Store.  Row locks are per-key channels of
// capacity one so that waits can be bounded by a timeout or by the
// caller's context.  Writes made inside a unit of work are buffered and
// applied on commit, which gives the same all-or-nothing behaviour as
// the MySQL store.
type MemoryStore struct {
	mu           sync.RWMutex
	locks        *keyLocks
	lockWait     time.Duration
	nextProdID   uint64
	nextOrderID  uint64
	nextItemID   uint64
	nextAuditID  uint64
	products     map[uint64]model.Product
	reservations map[string]model.Reservation
	orders       map[uint64]model.Order
	audit        []model.AuditLog
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.  lockWait bounds how long a
// unit of work waits for a row lock; zero or negative waits forever.
func NewMemoryStore(lockWait time.Duration) *MemoryStore {
	return &MemoryStore{
		locks:        &keyLocks{m: make(map[string]*lockSlot)},
		lockWait:     lockWait,
		nextProdID:   1,
		nextOrderID:  1,
		nextItemID:   1,
		nextAuditID:  1,
		products:     make(map[uint64]model.Product),
		reservations: make(map[string]model.Reservation),
		orders:       make(map[uint64]model.Order),
	}
}

// keyLocks hands out one exclusive slot per key.  A slot lives only
// while its holder or a waiter references it.
type keyLocks struct {
	mu sync.Mutex
	m  map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func (k *keyLocks) ref(key string) *lockSlot {
	k.mu.Lock()
	defer k.mu.Unlock()
	sl, ok := k.m[key]
	if !ok {
		sl = &lockSlot{ch: make(chan struct{}, 1)}
		k.m[key] = sl
	}
	sl.refs++
	return sl
}

// unref must be called with k.mu held.
func (k *keyLocks) unref(key string, sl *lockSlot) {
	sl.refs--
	if sl.refs == 0 {
		delete(k.m, key)
	}
}

func (k *keyLocks) acquire(ctx context.Context, key string, wait time.Duration) error {
	sl := k.ref(key)
	select {
	case sl.ch <- struct{}{}:
		return nil
	default:
	}
	var timeout <-chan time.Time
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		timeout = t.C
	}
	var err error
	select {
	case sl.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		err = ctx.Err()
	case <-timeout:
		err = fmt.Errorf("%s: %w", key, ErrLockTimeout)
	}
	k.mu.Lock()
	k.unref(key, sl)
	k.mu.Unlock()
	return err
}

func (k *keyLocks) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	sl := k.m[key]
	<-sl.ch
	k.unref(key, sl)
}

// size reports how many keys currently have a slot.
func (k *keyLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.m)
}

func productKey(id uint64) string     { return fmt.Sprintf("product:%d", id) }
func reservationKey(id string) string { return "reservation:" + id }
func orderKey(id uint64) string       { return fmt.Sprintf("order:%d", id) }

// WithinTx runs fn in a buffered unit of work.  Locks are released when
// WithinTx returns, after the buffered writes have been applied.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memoryTx{
		s:            s,
		held:         make(map[string]struct{}),
		products:     make(map[uint64]model.Product),
		reservations: make(map[string]model.Reservation),
		orders:       make(map[uint64]model.Order),
	}
	defer tx.releaseAll()
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// CreateProduct assigns an ID and stores the product.
func (s *MemoryStore) CreateProduct(ctx context.Context, p *model.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextProdID
	s.nextProdID++
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	s.products[p.ID] = *p
	return nil
}

// GetProduct returns a copy of the committed product row.
func (s *MemoryStore) GetProduct(ctx context.Context, id uint64) (*model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// GetReservation returns a copy of the committed reservation row.
func (s *MemoryStore) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

// ListExpiredReservations scans the active reservations.
func (s *MemoryStore) ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error) {
	s.mu.RLock()
	out := make([]model.Reservation, 0)
	for _, r := range s.reservations {
		if r.IsActive && r.Expired(now) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ExpiresAt.Before(out[j].ExpiresAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetOrder returns a copy of the order with current unit prices.
func (s *MemoryStore) GetOrder(ctx context.Context, id uint64) (*model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := s.pricedLocked(o)
	return &cp, nil
}

// InsertAuditLog appends an audit entry.
func (s *MemoryStore) InsertAuditLog(ctx context.Context, entry *model.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = s.nextAuditID
	s.nextAuditID++
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.audit = append(s.audit, *entry)
	return nil
}

// AuditLogs returns a copy of every stored audit entry in insertion order.
func (s *MemoryStore) AuditLogs() []model.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.AuditLog(nil), s.audit...)
}

// pricedLocked deep-copies o and fills in unit prices.  Callers hold s.mu.
func (s *MemoryStore) pricedLocked(o model.Order) model.Order {
	cp := o.Clone()
	for i := range cp.Items {
		if p, ok := s.products[cp.Items[i].ProductID]; ok {
			cp.Items[i].UnitPrice = p.Price
		}
	}
	return cp
}

// memoryTx buffers writes until commit.
type memoryTx struct {
	s            *MemoryStore
	held         map[string]struct{}
	keys         []string
	products     map[uint64]model.Product
	reservations map[string]model.Reservation
	orders       map[uint64]model.Order
}

func (tx *memoryTx) lock(ctx context.Context, key string) error {
	if _, ok := tx.held[key]; ok {
		return nil
	}
	if err := tx.s.locks.acquire(ctx, key, tx.s.lockWait); err != nil {
		return err
	}
	tx.held[key] = struct{}{}
	tx.keys = append(tx.keys, key)
	return nil
}

func (tx *memoryTx) holds(key string) bool {
	_, ok := tx.held[key]
	return ok
}

func (tx *memoryTx) releaseAll() {
	for i := len(tx.keys) - 1; i >= 0; i-- {
		tx.s.locks.release(tx.keys[i])
	}
	tx.keys = nil
	tx.held = nil
}

func (tx *memoryTx) commit() {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range tx.products {
		s.products[id] = p
	}
	for id, r := range tx.reservations {
		s.reservations[id] = r
	}
	for id, o := range tx.orders {
		s.orders[id] = o
	}
}

func (tx *memoryTx) LockProduct(ctx context.Context, id uint64) (*model.Product, error) {
	if err := tx.lock(ctx, productKey(id)); err != nil {
		return nil, err
	}
	if p, ok := tx.products[id]; ok {
		return &p, nil
	}
	return tx.s.GetProduct(ctx, id)
}

func (tx *memoryTx) UpdateProductStock(ctx context.Context, p *model.Product) error {
	if !tx.holds(productKey(p.ID)) {
		return ErrNotLocked
	}
	tx.products[p.ID] = *p
	return nil
}

func (tx *memoryTx) CreateReservation(ctx context.Context, r *model.Reservation) error {
	key := reservationKey(r.ID)
	if err := tx.lock(ctx, key); err != nil {
		return err
	}
	if _, ok := tx.reservations[r.ID]; ok {
		return fmt.Errorf("reservation %s already exists", r.ID)
	}
	if _, err := tx.s.GetReservation(ctx, r.ID); err == nil {
		return fmt.Errorf("reservation %s already exists", r.ID)
	}
	tx.reservations[r.ID] = *r
	return nil
}

func (tx *memoryTx) LockReservation(ctx context.Context, id string) (*model.Reservation, error) {
	if err := tx.lock(ctx, reservationKey(id)); err != nil {
		return nil, err
	}
	if r, ok := tx.reservations[id]; ok {
		return &r, nil
	}
	return tx.s.GetReservation(ctx, id)
}

func (tx *memoryTx) UpdateReservation(ctx context.Context, r *model.Reservation) error {
	if !tx.holds(reservationKey(r.ID)) {
		return ErrNotLocked
	}
	tx.reservations[r.ID] = *r
	return nil
}

func (tx *memoryTx) CreateOrder(ctx context.Context, o *model.Order) error {
	s := tx.s
	s.mu.Lock()
	o.ID = s.nextOrderID
	s.nextOrderID++
	for i := range o.Items {
		o.Items[i].ID = s.nextItemID
		o.Items[i].OrderID = o.ID
		s.nextItemID++
	}
	s.mu.Unlock()
	if err := tx.lock(ctx, orderKey(o.ID)); err != nil {
		return err
	}
	tx.orders[o.ID] = o.Clone()
	return nil
}

func (tx *memoryTx) LockOrder(ctx context.Context, id uint64) (*model.Order, error) {
	if err := tx.lock(ctx, orderKey(id)); err != nil {
		return nil, err
	}
	s := tx.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := tx.orders[id]
	if !ok {
		if o, ok = s.orders[id]; !ok {
			return nil, ErrNotFound
		}
	}
	cp := s.pricedLocked(o)
	return &cp, nil
}

func (tx *memoryTx) UpdateOrderStatus(ctx context.Context, o *model.Order) error {
	if !tx.holds(orderKey(o.ID)) {
		return ErrNotLocked
	}
	cur, ok := tx.orders[o.ID]
	if !ok {
		tx.s.mu.RLock()
		cur, ok = tx.s.orders[o.ID]
		tx.s.mu.RUnlock()
		if !ok {
			return ErrNotFound
		}
	}
	cur = cur.Clone()
	cur.Status = o.Status
	cur.UpdatedAt = o.UpdatedAt
	tx.orders[o.ID] = cur
	return nil
}
