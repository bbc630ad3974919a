package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/iliyamo/inventory-reservation/internal/model"
	"github.com/iliyamo/inventory-reservation/internal/repository"
)

// OrderService applies order status transitions and the stock moves
// attached to them, and turns active reservations into orders.
type OrderService struct {
	store  repository.Store
	ledger *StockLedger
	audit  auditor
	now    func() time.Time
	log    *zap.Logger
}

// NewOrderService wires the order state machine.  now may be nil.
func NewOrderService(store repository.Store, ledger *StockLedger, rec Recorder, now func() time.Time, log *zap.Logger) *OrderService {
	if log == nil {
		log = zap.NewNop()
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &OrderService{
		store:  store,
		ledger: ledger,
		audit:  auditor{rec: rec, log: log, now: now},
		now:    now,
		log:    log,
	}
}

// orderSnapshot is the audit payload for an order.
type orderSnapshot struct {
	model.Order
	TotalPrice decimal.Decimal `json:"total_price"`
}

func snapshotOrder(o model.Order) orderSnapshot {
	return orderSnapshot{Order: o, TotalPrice: o.TotalPrice()}
}

// GetOrder returns an order with read-time prices.
func (s *OrderService) GetOrder(ctx context.Context, id uint64) (*model.Order, error) {
	return s.store.GetOrder(ctx, id)
}

// ChangeStatus moves an order to newStatus.  Setting the current status
// again is a no-op.  CONFIRMED moves every item's quantity from reserved
// to sold.  CANCELLED moves it back to available, out of reserved for a
// PENDING order and out of sold for a CONFIRMED one.  If any item fails
// the whole transition is rolled back.  Illegal edges fail with a
// *TransitionError.
func (s *OrderService) ChangeStatus(ctx context.Context, orderID uint64, newStatus model.OrderStatus) (_ *model.Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.ChangeStatus", trace.WithAttributes(
		attribute.Int64("order.id", int64(orderID)),
		attribute.String("order.new_status", string(newStatus)),
	))
	defer func() { endSpan(span, err) }()

	if !newStatus.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, newStatus)
	}
	var before, after model.Order
	changed := false
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		before = o.Clone()
		if o.Status == newStatus {
			after = o.Clone()
			return nil
		}
		if !model.CanTransition(o.Status, newStatus) {
			return &TransitionError{From: o.Status, To: newStatus}
		}
		switch newStatus {
		case model.OrderConfirmed:
			err = s.applyToItems(ctx, tx, o.Items, s.ledger.Confirm)
		case model.OrderCancelled:
			op := s.ledger.Release
			if o.Status == model.OrderConfirmed {
				op = s.ledger.Restock
			}
			err = s.applyToItems(ctx, tx, o.Items, op)
		}
		if err != nil {
			return fmt.Errorf("order %d: %w", orderID, err)
		}
		o.Status = newStatus
		o.UpdatedAt = s.now()
		if err := tx.UpdateOrderStatus(ctx, o); err != nil {
			return err
		}
		after = o.Clone()
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.log.Info("order status changed",
			zap.Uint64("order_id", orderID),
			zap.String("from", string(before.Status)),
			zap.String("to", string(after.Status)),
		)
		s.audit.emit(ctx, ActionOrderStatusUpdated, "Order", strconv.FormatUint(orderID, 10), snapshotOrder(before), snapshotOrder(after))
	}
	return &after, nil
}

type ledgerOp func(ctx context.Context, tx repository.Tx, productID uint64, qty int64) (*model.Product, error)

// applyToItems aggregates quantities per product and applies op in
// ascending product id order so that two orders sharing products always
// lock them in the same order.
func (s *OrderService) applyToItems(ctx context.Context, tx repository.Tx, items []model.OrderItem, op ledgerOp) error {
	qty := make(map[uint64]int64, len(items))
	for _, it := range items {
		qty[it.ProductID] += it.Quantity
	}
	ids := make([]uint64, 0, len(qty))
	for id := range qty {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if _, err := op(ctx, tx, id, qty[id]); err != nil {
			return fmt.Errorf("product %d: %w", id, err)
		}
	}
	return nil
}

// PlaceOrder turns active reservations into a PENDING order with one
// item per reservation.  The reservations are closed as ORDERED while
// their units stay reserved, now owned by the order, so a later expiry
// of the same reservation is a no-op.
func (s *OrderService) PlaceOrder(ctx context.Context, userID *uint64, reservationIDs []string) (_ *model.Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.PlaceOrder", trace.WithAttributes(
		attribute.Int("order.reservations", len(reservationIDs)),
	))
	defer func() { endSpan(span, err) }()

	ids := uniqueSorted(reservationIDs)
	if len(ids) == 0 {
		return nil, ErrEmptyOrder
	}
	now := s.now()
	var order model.Order
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		items := make([]model.OrderItem, 0, len(ids))
		for _, id := range ids {
			r, err := tx.LockReservation(ctx, id)
			if err != nil {
				return fmt.Errorf("reservation %s: %w", id, err)
			}
			if !r.IsActive {
				return fmt.Errorf("reservation %s: %w", id, ErrReservationInactive)
			}
			if r.Expired(now) {
				return fmt.Errorf("reservation %s: %w", id, ErrReservationExpired)
			}
			closedAt := now
			r.IsActive = false
			r.ClosedAt = &closedAt
			r.CloseReason = model.CloseOrdered
			if err := tx.UpdateReservation(ctx, r); err != nil {
				return err
			}
			items = append(items, model.OrderItem{ProductID: r.ProductID, Quantity: r.Quantity, ReservationID: r.ID})
		}
		order = model.Order{
			Status:    model.OrderPending,
			UserID:    userID,
			CreatedAt: now,
			UpdatedAt: now,
			Items:     items,
		}
		return tx.CreateOrder(ctx, &order)
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("order.id", int64(order.ID)))

	placed, err := s.store.GetOrder(ctx, order.ID)
	if err != nil {
		// Committed already; fall back to the unpriced copy.
		s.log.Warn("reload placed order failed", zap.Uint64("order_id", order.ID), zap.Error(err))
		placed = &order
		err = nil
	}
	s.audit.emit(ctx, ActionOrderPlaced, "Order", strconv.FormatUint(order.ID, 10), nil, snapshotOrder(*placed))
	return placed, nil
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
