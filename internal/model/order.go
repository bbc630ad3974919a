package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.  The canonical
// encoding is the upper-case token; ParseOrderStatus normalizes input.
type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderConfirmed  OrderStatus = "CONFIRMED"
	OrderProcessing OrderStatus = "PROCESSING"
	OrderShipped    OrderStatus = "SHIPPED"
	OrderDelivered  OrderStatus = "DELIVERED"
	OrderCancelled  OrderStatus = "CANCELLED"
)

// orderTransitions lists the allowed edges of the order state machine.
// DELIVERED and CANCELLED are terminal and have no outgoing edges.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderConfirmed, OrderCancelled},
	OrderConfirmed:  {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderShipped},
	OrderShipped:    {OrderDelivered},
	OrderDelivered:  nil,
	OrderCancelled:  nil,
}

// ParseOrderStatus converts a status token of any casing into an
// OrderStatus.  Unknown tokens are rejected.
func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return st, nil
}

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s OrderStatus) Terminal() bool {
	return s.Valid() && len(orderTransitions[s]) == 0
}

// CanTransition reports whether from → to is an edge of the state machine.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Order groups the items a customer bought.  Total price is derived
// from the items at read time and never stored.
type Order struct {
	ID        uint64      `json:"id"`                // orders.id
	Status    OrderStatus `json:"status"`            // orders.status
	UserID    *uint64     `json:"user_id,omitempty"` // orders.user_id (nullable)
	CreatedAt time.Time   `json:"created_at"`        // orders.created_at
	UpdatedAt time.Time   `json:"updated_at"`        // orders.updated_at
	Items     []OrderItem `json:"items"`
}

// OrderItem is one line of an order.  UnitPrice is loaded from the
// product when the order is read and is not persisted with the item.
type OrderItem struct {
	ID            uint64          `json:"id"`                       // order_items.id
	OrderID       uint64          `json:"order_id"`                 // order_items.order_id
	ProductID     uint64          `json:"product_id"`               // order_items.product_id
	Quantity      int64           `json:"quantity"`                 // order_items.quantity
	ReservationID string          `json:"reservation_id,omitempty"` // order_items.reservation_id
	UnitPrice     decimal.Decimal `json:"unit_price"`
}

// Price returns quantity × unit price for the item.
func (i OrderItem) Price() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(i.Quantity))
}

// TotalPrice sums the item prices.
func (o Order) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.Price())
	}
	return total
}

// Clone returns a deep copy so snapshots taken before a mutation are
// not affected by later changes to the items slice.
func (o Order) Clone() Order {
	cp := o
	if o.UserID != nil {
		uid := *o.UserID
		cp.UserID = &uid
	}
	cp.Items = append([]OrderItem(nil), o.Items...)
	return cp
}
