package model

import "time"

// CloseReason records why a reservation stopped being active.
type CloseReason string

const (
	// CloseExpired is set when the hold ran out, either through the
	// deferred expiry task or through the periodic sweep.
	CloseExpired CloseReason = "EXPIRED"
	// CloseReleased is set when the customer gave the hold back.
	CloseReleased CloseReason = "RELEASED"
	// CloseOrdered is set when the hold was turned into an order item.
	// The reserved units stay reserved and now belong to the order.
	CloseOrdered CloseReason = "ORDERED"
)

// Reservation is a time-bound hold that moved Quantity units of a
// product from available into reserved.  A reservation goes from active
// to inactive exactly once and is kept afterwards for audit purposes.
//
// Fields:
//  ID          – opaque random identifier (UUIDv4).
//  ProductID   – product the units were reserved from.
//  Quantity    – number of units held; always positive.
//  CreatedAt   – creation timestamp.
//  ExpiresAt   – CreatedAt plus the configured hold duration.
//  IsActive    – false once expired, released or ordered.
//  ClosedAt    – when the reservation became inactive (nullable).
//  CloseReason – why the reservation became inactive (empty while active).
type Reservation struct {
	ID          string      `json:"id"`                     // reservations.id
	ProductID   uint64      `json:"product_id"`             // reservations.product_id
	Quantity    int64       `json:"quantity"`               // reservations.quantity
	CreatedAt   time.Time   `json:"created_at"`             // reservations.created_at
	ExpiresAt   time.Time   `json:"expires_at"`             // reservations.expires_at
	IsActive    bool        `json:"is_active"`              // reservations.is_active
	ClosedAt    *time.Time  `json:"closed_at,omitempty"`    // reservations.closed_at (nullable)
	CloseReason CloseReason `json:"close_reason,omitempty"` // reservations.close_reason
}

// Expired reports whether the hold has run out at the given instant.
func (r Reservation) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}
