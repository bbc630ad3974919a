package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a stock ledger row.  The four counters obey
// AvailableStock + ReservedStock + SoldStock == TotalStock whenever the
// row is at rest.  Only the stock ledger mutates the counters and it
// does so while holding the row lock.
//
// Fields:
//  ID             – primary key identifier.
//  Name           – display name.
//  TotalStock     – units ever stocked for this product.
//  AvailableStock – units that can still be reserved.
//  ReservedStock  – units held by active reservations or open orders.
//  SoldStock      – units moved out of reserved by order confirmation.
//  Price          – current unit price.
//  UpdatedAt      – last mutation timestamp.
type Product struct {
	ID             uint64          `json:"id"`              // products.id
	Name           string          `json:"name"`            // products.name
	TotalStock     int64           `json:"total_stock"`     // products.total_stock
	AvailableStock int64           `json:"available_stock"` // products.available_stock
	ReservedStock  int64           `json:"reserved_stock"`  // products.reserved_stock
	SoldStock      int64           `json:"sold_stock"`      // products.sold_stock
	Price          decimal.Decimal `json:"price"`           // products.price
	UpdatedAt      time.Time       `json:"updated_at"`      // products.updated_at
}

// Balanced reports whether the counters add up to the total and none of
// them is negative.
func (p Product) Balanced() bool {
	if p.AvailableStock < 0 || p.ReservedStock < 0 || p.SoldStock < 0 {
		return false
	}
	return p.AvailableStock+p.ReservedStock+p.SoldStock == p.TotalStock
}
