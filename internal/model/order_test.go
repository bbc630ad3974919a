package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderStatus_NormalizesCasing(t *testing.T) {
	st, err := ParseOrderStatus(" confirmed ")
	require.NoError(t, err)
	assert.Equal(t, OrderConfirmed, st)

	_, err = ParseOrderStatus("EXPIRED")
	assert.Error(t, err)
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]OrderStatus{
		{OrderPending, OrderConfirmed},
		{OrderPending, OrderCancelled},
		{OrderConfirmed, OrderProcessing},
		{OrderConfirmed, OrderCancelled},
		{OrderProcessing, OrderShipped},
		{OrderShipped, OrderDelivered},
	}
	for _, e := range allowed {
		assert.True(t, CanTransition(e[0], e[1]), "%s -> %s", e[0], e[1])
	}
	assert.False(t, CanTransition(OrderShipped, OrderCancelled))
	assert.False(t, CanTransition(OrderPending, OrderShipped))
	assert.False(t, CanTransition(OrderProcessing, OrderCancelled))
}

func TestTerminalStatesHaveNoEdges(t *testing.T) {
	all := []OrderStatus{OrderPending, OrderConfirmed, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled}
	for _, terminal := range []OrderStatus{OrderDelivered, OrderCancelled} {
		assert.True(t, terminal.Terminal())
		for _, to := range all {
			assert.False(t, CanTransition(terminal, to), "%s -> %s", terminal, to)
		}
	}
	assert.False(t, OrderPending.Terminal())
}

func TestOrderTotalPrice(t *testing.T) {
	o := Order{Items: []OrderItem{
		{Quantity: 2, UnitPrice: decimal.RequireFromString("10.50")},
		{Quantity: 3, UnitPrice: decimal.RequireFromString("1.25")},
	}}
	assert.True(t, o.TotalPrice().Equal(decimal.RequireFromString("24.75")), o.TotalPrice().String())
}

func TestProductBalanced(t *testing.T) {
	p := Product{TotalStock: 10, AvailableStock: 6, ReservedStock: 3, SoldStock: 1}
	assert.True(t, p.Balanced())
	p.ReservedStock = -1
	p.AvailableStock = 10
	assert.False(t, p.Balanced())
}
