package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_Terminal(t *testing.T) {
	terminal := map[OrderStatus]bool{
		OrderCreated:         false,
		OrderPlaced:          false,
		OrderPartiallyFilled: false,
		OrderFilled:          true,
		OrderCancelled:       true,
		OrderRejected:        true,
		OrderFailed:          true,
	}
	for status, want := range terminal {
		assert.Equal(t, want, status.Terminal(), status)
	}
}

func TestOrder_RemainingQuantity(t *testing.T) {
	o := Order{Quantity: 10, FilledQuantity: 3}
	assert.Equal(t, 7, o.RemainingQuantity())
}

func TestOrder_FillFraction(t *testing.T) {
	cases := []struct {
		quantity, filled int
		want              float64
	}{
		{10, 10, 1.0},
		{10, 8, 0.8},
		{10, 0, 0.0},
		{0, 0, 0.0},
	}
	for _, c := range cases {
		o := Order{Quantity: c.quantity, FilledQuantity: c.filled}
		assert.InDelta(t, c.want, o.FillFraction(), 0.0001)
	}
}
