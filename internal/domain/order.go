package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType distinguishes a market order from a limit/trigger order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeSLM    OrderType = "STOPLOSS_MARKET"
)

// OrderStatus is the lifecycle state of an Order. FILLED, CANCELLED,
// REJECTED and FAILED are terminal: once reached, fields never change again.
type OrderStatus string

const (
	OrderCreated         OrderStatus = "CREATED"
	OrderPlaced          OrderStatus = "PLACED"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCancelled       OrderStatus = "CANCELLED"
	OrderRejected        OrderStatus = "REJECTED"
	OrderFailed          OrderStatus = "FAILED"
)

// Terminal reports whether the status is one a reconciler must never advance past.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderRejected, OrderFailed:
		return true
	default:
		return false
	}
}

// QueuedOrder is what the execution engine enqueues per user before the
// order executor turns it into a broker order.
type QueuedOrder struct {
	IdempotencyKey string
	UserID         string
	StrategyID     string
	Symbol         string
	Side           Side
	Quantity       int
	OrderType      OrderType
	LimitPrice     *decimal.Decimal
	TriggerPrice   *decimal.Decimal
	StopLossPct    float64
	Priority       int
	EnqueuedAt     time.Time
}

// Order is the durable record of an order placed (or attempted) at the broker.
type Order struct {
	ID             string
	UserID         string
	StrategyID     string
	BrokerOrderID  string
	Symbol         string
	Side           Side
	OrderType      OrderType
	Quantity       int
	FilledQuantity int
	AvgPrice       decimal.Decimal
	Status         OrderStatus
	RejectReason   string
	CreatedAt      time.Time
	PlacedAt       time.Time
	UpdatedAt      time.Time
	LinkedOrderID  string // set on a retry order, pointing back to the original
}

// RemainingQuantity is the unfilled portion of the order.
func (o Order) RemainingQuantity() int {
	return o.Quantity - o.FilledQuantity
}

// FillFraction is the filled proportion in [0,1].
func (o Order) FillFraction() float64 {
	if o.Quantity <= 0 {
		return 0
	}
	return float64(o.FilledQuantity) / float64(o.Quantity)
}
