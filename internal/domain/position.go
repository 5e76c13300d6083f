package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus tracks whether a position is still being marked to market.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// Position is a held quantity of a symbol opened by one fill and, at most,
// closed by one opposing fill. At most one OPEN position exists per
// (strategy, symbol) for a user.
type Position struct {
	ID             string
	UserID         string
	StrategyID     string // empty for a manual/unattributed position
	Symbol         string
	Side           PositionSide
	Quantity       int
	EntryPrice     decimal.Decimal
	CurrentPrice   decimal.Decimal
	StopLoss       *decimal.Decimal
	TakeProfit     *decimal.Decimal
	Status         PositionStatus
	OpenedAt       time.Time
	ClosedAt       time.Time
}

// UnrealisedPnL computes the mark-to-market PnL at the current price.
func (p Position) UnrealisedPnL() decimal.Decimal {
	qty := decimal.NewFromInt(int64(p.Quantity))
	diff := p.CurrentPrice.Sub(p.EntryPrice)
	if p.Side == PositionShort {
		diff = diff.Neg()
	}
	return diff.Mul(qty)
}

// StrategyKey groups a position under its owning strategy, or "manual".
func (p Position) StrategyKey() string {
	if p.StrategyID == "" {
		return "manual"
	}
	return p.StrategyID
}
