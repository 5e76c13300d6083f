package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is the append-only record created atomically when a Position closes.
type Trade struct {
	ID          string
	PositionID  string
	UserID      string
	StrategyID  string
	Symbol      string
	Side        PositionSide
	Quantity    int
	EntryPrice  decimal.Decimal
	ExitPrice   decimal.Decimal
	PnL         decimal.Decimal
	EntryTime   time.Time
	ExitTime    time.Time
}

// Duration is how long the position was held.
func (t Trade) Duration() time.Duration {
	return t.ExitTime.Sub(t.EntryTime)
}

// PnLForExit computes realised PnL per spec invariant 4:
// pnl = (side==LONG) ? (exit-entry)*qty : (entry-exit)*qty
func PnLForExit(side PositionSide, entry, exit decimal.Decimal, qty int) decimal.Decimal {
	q := decimal.NewFromInt(int64(qty))
	if side == PositionLong {
		return exit.Sub(entry).Mul(q)
	}
	return entry.Sub(exit).Mul(q)
}
