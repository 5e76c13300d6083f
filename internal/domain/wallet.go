package domain

import "github.com/shopspring/decimal"

// marginFraction is the margin the executor blocks per filled rupee of
// notional value (spec §4.7: "0.2" of filled_price*qty).
var marginFraction = decimal.NewFromFloat(0.2)

// Wallet is a user's trading account balance.
type Wallet struct {
	UserID          string
	Balance         decimal.Decimal
	UsedMargin      decimal.Decimal
	AvailableMargin decimal.Decimal
	RealizedPnL     decimal.Decimal
	UnrealizedPnL   decimal.Decimal
}

// MarginForNotional returns the margin blocked for a fill of the given notional value.
func MarginForNotional(notional decimal.Decimal) decimal.Decimal {
	return notional.Mul(marginFraction)
}

// ApplyOpenFill blocks margin for a newly opened position.
func (w *Wallet) ApplyOpenFill(notional decimal.Decimal) {
	margin := MarginForNotional(notional)
	w.UsedMargin = w.UsedMargin.Add(margin)
	w.AvailableMargin = w.AvailableMargin.Sub(margin)
}

// ApplyCloseFill releases margin and books realised PnL for a closed position.
func (w *Wallet) ApplyCloseFill(releasedMargin, pnl decimal.Decimal) {
	w.UsedMargin = w.UsedMargin.Sub(releasedMargin)
	w.AvailableMargin = w.AvailableMargin.Add(releasedMargin)
	w.Balance = w.Balance.Add(pnl)
	w.RealizedPnL = w.RealizedPnL.Add(pnl)
}
