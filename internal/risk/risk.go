// Package risk implements the pre-order gate and post-trade accounting
// described in spec §4.6: daily loss cap, consecutive-loss auto-lock,
// per-trade risk cap, max open positions, max trades/day, mandatory
// stop-loss, market-hours gate, and engine-lock state.
package risk

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aktrade/tradecore/internal/clock"
	"github.com/aktrade/tradecore/internal/domain"
)

// ErrLocked is returned when the engine-lock state blocks a pre-order check.
var ErrLocked = errors.New("risk: engine locked")

// BreachError is a non-lock pre-order rejection, carrying the human-readable
// reason the engine surfaces to the strategy/user (spec §4.6, §7).
type BreachError struct {
	Reason string
}

func (e *BreachError) Error() string { return e.Reason }

// Limits is the set of configured risk caps (spec §6 Configuration).
type Limits struct {
	MaxDailyLoss         float64
	MaxTradeSize         float64
	MaxOpenPositions     int
	MaxRiskPerTrade      float64
	MaxTradesPerDay      int
	ConsecutiveLossLimit int
	LiveSafeMode         bool
}

// MarketHours reports whether wall-clock time t is within trading hours and
// whether it is within the new-order cutoff window before close.
type MarketHours interface {
	IsOpen(t time.Time) bool
	WithinCutoff(t time.Time) bool
}

// BrokerConnectivity is the narrow broker seam the gate needs: is_connected.
type BrokerConnectivity interface {
	IsConnected() bool
}

// OrderCheck is the input to a pre-order risk evaluation.
type OrderCheck struct {
	OrderValue        float64 // price * qty
	StopLossPercent   float64
	OpenPositionCount int
	AvailableMargin   float64
	PaperMode         bool // paper mode bypasses market-hours (spec §9)
}

// Gate is the single writer of one user's RiskState.
type Gate struct {
	clock   clock.Clock
	hours   MarketHours
	limits  Limits
	state   domain.RiskState
	auditFn func(severity domain.AuditSeverity, message string)
}

// New creates a risk Gate seeded with an existing state (e.g. loaded from
// storage at boot). auditFn receives every lock/unlock event for the audit
// log; it may be nil in tests.
func New(c clock.Clock, hours MarketHours, limits Limits, state domain.RiskState, auditFn func(domain.AuditSeverity, string)) *Gate {
	if auditFn == nil {
		auditFn = func(domain.AuditSeverity, string) {}
	}
	return &Gate{clock: c, hours: hours, limits: limits, state: state, auditFn: auditFn}
}

// State returns a snapshot of the current risk state.
func (g *Gate) State() domain.RiskState { return g.state }

// CheckPreOrder runs every pre-order check from spec §4.6, in order, and
// returns the first failure. ErrLocked wraps lock-state failures so callers
// can branch with errors.Is; other failures are *BreachError.
func (g *Gate) CheckPreOrder(check OrderCheck, broker BrokerConnectivity) error {
	g.DailyReset()

	if g.state.IsLocked {
		return fmt.Errorf("risk.CheckPreOrder: %s: %w", g.state.LockReason, ErrLocked)
	}
	if g.state.DailyLoss >= g.limits.MaxDailyLoss {
		g.lock(fmt.Sprintf("Daily loss %.2f reached cap %.2f", g.state.DailyLoss, g.limits.MaxDailyLoss))
		return fmt.Errorf("risk.CheckPreOrder: %w", ErrLocked)
	}
	if g.state.DailyTradeCount >= g.limits.MaxTradesPerDay {
		return &BreachError{Reason: fmt.Sprintf("daily trade count %d reached limit %d", g.state.DailyTradeCount, g.limits.MaxTradesPerDay)}
	}
	if g.state.ConsecutiveLosses >= g.limits.ConsecutiveLossLimit {
		g.lock(fmt.Sprintf("%d consecutive losses reached limit %d", g.state.ConsecutiveLosses, g.limits.ConsecutiveLossLimit))
		return fmt.Errorf("risk.CheckPreOrder: %w", ErrLocked)
	}
	if check.StopLossPercent <= 0 {
		return &BreachError{Reason: "stop-loss is mandatory"}
	}
	riskAmount := check.OrderValue * check.StopLossPercent / 100
	if riskAmount > g.limits.MaxRiskPerTrade {
		return &BreachError{Reason: fmt.Sprintf("order risk %.2f exceeds max risk per trade %.2f", riskAmount, g.limits.MaxRiskPerTrade)}
	}
	if check.OpenPositionCount >= g.limits.MaxOpenPositions {
		return &BreachError{Reason: fmt.Sprintf("open positions %d reached limit %d", check.OpenPositionCount, g.limits.MaxOpenPositions)}
	}
	if !check.PaperMode {
		now := g.clock.Now()
		if !g.hours.IsOpen(now) {
			return &BreachError{Reason: "outside market hours"}
		}
		if !g.hours.WithinCutoff(now) {
			return &BreachError{Reason: "within 10 minutes of market close"}
		}
	}
	if broker != nil && !broker.IsConnected() {
		return &BreachError{Reason: "broker not connected"}
	}
	if check.AvailableMargin < 0.2*check.OrderValue {
		return &BreachError{Reason: "insufficient available margin"}
	}
	return nil
}

// RecordTradeResult applies post-trade accounting (spec §4.6) and auto-locks
// if the resulting state breaches a cap.
func (g *Gate) RecordTradeResult(pnl float64) {
	g.state.RecordTradeResult(pnl)
	if g.state.DailyLoss >= g.limits.MaxDailyLoss {
		g.lock(fmt.Sprintf("Daily loss %.2f reached cap %.2f", g.state.DailyLoss, g.limits.MaxDailyLoss))
	}
	if g.state.ConsecutiveLosses >= g.limits.ConsecutiveLossLimit {
		g.lock(fmt.Sprintf("%d consecutive losses reached limit %d", g.state.ConsecutiveLosses, g.limits.ConsecutiveLossLimit))
	}
}

// Unlock clears the engine lock via explicit operator action (spec §4.6:
// "Lock is cleared only by explicit unlock").
func (g *Gate) Unlock() {
	g.state.Unlock()
	g.auditFn(domain.SeverityInfo, "risk: engine unlocked by operator")
}

// DailyReset resets daily fields if the trading date has rolled over.
// Idempotent: a second call on the same date is a no-op (spec §8).
func (g *Gate) DailyReset() bool {
	today := tradingDay(g.clock.Now())
	return g.state.ResetIfNewDay(today)
}

func (g *Gate) lock(reason string) {
	if g.state.IsLocked {
		return
	}
	g.state.Lock(reason)
	g.auditFn(domain.SeverityCritical, reason)
}

// tradingDay truncates t to the IST calendar day used for RiskState.TradingDate.
func tradingDay(t time.Time) time.Time {
	y, m, d := t.In(IST).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, IST)
}

// PositionSize is the position-sizing helper from spec §4.6:
// qty = max(1, floor(MAX_RISK_PER_TRADE / (entry_price * sl%/100))).
func PositionSize(maxRiskPerTrade, entryPrice, stopLossPercent float64) int {
	if entryPrice <= 0 || stopLossPercent <= 0 {
		return 1
	}
	qty := math.Floor(maxRiskPerTrade / (entryPrice * stopLossPercent / 100))
	if qty < 1 {
		return 1
	}
	return int(qty)
}
