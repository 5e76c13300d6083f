package domain

import "time"

// RiskState is a user's daily risk accounting. It resets once per trading day.
type RiskState struct {
	UserID            string
	DailyLoss         float64
	DailyTradeCount   int
	ConsecutiveLosses int
	IsLocked          bool
	LockReason        string
	TradingDate       time.Time // truncated to the IST trading day
}

// RecordTradeResult applies spec §4.6 post-trade accounting: every closed
// trade increments DailyTradeCount; a loss increments DailyLoss and
// ConsecutiveLosses; a win resets ConsecutiveLosses.
func (rs *RiskState) RecordTradeResult(pnl float64) {
	rs.DailyTradeCount++
	if pnl < 0 {
		rs.DailyLoss += -pnl
		rs.ConsecutiveLosses++
		return
	}
	rs.ConsecutiveLosses = 0
}

// ResetIfNewDay clears daily fields and unlocks when TradingDate is stale.
// Idempotent: calling it twice on the same date is a no-op.
func (rs *RiskState) ResetIfNewDay(today time.Time) bool {
	if !rs.TradingDate.Before(today) {
		return false
	}
	rs.TradingDate = today
	rs.DailyLoss = 0
	rs.DailyTradeCount = 0
	rs.IsLocked = false
	rs.LockReason = ""
	return true
}

// Lock marks the engine locked for this user with an audit-ready reason.
func (rs *RiskState) Lock(reason string) {
	rs.IsLocked = true
	rs.LockReason = reason
}

// Unlock clears the lock and the consecutive-loss counter. Only explicit
// operator action may call this (spec §4.6: "cleared only by explicit unlock").
func (rs *RiskState) Unlock() {
	rs.IsLocked = false
	rs.LockReason = ""
	rs.ConsecutiveLosses = 0
}
