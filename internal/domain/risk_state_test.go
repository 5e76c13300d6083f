package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRiskState_RecordTradeResult_LossIncrementsStreak(t *testing.T) {
	rs := &RiskState{}
	rs.RecordTradeResult(-50)

	assert.Equal(t, 1, rs.DailyTradeCount)
	assert.Equal(t, 50.0, rs.DailyLoss)
	assert.Equal(t, 1, rs.ConsecutiveLosses)
}

func TestRiskState_RecordTradeResult_WinResetsStreak(t *testing.T) {
	rs := &RiskState{ConsecutiveLosses: 2}
	rs.RecordTradeResult(30)

	assert.Equal(t, 1, rs.DailyTradeCount)
	assert.Equal(t, 0.0, rs.DailyLoss)
	assert.Equal(t, 0, rs.ConsecutiveLosses)
}

func TestRiskState_RecordTradeResult_AccumulatesLossesAcrossTrades(t *testing.T) {
	rs := &RiskState{}
	rs.RecordTradeResult(-50)
	rs.RecordTradeResult(-30)

	assert.Equal(t, 2, rs.DailyTradeCount)
	assert.Equal(t, 80.0, rs.DailyLoss)
	assert.Equal(t, 2, rs.ConsecutiveLosses)
}

func TestRiskState_ResetIfNewDay_ClearsDailyFieldsAndUnlocks(t *testing.T) {
	yesterday := time.Date(2026, 7, 28, 0, 0, 0, 0, time.UTC)
	today := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	rs := &RiskState{TradingDate: yesterday, DailyLoss: 100, DailyTradeCount: 5, IsLocked: true, LockReason: "daily loss cap"}

	reset := rs.ResetIfNewDay(today)

	assert.True(t, reset)
	assert.Equal(t, today, rs.TradingDate)
	assert.Equal(t, 0.0, rs.DailyLoss)
	assert.Equal(t, 0, rs.DailyTradeCount)
	assert.False(t, rs.IsLocked)
	assert.Empty(t, rs.LockReason)
}

func TestRiskState_ResetIfNewDay_IdempotentSameDay(t *testing.T) {
	today := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	rs := &RiskState{TradingDate: today, DailyLoss: 100}

	reset := rs.ResetIfNewDay(today)

	assert.False(t, reset)
	assert.Equal(t, 100.0, rs.DailyLoss, "same-day call must not clear state")
}

func TestRiskState_ConsecutiveLossesSurviveResetIfNewDay(t *testing.T) {
	// ResetIfNewDay clears daily counters but not the consecutive-loss streak,
	// which only Unlock() clears (spec §4.6).
	yesterday := time.Date(2026, 7, 28, 0, 0, 0, 0, time.UTC)
	today := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	rs := &RiskState{TradingDate: yesterday, ConsecutiveLosses: 3}

	rs.ResetIfNewDay(today)
	assert.Equal(t, 3, rs.ConsecutiveLosses)
}

func TestRiskState_Lock(t *testing.T) {
	rs := &RiskState{}
	rs.Lock("daily loss cap breached")
	assert.True(t, rs.IsLocked)
	assert.Equal(t, "daily loss cap breached", rs.LockReason)
}

func TestRiskState_Unlock_ClearsLockAndConsecutiveLosses(t *testing.T) {
	rs := &RiskState{IsLocked: true, LockReason: "breach", ConsecutiveLosses: 3}
	rs.Unlock()

	assert.False(t, rs.IsLocked)
	assert.Empty(t, rs.LockReason)
	assert.Equal(t, 0, rs.ConsecutiveLosses)
}
