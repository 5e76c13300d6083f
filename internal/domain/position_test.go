package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPosition_UnrealisedPnL_Long(t *testing.T) {
	p := Position{Side: PositionLong, Quantity: 10, EntryPrice: decimal.NewFromInt(100), CurrentPrice: decimal.NewFromInt(105)}
	assert.True(t, decimal.NewFromInt(50).Equal(p.UnrealisedPnL()))
}

func TestPosition_UnrealisedPnL_Short(t *testing.T) {
	p := Position{Side: PositionShort, Quantity: 10, EntryPrice: decimal.NewFromInt(100), CurrentPrice: decimal.NewFromInt(95)}
	assert.True(t, decimal.NewFromInt(50).Equal(p.UnrealisedPnL()))
}

func TestPosition_UnrealisedPnL_ShortLosesOnRally(t *testing.T) {
	p := Position{Side: PositionShort, Quantity: 10, EntryPrice: decimal.NewFromInt(100), CurrentPrice: decimal.NewFromInt(110)}
	assert.True(t, decimal.NewFromInt(-100).Equal(p.UnrealisedPnL()))
}

func TestPosition_StrategyKey_DefaultsToManual(t *testing.T) {
	p := Position{}
	assert.Equal(t, "manual", p.StrategyKey())

	p.StrategyID = "strat-a"
	assert.Equal(t, "strat-a", p.StrategyKey())
}
