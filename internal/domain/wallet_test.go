package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMarginForNotional(t *testing.T) {
	got := MarginForNotional(decimal.NewFromInt(21500))
	assert.True(t, decimal.NewFromFloat(4300).Equal(got))
}

func TestWallet_ApplyOpenFill_BlocksMarginAndReducesAvailable(t *testing.T) {
	w := &Wallet{Balance: decimal.NewFromInt(10000), AvailableMargin: decimal.NewFromInt(10000)}
	w.ApplyOpenFill(decimal.NewFromInt(1000))

	assert.True(t, decimal.NewFromInt(200).Equal(w.UsedMargin))
	assert.True(t, decimal.NewFromInt(9800).Equal(w.AvailableMargin))
}

func TestWallet_ApplyCloseFill_ReleasesMarginAndBooksPnL(t *testing.T) {
	w := &Wallet{Balance: decimal.NewFromInt(10000), AvailableMargin: decimal.NewFromInt(9800), UsedMargin: decimal.NewFromInt(200)}
	w.ApplyCloseFill(decimal.NewFromInt(200), decimal.NewFromInt(50))

	assert.True(t, decimal.Zero.Equal(w.UsedMargin))
	assert.True(t, decimal.NewFromInt(10000).Equal(w.AvailableMargin))
	assert.True(t, decimal.NewFromInt(10050).Equal(w.Balance))
	assert.True(t, decimal.NewFromInt(50).Equal(w.RealizedPnL))
}

func TestWallet_ApplyCloseFill_BooksLoss(t *testing.T) {
	w := &Wallet{Balance: decimal.NewFromInt(10000)}
	w.ApplyCloseFill(decimal.Zero, decimal.NewFromInt(-30))

	assert.True(t, decimal.NewFromInt(9970).Equal(w.Balance))
	assert.True(t, decimal.NewFromInt(-30).Equal(w.RealizedPnL))
}

func TestWallet_RealizedPnL_AccumulatesAcrossCloses(t *testing.T) {
	w := &Wallet{Balance: decimal.NewFromInt(10000)}
	w.ApplyCloseFill(decimal.Zero, decimal.NewFromInt(50))
	w.ApplyCloseFill(decimal.Zero, decimal.NewFromInt(-20))

	assert.True(t, decimal.NewFromInt(30).Equal(w.RealizedPnL))
	assert.True(t, decimal.NewFromInt(10030).Equal(w.Balance))
}
