package mtm

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/aktrade/tradecore/internal/clock"
	"github.com/aktrade/tradecore/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func longPosition(userID, id, symbol string, entry float64, qty int) domain.Position {
	return domain.Position{
		ID: id, UserID: userID, Symbol: symbol, Side: domain.PositionLong,
		Quantity: qty, EntryPrice: decimal.NewFromFloat(entry), Status: domain.PositionOpen,
	}
}

func TestOnTick_UpdatesUnrealisedPnL_Long(t *testing.T) {
	e := New(clock.Real{}, nil)
	e.RegisterUser("u1", 10000)
	e.OpenPosition(longPosition("u1", "p1", "NIFTY", 100, 10))

	e.OnTick("NIFTY", 105)

	snap := e.PortfolioSnapshotFor("u1")
	assert.InDelta(t, 50.0, snap.UnrealisedPnL, 0.001)
}

func TestOnTick_UpdatesUnrealisedPnL_Short(t *testing.T) {
	e := New(clock.Real{}, nil)
	e.RegisterUser("u1", 10000)
	pos := domain.Position{
		ID: "p1", UserID: "u1", Symbol: "NIFTY", Side: domain.PositionShort,
		Quantity: 10, EntryPrice: decimal.NewFromFloat(100), Status: domain.PositionOpen,
	}
	e.OpenPosition(pos)

	e.OnTick("NIFTY", 95)

	snap := e.PortfolioSnapshotFor("u1")
	assert.InDelta(t, 50.0, snap.UnrealisedPnL, 0.001)
}

func TestOnTick_OnlyMatchingSymbolUpdated(t *testing.T) {
	e := New(clock.Real{}, nil)
	e.RegisterUser("u1", 10000)
	e.OpenPosition(longPosition("u1", "p1", "NIFTY", 100, 10))
	e.OpenPosition(longPosition("u1", "p2", "RELIANCE", 2000, 5))

	e.OnTick("NIFTY", 110)

	snap := e.PortfolioSnapshotFor("u1")
	assert.InDelta(t, 100.0, snap.UnrealisedPnL, 0.001) // only NIFTY moved
}

func TestDistanceToSLAndTP(t *testing.T) {
	e := New(clock.Real{}, nil)
	e.RegisterUser("u1", 10000)
	sl := decimal.NewFromFloat(95)
	tp := decimal.NewFromFloat(110)
	pos := longPosition("u1", "p1", "NIFTY", 100, 10)
	pos.StopLoss = &sl
	pos.TakeProfit = &tp
	e.OpenPosition(pos)

	e.OnTick("NIFTY", 100)

	e.mu.Lock()
	snap := e.users["u1"].positions["p1"]
	e.mu.Unlock()
	assert.InDelta(t, -5.0, snap.DistanceToSL, 0.001)
	assert.InDelta(t, 10.0, snap.DistanceToTP, 0.001)
}

func TestDistanceToSL_NaNWhenUnset(t *testing.T) {
	e := New(clock.Real{}, nil)
	e.RegisterUser("u1", 10000)
	e.OpenPosition(longPosition("u1", "p1", "NIFTY", 100, 10))
	e.OnTick("NIFTY", 100)

	e.mu.Lock()
	snap := e.users["u1"].positions["p1"]
	e.mu.Unlock()
	assert.True(t, math.IsNaN(snap.DistanceToSL))
	assert.True(t, math.IsNaN(snap.DistanceToTP))
}

func TestClosePosition_RemovesFromLiveTrackingAndRecordsRealised(t *testing.T) {
	e := New(clock.Real{}, nil)
	e.RegisterUser("u1", 10000)
	e.OpenPosition(longPosition("u1", "p1", "NIFTY", 100, 10))
	e.OnTick("NIFTY", 110)

	e.ClosePosition("u1", "p1", 100)

	snap := e.PortfolioSnapshotFor("u1")
	assert.Equal(t, 0.0, snap.UnrealisedPnL)
	assert.Equal(t, 100.0, snap.RealisedToday)

	// Further ticks on the symbol must not resurrect the closed position.
	e.OnTick("NIFTY", 200)
	snap2 := e.PortfolioSnapshotFor("u1")
	assert.Equal(t, 0.0, snap2.UnrealisedPnL)
}

func TestPortfolioSnapshotFor_UsedMarginAndAvailable(t *testing.T) {
	e := New(clock.Real{}, nil)
	e.RegisterUser("u1", 10000)
	e.OpenPosition(longPosition("u1", "p1", "NIFTY", 100, 10)) // notional 1000

	snap := e.PortfolioSnapshotFor("u1")
	assert.InDelta(t, 200.0, snap.UsedMargin, 0.001) // 1000 * 0.2
	assert.InDelta(t, 9800.0, snap.AvailableMargin, 0.001)
}

func TestPortfolioSnapshotFor_PerStrategyRollup(t *testing.T) {
	e := New(clock.Real{}, nil)
	e.RegisterUser("u1", 10000)
	p1 := longPosition("u1", "p1", "NIFTY", 100, 10)
	p1.StrategyID = "strat-a"
	p2 := longPosition("u1", "p2", "RELIANCE", 2000, 1)
	e.OpenPosition(p1)
	e.OpenPosition(p2)
	e.OnTick("NIFTY", 110)

	snap := e.PortfolioSnapshotFor("u1")
	require.Contains(t, snap.PerStrategy, "strat-a")
	require.Contains(t, snap.PerStrategy, "manual")
	assert.Equal(t, 1, snap.PerStrategy["strat-a"].PositionCount)
	assert.InDelta(t, 100.0, snap.PerStrategy["strat-a"].UnrealisedPnL, 0.001)
}

func TestPortfolioSnapshotFor_DrawdownFromPeak(t *testing.T) {
	e := New(clock.Real{}, nil)
	e.RegisterUser("u1", 10000)
	e.OpenPosition(longPosition("u1", "p1", "NIFTY", 100, 10))

	e.OnTick("NIFTY", 120) // +200, new peak 10200
	snap1 := e.PortfolioSnapshotFor("u1")
	assert.Equal(t, 0.0, snap1.DrawdownPct)
	assert.InDelta(t, 10200.0, snap1.PeakEquity, 0.001)

	e.OnTick("NIFTY", 90) // -100, equity 9900, drawdown from peak 10200
	snap2 := e.PortfolioSnapshotFor("u1")
	assert.Greater(t, snap2.DrawdownPct, 0.0)
}

func TestDailyReset_ClearsRealisedAndResetsPeak(t *testing.T) {
	e := New(clock.Real{}, nil)
	e.RegisterUser("u1", 10000)
	e.OpenPosition(longPosition("u1", "p1", "NIFTY", 100, 10))
	e.ClosePosition("u1", "p1", 500)

	e.DailyReset()

	snap := e.PortfolioSnapshotFor("u1")
	assert.Equal(t, 0.0, snap.RealisedToday)
	assert.Equal(t, 10000.0, snap.PeakEquity)
}

type fakePersister struct {
	saved []PortfolioSnapshot
	err   error
}

func (f *fakePersister) SaveSnapshot(ctx context.Context, snap PortfolioSnapshot) error {
	f.saved = append(f.saved, snap)
	return f.err
}

func TestPersistAll_WritesEveryUser(t *testing.T) {
	c := clock.NewManual(time.Now())
	p := &fakePersister{}
	e := New(c, p)
	e.RegisterUser("u1", 10000)
	e.RegisterUser("u2", 5000)

	e.PersistAll(context.Background())

	assert.Len(t, p.saved, 2)
}
