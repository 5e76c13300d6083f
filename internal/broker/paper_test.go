package broker

import (
	"context"
	"testing"

	"github.com/aktrade/tradecore/internal/clock"
	"github.com/aktrade/tradecore/internal/domain"
	"github.com/aktrade/tradecore/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePositionSource struct {
	positions []domain.Position
	err       error
}

func (f *fakePositionSource) ListOpen(ctx context.Context, userID string) ([]domain.Position, error) {
	return f.positions, f.err
}

func TestTick_StaysWithinWalkBounds(t *testing.T) {
	p := NewPaper(clock.Real{}, map[string]float64{"NIFTY": 100}, 42, nil)
	prev := 100.0
	for i := 0; i < 100; i++ {
		price := p.Tick("NIFTY")
		assert.InDelta(t, prev, price, prev*paperWalkPct*1.01)
		prev = price
	}
}

func TestTick_UnknownSymbolReturnsZero(t *testing.T) {
	p := NewPaper(clock.Real{}, map[string]float64{"NIFTY": 100}, 1, nil)
	assert.Equal(t, 0.0, p.Tick("RELIANCE"))
}

func TestPlaceOrder_FillsWithSlippageWhenNotSyntheticallyRejected(t *testing.T) {
	// Scan seeds for one whose first draw is not a synthetic rejection.
	var p *Paper
	var seed int64
	for seed = 1; seed < 1000; seed++ {
		p = NewPaper(clock.Real{}, map[string]float64{"NIFTY": 100}, seed, nil)
		res, err := p.PlaceOrder(context.Background(), ports.PlaceOrderRequest{Symbol: "NIFTY", Side: domain.SideBuy, Quantity: 10, OrderType: domain.OrderTypeMarket})
		require.NoError(t, err)
		if res.Status == domain.OrderFilled {
			assert.Equal(t, 10, res.FilledQty)
			assert.Greater(t, res.AvgPrice, 100.0, "a buy fill slips up from mid")
			assert.NotEmpty(t, res.BrokerOrderID)
			return
		}
	}
	t.Fatal("expected at least one non-rejected fill within 1000 seeds")
}

func TestPlaceOrder_SellSlipsDown(t *testing.T) {
	for seed := int64(1); seed < 1000; seed++ {
		p := NewPaper(clock.Real{}, map[string]float64{"NIFTY": 100}, seed, nil)
		res, err := p.PlaceOrder(context.Background(), ports.PlaceOrderRequest{Symbol: "NIFTY", Side: domain.SideSell, Quantity: 10, OrderType: domain.OrderTypeMarket})
		require.NoError(t, err)
		if res.Status == domain.OrderFilled {
			assert.Less(t, res.AvgPrice, 100.0, "a sell fill slips down from mid")
			return
		}
	}
	t.Fatal("expected at least one non-rejected fill within 1000 seeds")
}

func TestPlaceOrder_SyntheticRejectionRateRoughlyMatchesSpec(t *testing.T) {
	p := NewPaper(clock.Real{}, map[string]float64{"NIFTY": 100}, 99, nil)
	rejected := 0
	const n = 5000
	for i := 0; i < n; i++ {
		res, err := p.PlaceOrder(context.Background(), ports.PlaceOrderRequest{Symbol: "NIFTY", Side: domain.SideBuy, Quantity: 1, OrderType: domain.OrderTypeMarket})
		require.NoError(t, err)
		if res.Status == domain.OrderRejected {
			rejected++
			assert.Equal(t, "paper: synthetic rejection", res.RejectReason)
		}
	}
	rate := float64(rejected) / n
	assert.InDelta(t, paperRejectionPct, rate, 0.01)
}

func TestCancelOrder_LeavesFilledOrderAlone(t *testing.T) {
	p := NewPaper(clock.Real{}, map[string]float64{"NIFTY": 100}, 1, nil)
	var filledID string
	for seed := int64(1); seed < 1000; seed++ {
		p = NewPaper(clock.Real{}, map[string]float64{"NIFTY": 100}, seed, nil)
		res, err := p.PlaceOrder(context.Background(), ports.PlaceOrderRequest{Symbol: "NIFTY", Side: domain.SideBuy, Quantity: 1, OrderType: domain.OrderTypeMarket})
		require.NoError(t, err)
		if res.Status == domain.OrderFilled {
			filledID = res.BrokerOrderID
			break
		}
	}
	require.NotEmpty(t, filledID)

	require.NoError(t, p.CancelOrder(context.Background(), filledID))

	status, err := p.GetOrderStatus(context.Background(), filledID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, status.Status, "cancel must not downgrade an already-filled order")
}

func TestCancelOrder_UnknownOrderErrors(t *testing.T) {
	p := NewPaper(clock.Real{}, map[string]float64{"NIFTY": 100}, 1, nil)
	err := p.CancelOrder(context.Background(), "does-not-exist")
	assert.Error(t, err)
}

func TestGetCurrentPrice_UnknownSymbolErrors(t *testing.T) {
	p := NewPaper(clock.Real{}, map[string]float64{"NIFTY": 100}, 1, nil)
	_, err := p.GetCurrentPrice(context.Background(), "RELIANCE")
	assert.Error(t, err)
}

func TestGetPositions_NilSourceReturnsEmpty(t *testing.T) {
	p := NewPaper(clock.Real{}, map[string]float64{"NIFTY": 100}, 1, nil)
	positions, err := p.GetPositions(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestSquareOffAll_PlacesOppositeSideOrderPerOpenPosition(t *testing.T) {
	src := &fakePositionSource{positions: []domain.Position{
		{ID: "p1", UserID: "u1", Symbol: "NIFTY", Side: domain.PositionLong, Quantity: 5},
		{ID: "p2", UserID: "u1", Symbol: "RELIANCE", Side: domain.PositionShort, Quantity: 2},
	}}
	p := NewPaper(clock.Real{}, map[string]float64{"NIFTY": 100, "RELIANCE": 2000}, 1, src)

	require.NoError(t, p.SquareOffAll(context.Background(), "u1"))
}

func TestCancelAllOrders_MarksNonTerminalOnly(t *testing.T) {
	p := NewPaper(clock.Real{}, map[string]float64{"NIFTY": 100}, 1, nil)
	var filledID string
	for seed := int64(1); seed < 1000; seed++ {
		p = NewPaper(clock.Real{}, map[string]float64{"NIFTY": 100}, seed, nil)
		res, err := p.PlaceOrder(context.Background(), ports.PlaceOrderRequest{Symbol: "NIFTY", Side: domain.SideBuy, Quantity: 1, OrderType: domain.OrderTypeMarket})
		require.NoError(t, err)
		if res.Status == domain.OrderFilled {
			filledID = res.BrokerOrderID
			break
		}
	}
	require.NotEmpty(t, filledID)

	require.NoError(t, p.CancelAllOrders(context.Background(), "u1"))

	status, err := p.GetOrderStatus(context.Background(), filledID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, status.Status)
}

func TestIsConnected_AlwaysTrue(t *testing.T) {
	p := NewPaper(clock.Real{}, nil, 1, nil)
	assert.True(t, p.IsConnected())
}
