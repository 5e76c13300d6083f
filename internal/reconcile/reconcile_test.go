package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/aktrade/tradecore/internal/clock"
	"github.com/aktrade/tradecore/internal/domain"
	"github.com/aktrade/tradecore/internal/ports"
	"github.com/aktrade/tradecore/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBroker struct {
	statuses map[string]ports.OrderStatusResult
	errs     map[string]error
	canceled []string
}

func (f *fakeBroker) GetOrderStatus(ctx context.Context, brokerOrderID string) (ports.OrderStatusResult, error) {
	if err, ok := f.errs[brokerOrderID]; ok {
		return ports.OrderStatusResult{}, err
	}
	return f.statuses[brokerOrderID], nil
}
func (f *fakeBroker) CancelOrder(ctx context.Context, brokerOrderID string) error {
	f.canceled = append(f.canceled, brokerOrderID)
	return nil
}

func newTestStorage(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func placedOrder(id, brokerID string, qty int, placedAt time.Time) domain.Order {
	return domain.Order{
		ID: id, UserID: "u1", Symbol: "NIFTY", Side: domain.SideBuy, OrderType: domain.OrderTypeMarket,
		Quantity: qty, BrokerOrderID: brokerID, Status: domain.OrderPlaced,
		AvgPrice: decimal.Zero, CreatedAt: placedAt, PlacedAt: placedAt, UpdatedAt: placedAt,
	}
}

func TestScanNonTerminal_MarksFilledOnBrokerComplete(t *testing.T) {
	c := clock.NewManual(time.Now())
	s := newTestStorage(t)
	o := placedOrder("o1", "b1", 10, c.Now())
	require.NoError(t, s.Orders().Create(context.Background(), o))

	broker := &fakeBroker{statuses: map[string]ports.OrderStatusResult{
		"b1": {Status: domain.OrderFilled, FilledQty: 10, AvgPrice: 100},
	}}
	r := New(c, s, broker, nil)

	require.NoError(t, r.ScanNonTerminal(context.Background()))

	got, err := s.Orders().Get(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, got.Status)
	assert.Equal(t, 10, got.FilledQuantity)
}

func TestScanNonTerminal_PartialFillAccept75Percent(t *testing.T) {
	// S4: broker reports OPEN (still PLACED locally) with filled=8 of 10.
	c := clock.NewManual(time.Now())
	s := newTestStorage(t)
	o := placedOrder("o1", "b1", 10, c.Now())
	require.NoError(t, s.Orders().Create(context.Background(), o))

	broker := &fakeBroker{statuses: map[string]ports.OrderStatusResult{
		"b1": {Status: domain.OrderPlaced, FilledQty: 8, AvgPrice: 100},
	}}
	r := New(c, s, broker, nil)

	require.NoError(t, r.ScanNonTerminal(context.Background()))

	got, err := s.Orders().Get(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, got.Status)
	assert.Equal(t, 8, got.FilledQuantity)
	assert.Contains(t, broker.canceled, "b1")
}

func TestScanNonTerminal_PartialFillBelowThresholdWaits(t *testing.T) {
	// 74.999% must not trigger remainder-cancel.
	c := clock.NewManual(time.Now())
	s := newTestStorage(t)
	o := placedOrder("o1", "b1", 4000, c.Now())
	require.NoError(t, s.Orders().Create(context.Background(), o))

	broker := &fakeBroker{statuses: map[string]ports.OrderStatusResult{
		"b1": {Status: domain.OrderPlaced, FilledQty: 2999, AvgPrice: 100}, // 74.975%
	}}
	r := New(c, s, broker, nil)

	require.NoError(t, r.ScanNonTerminal(context.Background()))

	got, err := s.Orders().Get(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPartiallyFilled, got.Status)
	assert.Empty(t, broker.canceled)
}

func TestScanNonTerminal_RejectedRetryableSchedulesRetry(t *testing.T) {
	c := clock.NewManual(time.Now())
	s := newTestStorage(t)
	o := placedOrder("o1", "b1", 10, c.Now())
	require.NoError(t, s.Orders().Create(context.Background(), o))

	broker := &fakeBroker{statuses: map[string]ports.OrderStatusResult{
		"b1": {Status: domain.OrderRejected, RejectReason: "network timeout"},
	}}
	r := New(c, s, broker, nil)

	require.NoError(t, r.ScanNonTerminal(context.Background()))

	got, err := s.Orders().Get(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderRejected, got.Status)
	assert.Equal(t, 1, r.RetryQueueDepth())
}

func TestScanNonTerminal_RejectedNonRetryableNoRetry(t *testing.T) {
	c := clock.NewManual(time.Now())
	s := newTestStorage(t)
	o := placedOrder("o1", "b1", 10, c.Now())
	require.NoError(t, s.Orders().Create(context.Background(), o))

	broker := &fakeBroker{statuses: map[string]ports.OrderStatusResult{
		"b1": {Status: domain.OrderRejected, RejectReason: "insufficient margin"},
	}}
	r := New(c, s, broker, nil)

	require.NoError(t, r.ScanNonTerminal(context.Background()))
	assert.Equal(t, 0, r.RetryQueueDepth())
}

func TestScanNonTerminal_StaleOrderCancelledAfter10Minutes(t *testing.T) {
	c := clock.NewManual(time.Now())
	s := newTestStorage(t)
	o := placedOrder("o1", "b1", 10, c.Now())
	require.NoError(t, s.Orders().Create(context.Background(), o))

	broker := &fakeBroker{statuses: map[string]ports.OrderStatusResult{
		"b1": {Status: domain.OrderPlaced, FilledQty: 0},
	}}
	r := New(c, s, broker, nil)

	c.Advance(11 * time.Minute)
	require.NoError(t, r.ScanNonTerminal(context.Background()))

	got, err := s.Orders().Get(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, got.Status)
	assert.Contains(t, broker.canceled, "b1")
}

func TestScanNonTerminal_AlreadyFilledIsNoop(t *testing.T) {
	// "Reconcile on an already-FILLED order is a no-op" (spec §8).
	c := clock.NewManual(time.Now())
	s := newTestStorage(t)
	o := placedOrder("o1", "b1", 10, c.Now())
	o.Status = domain.OrderFilled
	o.FilledQuantity = 10
	o.AvgPrice = decimal.NewFromInt(100)
	require.NoError(t, s.Orders().Create(context.Background(), o))

	// FILLED is a terminal status so ListNonTerminal must not return it at all.
	orders, err := s.Orders().ListNonTerminal(context.Background(), c.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestProcessRetryQueue_SucceedsAndLinksNewOrder(t *testing.T) {
	c := clock.NewManual(time.Now())
	s := newTestStorage(t)
	original := placedOrder("o1", "b1", 10, c.Now())
	original.Status = domain.OrderRejected
	original.RejectReason = "network timeout"
	require.NoError(t, s.Orders().Create(context.Background(), original))

	broker := &fakeBroker{statuses: map[string]ports.OrderStatusResult{
		"b1": {Status: domain.OrderRejected, RejectReason: "network timeout"},
	}}
	placeCalls := 0
	r := New(c, s, broker, func(ctx context.Context, order domain.Order) (ports.PlaceOrderResult, error) {
		placeCalls++
		return ports.PlaceOrderResult{BrokerOrderID: "b2", Status: domain.OrderPlaced}, nil
	})
	r.scheduleRetry(original)

	c.Advance(6 * time.Second)
	require.NoError(t, r.ProcessRetryQueue(context.Background()))

	assert.Equal(t, 1, placeCalls)
	assert.Equal(t, 0, r.RetryQueueDepth())

	stillOriginal, err := s.Orders().Get(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderRejected, stillOriginal.Status, "the original order stays REJECTED")

	linked, err := s.Orders().ListNonTerminal(context.Background(), c.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, "o1", linked[0].LinkedOrderID)
	assert.Equal(t, "b2", linked[0].BrokerOrderID)
}

func TestProcessRetryQueue_ExhaustsAfterThreeAttempts(t *testing.T) {
	c := clock.NewManual(time.Now())
	s := newTestStorage(t)
	original := placedOrder("o1", "b1", 10, c.Now())
	original.Status = domain.OrderRejected
	require.NoError(t, s.Orders().Create(context.Background(), original))

	r := New(c, s, &fakeBroker{}, func(ctx context.Context, order domain.Order) (ports.PlaceOrderResult, error) {
		return ports.PlaceOrderResult{}, assert.AnError
	})
	r.scheduleRetry(original)

	for _, delay := range retryDelays {
		c.Advance(delay + time.Second)
		require.NoError(t, r.ProcessRetryQueue(context.Background()))
	}
	assert.Equal(t, 0, r.RetryQueueDepth(), "retry queue drains once attempts are exhausted")
}

func TestIsRetryable(t *testing.T) {
	cases := map[string]bool{
		"Session expired, please re-login": true,
		"connection timeout":               true,
		"NETWORK unreachable":              true,
		"rate limit exceeded":              true,
		"temporarily unavailable":          true,
		"internal server error":            true,
		"5xx from upstream":                true,
		"insufficient margin":              false,
		"invalid order type":               false,
		"order rejected by exchange":       false,
	}
	for reason, want := range cases {
		assert.Equal(t, want, isRetryable(reason), reason)
	}
}
