package live

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aktrade/tradecore/internal/clock"
	"github.com/aktrade/tradecore/internal/domain"
	"github.com/aktrade/tradecore/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker(t *testing.T, maxTradeSize float64, handler http.HandlerFunc) (*Broker, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	session := NewSession(srv.Client(), srv.URL, Credentials{})
	client := NewClient(srv.URL, StaticHeaders{}, session, clock.Real{})
	resolver := NewSymbolResolver(client)
	b := New(client, session, resolver, "NSE", maxTradeSize)
	return b, srv
}

func TestPlaceOrder_RejectedImmediatelyWhenEmergencyStopped(t *testing.T) {
	b, _ := newTestBroker(t, 0, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no network call expected once emergency-stopped")
	})
	b.EmergencyStop()

	res, err := b.PlaceOrder(context.Background(), ports.PlaceOrderRequest{Symbol: "NIFTY", Side: domain.SideBuy, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderRejected, res.Status)
	assert.Equal(t, "live: emergency_stopped", res.RejectReason)
}

func TestPlaceOrder_ResumeClearsEmergencyStop(t *testing.T) {
	b, _ := newTestBroker(t, 0, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"orderid":"o1"}}`))
	})
	b.EmergencyStop()
	b.Resume()

	res, err := b.PlaceOrder(context.Background(), ports.PlaceOrderRequest{Symbol: "NIFTY", Side: domain.SideBuy, Quantity: 1, LimitPrice: 100})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPlaced, res.Status)
}

func TestPlaceOrder_RejectedWhenEstimatedValueExceedsMaxTradeSize(t *testing.T) {
	b, _ := newTestBroker(t, 1000, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no order should be placed once the MAX_TRADE_SIZE gate rejects")
	})

	res, err := b.PlaceOrder(context.Background(), ports.PlaceOrderRequest{
		Symbol: "NIFTY", Side: domain.SideBuy, Quantity: 100, LimitPrice: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderRejected, res.Status)
	assert.Contains(t, res.RejectReason, "MAX_TRADE_SIZE")
}

func TestPlaceOrder_SucceedsWithinMaxTradeSize(t *testing.T) {
	var gotBody []byte
	b, _ := newTestBroker(t, 10000, func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"data":{"orderid":"o42"}}`))
	})

	res, err := b.PlaceOrder(context.Background(), ports.PlaceOrderRequest{
		Symbol: "NIFTY", Side: domain.SideBuy, Quantity: 10, LimitPrice: 100, OrderType: domain.OrderTypeLimit,
	})
	require.NoError(t, err)
	assert.Equal(t, "o42", res.BrokerOrderID)
	assert.Equal(t, domain.OrderPlaced, res.Status)
	assert.Contains(t, string(gotBody), `"symboltoken":"99926000"`)
	assert.Contains(t, string(gotBody), `"ordertype":"LIMIT"`)
}

func TestPlaceOrder_BusinessErrorMapsToRejectedWithoutGoError(t *testing.T) {
	b, _ := newTestBroker(t, 0, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("rejected: insufficient margin"))
	})

	res, err := b.PlaceOrder(context.Background(), ports.PlaceOrderRequest{
		Symbol: "NIFTY", Side: domain.SideBuy, Quantity: 1, LimitPrice: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderRejected, res.Status)
	assert.Contains(t, res.RejectReason, "insufficient margin")
}

func TestCancelOrder_PostsToCancelEndpoint(t *testing.T) {
	var gotPath string
	b, _ := newTestBroker(t, 0, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte("{}"))
	})
	require.NoError(t, b.CancelOrder(context.Background(), "o1"))
	assert.Equal(t, "/rest/secure/angelbroking/order/v1/cancelOrder", gotPath)
}

func TestGetOrderStatus_FindsMatchingEntry(t *testing.T) {
	b, _ := newTestBroker(t, 0, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[
			{"orderid":"o1","status":"complete","filledshares":"10","averageprice":"101.50"},
			{"orderid":"o2","status":"open","filledshares":"0","averageprice":"0"}
		]}`))
	})

	res, err := b.GetOrderStatus(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, res.Status)
	assert.Equal(t, 10, res.FilledQty)
	assert.Equal(t, 101.50, res.AvgPrice)
}

func TestGetOrderStatus_ErrorsWhenOrderNotInBook(t *testing.T) {
	b, _ := newTestBroker(t, 0, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	})
	_, err := b.GetOrderStatus(context.Background(), "missing")
	assert.Error(t, err)
}

func TestGetCurrentPrice_ReturnsLTP(t *testing.T) {
	b, _ := newTestBroker(t, 0, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"ltp":21543.25}}`))
	})
	price, err := b.GetCurrentPrice(context.Background(), "NIFTY")
	require.NoError(t, err)
	assert.Equal(t, 21543.25, price)
}

func TestGetPositions_ParsesSignForShortAndSkipsZeroQty(t *testing.T) {
	b, _ := newTestBroker(t, 0, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[
			{"tradingsymbol":"NIFTY","netqty":"10","avgnetprice":"100.5"},
			{"tradingsymbol":"BANKNIFTY","netqty":"-5","avgnetprice":"200"},
			{"tradingsymbol":"RELIANCE","netqty":"0","avgnetprice":"0"}
		]}`))
	})

	positions, err := b.GetPositions(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, positions, 2)

	assert.Equal(t, "NIFTY", positions[0].Symbol)
	assert.Equal(t, domain.PositionLong, positions[0].Side)
	assert.Equal(t, 10, positions[0].Quantity)

	assert.Equal(t, "BANKNIFTY", positions[1].Symbol)
	assert.Equal(t, domain.PositionShort, positions[1].Side)
	assert.Equal(t, 5, positions[1].Quantity)
}

func TestSquareOffAll_PlacesOpposingMarketOrderPerPosition(t *testing.T) {
	var placedSides []string
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/secure/angelbroking/order/v1/getPosition", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"tradingsymbol":"NIFTY","netqty":"10","avgnetprice":"100"},{"tradingsymbol":"BANKNIFTY","netqty":"-5","avgnetprice":"200"}]}`))
	})
	mux.HandleFunc("/rest/secure/angelbroking/order/v1/placeOrder", func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		placedSides = append(placedSides, string(buf))
		w.Write([]byte(`{"data":{"orderid":"x"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	session := NewSession(srv.Client(), srv.URL, Credentials{})
	client := NewClient(srv.URL, StaticHeaders{}, session, clock.Real{})
	b := New(client, session, NewSymbolResolver(client), "NSE", 0)

	require.NoError(t, b.SquareOffAll(context.Background(), "u1"))
	require.Len(t, placedSides, 2)
	assert.Contains(t, placedSides[0], `"transactiontype":"SELL"`, "a long position squares off with a sell")
	assert.Contains(t, placedSides[1], `"transactiontype":"BUY"`, "a short position squares off with a buy")
}

func TestSquareOffAll_NotBlockedByEmergencyStop(t *testing.T) {
	b, _ := newTestBroker(t, 0, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	})
	b.EmergencyStop()
	require.NoError(t, b.SquareOffAll(context.Background(), "u1"))
}

func TestCancelAllOrders_CancelsOnlyNonTerminalOrders(t *testing.T) {
	var cancelled []string
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/secure/angelbroking/order/v1/getOrderBook", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"orderid":"o1","status":"open"},{"orderid":"o2","status":"complete"},{"orderid":"o3","status":"trigger pending"}]}`))
	})
	mux.HandleFunc("/rest/secure/angelbroking/order/v1/cancelOrder", func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		cancelled = append(cancelled, string(buf))
		w.Write([]byte("{}"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	session := NewSession(srv.Client(), srv.URL, Credentials{})
	client := NewClient(srv.URL, StaticHeaders{}, session, clock.Real{})
	b := New(client, session, NewSymbolResolver(client), "NSE", 0)

	require.NoError(t, b.CancelAllOrders(context.Background(), "u1"))
	require.Len(t, cancelled, 2)
	assert.Contains(t, cancelled[0], "o1")
	assert.Contains(t, cancelled[1], "o3")
}

func TestIsConnected_ReflectsSessionJWT(t *testing.T) {
	b, _ := newTestBroker(t, 0, func(w http.ResponseWriter, r *http.Request) {})
	assert.False(t, b.IsConnected())

	b.session.mu.Lock()
	b.session.jwt = "jwt1"
	b.session.mu.Unlock()
	assert.True(t, b.IsConnected())
}

func TestWireOrderType(t *testing.T) {
	assert.Equal(t, "LIMIT", wireOrderType(domain.OrderTypeLimit))
	assert.Equal(t, "STOPLOSS_MARKET", wireOrderType(domain.OrderTypeSLM))
	assert.Equal(t, "MARKET", wireOrderType(domain.OrderTypeMarket))
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "0", formatPrice(0))
	assert.Equal(t, "100.50", formatPrice(100.5))
}

func TestWireStatusToDomain(t *testing.T) {
	cases := map[string]domain.OrderStatus{
		"complete":        domain.OrderFilled,
		"open":            domain.OrderPlaced,
		"open pending":    domain.OrderPlaced,
		"trigger pending": domain.OrderPlaced,
		"cancelled":       domain.OrderCancelled,
		"rejected":        domain.OrderRejected,
		"bogus":           domain.OrderPlaced,
	}
	for wire, want := range cases {
		assert.Equal(t, want, wireStatusToDomain(wire), wire)
	}
}
