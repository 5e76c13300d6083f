package live

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/aktrade/tradecore/internal/domain"
	"github.com/aktrade/tradecore/internal/ports"
	"github.com/shopspring/decimal"
)

type placeOrderWireRequest struct {
	Variety         string `json:"variety"`
	TradingSymbol   string `json:"tradingsymbol"`
	SymbolToken     string `json:"symboltoken"`
	TransactionType string `json:"transactiontype"`
	Exchange        string `json:"exchange"`
	OrderType       string `json:"ordertype"`
	ProductType     string `json:"producttype"`
	Duration        string `json:"duration"`
	Price           string `json:"price"`
	TriggerPrice    string `json:"triggerprice"`
	Quantity        string `json:"quantity"`
}

type placeOrderWireResponse struct {
	Data struct {
		OrderID string `json:"orderid"`
	} `json:"data"`
}

type orderBookEntry struct {
	OrderID      string `json:"orderid"`
	Status       string `json:"status"`
	FilledShares string `json:"filledshares"`
	AveragePrice string `json:"averageprice"`
	Text         string `json:"text"`
}

type orderBookResponse struct {
	Data []orderBookEntry `json:"data"`
}

type quoteResponse struct {
	Data struct {
		LTP float64 `json:"ltp"`
	} `json:"data"`
}

// Broker is the live broker adapter, satisfying ports.BrokerAdapter against
// the vendor's authenticated HTTP API (spec §4.8).
type Broker struct {
	client          *Client
	session         *Session
	symbols         *SymbolResolver
	exchange        string
	maxTradeSize    float64
	emergencyStopped atomic.Bool
}

var _ ports.BrokerAdapter = (*Broker)(nil)

// New creates the live broker adapter. maxTradeSize is the per-order
// estimated-value cap (spec §4.8: "qty * limit_price must be <= MAX_TRADE_SIZE").
func New(client *Client, session *Session, symbols *SymbolResolver, exchange string, maxTradeSize float64) *Broker {
	return &Broker{client: client, session: session, symbols: symbols, exchange: exchange, maxTradeSize: maxTradeSize}
}

// EmergencyStop blocks PlaceOrder (but not SquareOffAll) until Resume is called.
func (b *Broker) EmergencyStop() { b.emergencyStopped.Store(true) }

// Resume clears the emergency-stop flag.
func (b *Broker) Resume() { b.emergencyStopped.Store(false) }

// PlaceOrder submits an order to the vendor API, enforcing the emergency
// flag and the per-order MAX_TRADE_SIZE gate (spec §4.8 "Safety gates (live)").
func (b *Broker) PlaceOrder(ctx context.Context, req ports.PlaceOrderRequest) (ports.PlaceOrderResult, error) {
	if b.emergencyStopped.Load() {
		return ports.PlaceOrderResult{Status: domain.OrderRejected, RejectReason: "live: emergency_stopped"}, nil
	}

	estimatedPrice := req.LimitPrice
	if estimatedPrice == 0 {
		if price, err := b.GetCurrentPrice(ctx, req.Symbol); err == nil {
			estimatedPrice = price
		}
	}
	estimatedValue := estimatedPrice * float64(req.Quantity)
	if b.maxTradeSize > 0 && estimatedValue > b.maxTradeSize {
		return ports.PlaceOrderResult{Status: domain.OrderRejected, RejectReason: "live: estimated value exceeds MAX_TRADE_SIZE"}, nil
	}

	token, err := b.symbols.Resolve(ctx, b.exchange, req.Symbol)
	if err != nil {
		return ports.PlaceOrderResult{}, fmt.Errorf("live.Broker.PlaceOrder: %w", err)
	}

	wire := placeOrderWireRequest{
		Variety:         "NORMAL",
		TradingSymbol:   req.Symbol,
		SymbolToken:     token,
		TransactionType: string(req.Side),
		Exchange:        b.exchange,
		OrderType:       wireOrderType(req.OrderType),
		ProductType:     "INTRADAY",
		Duration:        "DAY",
		Price:           formatPrice(req.LimitPrice),
		TriggerPrice:    formatPrice(req.TriggerPrice),
		Quantity:        strconv.Itoa(req.Quantity),
	}

	var resp placeOrderWireResponse
	if err := b.client.do(ctx, "POST", "/rest/secure/angelbroking/order/v1/placeOrder", wire, &resp); err != nil {
		var bizErr *BusinessError
		if errors.As(err, &bizErr) {
			return ports.PlaceOrderResult{Status: domain.OrderRejected, RejectReason: bizErr.Message}, nil
		}
		return ports.PlaceOrderResult{}, fmt.Errorf("live.Broker.PlaceOrder: %w", err)
	}

	return ports.PlaceOrderResult{BrokerOrderID: resp.Data.OrderID, Status: domain.OrderPlaced}, nil
}

// CancelOrder cancels a live order by broker order id.
func (b *Broker) CancelOrder(ctx context.Context, brokerOrderID string) error {
	req := struct {
		Variety string `json:"variety"`
		OrderID string `json:"orderid"`
	}{Variety: "NORMAL", OrderID: brokerOrderID}
	if err := b.client.do(ctx, "POST", "/rest/secure/angelbroking/order/v1/cancelOrder", req, nil); err != nil {
		return fmt.Errorf("live.Broker.CancelOrder: %w", err)
	}
	return nil
}

// GetOrderStatus fetches the order book and finds the matching entry (the
// reconciler is the component that actually advances order state from this;
// PLACED orders are left to it — spec §4.7 step 4).
func (b *Broker) GetOrderStatus(ctx context.Context, brokerOrderID string) (ports.OrderStatusResult, error) {
	var resp orderBookResponse
	if err := b.client.do(ctx, "GET", "/rest/secure/angelbroking/order/v1/getOrderBook", nil, &resp); err != nil {
		return ports.OrderStatusResult{}, fmt.Errorf("live.Broker.GetOrderStatus: %w", err)
	}
	for _, entry := range resp.Data {
		if entry.OrderID != brokerOrderID {
			continue
		}
		filled, _ := strconv.Atoi(entry.FilledShares)
		avg, _ := strconv.ParseFloat(entry.AveragePrice, 64)
		return ports.OrderStatusResult{
			Status:       wireStatusToDomain(entry.Status),
			FilledQty:    filled,
			AvgPrice:     avg,
			RejectReason: entry.Text,
		}, nil
	}
	return ports.OrderStatusResult{}, fmt.Errorf("live.Broker.GetOrderStatus: order %s not found", brokerOrderID)
}

// GetCurrentPrice fetches the LTP quote for symbol.
func (b *Broker) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	token, err := b.symbols.Resolve(ctx, b.exchange, symbol)
	if err != nil {
		return 0, fmt.Errorf("live.Broker.GetCurrentPrice: %w", err)
	}
	req := struct {
		Exchange    string `json:"exchange"`
		SymbolToken string `json:"symboltoken"`
	}{Exchange: b.exchange, SymbolToken: token}
	var resp quoteResponse
	if err := b.client.do(ctx, "POST", "/rest/secure/angelbroking/order/v1/quote", req, &resp); err != nil {
		return 0, fmt.Errorf("live.Broker.GetCurrentPrice: %w", err)
	}
	return resp.Data.LTP, nil
}

// GetPositions fetches the live broker's open position book.
func (b *Broker) GetPositions(ctx context.Context, _ string) ([]domain.Position, error) {
	var resp struct {
		Data []struct {
			TradingSymbol string `json:"tradingsymbol"`
			NetQty        string `json:"netqty"`
			AvgPrice      string `json:"avgnetprice"`
		} `json:"data"`
	}
	if err := b.client.do(ctx, "GET", "/rest/secure/angelbroking/order/v1/getPosition", nil, &resp); err != nil {
		return nil, fmt.Errorf("live.Broker.GetPositions: %w", err)
	}
	positions := make([]domain.Position, 0, len(resp.Data))
	for _, p := range resp.Data {
		qty, _ := strconv.Atoi(p.NetQty)
		if qty == 0 {
			continue
		}
		avg, _ := strconv.ParseFloat(p.AvgPrice, 64)
		side := domain.PositionLong
		if qty < 0 {
			side = domain.PositionShort
			qty = -qty
		}
		positions = append(positions, domain.Position{
			Symbol: p.TradingSymbol, Side: side, Quantity: qty,
			EntryPrice: decimal.NewFromFloat(avg), Status: domain.PositionOpen,
		})
	}
	return positions, nil
}

// SquareOffAll closes every live open position with an opposing market
// order. Not blocked by emergency_stopped (spec §4.8).
func (b *Broker) SquareOffAll(ctx context.Context, userID string) error {
	positions, err := b.GetPositions(ctx, userID)
	if err != nil {
		return fmt.Errorf("live.Broker.SquareOffAll: %w", err)
	}
	for _, pos := range positions {
		side := domain.SideSell
		if pos.Side == domain.PositionShort {
			side = domain.SideBuy
		}
		token, err := b.symbols.Resolve(ctx, b.exchange, pos.Symbol)
		if err != nil {
			return fmt.Errorf("live.Broker.SquareOffAll: %s: %w", pos.Symbol, err)
		}
		wire := placeOrderWireRequest{
			Variety: "NORMAL", TradingSymbol: pos.Symbol, SymbolToken: token,
			TransactionType: string(side), Exchange: b.exchange, OrderType: "MARKET",
			ProductType: "INTRADAY", Duration: "DAY", Quantity: strconv.Itoa(pos.Quantity),
		}
		if err := b.client.do(ctx, "POST", "/rest/secure/angelbroking/order/v1/placeOrder", wire, nil); err != nil {
			return fmt.Errorf("live.Broker.SquareOffAll: place %s: %w", pos.Symbol, err)
		}
	}
	return nil
}

// CancelAllOrders cancels every non-terminal order in the live order book.
func (b *Broker) CancelAllOrders(ctx context.Context, _ string) error {
	var resp orderBookResponse
	if err := b.client.do(ctx, "GET", "/rest/secure/angelbroking/order/v1/getOrderBook", nil, &resp); err != nil {
		return fmt.Errorf("live.Broker.CancelAllOrders: %w", err)
	}
	for _, entry := range resp.Data {
		if wireStatusToDomain(entry.Status).Terminal() {
			continue
		}
		if err := b.CancelOrder(ctx, entry.OrderID); err != nil {
			return fmt.Errorf("live.Broker.CancelAllOrders: %s: %w", entry.OrderID, err)
		}
	}
	return nil
}

// IsConnected reports whether the session holds a bearer token.
func (b *Broker) IsConnected() bool { return b.session.JWT() != "" }

func wireOrderType(t domain.OrderType) string {
	switch t {
	case domain.OrderTypeLimit:
		return "LIMIT"
	case domain.OrderTypeSLM:
		return "STOPLOSS_MARKET"
	default:
		return "MARKET"
	}
}

func formatPrice(price float64) string {
	if price == 0 {
		return "0"
	}
	return strconv.FormatFloat(price, 'f', 2, 64)
}

func wireStatusToDomain(status string) domain.OrderStatus {
	switch status {
	case "complete":
		return domain.OrderFilled
	case "open", "open pending", "trigger pending":
		return domain.OrderPlaced
	case "cancelled":
		return domain.OrderCancelled
	case "rejected":
		return domain.OrderRejected
	default:
		return domain.OrderPlaced
	}
}
