// Package broker holds the paper simulator and the live HTTP adapter
// (internal/broker/live) behind the uniform ports.BrokerAdapter contract
// (spec §4.8).
package broker

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/aktrade/tradecore/internal/clock"
	"github.com/aktrade/tradecore/internal/domain"
	"github.com/aktrade/tradecore/internal/ports"
	"github.com/google/uuid"
)

const (
	paperWalkPct       = 0.003 // +-0.3% per tick random walk
	paperRejectionPct  = 0.025 // 2-3% synthetic rejection
	paperSlippageMin   = 0.0001
	paperSlippageMax   = 0.0005
)

// PositionSource lets the paper broker's square-off/get-positions operations
// inspect the engine's real position store rather than returning an empty
// slice (spec §9 Open Question 2: "paper square-off should inspect DB
// positions directly").
type PositionSource interface {
	ListOpen(ctx context.Context, userID string) ([]domain.Position, error)
}

// Paper is a deterministic simulated broker: seeded prices random-walk per
// tick, orders synthetically reject 2-3% of the time, and accepted orders
// fill immediately with a small slippage.
type Paper struct {
	clock     clock.Clock
	positions PositionSource
	rng       *rand.Rand

	mu     sync.Mutex
	prices map[string]float64
	orders map[string]ports.OrderStatusResult
}

var _ ports.BrokerAdapter = (*Paper)(nil)

// NewPaper creates a paper broker seeded with starting prices (symbol ->
// price) and a deterministic seed so scenario tests (spec §8 S1) reproduce.
func NewPaper(c clock.Clock, seedPrices map[string]float64, seed int64, positions PositionSource) *Paper {
	prices := make(map[string]float64, len(seedPrices))
	for k, v := range seedPrices {
		prices[k] = v
	}
	return &Paper{
		clock:     c,
		positions: positions,
		rng:       rand.New(rand.NewSource(seed)),
		prices:    prices,
		orders:    make(map[string]ports.OrderStatusResult),
	}
}

// Tick advances one symbol's simulated price by a random walk step, bounded
// to +-0.3% (spec §4.8). Call this once per simulated tick.
func (p *Paper) Tick(symbol string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.prices[symbol]
	if !ok {
		return 0
	}
	step := (p.rng.Float64()*2 - 1) * paperWalkPct
	price = price * (1 + step)
	p.prices[symbol] = price
	return price
}

// PlaceOrder synthetically rejects 2-3% of orders; otherwise fills
// immediately at price*(1+-slippage) aligned to side (buy slips up, sell
// slips down).
func (p *Paper) PlaceOrder(_ context.Context, req ports.PlaceOrderRequest) (ports.PlaceOrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rng.Float64() < paperRejectionPct {
		return ports.PlaceOrderResult{Status: domain.OrderRejected, RejectReason: "paper: synthetic rejection"}, nil
	}

	price := p.prices[req.Symbol]
	if price == 0 {
		price = req.LimitPrice
	}
	slippage := paperSlippageMin + p.rng.Float64()*(paperSlippageMax-paperSlippageMin)
	fillPrice := price
	if req.Side == domain.SideBuy {
		fillPrice = price * (1 + slippage)
	} else {
		fillPrice = price * (1 - slippage)
	}
	fillPrice = math.Round(fillPrice*100) / 100

	brokerOrderID := uuid.NewString()
	result := ports.PlaceOrderResult{
		BrokerOrderID: brokerOrderID,
		Status:        domain.OrderFilled,
		FilledQty:     req.Quantity,
		AvgPrice:      fillPrice,
	}
	p.orders[brokerOrderID] = ports.OrderStatusResult{Status: domain.OrderFilled, FilledQty: req.Quantity, AvgPrice: fillPrice}
	return result, nil
}

// CancelOrder marks a paper order cancelled if it has not already filled.
func (p *Paper) CancelOrder(_ context.Context, brokerOrderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	status, ok := p.orders[brokerOrderID]
	if !ok {
		return fmt.Errorf("broker.Paper.CancelOrder: unknown order %s", brokerOrderID)
	}
	if status.Status == domain.OrderFilled {
		return nil
	}
	status.Status = domain.OrderCancelled
	p.orders[brokerOrderID] = status
	return nil
}

// GetOrderStatus returns the immediate (already-COMPLETE) paper fill.
func (p *Paper) GetOrderStatus(_ context.Context, brokerOrderID string) (ports.OrderStatusResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	status, ok := p.orders[brokerOrderID]
	if !ok {
		return ports.OrderStatusResult{}, fmt.Errorf("broker.Paper.GetOrderStatus: unknown order %s", brokerOrderID)
	}
	return status, nil
}

// GetCurrentPrice returns the simulated mid price.
func (p *Paper) GetCurrentPrice(_ context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("broker.Paper.GetCurrentPrice: unknown symbol %s", symbol)
	}
	return price, nil
}

// GetPositions reads directly from the engine's position store rather than
// returning an empty slice (spec §9 Open Question 2).
func (p *Paper) GetPositions(ctx context.Context, userID string) ([]domain.Position, error) {
	if p.positions == nil {
		return nil, nil
	}
	return p.positions.ListOpen(ctx, userID)
}

// SquareOffAll places an opposing simulated market order for every open
// position GetPositions reports. It does not touch Position rows (the
// executor is their single writer), and an order the simulator
// synthetically rejects is not reported as an error.
func (p *Paper) SquareOffAll(ctx context.Context, userID string) error {
	positions, err := p.GetPositions(ctx, userID)
	if err != nil {
		return fmt.Errorf("broker.Paper.SquareOffAll: %w", err)
	}
	for _, pos := range positions {
		side := domain.SideSell
		if pos.Side == domain.PositionShort {
			side = domain.SideBuy
		}
		if _, err := p.PlaceOrder(ctx, ports.PlaceOrderRequest{UserID: userID, Symbol: pos.Symbol, Side: side, Quantity: pos.Quantity, OrderType: domain.OrderTypeMarket}); err != nil {
			return fmt.Errorf("broker.Paper.SquareOffAll: %s: %w", pos.Symbol, err)
		}
	}
	return nil
}

// CancelAllOrders cancels every tracked paper order not already terminal.
func (p *Paper) CancelAllOrders(_ context.Context, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, status := range p.orders {
		if !status.Status.Terminal() {
			status.Status = domain.OrderCancelled
			p.orders[id] = status
		}
	}
	return nil
}

// IsConnected is always true for the paper broker.
func (p *Paper) IsConnected() bool { return true }
