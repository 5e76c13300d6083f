// Package executor runs the order lifecycle from spec §4.7:
// create -> place -> fill -> position/trade update -> risk accounting.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aktrade/tradecore/internal/clock"
	"github.com/aktrade/tradecore/internal/domain"
	"github.com/aktrade/tradecore/internal/ports"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RiskAccountant is the narrow seam the executor calls into on every closed
// trade (spec §4.7: "call Risk Gate record_trade_result").
type RiskAccountant interface {
	RecordTradeResult(pnl float64)
}

// ConflictNotifier is the narrow seam the executor calls on every closed
// position (spec §4.7: "conflict resolver on_position_closed").
type ConflictNotifier interface {
	OnPositionClosed(userID, symbol string)
}

// MTMRegistry is the narrow seam the executor calls on every open/close fill
// so the MTM engine actually tracks live positions (spec §4.11): a BUY fill
// registers the position for tick-driven unrealised PnL, a SELL fill removes
// it and folds the realised PnL into the portfolio rollup.
type MTMRegistry interface {
	OpenPosition(pos domain.Position)
	ClosePosition(userID, positionID string, realisedPnL float64)
}

// Executor owns the create->place->fill pipeline for one engine instance.
// Storage is the single source of truth for Order/Position/Trade/Wallet
// rows; the broker is whatever paper/live/failover adapter is wired in.
type Executor struct {
	clock   clock.Clock
	storage ports.Storage
	broker  ports.BrokerAdapter
	risk    RiskAccountant
	conflict ConflictNotifier
	mtm      MTMRegistry
}

// New creates an Executor. mtm may be nil in tests that don't care about
// live MTM tracking.
func New(c clock.Clock, storage ports.Storage, broker ports.BrokerAdapter, risk RiskAccountant, conflict ConflictNotifier, mtm MTMRegistry) *Executor {
	return &Executor{clock: c, storage: storage, broker: broker, risk: risk, conflict: conflict, mtm: mtm}
}

// Execute runs the full pipeline for one queued order (spec §4.7 steps 1-5).
// It never returns an error for a broker REJECTED outcome — that is an
// order-level result, not an exception (spec §7); it returns an error only
// for failures the caller (the queue worker) should log as handler_error.
func (e *Executor) Execute(ctx context.Context, q domain.QueuedOrder) error {
	order := domain.Order{
		ID:         uuid.NewString(),
		UserID:     q.UserID,
		StrategyID: q.StrategyID,
		Symbol:     q.Symbol,
		Side:       q.Side,
		OrderType:  q.OrderType,
		Quantity:   q.Quantity,
		Status:     domain.OrderCreated,
		CreatedAt:  e.clock.Now(),
		UpdatedAt:  e.clock.Now(),
	}
	if err := e.storage.Orders().Create(ctx, order); err != nil {
		order.Status = domain.OrderRejected
		order.RejectReason = "storage: " + err.Error()
		_ = e.storage.Orders().Update(ctx, order)
		return fmt.Errorf("executor.Execute: create order: %w", err)
	}

	limitPrice := 0.0
	if q.LimitPrice != nil {
		limitPrice, _ = q.LimitPrice.Float64()
	}
	triggerPrice := 0.0
	if q.TriggerPrice != nil {
		triggerPrice, _ = q.TriggerPrice.Float64()
	}

	placeResult, err := e.broker.PlaceOrder(ctx, ports.PlaceOrderRequest{
		UserID: q.UserID, Symbol: q.Symbol, Side: q.Side, Quantity: q.Quantity,
		OrderType: q.OrderType, LimitPrice: limitPrice, TriggerPrice: triggerPrice,
	})
	if err != nil {
		// Broker transport failure propagates to the engine listener (spec
		// §4.7 "Errors"): the queue handler logs it as handler_error.
		return fmt.Errorf("executor.Execute: broker place_order: %w", err)
	}

	if placeResult.Status == domain.OrderRejected {
		order.Status = domain.OrderRejected
		order.RejectReason = placeResult.RejectReason
		order.UpdatedAt = e.clock.Now()
		if err := e.storage.Orders().Update(ctx, order); err != nil {
			return fmt.Errorf("executor.Execute: update rejected order: %w", err)
		}
		slog.Warn("executor: order rejected", "order_id", order.ID, "reason", placeResult.RejectReason)
		return nil
	}

	order.Status = domain.OrderPlaced
	order.BrokerOrderID = placeResult.BrokerOrderID
	order.PlacedAt = e.clock.Now()
	order.UpdatedAt = e.clock.Now()
	if err := e.storage.Orders().Update(ctx, order); err != nil {
		return fmt.Errorf("executor.Execute: update placed order: %w", err)
	}

	// Paper mode returns immediate COMPLETE; live mode leaves advancement to
	// the reconciler (spec §4.7 step 4).
	status, err := e.broker.GetOrderStatus(ctx, placeResult.BrokerOrderID)
	if err != nil {
		return fmt.Errorf("executor.Execute: get_order_status: %w", err)
	}
	if status.Status != domain.OrderFilled {
		return nil
	}

	order.Status = domain.OrderFilled
	order.FilledQuantity = status.FilledQty
	order.AvgPrice = decimal.NewFromFloat(status.AvgPrice)
	order.UpdatedAt = e.clock.Now()
	if err := e.storage.Orders().Update(ctx, order); err != nil {
		return fmt.Errorf("executor.Execute: update filled order: %w", err)
	}

	if err := e.handleFill(ctx, order); err != nil {
		return fmt.Errorf("executor.Execute: handle_fill: %w", err)
	}
	return nil
}

// handleFill applies spec §4.7's handle_fill algorithm: BUY opens a
// position and blocks margin; SELL closes the earliest open position,
// books the trade, releases margin, and feeds risk/conflict.
func (e *Executor) handleFill(ctx context.Context, order domain.Order) error {
	notional := order.AvgPrice.Mul(decimal.NewFromInt(int64(order.FilledQuantity)))

	if order.Side == domain.SideBuy {
		return e.openPosition(ctx, order, notional)
	}
	return e.closePosition(ctx, order)
}

func (e *Executor) openPosition(ctx context.Context, order domain.Order, notional decimal.Decimal) error {
	pos := domain.Position{
		ID:         uuid.NewString(),
		UserID:     order.UserID,
		StrategyID: order.StrategyID,
		Symbol:     order.Symbol,
		Side:       domain.PositionLong,
		Quantity:   order.FilledQuantity,
		EntryPrice: order.AvgPrice,
		CurrentPrice: order.AvgPrice,
		Status:     domain.PositionOpen,
		OpenedAt:   e.clock.Now(),
	}
	if err := e.storage.Positions().Create(ctx, pos); err != nil {
		return fmt.Errorf("executor.openPosition: %w", err)
	}

	wallet, err := e.storage.Wallets().Get(ctx, order.UserID)
	if err != nil {
		return fmt.Errorf("executor.openPosition: get wallet: %w", err)
	}
	wallet.ApplyOpenFill(notional)
	if err := e.storage.Wallets().Update(ctx, wallet); err != nil {
		return fmt.Errorf("executor.openPosition: update wallet: %w", err)
	}
	if e.mtm != nil {
		e.mtm.OpenPosition(pos)
	}
	return nil
}

func (e *Executor) closePosition(ctx context.Context, order domain.Order) error {
	pos, found, err := e.storage.Positions().FindOpen(ctx, order.UserID, order.Symbol, order.StrategyID)
	if err != nil {
		return fmt.Errorf("executor.closePosition: find open: %w", err)
	}
	if !found {
		return fmt.Errorf("executor.closePosition: no open position for %s/%s", order.UserID, order.Symbol)
	}

	pnl := domain.PnLForExit(pos.Side, pos.EntryPrice, order.AvgPrice, pos.Quantity)

	pos.Status = domain.PositionClosed
	pos.CurrentPrice = order.AvgPrice
	pos.ClosedAt = e.clock.Now()
	if err := e.storage.Positions().Update(ctx, pos); err != nil {
		return fmt.Errorf("executor.closePosition: update position: %w", err)
	}

	trade := domain.Trade{
		ID: uuid.NewString(), PositionID: pos.ID, UserID: pos.UserID, StrategyID: pos.StrategyID,
		Symbol: pos.Symbol, Side: pos.Side, Quantity: pos.Quantity,
		EntryPrice: pos.EntryPrice, ExitPrice: order.AvgPrice, PnL: pnl,
		EntryTime: pos.OpenedAt, ExitTime: pos.ClosedAt,
	}
	if err := e.storage.Trades().Create(ctx, trade); err != nil {
		return fmt.Errorf("executor.closePosition: create trade: %w", err)
	}

	releasedMargin := domain.MarginForNotional(pos.EntryPrice.Mul(decimal.NewFromInt(int64(pos.Quantity))))
	wallet, err := e.storage.Wallets().Get(ctx, order.UserID)
	if err != nil {
		return fmt.Errorf("executor.closePosition: get wallet: %w", err)
	}
	wallet.ApplyCloseFill(releasedMargin, pnl)
	if err := e.storage.Wallets().Update(ctx, wallet); err != nil {
		return fmt.Errorf("executor.closePosition: update wallet: %w", err)
	}

	pnlFloat, _ := pnl.Float64()
	if e.risk != nil {
		e.risk.RecordTradeResult(pnlFloat)
	}
	if e.conflict != nil {
		e.conflict.OnPositionClosed(order.UserID, order.Symbol)
	}
	if e.mtm != nil {
		e.mtm.ClosePosition(pos.UserID, pos.ID, pnlFloat)
	}
	return nil
}

// Age returns how long an order has sat since placement.
func Age(o domain.Order, now time.Time) time.Duration {
	if o.PlacedAt.IsZero() {
		return 0
	}
	return now.Sub(o.PlacedAt)
}
