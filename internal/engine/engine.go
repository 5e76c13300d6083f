// Package engine is the top-level coordinator from spec §4.3: it loads
// RUNNING strategies, subscribes to bar_close/tick, evaluates matching
// strategies, and gates the result through Risk -> Conflict -> Queue ->
// Executor.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aktrade/tradecore/internal/aggregator"
	"github.com/aktrade/tradecore/internal/clock"
	"github.com/aktrade/tradecore/internal/conflict"
	"github.com/aktrade/tradecore/internal/domain"
	"github.com/aktrade/tradecore/internal/risk"
	"github.com/aktrade/tradecore/internal/strategy"
	"github.com/google/uuid"
)

// BarSource is the narrow aggregator seam the engine reads trailing windows from.
type BarSource interface {
	GetBars(symbol string, tf domain.Timeframe, limit int) []domain.Bar
}

// PositionLookup reports whether a user already holds an open position for
// a strategy/symbol and returns the current open-position count.
type PositionLookup interface {
	HasOpenPosition(ctx context.Context, userID, strategyID, symbol string) (bool, error)
	OpenPositionCount(ctx context.Context, userID string) (int, error)
}

// Risk is the narrow risk-gate seam the engine calls per signal.
type Risk interface {
	CheckPreOrder(check risk.OrderCheck, broker risk.BrokerConnectivity) error
}

// Conflict is the narrow conflict-resolver seam the engine calls per signal.
type Conflict interface {
	Check(userID, symbol, strategyID string, side domain.Side) error
	ClearBarSignals()
}

// Enqueuer is the narrow order-queue seam the engine pushes signals through.
type Enqueuer interface {
	Enqueue(ctx context.Context, order domain.QueuedOrder) error
	ClearDedup(ctx context.Context) error
}

// Broker is the narrow broker seam the engine needs for emergency stop and
// connectivity checks.
type Broker interface {
	risk.BrokerConnectivity
	SquareOffAll(ctx context.Context, userID string) error
	CancelAllOrders(ctx context.Context, userID string) error
}

// timeframeDefault is the bar timeframe strategies evaluate against unless a
// strategy's config says otherwise.
const timeframeDefault = domain.Timeframe1Min

// Engine is the single coordinator wiring bars/ticks into the risk-gated
// order pipeline. It holds no durable state of its own beyond the active
// strategy set and the emergency-stop flag.
type Engine struct {
	clock      clock.Clock
	bars       BarSource
	registry   strategy.Registry
	positions  PositionLookup
	risk       Risk
	conflict   Conflict
	queue      Enqueuer
	broker     Broker
	paperMode  bool

	mu         sync.RWMutex
	strategies map[string]domain.StrategyConfig // id -> config, RUNNING only
	tradeCount map[string]int                   // strategy id -> today_trade_count

	emergencyStopped atomic.Bool
}

// New creates an Engine.
func New(c clock.Clock, bars BarSource, registry strategy.Registry, positions PositionLookup, r Risk, cf Conflict, q Enqueuer, broker Broker, paperMode bool) *Engine {
	return &Engine{
		clock: c, bars: bars, registry: registry, positions: positions,
		risk: r, conflict: cf, queue: q, broker: broker, paperMode: paperMode,
		strategies: make(map[string]domain.StrategyConfig),
		tradeCount: make(map[string]int),
	}
}

// LoadStrategy activates a RUNNING strategy config for evaluation.
func (e *Engine) LoadStrategy(cfg domain.StrategyConfig) {
	if cfg.Status != domain.StrategyRunning {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies[cfg.ID] = cfg
}

// StopStrategy removes a strategy from active evaluation.
func (e *Engine) StopStrategy(strategyID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.strategies, strategyID)
}

// MarkStrategyError removes a strategy from evaluation until it is loaded
// again. OnBarClose calls it after a strategy_error whenever the engine is
// not in paper mode; the LIVE_SAFE_MODE setting is not consulted, and the
// strategy's stored status is left unchanged.
func (e *Engine) MarkStrategyError(strategyID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.strategies, strategyID)
}

// OnBarClose is the aggregator listener: evaluate every strategy whose
// symbol matches the closed bar, then clear per-bar conflict/dedup state
// (spec §4.3 steps 1-9, §4.5 clear_bar_signals, §4.4 clear_dedup_on_new_bar).
func (e *Engine) OnBarClose(ctx context.Context, bar domain.Bar) {
	if e.emergencyStopped.Load() {
		return
	}

	e.mu.RLock()
	candidates := make([]domain.StrategyConfig, 0, len(e.strategies))
	for _, cfg := range e.strategies {
		if cfg.Symbol == bar.Symbol {
			candidates = append(candidates, cfg)
		}
	}
	e.mu.RUnlock()

	for _, cfg := range candidates {
		if err := e.evaluateOne(ctx, cfg, bar); err != nil {
			slog.Error("engine: strategy_error", "strategy_id", cfg.ID, "err", err)
			if e.paperMode {
				continue
			}
			e.MarkStrategyError(cfg.ID)
		}
	}

	e.conflict.ClearBarSignals()
	if err := e.queue.ClearDedup(ctx); err != nil {
		slog.Warn("engine: clear dedup failed", "err", err)
	}
}

// evaluateOne runs spec §4.3 steps 1-9 for one strategy against one closed bar.
func (e *Engine) evaluateOne(ctx context.Context, cfg domain.StrategyConfig, bar domain.Bar) error {
	// Step 1: trading-hours gate is delegated to the risk check below
	// (paper mode bypasses it there too, per spec §9).

	// Step 2: per-strategy daily trade cap.
	e.mu.RLock()
	tradesToday := e.tradeCount[cfg.ID]
	e.mu.RUnlock()
	if tradesToday >= cfg.MaxTradesPerDay {
		return nil
	}

	strat, err := e.registry.MustGet(cfg.StrategyType)
	if err != nil {
		return fmt.Errorf("engine.evaluateOne: %w", err)
	}

	// Step 3: trailing bars + open-position state.
	bars := e.bars.GetBars(cfg.Symbol, timeframeDefault, strat.RequiredBars())
	if len(bars) < strat.RequiredBars() {
		return nil
	}
	hasOpen, err := e.positions.HasOpenPosition(ctx, cfg.UserID, cfg.ID, cfg.Symbol)
	if err != nil {
		return fmt.Errorf("engine.evaluateOne: has_open_position: %w", err)
	}

	// Step 4: evaluate.
	result, err := strat.Evaluate(bars, cfg, hasOpen)
	if err != nil {
		return fmt.Errorf("engine.evaluateOne: evaluate: %w", err)
	}

	// Step 5: ignore HOLD / below-threshold confidence.
	sig := domain.Signal{
		StrategyID: cfg.ID, Symbol: cfg.Symbol, Action: result.Signal,
		Confidence: result.Confidence, Reason: result.Reason, Indicators: result.Indicators,
		StopLoss: result.StopLoss, TakeProfit: result.TakeProfit, Timestamp: bar.StartTime,
	}
	if !sig.Actionable() {
		return nil
	}

	// Step 6: ignore a same-direction signal if a position is already open
	// (the strategy contract itself gates entries/exits on hasOpen, this is
	// the engine's own belt-and-braces check).
	side := domain.SideBuy
	if sig.Action == domain.ActionSell {
		side = domain.SideSell
	}
	if hasOpen && side == domain.SideBuy {
		return nil
	}

	// Step 7: risk gate.
	openCount, err := e.positions.OpenPositionCount(ctx, cfg.UserID)
	if err != nil {
		return fmt.Errorf("engine.evaluateOne: open_position_count: %w", err)
	}
	slPct := cfg.StopLossPercent
	orderValue := bar.Close * float64(cfg.Quantity)
	if err := e.risk.CheckPreOrder(risk.OrderCheck{
		OrderValue: orderValue, StopLossPercent: slPct, OpenPositionCount: openCount,
		AvailableMargin: orderValue, PaperMode: e.paperMode,
	}, e.broker); err != nil {
		var breach *risk.BreachError
		if errors.As(err, &breach) || errors.Is(err, risk.ErrLocked) {
			slog.Info("engine: signal rejected by risk gate", "strategy_id", cfg.ID, "err", err)
			return nil
		}
		return fmt.Errorf("engine.evaluateOne: risk check: %w", err)
	}

	// Step 8: conflict resolver.
	if err := e.conflict.Check(cfg.UserID, cfg.Symbol, cfg.ID, side); err != nil {
		var rejected *conflict.RejectedError
		if errors.As(err, &rejected) {
			slog.Info("engine: signal rejected by conflict resolver", "strategy_id", cfg.ID, "reason", rejected.Reason)
			return nil
		}
		return fmt.Errorf("engine.evaluateOne: conflict check: %w", err)
	}

	// Step 9: enqueue.
	q := domain.QueuedOrder{
		IdempotencyKey: uuid.NewString(), UserID: cfg.UserID, StrategyID: cfg.ID,
		Symbol: cfg.Symbol, Side: side, Quantity: cfg.Quantity, OrderType: domain.OrderTypeMarket,
		StopLossPct: slPct, Priority: priorityFromConfidence(sig.Confidence), EnqueuedAt: e.clock.Now(),
	}
	if err := e.queue.Enqueue(ctx, q); err != nil {
		return fmt.Errorf("engine.evaluateOne: enqueue: %w", err)
	}

	e.mu.Lock()
	e.tradeCount[cfg.ID]++
	e.mu.Unlock()
	return nil
}

// priorityFromConfidence maps [0,1] confidence onto a coarse integer
// priority the queue's max-heap orders on (higher first).
func priorityFromConfidence(confidence float64) int {
	return int(confidence * 100)
}

// EmergencyStop sets the emergency flag, cancels all open orders, and
// squares off all positions via the broker. Idempotent (spec §4.3/§8).
func (e *Engine) EmergencyStop(ctx context.Context, userID string) error {
	if !e.emergencyStopped.CompareAndSwap(false, true) {
		return nil // already stopped
	}
	if err := e.broker.CancelAllOrders(ctx, userID); err != nil {
		return fmt.Errorf("engine.EmergencyStop: cancel_all_orders: %w", err)
	}
	if err := e.broker.SquareOffAll(ctx, userID); err != nil {
		return fmt.Errorf("engine.EmergencyStop: square_off_all: %w", err)
	}
	e.mu.Lock()
	e.strategies = make(map[string]domain.StrategyConfig)
	e.mu.Unlock()
	return nil
}

// IsEmergencyStopped reports the engine's emergency-stop flag.
func (e *Engine) IsEmergencyStopped() bool { return e.emergencyStopped.Load() }

// aggregatorListener adapts Engine.OnBarClose to aggregator.Listener, since
// the aggregator's synchronous emit contract takes no context.
func (e *Engine) aggregatorListener(ctx context.Context) aggregator.Listener {
	return func(bar domain.Bar) {
		e.OnBarClose(ctx, bar)
	}
}

// Attach wires the engine as a bar_close listener on the given aggregator.
func (e *Engine) Attach(ctx context.Context, agg *aggregator.Aggregator) {
	agg.OnBarClose(e.aggregatorListener(ctx))
}
