package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aktrade/tradecore/internal/aggregator"
	"github.com/aktrade/tradecore/internal/breaker"
	"github.com/aktrade/tradecore/internal/broker"
	"github.com/aktrade/tradecore/internal/broker/live"
	"github.com/aktrade/tradecore/internal/clock"
	"github.com/aktrade/tradecore/internal/conflict"
	"github.com/aktrade/tradecore/internal/config"
	"github.com/aktrade/tradecore/internal/domain"
	"github.com/aktrade/tradecore/internal/engine"
	"github.com/aktrade/tradecore/internal/executor"
	"github.com/aktrade/tradecore/internal/marketdata"
	"github.com/aktrade/tradecore/internal/metrics"
	"github.com/aktrade/tradecore/internal/mtm"
	"github.com/aktrade/tradecore/internal/notify"
	"github.com/aktrade/tradecore/internal/ports"
	"github.com/aktrade/tradecore/internal/queue"
	"github.com/aktrade/tradecore/internal/reconcile"
	"github.com/aktrade/tradecore/internal/risk"
	"github.com/aktrade/tradecore/internal/storage"
	"github.com/aktrade/tradecore/internal/strategy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// defaultUserID is used when the config file names no users, so `engine run`
// has something to wire against straight out of the box in paper mode.
const defaultUserID = "default"

// core bundles every wired component a CLI subcommand needs. One core wires
// one trading identity: the executor/risk-gate/queue trio here is a single
// writer per process (spec §5 "single writer per user"), so multi-account
// deployments run one engine process per account rather than one process
// juggling several risk gates.
type core struct {
	cfg        *config.Config
	userID     string
	clock      clock.Clock
	storage    *storage.SQLite
	notifier   *notify.Console
	registry   strategy.Registry
	gate       *risk.Gate
	broker     ports.BrokerAdapter
	liveBroker *live.Broker // non-nil only when trading_mode is LIVE
	circuitBreaker *breaker.Breaker
	conflict   *conflict.Resolver
	queue      *queue.Queue
	executor   *executor.Executor
	reconciler *reconcile.Reconciler
	mtm        *mtm.Engine
	engine     *engine.Engine
	aggregator *aggregator.Aggregator
	marketdata ports.MarketDataSource
	metrics    *metrics.Recorder
}

// positionLookup adapts ports.PositionRepository to engine.PositionLookup.
type positionLookup struct{ positions ports.PositionRepository }

func (p positionLookup) HasOpenPosition(ctx context.Context, userID, strategyID, symbol string) (bool, error) {
	_, found, err := p.positions.FindOpen(ctx, userID, symbol, strategyID)
	return found, err
}

func (p positionLookup) OpenPositionCount(ctx context.Context, userID string) (int, error) {
	open, err := p.positions.ListOpen(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(open), nil
}

// conflictLookup adapts ports.PositionRepository to conflict.PositionLookup.
func conflictLookup(positions ports.PositionRepository) conflict.PositionLookup {
	return func(userID, symbol string) []conflict.OpenPosition {
		open, err := positions.ListOpen(context.Background(), userID)
		if err != nil {
			slog.Warn("conflict: position lookup failed", "user", userID, "err", err)
			return nil
		}
		out := make([]conflict.OpenPosition, 0, len(open))
		for _, p := range open {
			if p.Symbol != symbol {
				continue
			}
			out = append(out, conflict.OpenPosition{StrategyID: p.StrategyID, Side: p.Side})
		}
		return out
	}
}

// slogMTMPersister logs the portfolio snapshot instead of a dedicated
// repository: spec.md names no portfolio_snapshot storage entity, only the
// periodic persist cadence, so this best-effort sink satisfies that cadence
// without inventing an unspecified table.
type slogMTMPersister struct{}

func (slogMTMPersister) SaveSnapshot(_ context.Context, snap mtm.PortfolioSnapshot) error {
	slog.Info("mtm: portfolio snapshot",
		"user", snap.UserID, "unrealised_pnl", snap.UnrealisedPnL,
		"realised_today", snap.RealisedToday, "drawdown_pct", snap.DrawdownPct)
	return nil
}

func auditFunc(store *storage.SQLite, c clock.Clock, userID, event string) func(domain.AuditSeverity, string) {
	return func(sev domain.AuditSeverity, msg string) {
		entry := domain.AuditLogEntry{UserID: userID, Event: event, Severity: sev, Message: msg, CreatedAt: c.Now()}
		if err := store.AuditLog().Append(context.Background(), entry); err != nil {
			slog.Warn("audit log write failed", "event", event, "err", err)
		}
	}
}

// paperPositionSource adapts storage to broker.PositionSource (spec §9 Open
// Question 2: paper square-off reads real open positions, not an empty slice).
type paperPositionSource struct{ store *storage.SQLite }

func (p paperPositionSource) ListOpen(ctx context.Context, userID string) ([]domain.Position, error) {
	return p.store.Positions().ListOpen(ctx, userID)
}

// buildBroker wires the paper simulator in PAPER mode, or the live adapter
// behind a circuit breaker + failover in LIVE mode (falling back to the
// paper broker when the live breaker trips, per spec §4.9/§4.8).
func buildBroker(cfg *config.Config, c clock.Clock, store *storage.SQLite, userID string) (ports.BrokerAdapter, *breaker.Breaker, *broker.Paper, *live.Broker, error) {
	paper := broker.NewPaper(c, map[string]float64{}, 1, paperPositionSource{store: store})
	if cfg.TradingMode != "LIVE" {
		return paper, nil, paper, nil, nil
	}

	session := live.NewSession(&http.Client{Timeout: 15 * time.Second}, cfg.Broker.BaseURL, live.Credentials{
		APIKey: cfg.Broker.APIKey, ClientID: cfg.Broker.ClientID,
		Password: cfg.Broker.Password, TOTPSecret: cfg.Broker.TOTPSecret,
	})
	client := live.NewClient(cfg.Broker.BaseURL, live.StaticHeaders{APIKey: cfg.Broker.APIKey}, session, c)
	symbols := live.NewSymbolResolver(client)
	liveBroker := live.New(client, session, symbols, cfg.Broker.Exchange, cfg.Risk.MaxTradeSize)

	restored, err := store.CircuitBreakers().Get(context.Background(), "live_broker")
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("buildBroker: load breaker state: %w", err)
	}
	brk := breaker.New(c, breaker.DefaultConfig(), restored, auditFunc(store, c, userID, "breaker"))
	failover := breaker.NewFailover(brk, liveBroker, paper, auditFunc(store, c, userID, "breaker"))
	return failover, brk, paper, liveBroker, nil
}

// buildMarketData selects the simulator in PAPER mode and the websocket
// subscriber in LIVE mode.
func buildMarketData(cfg *config.Config, c clock.Clock, paper *broker.Paper) ports.MarketDataSource {
	if cfg.TradingMode != "LIVE" {
		interval := time.Duration(cfg.MarketData.TickIntervalMS) * time.Millisecond
		return marketdata.NewSimulator(c, paper, interval)
	}
	return marketdata.NewWebSocketSource(cfg.MarketData.WebSocketURL)
}

// buildDedupSet wires the per-user queue's dedup window (spec §4.4) against
// Redis when cfg.Queue.RedisURL is set, falling back to the in-memory
// implementation of the same port otherwise (single-process / offline mode).
func buildDedupSet(cfg *config.Config, c clock.Clock) (queue.DedupSet, error) {
	if cfg.Queue.RedisURL == "" {
		return queue.NewMemorySet(c), nil
	}
	opts, err := redis.ParseURL(cfg.Queue.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("buildDedupSet: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	return queue.NewRedisSet(client, "tradecore:dedup:"), nil
}

func activeUser(cfg *config.Config) config.UserConfig {
	if len(cfg.Users) > 0 {
		return cfg.Users[0]
	}
	return config.UserConfig{UserID: defaultUserID, Capital: 100000}
}

// buildCore wires every component from a loaded config. paperOverride forces
// PAPER trading mode regardless of what the config file says (the `paper`
// subcommand's contract).
func buildCore(cfg *config.Config, paperOverride bool) (*core, error) {
	if paperOverride {
		cfg.TradingMode = "PAPER"
	}
	user := activeUser(cfg)

	c := clock.Real{}
	store, err := storage.Open(cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("buildCore: open storage: %w", err)
	}

	notifier := notify.NewConsole()
	hours := risk.NSEHours{}

	registry := strategy.NewRegistry()
	registry.Register(strategy.NewCustom())
	registry.Register(strategy.NewMACrossover())

	brokerAdapter, circuitBreaker, paper, liveBroker, err := buildBroker(cfg, c, store, user.UserID)
	if err != nil {
		return nil, err
	}

	riskState, err := store.RiskStates().Get(context.Background(), user.UserID)
	if err != nil {
		return nil, fmt.Errorf("buildCore: load risk state: %w", err)
	}
	limits := risk.Limits{
		MaxDailyLoss: cfg.Risk.MaxDailyLoss, MaxTradeSize: cfg.Risk.MaxTradeSize,
		MaxOpenPositions: cfg.Risk.MaxOpenPositions, MaxRiskPerTrade: cfg.Risk.MaxRiskPerTrade,
		MaxTradesPerDay: cfg.Risk.MaxTradesPerDay, ConsecutiveLossLimit: cfg.Risk.ConsecutiveLossLimit,
		LiveSafeMode: cfg.Risk.LiveSafeMode,
	}
	gate := risk.New(c, hours, limits, riskState, auditFunc(store, c, user.UserID, "risk"))

	conflictResolver := conflict.New(conflictLookup(store.Positions()), limits.LiveSafeMode)

	mtmEngine := mtm.New(c, slogMTMPersister{})
	mtmEngine.RegisterUser(user.UserID, user.Capital)

	exec := executor.New(c, store, brokerAdapter, gate, conflictResolver, mtmEngine)

	dedup, err := buildDedupSet(cfg, c)
	if err != nil {
		return nil, err
	}
	q := queue.New(c, dedup, exec.Execute)

	place := func(ctx context.Context, order domain.Order) (ports.PlaceOrderResult, error) {
		return brokerAdapter.PlaceOrder(ctx, ports.PlaceOrderRequest{
			UserID: order.UserID, Symbol: order.Symbol, Side: order.Side,
			Quantity: order.Quantity, OrderType: order.OrderType,
		})
	}
	reconciler := reconcile.New(c, store, brokerAdapter, place)

	agg := aggregator.New([]domain.Timeframe{domain.Timeframe1Min, domain.Timeframe5Min}, store.Candles())

	eng := engine.New(c, agg, registry, positionLookup{positions: store.Positions()},
		gate, conflictResolver, q, brokerAdapter, cfg.TradingMode != "LIVE")
	eng.Attach(context.Background(), agg)

	for _, sc := range user.Strategies {
		eng.LoadStrategy(domain.StrategyConfig{
			ID: sc.ID, UserID: user.UserID, StrategyType: sc.StrategyType, Symbol: sc.Symbol,
			Quantity: sc.Quantity, Parameters: sc.Parameters, StopLossPercent: sc.StopLossPercent,
			TakeProfitPercent: sc.TakeProfitPercent, MaxTradesPerDay: sc.MaxTradesPerDay,
			Status: domain.StrategyRunning,
		})
	}
	q.Start(context.Background(), user.UserID)

	md := buildMarketData(cfg, c, paper)

	return &core{
		cfg: cfg, userID: user.UserID, clock: c, storage: store, notifier: notifier, registry: registry,
		gate: gate, broker: brokerAdapter, liveBroker: liveBroker, circuitBreaker: circuitBreaker, conflict: conflictResolver,
		queue: q, executor: exec, reconciler: reconciler, mtm: mtmEngine, engine: eng,
		aggregator: agg, marketdata: md, metrics: metrics.NewRecorder(prometheus.DefaultRegisterer),
	}, nil
}
