// Package ports declares the narrow, interface-only seams between the
// trading core and its external collaborators: durable storage, the broker,
// the market data feed, and outbound notifications. Nothing in this package
// performs I/O itself — every implementation lives in internal/storage,
// internal/broker, internal/marketdata, or internal/notify.
package ports

import (
	"context"
	"time"

	"github.com/aktrade/tradecore/internal/domain"
)

// OrderRepository persists Order rows and enforces the terminal-state
// write-once rule at the storage boundary.
type OrderRepository interface {
	Create(ctx context.Context, o domain.Order) error
	Update(ctx context.Context, o domain.Order) error
	Get(ctx context.Context, id string) (domain.Order, error)
	ListNonTerminal(ctx context.Context, since time.Time) ([]domain.Order, error)
}

// PositionRepository persists Position rows.
type PositionRepository interface {
	Create(ctx context.Context, p domain.Position) error
	Update(ctx context.Context, p domain.Position) error
	Get(ctx context.Context, id string) (domain.Position, error)
	FindOpen(ctx context.Context, userID, symbol, strategyID string) (domain.Position, bool, error)
	ListOpen(ctx context.Context, userID string) ([]domain.Position, error)
	ListAllOpen(ctx context.Context) ([]domain.Position, error)
}

// TradeRepository persists the append-only Trade ledger.
type TradeRepository interface {
	Create(ctx context.Context, t domain.Trade) error
	ListForUserToday(ctx context.Context, userID string, day time.Time) ([]domain.Trade, error)
}

// WalletRepository persists per-user Wallet rows.
type WalletRepository interface {
	Get(ctx context.Context, userID string) (domain.Wallet, error)
	Update(ctx context.Context, w domain.Wallet) error
}

// RiskStateRepository persists per-user RiskState rows.
type RiskStateRepository interface {
	Get(ctx context.Context, userID string) (domain.RiskState, error)
	Update(ctx context.Context, rs domain.RiskState) error
}

// CandleRepository upserts closed bars keyed (symbol, timeframe, timestamp).
type CandleRepository interface {
	UpsertCandle(ctx context.Context, bar domain.Bar) error
}

// AuditLogRepository appends audit trail entries. Writes are best-effort:
// failures are logged, never propagated (spec §7 "DB transient... logged
// and swallowed for audit/candle writes").
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
}

// CircuitBreakerRepository persists breaker state across restarts.
type CircuitBreakerRepository interface {
	Get(ctx context.Context, name string) (domain.CircuitBreakerState, error)
	Save(ctx context.Context, name string, state domain.CircuitBreakerState) error
}

// Storage composes every repository the core depends on. A single backing
// store (internal/storage.SQLite) implements all of them; tests open that
// same store on an in-memory SQLite database.
type Storage interface {
	Orders() OrderRepository
	Positions() PositionRepository
	Trades() TradeRepository
	Wallets() WalletRepository
	RiskStates() RiskStateRepository
	Candles() CandleRepository
	AuditLog() AuditLogRepository
	CircuitBreakers() CircuitBreakerRepository
}

// Notifier emits human-facing events out of the core (console, webhook,
// etc). Never blocks the caller for long; implementations should be
// fire-and-forget or buffered.
type Notifier interface {
	Notify(ctx context.Context, event string, payload map[string]any)
}

// BrokerAdapter is the uniform broker contract from spec §4.8, satisfied by
// both the paper simulator and the live HTTP adapter (optionally wrapped by
// the circuit breaker + failover layer).
type BrokerAdapter interface {
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (PlaceOrderResult, error)
	CancelOrder(ctx context.Context, brokerOrderID string) error
	GetOrderStatus(ctx context.Context, brokerOrderID string) (OrderStatusResult, error)
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
	GetPositions(ctx context.Context, userID string) ([]domain.Position, error)
	SquareOffAll(ctx context.Context, userID string) error
	CancelAllOrders(ctx context.Context, userID string) error
	IsConnected() bool
}

// PlaceOrderRequest is what the executor hands the broker adapter.
type PlaceOrderRequest struct {
	UserID       string
	Symbol       string
	Side         domain.Side
	Quantity     int
	OrderType    domain.OrderType
	LimitPrice   float64
	TriggerPrice float64
}

// PlaceOrderResult is the broker's immediate response to a place request.
type PlaceOrderResult struct {
	BrokerOrderID string
	Status        domain.OrderStatus
	RejectReason  string
	FilledQty     int
	AvgPrice      float64
}

// OrderStatusResult is a point-in-time broker-side order snapshot.
type OrderStatusResult struct {
	Status       domain.OrderStatus
	FilledQty    int
	AvgPrice     float64
	RejectReason string
}

// MarketDataSource emits ticks for subscribed symbols (spec §4.1/§6).
type MarketDataSource interface {
	Subscribe(ctx context.Context, symbols []string) (<-chan domain.Tick, error)
	Close() error
}
