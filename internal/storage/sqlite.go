// Package storage implements ports.Storage against SQLite via
// database/sql, using modernc.org/sqlite (pure Go, no cgo) the same way the
// reference polygot engine's storage package does.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aktrade/tradecore/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	strategy_id     TEXT,
	broker_order_id TEXT,
	symbol          TEXT NOT NULL,
	side            TEXT NOT NULL,
	order_type      TEXT NOT NULL,
	quantity        INTEGER NOT NULL,
	filled_quantity INTEGER NOT NULL DEFAULT 0,
	avg_price       TEXT NOT NULL DEFAULT '0',
	status          TEXT NOT NULL,
	reject_reason   TEXT,
	linked_order_id TEXT,
	created_at      DATETIME NOT NULL,
	placed_at       DATETIME,
	updated_at      DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status, updated_at);
CREATE INDEX IF NOT EXISTS idx_orders_user   ON orders(user_id);

CREATE TABLE IF NOT EXISTS positions (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	strategy_id TEXT,
	symbol      TEXT NOT NULL,
	side        TEXT NOT NULL,
	quantity    INTEGER NOT NULL,
	entry_price TEXT NOT NULL,
	current_price TEXT NOT NULL,
	stop_loss   TEXT,
	take_profit TEXT,
	status      TEXT NOT NULL,
	opened_at   DATETIME NOT NULL,
	closed_at   DATETIME
);
CREATE INDEX IF NOT EXISTS idx_positions_open ON positions(user_id, symbol, strategy_id, status);

CREATE TABLE IF NOT EXISTS trades (
	id          TEXT PRIMARY KEY,
	position_id TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	strategy_id TEXT,
	symbol      TEXT NOT NULL,
	side        TEXT NOT NULL,
	quantity    INTEGER NOT NULL,
	entry_price TEXT NOT NULL,
	exit_price  TEXT NOT NULL,
	pnl         TEXT NOT NULL,
	entry_time  DATETIME NOT NULL,
	exit_time   DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_user_day ON trades(user_id, exit_time);

CREATE TABLE IF NOT EXISTS wallets (
	user_id          TEXT PRIMARY KEY,
	balance          TEXT NOT NULL,
	used_margin      TEXT NOT NULL,
	available_margin TEXT NOT NULL,
	realized_pnl     TEXT NOT NULL,
	unrealized_pnl   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS risk_state (
	user_id            TEXT PRIMARY KEY,
	daily_loss         REAL NOT NULL DEFAULT 0,
	daily_trade_count  INTEGER NOT NULL DEFAULT 0,
	consecutive_losses INTEGER NOT NULL DEFAULT 0,
	is_locked          INTEGER NOT NULL DEFAULT 0,
	lock_reason        TEXT,
	trading_date       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS candles (
	symbol     TEXT NOT NULL,
	timeframe  TEXT NOT NULL,
	start_time DATETIME NOT NULL,
	open       REAL NOT NULL,
	high       REAL NOT NULL,
	low        REAL NOT NULL,
	close      REAL NOT NULL,
	volume     INTEGER NOT NULL,
	tick_count INTEGER NOT NULL,
	vwap       REAL NOT NULL,
	PRIMARY KEY (symbol, timeframe, start_time)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    TEXT,
	event      TEXT NOT NULL,
	severity   TEXT NOT NULL,
	message    TEXT NOT NULL,
	metadata   TEXT,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_severity ON audit_log(severity, created_at DESC);

CREATE TABLE IF NOT EXISTS circuit_breaker_state (
	name          TEXT PRIMARY KEY,
	state         TEXT NOT NULL,
	failure_count INTEGER NOT NULL DEFAULT 0,
	success_count INTEGER NOT NULL DEFAULT 0,
	opened_at     DATETIME,
	use_fallback  INTEGER NOT NULL DEFAULT 0
);
`

// SQLite implements ports.Storage over a single-writer SQLite connection
// (teacher's "SQLite is single-writer" pattern: SetMaxOpenConns(1)).
type SQLite struct {
	db *sql.DB

	orders     *orderRepo
	positions  *positionRepo
	trades     *tradeRepo
	wallets    *walletRepo
	riskStates *riskStateRepo
	candles    *candleRepo
	auditLog   *auditLogRepo
	breakers   *breakerRepo
}

var _ ports.Storage = (*SQLite)(nil)

// Open creates (or opens) the SQLite database at path and applies the schema.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.Open: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.Open: apply schema: %w", err)
	}

	s := &SQLite{db: db}
	s.orders = &orderRepo{db: db}
	s.positions = &positionRepo{db: db}
	s.trades = &tradeRepo{db: db}
	s.wallets = &walletRepo{db: db}
	s.riskStates = &riskStateRepo{db: db}
	s.candles = &candleRepo{db: db}
	s.auditLog = &auditLogRepo{db: db}
	s.breakers = &breakerRepo{db: db}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Orders() ports.OrderRepository                   { return s.orders }
func (s *SQLite) Positions() ports.PositionRepository             { return s.positions }
func (s *SQLite) Trades() ports.TradeRepository                   { return s.trades }
func (s *SQLite) Wallets() ports.WalletRepository                 { return s.wallets }
func (s *SQLite) RiskStates() ports.RiskStateRepository           { return s.riskStates }
func (s *SQLite) Candles() ports.CandleRepository                 { return s.candles }
func (s *SQLite) AuditLog() ports.AuditLogRepository              { return s.auditLog }
func (s *SQLite) CircuitBreakers() ports.CircuitBreakerRepository { return s.breakers }

// withTx runs fn inside a transaction, matching the teacher's
// begin/defer-rollback/commit shape for multi-statement writes.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.withTx: begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.withTx: commit: %w", err)
	}
	return nil
}
