package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aktrade/tradecore/internal/domain"
	"github.com/shopspring/decimal"
)

type tradeRepo struct{ db *sql.DB }

func (r *tradeRepo) Create(ctx context.Context, t domain.Trade) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trades (id, position_id, user_id, strategy_id, symbol, side, quantity,
			entry_price, exit_price, pnl, entry_time, exit_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.PositionID, t.UserID, t.StrategyID, t.Symbol, string(t.Side), t.Quantity,
		t.EntryPrice.String(), t.ExitPrice.String(), t.PnL.String(), t.EntryTime, t.ExitTime,
	)
	if err != nil {
		return fmt.Errorf("storage.tradeRepo.Create: %w", err)
	}
	return nil
}

// ListForUserToday returns every trade exited on the calendar day of day,
// taken in day's own location.
func (r *tradeRepo) ListForUserToday(ctx context.Context, userID string, day time.Time) ([]domain.Trade, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, position_id, user_id, strategy_id, symbol, side, quantity,
			entry_price, exit_price, pnl, entry_time, exit_time
		FROM trades WHERE user_id = ? AND exit_time >= ? AND exit_time < ?`,
		userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("storage.tradeRepo.ListForUserToday: %w", err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side, entryPrice, exitPrice, pnl string
		if err := rows.Scan(&t.ID, &t.PositionID, &t.UserID, &t.StrategyID, &t.Symbol, &side,
			&t.Quantity, &entryPrice, &exitPrice, &pnl, &t.EntryTime, &t.ExitTime); err != nil {
			return nil, fmt.Errorf("storage.tradeRepo.ListForUserToday: scan: %w", err)
		}
		t.Side = domain.PositionSide(side)
		t.EntryPrice, _ = decimal.NewFromString(entryPrice)
		t.ExitPrice, _ = decimal.NewFromString(exitPrice)
		t.PnL, _ = decimal.NewFromString(pnl)
		out = append(out, t)
	}
	return out, rows.Err()
}
