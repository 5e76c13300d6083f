package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aktrade/tradecore/internal/domain"
)

type riskStateRepo struct{ db *sql.DB }

// Get returns the risk state row for userID, seeding a fresh unlocked state
// dated today on first access.
func (r *riskStateRepo) Get(ctx context.Context, userID string) (domain.RiskState, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, daily_loss, daily_trade_count, consecutive_losses, is_locked, lock_reason, trading_date
		FROM risk_state WHERE user_id = ?`, userID)

	var rs domain.RiskState
	var isLocked int
	var tradingDate time.Time
	err := row.Scan(&rs.UserID, &rs.DailyLoss, &rs.DailyTradeCount, &rs.ConsecutiveLosses,
		&isLocked, &rs.LockReason, &tradingDate)
	if errors.Is(err, sql.ErrNoRows) {
		rs = domain.RiskState{UserID: userID, TradingDate: time.Now().UTC().Truncate(24 * time.Hour)}
		if err := r.Update(ctx, rs); err != nil {
			return domain.RiskState{}, fmt.Errorf("storage.riskStateRepo.Get: seed: %w", err)
		}
		return rs, nil
	}
	if err != nil {
		return domain.RiskState{}, fmt.Errorf("storage.riskStateRepo.Get: %w", err)
	}
	rs.IsLocked = isLocked != 0
	rs.TradingDate = tradingDate
	return rs, nil
}

func (r *riskStateRepo) Update(ctx context.Context, rs domain.RiskState) error {
	locked := 0
	if rs.IsLocked {
		locked = 1
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO risk_state (user_id, daily_loss, daily_trade_count, consecutive_losses,
			is_locked, lock_reason, trading_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			daily_loss = excluded.daily_loss, daily_trade_count = excluded.daily_trade_count,
			consecutive_losses = excluded.consecutive_losses, is_locked = excluded.is_locked,
			lock_reason = excluded.lock_reason, trading_date = excluded.trading_date`,
		rs.UserID, rs.DailyLoss, rs.DailyTradeCount, rs.ConsecutiveLosses, locked, rs.LockReason, rs.TradingDate,
	)
	if err != nil {
		return fmt.Errorf("storage.riskStateRepo.Update: %w", err)
	}
	return nil
}
