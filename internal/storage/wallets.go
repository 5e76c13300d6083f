package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aktrade/tradecore/internal/domain"
	"github.com/shopspring/decimal"
)

type walletRepo struct{ db *sql.DB }

// Get returns the wallet row for userID, seeding a zero-balance wallet on
// first access (mirrors the teacher's lazy-create-on-read pattern).
func (r *walletRepo) Get(ctx context.Context, userID string) (domain.Wallet, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, balance, used_margin, available_margin, realized_pnl, unrealized_pnl
		FROM wallets WHERE user_id = ?`, userID)

	var w domain.Wallet
	var balance, used, available, realized, unrealized string
	err := row.Scan(&w.UserID, &balance, &used, &available, &realized, &unrealized)
	if errors.Is(err, sql.ErrNoRows) {
		w = domain.Wallet{UserID: userID}
		if err := r.Update(ctx, w); err != nil {
			return domain.Wallet{}, fmt.Errorf("storage.walletRepo.Get: seed: %w", err)
		}
		return w, nil
	}
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("storage.walletRepo.Get: %w", err)
	}

	w.Balance, _ = decimal.NewFromString(balance)
	w.UsedMargin, _ = decimal.NewFromString(used)
	w.AvailableMargin, _ = decimal.NewFromString(available)
	w.RealizedPnL, _ = decimal.NewFromString(realized)
	w.UnrealizedPnL, _ = decimal.NewFromString(unrealized)
	return w, nil
}

func (r *walletRepo) Update(ctx context.Context, w domain.Wallet) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO wallets (user_id, balance, used_margin, available_margin, realized_pnl, unrealized_pnl)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			balance = excluded.balance, used_margin = excluded.used_margin,
			available_margin = excluded.available_margin, realized_pnl = excluded.realized_pnl,
			unrealized_pnl = excluded.unrealized_pnl`,
		w.UserID, w.Balance.String(), w.UsedMargin.String(), w.AvailableMargin.String(),
		w.RealizedPnL.String(), w.UnrealizedPnL.String(),
	)
	if err != nil {
		return fmt.Errorf("storage.walletRepo.Update: %w", err)
	}
	return nil
}
