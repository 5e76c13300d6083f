package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aktrade/tradecore/internal/domain"
	"github.com/shopspring/decimal"
)

type positionRepo struct{ db *sql.DB }

func (r *positionRepo) Create(ctx context.Context, p domain.Position) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO positions (id, user_id, strategy_id, symbol, side, quantity, entry_price,
			current_price, stop_loss, take_profit, status, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.StrategyID, p.Symbol, string(p.Side), p.Quantity,
		p.EntryPrice.String(), p.CurrentPrice.String(), decimalPtrString(p.StopLoss),
		decimalPtrString(p.TakeProfit), string(p.Status), nullTime(p.OpenedAt), nullTime(p.ClosedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.positionRepo.Create: %w", err)
	}
	return nil
}

func (r *positionRepo) Update(ctx context.Context, p domain.Position) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE positions SET current_price = ?, stop_loss = ?, take_profit = ?, status = ?, closed_at = ?
		WHERE id = ?`,
		p.CurrentPrice.String(), decimalPtrString(p.StopLoss), decimalPtrString(p.TakeProfit),
		string(p.Status), nullTime(p.ClosedAt), p.ID,
	)
	if err != nil {
		return fmt.Errorf("storage.positionRepo.Update: %w", err)
	}
	return nil
}

func (r *positionRepo) Get(ctx context.Context, id string) (domain.Position, error) {
	row := r.db.QueryRowContext(ctx, positionSelect+"WHERE id = ?", id)
	p, err := scanPosition(row)
	if err != nil {
		return domain.Position{}, fmt.Errorf("storage.positionRepo.Get: %w", err)
	}
	return p, nil
}

// FindOpen returns the earliest-opened OPEN position for (user, symbol,
// strategy), if any (spec invariant: at most one OPEN position per
// strategy+symbol+user).
func (r *positionRepo) FindOpen(ctx context.Context, userID, symbol, strategyID string) (domain.Position, bool, error) {
	row := r.db.QueryRowContext(ctx,
		positionSelect+`WHERE user_id = ? AND symbol = ? AND strategy_id = ? AND status = 'OPEN' ORDER BY opened_at LIMIT 1`,
		userID, symbol, strategyID)
	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Position{}, false, nil
		}
		return domain.Position{}, false, fmt.Errorf("storage.positionRepo.FindOpen: %w", err)
	}
	return p, true, nil
}

func (r *positionRepo) ListOpen(ctx context.Context, userID string) ([]domain.Position, error) {
	rows, err := r.db.QueryContext(ctx, positionSelect+`WHERE user_id = ? AND status = 'OPEN'`, userID)
	if err != nil {
		return nil, fmt.Errorf("storage.positionRepo.ListOpen: %w", err)
	}
	defer rows.Close()
	return scanPositions(rows)
}

func (r *positionRepo) ListAllOpen(ctx context.Context) ([]domain.Position, error) {
	rows, err := r.db.QueryContext(ctx, positionSelect+`WHERE status = 'OPEN'`)
	if err != nil {
		return nil, fmt.Errorf("storage.positionRepo.ListAllOpen: %w", err)
	}
	defer rows.Close()
	return scanPositions(rows)
}

const positionSelect = `
	SELECT id, user_id, strategy_id, symbol, side, quantity, entry_price, current_price,
		stop_loss, take_profit, status, opened_at, closed_at
	FROM positions `

func scanPosition(row rowScanner) (domain.Position, error) {
	var p domain.Position
	var side, status string
	var entryPrice, currentPrice string
	var stopLoss, takeProfit sql.NullString
	var openedAt time.Time
	var closedAt sql.NullTime

	err := row.Scan(&p.ID, &p.UserID, &p.StrategyID, &p.Symbol, &side, &p.Quantity,
		&entryPrice, &currentPrice, &stopLoss, &takeProfit, &status, &openedAt, &closedAt)
	if err != nil {
		return domain.Position{}, err
	}

	p.Side = domain.PositionSide(side)
	p.Status = domain.PositionStatus(status)
	p.EntryPrice, _ = decimal.NewFromString(entryPrice)
	p.CurrentPrice, _ = decimal.NewFromString(currentPrice)
	p.OpenedAt = openedAt
	if closedAt.Valid {
		p.ClosedAt = closedAt.Time
	}
	if stopLoss.Valid {
		v, _ := decimal.NewFromString(stopLoss.String)
		p.StopLoss = &v
	}
	if takeProfit.Valid {
		v, _ := decimal.NewFromString(takeProfit.String)
		p.TakeProfit = &v
	}
	return p, nil
}

func scanPositions(rows *sql.Rows) ([]domain.Position, error) {
	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scanPositions: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func decimalPtrString(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}
