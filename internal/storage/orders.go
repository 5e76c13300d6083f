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

type orderRepo struct{ db *sql.DB }

func (r *orderRepo) Create(ctx context.Context, o domain.Order) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, strategy_id, broker_order_id, symbol, side, order_type,
			quantity, filled_quantity, avg_price, status, reject_reason, linked_order_id,
			created_at, placed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			broker_order_id = excluded.broker_order_id,
			filled_quantity = excluded.filled_quantity,
			avg_price       = excluded.avg_price,
			status          = excluded.status,
			reject_reason   = excluded.reject_reason,
			placed_at       = excluded.placed_at,
			updated_at      = excluded.updated_at`,
		o.ID, o.UserID, o.StrategyID, o.BrokerOrderID, o.Symbol, string(o.Side), string(o.OrderType),
		o.Quantity, o.FilledQuantity, o.AvgPrice.String(), string(o.Status), o.RejectReason, o.LinkedOrderID,
		nullTime(o.CreatedAt), nullTime(o.PlacedAt), nullTime(o.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.orderRepo.Create: %w", err)
	}
	return nil
}

func (r *orderRepo) Update(ctx context.Context, o domain.Order) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE orders SET broker_order_id = ?, filled_quantity = ?, avg_price = ?, status = ?,
			reject_reason = ?, linked_order_id = ?, placed_at = ?, updated_at = ?
		WHERE id = ?`,
		o.BrokerOrderID, o.FilledQuantity, o.AvgPrice.String(), string(o.Status),
		o.RejectReason, o.LinkedOrderID, nullTime(o.PlacedAt), nullTime(o.UpdatedAt), o.ID,
	)
	if err != nil {
		return fmt.Errorf("storage.orderRepo.Update: %w", err)
	}
	return nil
}

func (r *orderRepo) Get(ctx context.Context, id string) (domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, strategy_id, broker_order_id, symbol, side, order_type, quantity,
			filled_quantity, avg_price, status, reject_reason, linked_order_id,
			created_at, placed_at, updated_at
		FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if err != nil {
		return domain.Order{}, fmt.Errorf("storage.orderRepo.Get: %w", err)
	}
	return o, nil
}

// ListNonTerminal returns every order not yet in a terminal state, updated
// since the given lookback boundary (the reconciler's 24h scan window).
func (r *orderRepo) ListNonTerminal(ctx context.Context, since time.Time) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, strategy_id, broker_order_id, symbol, side, order_type, quantity,
			filled_quantity, avg_price, status, reject_reason, linked_order_id,
			created_at, placed_at, updated_at
		FROM orders
		WHERE status NOT IN ('FILLED','CANCELLED','REJECTED','FAILED') AND updated_at >= ?`,
		nullTime(since))
	if err != nil {
		return nil, fmt.Errorf("storage.orderRepo.ListNonTerminal: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.orderRepo.ListNonTerminal: scan: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows so scanOrder serves both Get
// and the list queries.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var o domain.Order
	var side, orderType, status string
	var avgPrice string
	var placedAt sql.NullTime
	var createdAt, updatedAt time.Time

	err := row.Scan(&o.ID, &o.UserID, &o.StrategyID, &o.BrokerOrderID, &o.Symbol, &side, &orderType,
		&o.Quantity, &o.FilledQuantity, &avgPrice, &status, &o.RejectReason, &o.LinkedOrderID,
		&createdAt, &placedAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, err
		}
		return domain.Order{}, err
	}

	o.Side = domain.Side(side)
	o.OrderType = domain.OrderType(orderType)
	o.Status = domain.OrderStatus(status)
	o.AvgPrice, _ = decimal.NewFromString(avgPrice)
	o.CreatedAt = createdAt
	o.UpdatedAt = updatedAt
	if placedAt.Valid {
		o.PlacedAt = placedAt.Time
	}
	return o, nil
}

// nullTime converts a zero time.Time to nil so it stores as SQL NULL instead
// of the year-1 sentinel value.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
