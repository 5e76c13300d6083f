package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aktrade/tradecore/internal/domain"
)

type candleRepo struct{ db *sql.DB }

// UpsertCandle writes a closed bar, keyed by (symbol, timeframe, start_time)
// per spec §6. Writes are best-effort from the caller's perspective: the
// aggregator logs and swallows any error this returns.
func (r *candleRepo) UpsertCandle(ctx context.Context, bar domain.Bar) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO candles (symbol, timeframe, start_time, open, high, low, close, volume, tick_count, vwap)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, timeframe, start_time) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low, close = excluded.close,
			volume = excluded.volume, tick_count = excluded.tick_count, vwap = excluded.vwap`,
		bar.Symbol, string(bar.Timeframe), bar.StartTime, bar.Open, bar.High, bar.Low, bar.Close,
		bar.Volume, bar.TickCount, bar.VWAP,
	)
	if err != nil {
		return fmt.Errorf("storage.candleRepo.UpsertCandle: %w", err)
	}
	return nil
}
