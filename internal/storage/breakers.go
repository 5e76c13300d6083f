package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aktrade/tradecore/internal/domain"
)

type breakerRepo struct{ db *sql.DB }

// Get returns the persisted breaker state for name, or a fresh CLOSED state
// if no row exists yet (a breaker whose state has never been saved).
func (r *breakerRepo) Get(ctx context.Context, name string) (domain.CircuitBreakerState, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT state, failure_count, success_count, opened_at, use_fallback
		FROM circuit_breaker_state WHERE name = ?`, name)

	var st domain.CircuitBreakerState
	var state string
	var openedAt sql.NullTime
	var useFallback int
	err := row.Scan(&state, &st.FailureCount, &st.SuccessCount, &openedAt, &useFallback)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CircuitBreakerState{State: domain.CircuitClosed}, nil
	}
	if err != nil {
		return domain.CircuitBreakerState{}, fmt.Errorf("storage.breakerRepo.Get: %w", err)
	}
	st.State = domain.CircuitState(state)
	st.UseFallback = useFallback != 0
	if openedAt.Valid {
		st.OpenedAt = openedAt.Time
	}
	return st, nil
}

func (r *breakerRepo) Save(ctx context.Context, name string, state domain.CircuitBreakerState) error {
	useFallback := 0
	if state.UseFallback {
		useFallback = 1
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO circuit_breaker_state (name, state, failure_count, success_count, opened_at, use_fallback)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			state = excluded.state, failure_count = excluded.failure_count,
			success_count = excluded.success_count, opened_at = excluded.opened_at,
			use_fallback = excluded.use_fallback`,
		name, string(state.State), state.FailureCount, state.SuccessCount, nullTime(state.OpenedAt), useFallback,
	)
	if err != nil {
		return fmt.Errorf("storage.breakerRepo.Save: %w", err)
	}
	return nil
}
