// Package mtm maintains in-memory mark-to-market snapshots of every open
// position, updated tick-by-tick, and periodic portfolio rollups (spec §4.11).
package mtm

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/aktrade/tradecore/internal/clock"
	"github.com/aktrade/tradecore/internal/domain"
	"github.com/shopspring/decimal"
)

// marginFraction mirrors domain.MarginForNotional's 0.2 factor for the
// portfolio-level used-margin rollup (spec §4.11).
const marginFraction = 0.2

// Snapshot is one position's live mark-to-market view.
type Snapshot struct {
	Position         domain.Position
	UnrealisedPnL    float64
	UnrealisedPnLPct float64
	DistanceToSL     float64 // percent, NaN if no stop-loss set
	DistanceToTP     float64 // percent, NaN if no take-profit set
}

// PortfolioSnapshot is the periodic aggregate the engine persists every 60s.
type PortfolioSnapshot struct {
	UserID          string
	TotalCapital    float64
	UsedMargin      float64
	AvailableMargin float64
	UnrealisedPnL   float64
	RealisedToday   float64
	TotalToday      float64
	PeakEquity      float64
	DrawdownPct     float64
	PerStrategy     map[string]StrategyRollup
	AsOf            time.Time
}

// StrategyRollup groups position PnL under its owning strategy (or "manual").
type StrategyRollup struct {
	PositionCount int
	UnrealisedPnL float64
}

// Persister saves a portfolio snapshot on the 60s cadence; failures are
// logged and swallowed (spec: "best-effort DB writes").
type Persister interface {
	SaveSnapshot(ctx context.Context, snap PortfolioSnapshot) error
}

// userState is one user's live MTM state: capital, realised-today, and
// peak-equity tracked for drawdown.
type userState struct {
	capital       float64
	realisedToday float64
	peakEquity    float64
	positions     map[string]*Snapshot // position ID -> live snapshot
}

// Engine is the single writer of every position's live snapshot.
type Engine struct {
	clock   clock.Clock
	persist Persister

	mu    sync.Mutex
	users map[string]*userState
}

// New creates an MTM Engine.
func New(c clock.Clock, persist Persister) *Engine {
	return &Engine{clock: c, persist: persist, users: make(map[string]*userState)}
}

// RegisterUser seeds a user's starting capital (spec: total_capital baseline
// for margin/drawdown math).
func (e *Engine) RegisterUser(userID string, capital float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.users[userID] = &userState{capital: capital, peakEquity: capital, positions: make(map[string]*Snapshot)}
}

func (e *Engine) userFor(userID string) *userState {
	u, ok := e.users[userID]
	if !ok {
		u = &userState{positions: make(map[string]*Snapshot)}
		e.users[userID] = u
	}
	return u
}

// OpenPosition registers a newly opened position for tick-driven MTM.
func (e *Engine) OpenPosition(pos domain.Position) {
	e.mu.Lock()
	defer e.mu.Unlock()
	u := e.userFor(pos.UserID)
	u.positions[pos.ID] = &Snapshot{Position: pos}
}

// ClosePosition removes a position from live MTM tracking; MTM tick updates
// must not cross the close-fill handoff (spec §5: "MTM deletes the position
// on close").
func (e *Engine) ClosePosition(userID, positionID string, realisedPnL float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	u := e.userFor(userID)
	delete(u.positions, positionID)
	u.realisedToday += realisedPnL
}

// OnTick updates every open position matching symbol with the new price
// (spec §4.11 "Per tick(symbol, price)").
func (e *Engine) OnTick(symbol string, price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, u := range e.users {
		for _, snap := range u.positions {
			if snap.Position.Symbol != symbol {
				continue
			}
			updateSnapshot(snap, price)
		}
	}
}

func updateSnapshot(snap *Snapshot, price float64) {
	pos := &snap.Position
	pos.CurrentPrice = decimal.NewFromFloat(price)

	entry, _ := pos.EntryPrice.Float64()
	qty := float64(pos.Quantity)
	diff := price - entry
	if pos.Side == domain.PositionShort {
		diff = -diff
	}
	snap.UnrealisedPnL = diff * qty
	if entry*qty != 0 {
		snap.UnrealisedPnLPct = snap.UnrealisedPnL / (entry * qty) * 100
	}

	snap.DistanceToSL = distancePct(price, pos.StopLoss)
	snap.DistanceToTP = distancePct(price, pos.TakeProfit)
}

// distancePct expresses a stop-loss/take-profit level as a percentage
// distance from the current price; NaN when no level is configured.
func distancePct(price float64, level *decimal.Decimal) float64 {
	if level == nil || price == 0 {
		return math.NaN()
	}
	l, _ := level.Float64()
	return (l - price) / price * 100
}

// PortfolioSnapshotFor computes the rollup from spec §4.11 for one user.
func (e *Engine) PortfolioSnapshotFor(userID string) PortfolioSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	u := e.userFor(userID)

	var usedMargin, unrealised float64
	rollups := make(map[string]StrategyRollup)
	for _, snap := range u.positions {
		entry, _ := snap.Position.EntryPrice.Float64()
		usedMargin += entry * float64(snap.Position.Quantity) * marginFraction
		unrealised += snap.UnrealisedPnL

		key := snap.Position.StrategyKey()
		r := rollups[key]
		r.PositionCount++
		r.UnrealisedPnL += snap.UnrealisedPnL
		rollups[key] = r
	}

	available := u.capital - usedMargin + u.realisedToday
	if available < 0 {
		available = 0
	}
	totalToday := unrealised + u.realisedToday
	currentEquity := u.capital + totalToday
	if currentEquity > u.peakEquity {
		u.peakEquity = currentEquity
	}
	var drawdown float64
	if u.peakEquity > 0 {
		drawdown = (u.peakEquity - currentEquity) / u.peakEquity * 100
	}

	return PortfolioSnapshot{
		UserID: userID, TotalCapital: u.capital, UsedMargin: usedMargin,
		AvailableMargin: available, UnrealisedPnL: unrealised, RealisedToday: u.realisedToday,
		TotalToday: totalToday, PeakEquity: u.peakEquity, DrawdownPct: drawdown,
		PerStrategy: rollups, AsOf: e.clock.Now(),
	}
}

// PersistAll writes every tracked user's snapshot (spec: "Persist snapshot
// every 60 s (best-effort DB writes)").
func (e *Engine) PersistAll(ctx context.Context) {
	e.mu.Lock()
	userIDs := make([]string, 0, len(e.users))
	for id := range e.users {
		userIDs = append(userIDs, id)
	}
	e.mu.Unlock()

	for _, id := range userIDs {
		snap := e.PortfolioSnapshotFor(id)
		if e.persist == nil {
			continue
		}
		if err := e.persist.SaveSnapshot(ctx, snap); err != nil {
			slog.Warn("mtm: persist snapshot failed", "user", id, "err", err)
		}
	}
}

// DailyReset clears realised-today and resets peak equity to capital (spec:
// "Daily reset clears realised_today, sets peak_equity = capital").
func (e *Engine) DailyReset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, u := range e.users {
		u.realisedToday = 0
		u.peakEquity = u.capital
	}
}
