// Package conflict rejects opposing or duplicate simultaneous signals per
// symbol/user (spec §4.5), ahead of the per-user order queue.
package conflict

import (
	"fmt"
	"sync"

	"github.com/aktrade/tradecore/internal/domain"
)

// RejectedError is a non-fatal pre-order rejection: the strategy will
// naturally re-fire on the next bar, so callers must not retry or re-enqueue.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string { return e.Reason }

// OpenPosition is the minimal view the resolver needs of existing positions.
type OpenPosition struct {
	StrategyID string
	Side       domain.PositionSide
}

// PositionLookup resolves open positions for a (user, symbol) at check time.
type PositionLookup func(userID, symbol string) []OpenPosition

type barSlotKey struct {
	userID, symbol string
}

// Resolver is the single writer of the per-bar signal slot map. SafeMode
// enables the hedge block (spec §4.5 rule 1).
type Resolver struct {
	lookup   PositionLookup
	safeMode bool

	mu       sync.Mutex
	barSlots map[barSlotKey]domain.Side
}

// New creates a Resolver. lookup must return the caller's current open
// positions for a (user, symbol) pair; safeMode enables the hedge block.
func New(lookup PositionLookup, safeMode bool) *Resolver {
	return &Resolver{lookup: lookup, safeMode: safeMode, barSlots: make(map[barSlotKey]domain.Side)}
}

// Check applies the four ordered rules from spec §4.5 against one signal for
// (userID, symbol, strategyID); side is the signal's order side, BUY or SELL.
func (r *Resolver) Check(userID, symbol, strategyID string, side domain.Side) error {
	positions := r.lookup(userID, symbol)

	// Rule 1: hedge block (safe mode only) — reject if direction opposes any
	// existing open position on the symbol.
	if r.safeMode {
		for _, p := range positions {
			if opposes(side, p.Side) {
				return &RejectedError{Reason: fmt.Sprintf("open %s exists on %s — %s blocked", p.Side, symbol, side)}
			}
		}
	}

	// Rule 2: same-strategy re-entry — reject if the strategy already has an
	// open position on the symbol.
	for _, p := range positions {
		if p.StrategyID == strategyID {
			return &RejectedError{Reason: fmt.Sprintf("strategy %s already has an open position on %s", strategyID, symbol)}
		}
	}

	// Rule 3: first-wins per bar — only one direction per (user, symbol)
	// within a single bar.
	key := barSlotKey{userID: userID, symbol: symbol}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.barSlots[key]; ok {
		if existing != side {
			return &RejectedError{Reason: fmt.Sprintf("opposing signal already claimed this bar for %s on %s", symbol, userID)}
		}
		return &RejectedError{Reason: fmt.Sprintf("duplicate same-direction signal already claimed this bar for %s on %s", symbol, userID)}
	}

	// Rule 4: per-symbol cap — at most 1 open position per symbol per user.
	if len(positions) >= 1 {
		return &RejectedError{Reason: fmt.Sprintf("symbol %s already has an open position for user %s", symbol, userID)}
	}

	r.barSlots[key] = side
	return nil
}

// OnPositionClosed clears the bar slot for (user, symbol) once a position
// closes, letting a new signal direction claim the slot.
func (r *Resolver) OnPositionClosed(userID, symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.barSlots, barSlotKey{userID: userID, symbol: symbol})
}

// ClearBarSignals wipes every bar slot. The engine calls this on each
// bar_close tick after evaluation.
func (r *Resolver) ClearBarSignals() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.barSlots = make(map[barSlotKey]domain.Side)
}

func opposes(side domain.Side, posSide domain.PositionSide) bool {
	switch {
	case side == domain.SideBuy && posSide == domain.PositionShort:
		return true
	case side == domain.SideSell && posSide == domain.PositionLong:
		return true
	default:
		return false
	}
}
