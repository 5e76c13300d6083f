// Package strategy defines the pluggable strategy contract evaluated on
// every bar_close, plus a registry of available implementations.
package strategy

import (
	"fmt"

	"github.com/aktrade/tradecore/internal/domain"
)

// Result is what a strategy produces for one bar_close evaluation.
type Result struct {
	Signal     domain.SignalAction
	Confidence float64
	Reason     string
	Indicators map[string]float64
	StopLoss   *float64
	TakeProfit *float64
}

// Strategy is the pure contract every pluggable strategy implements.
// Evaluate must be a pure function: no I/O, no hidden state, called once
// per bar_close on a trailing window of bars.
type Strategy interface {
	// Name returns the strategy's registry key.
	Name() string

	// RequiredBars is the minimum trailing window length Evaluate needs.
	RequiredBars() int

	// Evaluate inspects bars (oldest first) and the current position state
	// and returns a signal. hasOpenPosition tells the strategy whether the
	// owning user already holds a position on this symbol.
	Evaluate(bars []domain.Bar, config domain.StrategyConfig, hasOpenPosition bool) (Result, error)

	// ValidateParameters checks a user-supplied parameter map before a
	// StrategyConfig is allowed to transition to RUNNING.
	ValidateParameters(params map[string]any) error

	// DefaultParameters returns the parameter map used when none is supplied.
	DefaultParameters() map[string]any

	// Description is a short human-readable summary for the strategy builder UI.
	Description() string
}

// Registry maps strategy type names to their pluggable implementation.
type Registry map[string]Strategy

// NewRegistry creates an empty registry.
func NewRegistry() Registry {
	return make(Registry)
}

// Register adds a strategy, keyed by its own Name().
func (r Registry) Register(s Strategy) {
	r[s.Name()] = s
}

// Get looks up a strategy by type name.
func (r Registry) Get(name string) (Strategy, bool) {
	s, ok := r[name]
	return s, ok
}

// MustGet looks up a strategy by type name, returning an error the engine
// can log and treat as a strategy_error (spec §7) rather than panicking.
func (r Registry) MustGet(name string) (Strategy, error) {
	s, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("strategy.MustGet: unknown strategy type %q", name)
	}
	return s, nil
}
