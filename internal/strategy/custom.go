package strategy

import (
	"fmt"

	"github.com/aktrade/tradecore/internal/domain"
)

// Logic is how multiple conditions combine.
type Logic string

const (
	LogicAND Logic = "AND"
	LogicOR  Logic = "OR"
)

const (
	defaultStopLossPct   = 2.0
	defaultTakeProfitPct = 5.0
	customRequiredBars   = 30
)

// Custom is the data-driven strategy built from user-configured entry/exit
// condition lists (spec §4.2). It has no built-in market view of its own —
// all logic comes from domain.StrategyConfig.Parameters.
type Custom struct{}

// NewCustom creates the custom condition-DSL strategy.
func NewCustom() *Custom { return &Custom{} }

func (c *Custom) Name() string         { return "custom" }
func (c *Custom) RequiredBars() int    { return customRequiredBars }
func (c *Custom) Description() string {
	return "Evaluates user-defined entry/exit condition lists against live indicators."
}

func (c *Custom) DefaultParameters() map[string]any {
	return map[string]any{
		"entry_conditions": []Condition{},
		"exit_conditions":  []Condition{},
		"entry_logic":      LogicAND,
		"exit_logic":       LogicOR,
		"stop_loss_pct":    defaultStopLossPct,
		"take_profit_pct":  defaultTakeProfitPct,
	}
}

// ValidateParameters requires the parameter map to carry well-typed
// condition lists; everything else has a sane default.
func (c *Custom) ValidateParameters(params map[string]any) error {
	if params == nil {
		return nil
	}
	if v, ok := params["entry_conditions"]; ok {
		if _, ok := v.([]Condition); !ok {
			return fmt.Errorf("strategy.Custom.ValidateParameters: entry_conditions must be []Condition")
		}
	}
	if v, ok := params["exit_conditions"]; ok {
		if _, ok := v.([]Condition); !ok {
			return fmt.Errorf("strategy.Custom.ValidateParameters: exit_conditions must be []Condition")
		}
	}
	return nil
}

// Evaluate implements the logic described in spec §4.2: entry conditions are
// evaluated only when not in a position, exit conditions only when in one.
func (c *Custom) Evaluate(bars []domain.Bar, config domain.StrategyConfig, hasOpenPosition bool) (Result, error) {
	if len(bars) == 0 {
		return Result{Signal: domain.ActionHold}, nil
	}

	entryConds := conditionsFromParams(config.Parameters, "entry_conditions")
	exitConds := conditionsFromParams(config.Parameters, "exit_conditions")
	entryLogic := logicFromParams(config.Parameters, "entry_logic", LogicAND)
	exitLogic := logicFromParams(config.Parameters, "exit_logic", LogicOR)

	price := bars[len(bars)-1].Close

	if hasOpenPosition {
		if len(exitConds) == 0 {
			return Result{Signal: domain.ActionHold}, nil
		}
		met, total := countMet(exitConds, bars)
		if satisfies(exitLogic, met, total) {
			return Result{
				Signal:     domain.ActionSell,
				Confidence: confidenceFor(met, total),
				Reason:     fmt.Sprintf("exit conditions met (%d/%d, %s)", met, total, exitLogic),
			}, nil
		}
		return Result{Signal: domain.ActionHold}, nil
	}

	if len(entryConds) == 0 {
		return Result{Signal: domain.ActionHold}, nil
	}
	met, total := countMet(entryConds, bars)
	if !satisfies(entryLogic, met, total) {
		return Result{Signal: domain.ActionHold}, nil
	}

	slPct := floatFromParams(config.Parameters, "stop_loss_pct", defaultStopLossPct)
	tpPct := floatFromParams(config.Parameters, "take_profit_pct", defaultTakeProfitPct)
	sl := price * (1 - slPct/100)
	tp := price * (1 + tpPct/100)

	return Result{
		Signal:     domain.ActionBuy,
		Confidence: confidenceFor(met, total),
		Reason:     fmt.Sprintf("entry conditions met (%d/%d, %s)", met, total, entryLogic),
		StopLoss:   &sl,
		TakeProfit: &tp,
	}, nil
}

func confidenceFor(met, total int) float64 {
	if total == 0 {
		return 0
	}
	conf := 0.6 + float64(met)/float64(total)*0.4
	if conf > 1.0 {
		return 1.0
	}
	return conf
}

func countMet(conds []Condition, bars []domain.Bar) (met, total int) {
	total = len(conds)
	for _, c := range conds {
		if c.Evaluate(bars) {
			met++
		}
	}
	return met, total
}

func satisfies(logic Logic, met, total int) bool {
	if total == 0 {
		return false
	}
	if logic == LogicOR {
		return met > 0
	}
	return met == total
}

func conditionsFromParams(params map[string]any, key string) []Condition {
	v, ok := params[key]
	if !ok {
		return nil
	}
	conds, ok := v.([]Condition)
	if !ok {
		return nil
	}
	return conds
}

func logicFromParams(params map[string]any, key string, def Logic) Logic {
	v, ok := params[key]
	if !ok {
		return def
	}
	l, ok := v.(Logic)
	if !ok || (l != LogicAND && l != LogicOR) {
		return def
	}
	return l
}

func floatFromParams(params map[string]any, key string, def float64) float64 {
	v, ok := params[key]
	if !ok {
		return def
	}
	f, ok := v.(float64)
	if !ok {
		return def
	}
	return f
}
