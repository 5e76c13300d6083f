package domain

import "time"

// SignalAction is what a strategy evaluation produced for this bar_close.
type SignalAction string

const (
	ActionBuy  SignalAction = "BUY"
	ActionSell SignalAction = "SELL"
	ActionHold SignalAction = "HOLD"
)

// ActThreshold is the minimum confidence required for a signal to be acted
// upon by the execution engine (spec §3: "confidence threshold 0.5 to act").
const ActThreshold = 0.5

// Signal is the output of one strategy evaluation on a closed bar.
type Signal struct {
	StrategyID   string
	Symbol       string
	Action       SignalAction
	PositionSide PositionSide
	Confidence   float64
	Reason       string
	Indicators   map[string]float64
	StopLoss     *float64
	TakeProfit   *float64
	Timestamp    time.Time
}

// Actionable reports whether the signal should be forwarded to risk/conflict.
func (s Signal) Actionable() bool {
	return s.Action != ActionHold && s.Confidence >= ActThreshold
}
