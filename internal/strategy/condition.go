package strategy

import (
	"math"

	"github.com/aktrade/tradecore/internal/domain"
	"github.com/aktrade/tradecore/internal/indicator"
)

// IndicatorKind is the tagged indicator a condition reads, dispatched through
// the seriesFuncs table. It is a string type, so any value compiles; a kind
// missing from seriesFuncs makes Condition.Evaluate return false.
type IndicatorKind string

const (
	IndicatorClose  IndicatorKind = "CLOSE"
	IndicatorSMA    IndicatorKind = "SMA"
	IndicatorEMA    IndicatorKind = "EMA"
	IndicatorRSI    IndicatorKind = "RSI"
	IndicatorMACD   IndicatorKind = "MACD"
	IndicatorATR    IndicatorKind = "ATR"
	IndicatorVWAP   IndicatorKind = "VWAP"
)

// Op is the comparator applied between an indicator's latest value and a
// configured threshold.
type Op string

const (
	OpGT          Op = "GT"
	OpLT          Op = "LT"
	OpGTE         Op = "GTE"
	OpLTE         Op = "LTE"
	OpEQ          Op = "EQ"
	OpCrossAbove  Op = "CROSS_ABOVE"
	OpCrossBelow  Op = "CROSS_BELOW"
)

// eqTolerance is the absolute tolerance for the EQ operator (spec §4.2).
const eqTolerance = 0.01

// Condition is one data-driven rule in the custom strategy's entry/exit DSL.
type Condition struct {
	Indicator IndicatorKind
	Op        Op
	Value     float64
	Period    int
}

// seriesFuncs is the dispatch table mapping an indicator kind to the
// function that computes its series over a bar window. Using a table here
// (rather than switching on strings at evaluation time) keeps the DSL data-
// driven: adding an indicator means adding one entry, not a new branch
// scattered through evaluation logic.
var seriesFuncs = map[IndicatorKind]func(bars []domain.Bar, period int) []float64{
	IndicatorClose: func(bars []domain.Bar, _ int) []float64 {
		out := make([]float64, len(bars))
		for i, b := range bars {
			out[i] = b.Close
		}
		return out
	},
	IndicatorSMA:  func(bars []domain.Bar, period int) []float64 { return indicator.SMA(bars, period) },
	IndicatorEMA:  func(bars []domain.Bar, period int) []float64 { return indicator.EMA(bars, period) },
	IndicatorRSI:  func(bars []domain.Bar, period int) []float64 { return indicator.RSI(bars, period) },
	IndicatorATR:  func(bars []domain.Bar, period int) []float64 { return indicator.ATR(bars, period) },
	IndicatorVWAP: func(bars []domain.Bar, _ int) []float64 { return indicator.VWAP(bars) },
	IndicatorMACD: func(bars []domain.Bar, _ int) []float64 { return indicator.MACD(bars, 12, 26, 9).MACD },
}

// Evaluate checks whether the condition holds against the trailing bar
// window. A NaN indicator value always counts as a failed condition.
func (c Condition) Evaluate(bars []domain.Bar) bool {
	fn, ok := seriesFuncs[c.Indicator]
	if !ok {
		return false
	}
	series := fn(bars, c.Period)
	if len(series) == 0 {
		return false
	}
	last := series[len(series)-1]
	if math.IsNaN(last) {
		return false
	}

	switch c.Op {
	case OpGT:
		return last > c.Value
	case OpLT:
		return last < c.Value
	case OpGTE:
		return last >= c.Value
	case OpLTE:
		return last <= c.Value
	case OpEQ:
		return math.Abs(last-c.Value) < eqTolerance
	case OpCrossAbove:
		return indicator.CrossedAbove(series, c.Value)
	case OpCrossBelow:
		return indicator.CrossedBelow(series, c.Value)
	default:
		return false
	}
}
