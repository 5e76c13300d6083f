package strategy

import (
	"fmt"

	"github.com/aktrade/tradecore/internal/domain"
	"github.com/aktrade/tradecore/internal/indicator"
)

const (
	maCrossoverRequiredBars = 60
	defaultFastPeriod       = 9
	defaultSlowPeriod       = 21
)

// MACrossover is a built-in strategy: buy when the fast EMA crosses above
// the slow EMA, sell when it crosses back below.
type MACrossover struct{}

// NewMACrossover creates the EMA crossover strategy.
func NewMACrossover() *MACrossover { return &MACrossover{} }

func (m *MACrossover) Name() string      { return "MA_CROSSOVER" }
func (m *MACrossover) RequiredBars() int { return maCrossoverRequiredBars }
func (m *MACrossover) Description() string {
	return "Buys on fast/slow EMA bullish crossover, sells on bearish crossover."
}

func (m *MACrossover) DefaultParameters() map[string]any {
	return map[string]any{
		"fast_period":     float64(defaultFastPeriod),
		"slow_period":     float64(defaultSlowPeriod),
		"stop_loss_pct":   defaultStopLossPct,
		"take_profit_pct": defaultTakeProfitPct,
	}
}

func (m *MACrossover) ValidateParameters(params map[string]any) error {
	fast := floatFromParams(params, "fast_period", defaultFastPeriod)
	slow := floatFromParams(params, "slow_period", defaultSlowPeriod)
	if fast <= 0 || slow <= 0 {
		return fmt.Errorf("strategy.MACrossover.ValidateParameters: periods must be positive")
	}
	if fast >= slow {
		return fmt.Errorf("strategy.MACrossover.ValidateParameters: fast_period must be < slow_period")
	}
	return nil
}

func (m *MACrossover) Evaluate(bars []domain.Bar, config domain.StrategyConfig, hasOpenPosition bool) (Result, error) {
	fast := int(floatFromParams(config.Parameters, "fast_period", defaultFastPeriod))
	slow := int(floatFromParams(config.Parameters, "slow_period", defaultSlowPeriod))

	if len(bars) < slow+1 {
		return Result{Signal: domain.ActionHold}, nil
	}

	fastEMA := indicator.EMA(bars, fast)
	slowEMA := indicator.EMA(bars, slow)
	price := bars[len(bars)-1].Close

	switch {
	case !hasOpenPosition && indicator.SeriesCrossedAbove(fastEMA, slowEMA):
		slPct := floatFromParams(config.Parameters, "stop_loss_pct", defaultStopLossPct)
		tpPct := floatFromParams(config.Parameters, "take_profit_pct", defaultTakeProfitPct)
		sl := price * (1 - slPct/100)
		tp := price * (1 + tpPct/100)
		return Result{
			Signal:     domain.ActionBuy,
			Confidence: 0.8,
			Reason:     fmt.Sprintf("fast EMA(%d) crossed above slow EMA(%d)", fast, slow),
			Indicators: map[string]float64{"fast_ema": fastEMA[len(fastEMA)-1], "slow_ema": slowEMA[len(slowEMA)-1]},
			StopLoss:   &sl,
			TakeProfit: &tp,
		}, nil
	case hasOpenPosition && indicator.SeriesCrossedBelow(fastEMA, slowEMA):
		return Result{
			Signal:     domain.ActionSell,
			Confidence: 0.8,
			Reason:     fmt.Sprintf("fast EMA(%d) crossed below slow EMA(%d)", fast, slow),
			Indicators: map[string]float64{"fast_ema": fastEMA[len(fastEMA)-1], "slow_ema": slowEMA[len(slowEMA)-1]},
		}, nil
	default:
		return Result{Signal: domain.ActionHold}, nil
	}
}
