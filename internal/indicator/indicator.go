// Package indicator implements pure technical-analysis functions over bar
// sequences.
//
// This file implements:
//   - SMA(bars, n)   – Simple Moving Average of Close
//   - EMA(bars, n)   – Exponential Moving Average of Close
//   - RSI(bars, n)   – Relative Strength Index (Wilder's smoothing)
//   - ATR(bars, n)   – Average True Range
//   - VWAP(bars)     – cumulative volume-weighted average price
//
// All functions accept a slice of domain.Bar and return a slice aligned to
// the input length. Lookback positions that don't yet have enough history
// emit NaN. Keep these allocation-light: they run on every bar_close.
package indicator

import (
	"math"

	"github.com/aktrade/tradecore/internal/domain"
)

// SMA returns the n-period simple moving average of Close.
func SMA(bars []domain.Bar, n int) []float64 {
	out := make([]float64, len(bars))
	if n <= 0 || len(bars) == 0 {
		fillNaN(out)
		return out
	}
	var sum float64
	for i := range bars {
		sum += bars[i].Close
		if i >= n {
			sum -= bars[i-n].Close
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// EMA returns the n-period exponential moving average of Close, seeded with
// the SMA of the first n bars.
func EMA(bars []domain.Bar, n int) []float64 {
	out := make([]float64, len(bars))
	if n <= 0 || len(bars) == 0 {
		fillNaN(out)
		return out
	}
	fillNaN(out)
	if len(bars) < n {
		return out
	}

	alpha := 2.0 / float64(n+1)
	var seed float64
	for i := 0; i < n; i++ {
		seed += bars[i].Close
	}
	seed /= float64(n)
	out[n-1] = seed

	prev := seed
	for i := n; i < len(bars); i++ {
		prev = bars[i].Close*alpha + prev*(1-alpha)
		out[i] = prev
	}
	return out
}

// RSI returns the n-period Relative Strength Index using Wilder's smoothing.
func RSI(bars []domain.Bar, n int) []float64 {
	out := make([]float64, len(bars))
	fillNaN(out)
	if n <= 0 || len(bars) == 0 {
		return out
	}

	var gain, loss float64
	for i := 1; i < len(bars); i++ {
		d := bars[i].Close - bars[i-1].Close
		if i <= n {
			if d > 0 {
				gain += d
			} else {
				loss -= d
			}
			if i == n {
				out[i] = rsiFromAvg(gain/float64(n), loss/float64(n))
			}
			continue
		}
		if d > 0 {
			gain = (gain*float64(n-1) + d) / float64(n)
			loss = (loss * float64(n-1)) / float64(n)
		} else {
			gain = (gain * float64(n-1)) / float64(n)
			loss = (loss*float64(n-1) - d) / float64(n)
		}
		out[i] = rsiFromAvg(gain, loss)
	}
	return out
}

func rsiFromAvg(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ATR returns the n-period Average True Range using Wilder's smoothing.
func ATR(bars []domain.Bar, n int) []float64 {
	out := make([]float64, len(bars))
	fillNaN(out)
	if n <= 0 || len(bars) == 0 {
		return out
	}

	trueRanges := make([]float64, len(bars))
	for i := range bars {
		if i == 0 {
			trueRanges[i] = bars[i].High - bars[i].Low
			continue
		}
		hl := bars[i].High - bars[i].Low
		hc := math.Abs(bars[i].High - bars[i-1].Close)
		lc := math.Abs(bars[i].Low - bars[i-1].Close)
		trueRanges[i] = math.Max(hl, math.Max(hc, lc))
	}

	if len(bars) < n {
		return out
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += trueRanges[i]
	}
	prev := sum / float64(n)
	out[n-1] = prev
	for i := n; i < len(bars); i++ {
		prev = (prev*float64(n-1) + trueRanges[i]) / float64(n)
		out[i] = prev
	}
	return out
}

// VWAP returns the cumulative volume-weighted average price series.
// VWAP = sum(price*volume) / sum(volume); flat sessions with zero volume
// fall back to Close.
func VWAP(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	var pvSum float64
	var volSum int64
	for i, b := range bars {
		typical := (b.High + b.Low + b.Close) / 3
		pvSum += typical * float64(b.Volume)
		volSum += b.Volume
		if volSum == 0 {
			out[i] = b.Close
			continue
		}
		out[i] = pvSum / float64(volSum)
	}
	return out
}

func fillNaN(s []float64) {
	for i := range s {
		s[i] = math.NaN()
	}
}
