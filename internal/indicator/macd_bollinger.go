package indicator

import (
	"math"

	"github.com/aktrade/tradecore/internal/domain"
)

// MACDResult holds the MACD line, signal line, and histogram, aligned to the
// input bar slice.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes the standard (fast, slow, signal) MACD over Close.
func MACD(bars []domain.Bar, fast, slow, signal int) MACDResult {
	fastEMA := EMA(bars, fast)
	slowEMA := EMA(bars, slow)

	macdLine := make([]float64, len(bars))
	for i := range bars {
		if math.IsNaN(fastEMA[i]) || math.IsNaN(slowEMA[i]) {
			macdLine[i] = math.NaN()
			continue
		}
		macdLine[i] = fastEMA[i] - slowEMA[i]
	}

	signalLine := emaOfSeries(macdLine, signal)

	histogram := make([]float64, len(bars))
	for i := range bars {
		if math.IsNaN(macdLine[i]) || math.IsNaN(signalLine[i]) {
			histogram[i] = math.NaN()
			continue
		}
		histogram[i] = macdLine[i] - signalLine[i]
	}

	return MACDResult{MACD: macdLine, Signal: signalLine, Histogram: histogram}
}

// emaOfSeries computes an EMA directly over a float series (used for the
// MACD signal line, which is an EMA of the MACD line rather than of price).
func emaOfSeries(series []float64, n int) []float64 {
	out := make([]float64, len(series))
	fillNaN(out)
	if n <= 0 || len(series) < n {
		return out
	}

	start := -1
	for i, v := range series {
		if !math.IsNaN(v) {
			start = i
			break
		}
	}
	if start < 0 || len(series)-start < n {
		return out
	}

	alpha := 2.0 / float64(n+1)
	var seed float64
	for i := start; i < start+n; i++ {
		seed += series[i]
	}
	seed /= float64(n)
	out[start+n-1] = seed

	prev := seed
	for i := start + n; i < len(series); i++ {
		if math.IsNaN(series[i]) {
			out[i] = math.NaN()
			continue
		}
		prev = series[i]*alpha + prev*(1-alpha)
		out[i] = prev
	}
	return out
}

// BollingerResult holds the upper, middle (SMA), and lower bands.
type BollingerResult struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger computes Bollinger Bands: middle = SMA(n), bands = middle ± k*stddev(n).
func Bollinger(bars []domain.Bar, n int, k float64) BollingerResult {
	middle := SMA(bars, n)
	upper := make([]float64, len(bars))
	lower := make([]float64, len(bars))
	fillNaN(upper)
	fillNaN(lower)

	if n <= 0 {
		return BollingerResult{Upper: upper, Middle: middle, Lower: lower}
	}

	for i := range bars {
		if i < n-1 {
			continue
		}
		var sumSq float64
		for j := i - n + 1; j <= i; j++ {
			d := bars[j].Close - middle[i]
			sumSq += d * d
		}
		std := math.Sqrt(sumSq / float64(n))
		upper[i] = middle[i] + k*std
		lower[i] = middle[i] - k*std
	}
	return BollingerResult{Upper: upper, Middle: middle, Lower: lower}
}
