package indicator

import "math"

// CrossedAbove reports whether a series crossed above a threshold between
// the second-to-last and last value: prev < threshold <= last.
func CrossedAbove(series []float64, threshold float64) bool {
	if len(series) < 2 {
		return false
	}
	prev, last := series[len(series)-2], series[len(series)-1]
	if math.IsNaN(prev) || math.IsNaN(last) {
		return false
	}
	return prev < threshold && last >= threshold
}

// CrossedBelow reports whether a series crossed below a threshold between
// the second-to-last and last value: prev > threshold >= last.
func CrossedBelow(series []float64, threshold float64) bool {
	if len(series) < 2 {
		return false
	}
	prev, last := series[len(series)-2], series[len(series)-1]
	if math.IsNaN(prev) || math.IsNaN(last) {
		return false
	}
	return prev > threshold && last <= threshold
}

// SeriesCrossedAbove reports whether series a crossed above series b.
func SeriesCrossedAbove(a, b []float64) bool {
	if len(a) < 2 || len(b) < 2 {
		return false
	}
	prevA, lastA := a[len(a)-2], a[len(a)-1]
	prevB, lastB := b[len(b)-2], b[len(b)-1]
	if math.IsNaN(prevA) || math.IsNaN(lastA) || math.IsNaN(prevB) || math.IsNaN(lastB) {
		return false
	}
	return prevA < prevB && lastA >= lastB
}

// SeriesCrossedBelow reports whether series a crossed below series b.
func SeriesCrossedBelow(a, b []float64) bool {
	if len(a) < 2 || len(b) < 2 {
		return false
	}
	prevA, lastA := a[len(a)-2], a[len(a)-1]
	prevB, lastB := b[len(b)-2], b[len(b)-1]
	if math.IsNaN(prevA) || math.IsNaN(lastA) || math.IsNaN(prevB) || math.IsNaN(lastB) {
		return false
	}
	return prevA > prevB && lastA <= lastB
}
