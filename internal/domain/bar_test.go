package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeframe_Minutes(t *testing.T) {
	cases := map[Timeframe]int{
		Timeframe1Min:  1,
		Timeframe5Min:  5,
		Timeframe15Min: 15,
		Timeframe("bogus"): 0,
	}
	for tf, want := range cases {
		assert.Equal(t, want, tf.Minutes(), tf)
	}
}

func TestTimeframe_Duration(t *testing.T) {
	assert.Equal(t, 5*time.Minute, Timeframe5Min.Duration())
	assert.Equal(t, time.Duration(0), Timeframe("bogus").Duration())
}

func TestBar_Key_IdentifiesBySymbolTimeframeStart(t *testing.T) {
	start := time.Date(2026, 7, 29, 9, 30, 0, 0, time.UTC)
	b := Bar{Symbol: "NIFTY", Timeframe: Timeframe1Min, StartTime: start}
	assert.Equal(t, BarKey{Symbol: "NIFTY", Timeframe: Timeframe1Min, StartTime: start}, b.Key())

	other := Bar{Symbol: "NIFTY", Timeframe: Timeframe1Min, StartTime: start.Add(time.Minute)}
	assert.NotEqual(t, b.Key(), other.Key())
}
