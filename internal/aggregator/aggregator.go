// Package aggregator builds OHLCV bars from a tick stream and emits a
// bar_close event exactly once per (symbol, timeframe, start_time).
package aggregator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aktrade/tradecore/internal/domain"
)

// ringCapacity is the maximum number of closed bars buffered per
// (symbol, timeframe) stream in memory (spec §3).
const ringCapacity = 200

// Persister is the narrow storage seam the aggregator upserts closed bars
// through. DB errors are logged and non-fatal — the bar remains in memory.
type Persister interface {
	UpsertCandle(ctx context.Context, bar domain.Bar) error
}

// Listener is notified once, synchronously, per closed bar. Listeners must
// handle their own errors — Emit never propagates a listener's panic/error
// back into the aggregator.
type Listener func(bar domain.Bar)

// builder accumulates ticks into the bar currently in progress.
type builder struct {
	bar      domain.Bar
	vwapNum  float64
	prevVol  int64
	started  bool
}

// Aggregator is the single writer for all (symbol, timeframe) bar builders.
type Aggregator struct {
	timeframes []domain.Timeframe
	persist    Persister
	listeners  []Listener

	mu       sync.Mutex
	builders map[domain.BarKey]*builder
	rings    map[string][]domain.Bar // key: symbol|timeframe
	prevVol  map[string]int64        // key: symbol, last seen cumulative volume
}

// New creates an Aggregator for the given timeframes. now_ is driven
// externally by the caller's clock (spec's flush_completed(now) contract).
func New(timeframes []domain.Timeframe, persist Persister) *Aggregator {
	return &Aggregator{
		timeframes: timeframes,
		persist:    persist,
		builders:   make(map[domain.BarKey]*builder),
		rings:      make(map[string][]domain.Bar),
		prevVol:    make(map[string]int64),
	}
}

// OnBarClose registers a listener invoked synchronously for every closed bar.
func (a *Aggregator) OnBarClose(l Listener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, l)
}

// ProcessTick folds one tick into every supported timeframe's in-progress
// builder for its symbol. It never blocks on I/O.
func (a *Aggregator) ProcessTick(tick domain.Tick) {
	a.mu.Lock()
	defer a.mu.Unlock()

	prev := a.prevVol[tick.Symbol]
	delta := tick.Volume - prev
	if delta < 0 {
		delta = 0
	}
	a.prevVol[tick.Symbol] = tick.Volume

	for _, tf := range a.timeframes {
		boundary := alignBoundary(tick.Timestamp, tf)
		key := domain.BarKey{Symbol: tick.Symbol, Timeframe: tf, StartTime: boundary}

		b, ok := a.builders[key]
		if !ok || b.bar.StartTime != boundary {
			b = &builder{
				bar: domain.Bar{
					Symbol: tick.Symbol, Timeframe: tf,
					Open: tick.LastPrice, High: tick.LastPrice, Low: tick.LastPrice, Close: tick.LastPrice,
					StartTime: boundary,
				},
				started: true,
			}
			a.builders[key] = b
		}

		b.bar.Close = tick.LastPrice
		if tick.LastPrice > b.bar.High {
			b.bar.High = tick.LastPrice
		}
		if tick.LastPrice < b.bar.Low {
			b.bar.Low = tick.LastPrice
		}
		b.bar.Volume += delta
		b.vwapNum += tick.LastPrice * float64(delta)
		b.bar.TickCount++
	}
}

// alignBoundary floors a timestamp to the start of its timeframe window.
func alignBoundary(t time.Time, tf domain.Timeframe) time.Time {
	d := tf.Duration()
	return t.Truncate(d)
}

// FlushCompleted closes every builder whose timeframe boundary has elapsed
// as of now (spec §4.1: "minute_of_day mod tf_minutes == 0"). It may be
// called more often than once a minute: a builder closes only once its
// window has elapsed, and its continuation starts at the next boundary.
func (a *Aggregator) FlushCompleted(ctx context.Context, now time.Time) {
	minuteOfDay := now.Hour()*60 + now.Minute()

	a.mu.Lock()
	var toClose []domain.BarKey
	for key := range a.builders {
		tfMinutes := key.Timeframe.Minutes()
		if tfMinutes <= 0 {
			continue
		}
		if minuteOfDay%tfMinutes != 0 {
			continue
		}
		// The boundary must have actually elapsed — a builder just started
		// on this exact boundary isn't done yet.
		if !now.Before(key.StartTime.Add(key.Timeframe.Duration())) {
			toClose = append(toClose, key)
		}
	}
	a.mu.Unlock()

	for _, key := range toClose {
		a.closeBar(ctx, key, now)
	}
}

func (a *Aggregator) closeBar(ctx context.Context, key domain.BarKey, now time.Time) {
	a.mu.Lock()
	b, ok := a.builders[key]
	if !ok {
		a.mu.Unlock()
		return
	}

	closed := b.bar
	if closed.Volume > 0 {
		closed.VWAP = b.vwapNum / float64(closed.Volume)
	} else {
		closed.VWAP = closed.Close
	}

	ringKey := streamKey(key.Symbol, key.Timeframe)
	ring := append(a.rings[ringKey], closed)
	if len(ring) > ringCapacity {
		ring = ring[len(ring)-ringCapacity:]
	}
	a.rings[ringKey] = ring

	// Continuation builder: open==close of the closed bar, aligned to the
	// next boundary. A builder a tick already started there is kept.
	nextBoundary := key.StartTime.Add(key.Timeframe.Duration())
	delete(a.builders, key)
	nextKey := domain.BarKey{Symbol: key.Symbol, Timeframe: key.Timeframe, StartTime: nextBoundary}
	if _, exists := a.builders[nextKey]; !exists {
		a.builders[nextKey] = &builder{
			bar: domain.Bar{
				Symbol: key.Symbol, Timeframe: key.Timeframe,
				Open: closed.Close, High: closed.Close, Low: closed.Close, Close: closed.Close,
				StartTime: nextBoundary,
			},
			started: true,
		}
	}
	listeners := append([]Listener(nil), a.listeners...)
	a.mu.Unlock()

	if a.persist != nil {
		if err := a.persist.UpsertCandle(ctx, closed); err != nil {
			slog.Warn("aggregator: persist candle failed", "symbol", closed.Symbol, "tf", closed.Timeframe, "err", err)
		}
	}

	for _, l := range listeners {
		l(closed)
	}
}

func streamKey(symbol string, tf domain.Timeframe) string {
	return symbol + "|" + string(tf)
}

// GetBars returns up to limit of the most recent closed bars for a stream,
// oldest first.
func (a *Aggregator) GetBars(symbol string, tf domain.Timeframe, limit int) []domain.Bar {
	a.mu.Lock()
	defer a.mu.Unlock()
	ring := a.rings[streamKey(symbol, tf)]
	if limit <= 0 || limit >= len(ring) {
		out := make([]domain.Bar, len(ring))
		copy(out, ring)
		return out
	}
	out := make([]domain.Bar, limit)
	copy(out, ring[len(ring)-limit:])
	return out
}

// GetCurrentBar returns the in-progress (unclosed) bar for a stream, if any.
func (a *Aggregator) GetCurrentBar(symbol string, tf domain.Timeframe) (domain.Bar, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key, b := range a.builders {
		if key.Symbol == symbol && key.Timeframe == tf {
			return b.bar, true
		}
	}
	return domain.Bar{}, false
}
