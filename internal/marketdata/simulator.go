package marketdata

import (
	"context"
	"time"

	"github.com/aktrade/tradecore/internal/clock"
	"github.com/aktrade/tradecore/internal/domain"
	"github.com/aktrade/tradecore/internal/ports"
)

var _ ports.MarketDataSource = (*Simulator)(nil)

// Ticker is the narrow seam the simulator advances per symbol (satisfied by
// *broker.Paper).
type Ticker interface {
	Tick(symbol string) float64
}

// Simulator emits a synthetic tick per symbol on a fixed cadence, driving
// the aggregator in paper mode without any network dependency. Grounded on
// the same Subscribe/channel contract as WebSocketSource so the engine
// wires either interchangeably behind ports.MarketDataSource.
type Simulator struct {
	clock    clock.Clock
	ticker   Ticker
	interval time.Duration
	ticks    chan domain.Tick
	volume   int64
}

// NewSimulator creates a paper-mode tick generator.
func NewSimulator(c clock.Clock, ticker Ticker, interval time.Duration) *Simulator {
	return &Simulator{clock: c, ticker: ticker, interval: interval, ticks: make(chan domain.Tick, tickBufferSize)}
}

// Subscribe starts emitting ticks for symbols every interval until ctx is done.
func (s *Simulator) Subscribe(ctx context.Context, symbols []string) (<-chan domain.Tick, error) {
	go s.run(ctx, symbols)
	return s.ticks, nil
}

// Close is a no-op; the simulator has no network connection to tear down.
func (s *Simulator) Close() error { return nil }

func (s *Simulator) run(ctx context.Context, symbols []string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.interval):
		}
		now := s.clock.Now()
		for _, sym := range symbols {
			price := s.ticker.Tick(sym)
			if price == 0 {
				continue
			}
			s.volume++
			tick := domain.Tick{Symbol: sym, LastPrice: price, Volume: s.volume, Timestamp: now}
			select {
			case s.ticks <- tick:
			default:
			}
		}
	}
}
