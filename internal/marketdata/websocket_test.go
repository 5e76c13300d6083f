package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/aktrade/tradecore/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_ValidTickEnvelopeEnqueuesTick(t *testing.T) {
	s := NewWebSocketSource("wss://example.invalid")
	s.dispatch([]byte(`{"v":1,"type":"tick","symbol":"NIFTY","last_price":21500.5,"volume":1000,"timestamp_ms":1753776600000}`))

	select {
	case tick := <-s.ticks:
		assert.Equal(t, "NIFTY", tick.Symbol)
		assert.Equal(t, 21500.5, tick.LastPrice)
		assert.Equal(t, int64(1000), tick.Volume)
	default:
		t.Fatal("expected a tick to be enqueued")
	}
}

func TestDispatch_IgnoresNonJSONFrame(t *testing.T) {
	s := NewWebSocketSource("wss://example.invalid")
	s.dispatch([]byte("not json"))

	select {
	case <-s.ticks:
		t.Fatal("malformed frame must not enqueue a tick")
	default:
	}
}

func TestDispatch_IgnoresUnsupportedVersion(t *testing.T) {
	s := NewWebSocketSource("wss://example.invalid")
	s.dispatch([]byte(`{"v":2,"type":"tick","symbol":"NIFTY"}`))

	select {
	case <-s.ticks:
		t.Fatal("unversioned/unsupported frame must not enqueue a tick")
	default:
	}
}

func TestDispatch_IgnoresNonTickType(t *testing.T) {
	s := NewWebSocketSource("wss://example.invalid")
	s.dispatch([]byte(`{"v":1,"type":"heartbeat"}`))

	select {
	case <-s.ticks:
		t.Fatal("non-tick frame must not enqueue a tick")
	default:
	}
}

func TestDispatch_DropsTickWhenChannelFull(t *testing.T) {
	s := NewWebSocketSource("wss://example.invalid")
	s.ticks = make(chan domain.Tick, 1)
	s.dispatch([]byte(`{"v":1,"type":"tick","symbol":"NIFTY","last_price":100}`))

	// Channel is now full; a second dispatch must drop rather than block.
	done := make(chan struct{})
	go func() {
		s.dispatch([]byte(`{"v":1,"type":"tick","symbol":"RELIANCE","last_price":200}`))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch blocked instead of dropping the tick on a full channel")
	}

	tick := <-s.ticks
	assert.Equal(t, "NIFTY", tick.Symbol, "the first, already-buffered tick must survive")
}

func TestWriteJSON_ErrorsWhenNotConnected(t *testing.T) {
	s := NewWebSocketSource("wss://example.invalid")
	err := s.writeJSON(subscribeMsg{Operation: "subscribe", Symbols: []string{"NIFTY"}})
	assert.Error(t, err)
}

func TestWriteMessage_ErrorsWhenNotConnected(t *testing.T) {
	s := NewWebSocketSource("wss://example.invalid")
	err := s.writeMessage(1, nil)
	assert.Error(t, err)
}

func TestClose_NoopWhenNeverConnected(t *testing.T) {
	s := NewWebSocketSource("wss://example.invalid")
	require.NoError(t, s.Close())
}

func TestSubscribe_RecordsSymbols(t *testing.T) {
	s := NewWebSocketSource("wss://example.invalid")
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // already-cancelled: run()'s dial attempt fails fast and the loop exits
	_, err := s.Subscribe(ctx, []string{"NIFTY", "RELIANCE"})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond) // allow the background run() goroutine to observe the cancelled ctx and return
	s.subscribedMu.RLock()
	defer s.subscribedMu.RUnlock()
	assert.True(t, s.subscribed["NIFTY"])
	assert.True(t, s.subscribed["RELIANCE"])
}
