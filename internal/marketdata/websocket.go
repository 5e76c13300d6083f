// Package marketdata implements ports.MarketDataSource over the vendor's
// tick websocket, grounded on the teacher pack's WSFeed (gorilla/websocket,
// auto-reconnect with exponential backoff, typed dispatch on a JSON
// envelope field) adapted from order-book events to versioned tick frames
// (spec §9 Open Question 1: "tick wire format is versioned JSON, not a
// guessed binary frame").
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aktrade/tradecore/internal/domain"
	"github.com/aktrade/tradecore/internal/ports"
	"github.com/gorilla/websocket"
)

var _ ports.MarketDataSource = (*WebSocketSource)(nil)

const (
	pingInterval     = 50 * time.Second
	readTimeout      = 90 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
	tickBufferSize   = 1024
)

// tickEnvelope is the versioned wire frame: {"v":1,"type":"tick","symbol":...}.
type tickEnvelope struct {
	Version   int     `json:"v"`
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol"`
	LastPrice float64 `json:"last_price"`
	Volume    int64   `json:"volume"`
	Timestamp int64   `json:"timestamp_ms"`
}

type subscribeMsg struct {
	Operation string   `json:"operation"`
	Symbols   []string `json:"symbols"`
}

// WebSocketSource subscribes to the vendor's tick feed and emits
// domain.Tick on a single channel, reconnecting with exponential backoff on
// any read/dial failure.
type WebSocketSource struct {
	url string

	connMu sync.Mutex
	conn   *websocket.Conn

	subscribedMu sync.RWMutex
	subscribed   map[string]bool

	ticks chan domain.Tick
}

// NewWebSocketSource creates a source that will dial url once Subscribe is called.
func NewWebSocketSource(url string) *WebSocketSource {
	return &WebSocketSource{
		url:        url,
		subscribed: make(map[string]bool),
		ticks:      make(chan domain.Tick, tickBufferSize),
	}
}

// Subscribe records the symbol set and launches the connect/read/reconnect
// loop in the background; the returned channel streams ticks for the
// lifetime of ctx.
func (s *WebSocketSource) Subscribe(ctx context.Context, symbols []string) (<-chan domain.Tick, error) {
	s.subscribedMu.Lock()
	for _, sym := range symbols {
		s.subscribed[sym] = true
	}
	s.subscribedMu.Unlock()

	go s.run(ctx)
	return s.ticks, nil
}

// Close tears down the active connection, if any.
func (s *WebSocketSource) Close() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *WebSocketSource) run(ctx context.Context) {
	backoff := time.Second
	for {
		err := s.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}
		slog.Warn("marketdata: websocket disconnected, reconnecting", "err", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

func (s *WebSocketSource) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("marketdata: dial: %w", err)
	}
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	defer func() {
		s.connMu.Lock()
		conn.Close()
		s.conn = nil
		s.connMu.Unlock()
	}()

	if err := s.sendSubscription(); err != nil {
		return fmt.Errorf("marketdata: subscribe: %w", err)
	}
	slog.Info("marketdata: websocket connected")

	pingCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("marketdata: read: %w", err)
		}
		s.dispatch(msg)
	}
}

func (s *WebSocketSource) sendSubscription() error {
	s.subscribedMu.RLock()
	symbols := make([]string, 0, len(s.subscribed))
	for sym := range s.subscribed {
		symbols = append(symbols, sym)
	}
	s.subscribedMu.RUnlock()

	return s.writeJSON(subscribeMsg{Operation: "subscribe", Symbols: symbols})
}

func (s *WebSocketSource) dispatch(data []byte) {
	var env tickEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		slog.Debug("marketdata: ignoring non-json frame", "data", string(data))
		return
	}
	if env.Version != 1 || env.Type != "tick" {
		slog.Debug("marketdata: ignoring unsupported frame", "version", env.Version, "type", env.Type)
		return
	}

	tick := domain.Tick{
		Symbol:    env.Symbol,
		LastPrice: env.LastPrice,
		Volume:    env.Volume,
		Timestamp: time.UnixMilli(env.Timestamp),
	}
	select {
	case s.ticks <- tick:
	default:
		slog.Warn("marketdata: tick channel full, dropping tick", "symbol", tick.Symbol)
	}
}

func (s *WebSocketSource) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.writeMessage(websocket.PingMessage, nil); err != nil {
				slog.Warn("marketdata: ping failed", "err", err)
				return
			}
		}
	}
}

func (s *WebSocketSource) writeJSON(v any) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("marketdata: not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(v)
}

func (s *WebSocketSource) writeMessage(msgType int, data []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("marketdata: not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(msgType, data)
}
