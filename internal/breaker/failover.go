package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/aktrade/tradecore/internal/domain"
	"github.com/aktrade/tradecore/internal/ports"
)

// Failover wraps a primary broker (live) and a fallback broker (paper)
// behind a shared Breaker. While the breaker is open, place/cancel/status/
// positions route to the fallback; get_current_price tries the primary
// through the breaker and silently falls back on error (spec §4.9).
type Failover struct {
	breaker     *Breaker
	primary     ports.BrokerAdapter
	fallback    ports.BrokerAdapter
	useFallback atomic.Bool
	audit       AuditFunc
}

var _ ports.BrokerAdapter = (*Failover)(nil)

// NewFailover wires a breaker around primary, falling back to fallback.
func NewFailover(b *Breaker, primary, fallback ports.BrokerAdapter, audit AuditFunc) *Failover {
	if audit == nil {
		audit = func(domain.AuditSeverity, string) {}
	}
	f := &Failover{breaker: b, primary: primary, fallback: fallback, audit: audit}
	f.useFallback.Store(b.State() != domain.CircuitClosed)
	return f
}

// UsingFallback reports whether calls are currently routed to the fallback broker.
func (f *Failover) UsingFallback() bool { return f.breaker.State() != domain.CircuitClosed }

func (f *Failover) routeTo() ports.BrokerAdapter {
	b := f.breaker
	b.mu.Lock()
	state := b.state
	probeDue := (state == domain.CircuitOpen && b.clock.Now().Sub(b.openedAt) >= b.cfg.ResetTimeout) ||
		(state == domain.CircuitHalfOpen && !b.halfOpenBusy)
	b.mu.Unlock()

	if state == domain.CircuitClosed {
		if f.useFallback.Swap(false) {
			f.audit(domain.SeverityInfo, "breaker: circuit_closed, resuming primary broker")
		}
		return f.primary
	}
	if probeDue {
		// The primary call goes through the breaker as the HALF_OPEN probe.
		return f.primary
	}
	if !f.useFallback.Swap(true) {
		f.audit(domain.SeverityCritical, "BROKER_FAILOVER: circuit_open, routing to fallback broker")
	}
	return f.fallback
}

// PlaceOrder routes through the breaker when primary is in use; falls back
// immediately to the paper broker while OPEN/HALF_OPEN-busy.
func (f *Failover) PlaceOrder(ctx context.Context, req ports.PlaceOrderRequest) (ports.PlaceOrderResult, error) {
	target := f.routeTo()
	if target == f.fallback {
		return f.fallback.PlaceOrder(ctx, req)
	}
	var result ports.PlaceOrderResult
	err := f.breaker.Call(ctx, func(ctx context.Context) error {
		var callErr error
		result, callErr = f.primary.PlaceOrder(ctx, req)
		return callErr
	})
	if errors.Is(err, ErrOpen) {
		f.useFallback.Store(true)
		return f.fallback.PlaceOrder(ctx, req)
	}
	if err != nil {
		return ports.PlaceOrderResult{}, fmt.Errorf("breaker.Failover.PlaceOrder: %w", err)
	}
	return result, nil
}

// CancelOrder routes identically to PlaceOrder.
func (f *Failover) CancelOrder(ctx context.Context, brokerOrderID string) error {
	target := f.routeTo()
	if target == f.fallback {
		return f.fallback.CancelOrder(ctx, brokerOrderID)
	}
	err := f.breaker.Call(ctx, func(ctx context.Context) error {
		return f.primary.CancelOrder(ctx, brokerOrderID)
	})
	if errors.Is(err, ErrOpen) {
		f.useFallback.Store(true)
		return f.fallback.CancelOrder(ctx, brokerOrderID)
	}
	return err
}

// GetOrderStatus routes identically to PlaceOrder.
func (f *Failover) GetOrderStatus(ctx context.Context, brokerOrderID string) (ports.OrderStatusResult, error) {
	target := f.routeTo()
	if target == f.fallback {
		return f.fallback.GetOrderStatus(ctx, brokerOrderID)
	}
	var result ports.OrderStatusResult
	err := f.breaker.Call(ctx, func(ctx context.Context) error {
		var callErr error
		result, callErr = f.primary.GetOrderStatus(ctx, brokerOrderID)
		return callErr
	})
	if errors.Is(err, ErrOpen) {
		f.useFallback.Store(true)
		return f.fallback.GetOrderStatus(ctx, brokerOrderID)
	}
	if err != nil {
		return ports.OrderStatusResult{}, fmt.Errorf("breaker.Failover.GetOrderStatus: %w", err)
	}
	return result, nil
}

// GetCurrentPrice tries the primary through the breaker and silently falls
// back to the paper broker's price on any error (spec: "silently falls back
// on error" — price continuity must never hard-fail MTM).
func (f *Failover) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	var price float64
	err := f.breaker.Call(ctx, func(ctx context.Context) error {
		var callErr error
		price, callErr = f.primary.GetCurrentPrice(ctx, symbol)
		return callErr
	})
	if err != nil {
		return f.fallback.GetCurrentPrice(ctx, symbol)
	}
	return price, nil
}

// GetPositions routes identically to PlaceOrder.
func (f *Failover) GetPositions(ctx context.Context, userID string) ([]domain.Position, error) {
	target := f.routeTo()
	if target == f.fallback {
		return f.fallback.GetPositions(ctx, userID)
	}
	var result []domain.Position
	err := f.breaker.Call(ctx, func(ctx context.Context) error {
		var callErr error
		result, callErr = f.primary.GetPositions(ctx, userID)
		return callErr
	})
	if errors.Is(err, ErrOpen) {
		f.useFallback.Store(true)
		return f.fallback.GetPositions(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("breaker.Failover.GetPositions: %w", err)
	}
	return result, nil
}

// SquareOffAll always targets whichever broker is currently active, live
// emergency flags notwithstanding (spec §4.8: emergency_stopped does not
// block square-off).
func (f *Failover) SquareOffAll(ctx context.Context, userID string) error {
	return f.routeTo().SquareOffAll(ctx, userID)
}

// CancelAllOrders routes identically to PlaceOrder.
func (f *Failover) CancelAllOrders(ctx context.Context, userID string) error {
	target := f.routeTo()
	if target == f.fallback {
		return f.fallback.CancelAllOrders(ctx, userID)
	}
	err := f.breaker.Call(ctx, func(ctx context.Context) error {
		return f.primary.CancelAllOrders(ctx, userID)
	})
	if errors.Is(err, ErrOpen) {
		f.useFallback.Store(true)
		return f.fallback.CancelAllOrders(ctx, userID)
	}
	return err
}

// IsConnected reports the active backend's connectivity.
func (f *Failover) IsConnected() bool {
	return f.routeTo().IsConnected()
}
