// Package reconcile periodically syncs local Order state with the broker
// (spec §4.10): partial fills, stale-order cancellation, and
// retry-with-backoff for retryable rejections.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aktrade/tradecore/internal/clock"
	"github.com/aktrade/tradecore/internal/domain"
	"github.com/aktrade/tradecore/internal/ports"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// ScanCadence is how often non-terminal orders are rescanned (spec §4.10).
	ScanCadence = 30 * time.Second
	// RetryCadence is how often the retry queue is processed.
	RetryCadence = 5 * time.Second

	// scanWindow bounds the lookback for non-terminal orders.
	scanWindow = 24 * time.Hour
	// staleAge is how long a PLACED order may sit before forced cancellation.
	staleAge = 10 * time.Minute
	// partialFillAcceptFraction is the threshold to accept a partial fill
	// and cancel the remainder (spec: "if fraction >= 0.75 accept").
	partialFillAcceptFraction = 0.75
)

// retryDelays is the fixed retry schedule: attempts 1..3 at these delays.
var retryDelays = []time.Duration{5 * time.Second, 15 * time.Second, 45 * time.Second}

// retryableReasons is the substring set that makes a REJECTED order eligible
// for an automatic retry (spec §4.10).
var retryableReasons = []string{
	"session expired", "timeout", "network", "rate limit",
	"temporarily unavailable", "server error", "5xx",
}

// Broker is the narrow seam reconcile needs from the broker adapter.
type Broker interface {
	GetOrderStatus(ctx context.Context, brokerOrderID string) (ports.OrderStatusResult, error)
	CancelOrder(ctx context.Context, brokerOrderID string) error
}

// retryTask is a scheduled retry of a REJECTED order.
type retryTask struct {
	order   domain.Order
	attempt int
	dueAt   time.Time
}

// Reconciler is the single owner of the retry queue and the periodic scan.
type Reconciler struct {
	clock   clock.Clock
	storage ports.Storage
	broker  Broker
	place   func(ctx context.Context, order domain.Order) (ports.PlaceOrderResult, error)

	retryQueue []retryTask
}

// New creates a Reconciler. place re-submits a retry order to the broker; on
// success ProcessRetryQueue records a new PLACED order row linked to the
// original. The executor's fill handling (position, wallet) does not run for
// that row; ScanNonTerminal later updates only its order status.
func New(c clock.Clock, storage ports.Storage, broker Broker, place func(ctx context.Context, order domain.Order) (ports.PlaceOrderResult, error)) *Reconciler {
	return &Reconciler{clock: c, storage: storage, broker: broker, place: place}
}

// ScanNonTerminal reconciles every non-terminal order from the lookback
// window against the broker (spec §4.10 cadence + state machine).
func (r *Reconciler) ScanNonTerminal(ctx context.Context) error {
	since := r.clock.Now().Add(-scanWindow)
	orders, err := r.storage.Orders().ListNonTerminal(ctx, since)
	if err != nil {
		return fmt.Errorf("reconcile.ScanNonTerminal: %w", err)
	}
	for _, order := range orders {
		if err := r.reconcileOne(ctx, order); err != nil {
			slog.Error("reconcile: order reconciliation failed", "order_id", order.ID, "err", err)
		}
	}
	return nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, order domain.Order) error {
	if order.Status == domain.OrderPlaced && Age(order, r.clock.Now()) > staleAge {
		if err := r.broker.CancelOrder(ctx, order.BrokerOrderID); err != nil {
			return fmt.Errorf("reconcile.reconcileOne: cancel stale order: %w", err)
		}
		order.Status = domain.OrderCancelled
		order.UpdatedAt = r.clock.Now()
		return r.storage.Orders().Update(ctx, order)
	}

	status, err := r.broker.GetOrderStatus(ctx, order.BrokerOrderID)
	if err != nil {
		return fmt.Errorf("reconcile.reconcileOne: get_order_status: %w", err)
	}

	if status.Status == order.Status && status.FilledQty == order.FilledQuantity {
		return nil // local == broker, noop
	}

	switch status.Status {
	case domain.OrderFilled:
		order.Status = domain.OrderFilled
		order.FilledQuantity = status.FilledQty
		order.AvgPrice = decimal.NewFromFloat(status.AvgPrice)
		order.UpdatedAt = r.clock.Now()
		if err := r.storage.Orders().Update(ctx, order); err != nil {
			return fmt.Errorf("reconcile.reconcileOne: update filled: %w", err)
		}
		r.audit(ctx, order.UserID, domain.SeverityInfo, fmt.Sprintf("order_filled %s", order.ID))

	case domain.OrderPlaced:
		if status.FilledQty > order.FilledQuantity {
			return r.handlePartialFill(ctx, order, status)
		}

	case domain.OrderRejected:
		order.Status = domain.OrderRejected
		order.RejectReason = status.RejectReason
		order.UpdatedAt = r.clock.Now()
		if err := r.storage.Orders().Update(ctx, order); err != nil {
			return fmt.Errorf("reconcile.reconcileOne: update rejected: %w", err)
		}
		if isRetryable(status.RejectReason) {
			r.scheduleRetry(order)
		}

	case domain.OrderCancelled:
		order.Status = domain.OrderCancelled
		order.UpdatedAt = r.clock.Now()
		if err := r.storage.Orders().Update(ctx, order); err != nil {
			return fmt.Errorf("reconcile.reconcileOne: update cancelled: %w", err)
		}
	}
	return nil
}

// handlePartialFill implements the PARTIAL branch of spec §4.10's state
// machine: update filled_qty/avg_price; accept (cancel remainder, mark
// FILLED) once fraction >= 0.75, else wait for more fills.
func (r *Reconciler) handlePartialFill(ctx context.Context, order domain.Order, status ports.OrderStatusResult) error {
	order.FilledQuantity = status.FilledQty
	order.AvgPrice = decimal.NewFromFloat(status.AvgPrice)
	fraction := order.FillFraction()

	if fraction >= partialFillAcceptFraction {
		if err := r.broker.CancelOrder(ctx, order.BrokerOrderID); err != nil {
			return fmt.Errorf("reconcile.handlePartialFill: cancel remainder: %w", err)
		}
		order.Status = domain.OrderFilled
	} else {
		order.Status = domain.OrderPartiallyFilled
	}
	order.UpdatedAt = r.clock.Now()
	if err := r.storage.Orders().Update(ctx, order); err != nil {
		return fmt.Errorf("reconcile.handlePartialFill: %w", err)
	}
	r.audit(ctx, order.UserID, domain.SeverityWarning, fmt.Sprintf("PARTIAL %d/%d", order.FilledQuantity, order.Quantity))
	return nil
}

// scheduleRetry enqueues a retryable REJECTED order per the fixed schedule
// (spec: "Attempts 1..3 at delays [5s, 15s, 45s]").
func (r *Reconciler) scheduleRetry(order domain.Order) {
	r.retryQueue = append(r.retryQueue, retryTask{
		order: order, attempt: 1, dueAt: r.clock.Now().Add(retryDelays[0]),
	})
}

// RetryQueueDepth reports how many orders are currently awaiting a retry
// attempt, for metrics exposition.
func (r *Reconciler) RetryQueueDepth() int { return len(r.retryQueue) }

// ProcessRetryQueue runs due retries, re-placing orders via place and
// linking the new row back to the original (spec: "inserts a new Order row
// linked to the original request; the original stays REJECTED").
func (r *Reconciler) ProcessRetryQueue(ctx context.Context) error {
	now := r.clock.Now()
	var remaining []retryTask
	for _, task := range r.retryQueue {
		if now.Before(task.dueAt) {
			remaining = append(remaining, task)
			continue
		}

		result, err := r.place(ctx, task.order)
		if err == nil && result.Status != domain.OrderRejected {
			newOrder := domain.Order{
				ID: uuid.NewString(), UserID: task.order.UserID, StrategyID: task.order.StrategyID,
				Symbol: task.order.Symbol, Side: task.order.Side, OrderType: task.order.OrderType,
				Quantity: task.order.Quantity, BrokerOrderID: result.BrokerOrderID,
				Status: domain.OrderPlaced, LinkedOrderID: task.order.ID,
				CreatedAt: now, PlacedAt: now, UpdatedAt: now,
			}
			if createErr := r.storage.Orders().Create(ctx, newOrder); createErr != nil {
				slog.Error("reconcile: retry succeeded but failed to persist linked order", "original_id", task.order.ID, "err", createErr)
			}
			continue
		}

		if task.attempt >= len(retryDelays) {
			r.audit(ctx, task.order.UserID, domain.SeverityCritical, fmt.Sprintf("retry exhausted for order %s", task.order.ID))
			continue
		}
		remaining = append(remaining, retryTask{
			order: task.order, attempt: task.attempt + 1,
			dueAt: now.Add(retryDelays[task.attempt]),
		})
	}
	r.retryQueue = remaining
	return nil
}

func (r *Reconciler) audit(ctx context.Context, userID string, severity domain.AuditSeverity, message string) {
	entry := domain.AuditLogEntry{UserID: userID, Event: "reconcile", Severity: severity, Message: message, CreatedAt: r.clock.Now()}
	if err := r.storage.AuditLog().Append(ctx, entry); err != nil {
		slog.Warn("reconcile: audit log write failed", "err", err)
	}
}

func isRetryable(reason string) bool {
	lower := strings.ToLower(reason)
	for _, s := range retryableReasons {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// Age returns how long an order has sat since placement.
func Age(o domain.Order, now time.Time) time.Duration {
	if o.PlacedAt.IsZero() {
		return 0
	}
	return now.Sub(o.PlacedAt)
}
