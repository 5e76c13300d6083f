// Package breaker implements the circuit breaker + failover wrapper from
// spec §4.9: CLOSED -> OPEN after N consecutive failures, a single
// HALF_OPEN probe after reset_timeout, and CLOSED again after
// success_threshold consecutive probe successes.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aktrade/tradecore/internal/clock"
	"github.com/aktrade/tradecore/internal/domain"
)

// ErrOpen is returned when a call is rejected because the breaker is OPEN
// (or HALF_OPEN with a probe already in flight). It is the only component
// permitted to refuse a call on its own (spec §7).
var ErrOpen = errors.New("breaker: circuit open")

// Config holds the breaker's tunables (spec §4.9 defaults).
type Config struct {
	FailureThreshold int           // N
	ResetTimeout     time.Duration // reset_timeout
	SuccessThreshold int           // success_threshold
	CallTimeout      time.Duration // call_timeout
}

// DefaultConfig returns the spec's stated defaults: N=5, reset=60s, success=2, timeout=8s.
func DefaultConfig() Config {
	return Config{FailureThreshold: 5, ResetTimeout: 60 * time.Second, SuccessThreshold: 2, CallTimeout: 8 * time.Second}
}

// AuditFunc records every state transition (spec: "Every state change is
// persisted to an audit log").
type AuditFunc func(domain.AuditSeverity, string)

// Breaker wraps one upstream dependency (the live broker) with failure
// counting and timeout enforcement. It holds no knowledge of what it wraps;
// Call is generic over the protected operation.
type Breaker struct {
	clock  clock.Clock
	cfg    Config
	audit  AuditFunc

	mu           sync.Mutex
	state        domain.CircuitState
	failureCount int
	successCount int
	openedAt     time.Time
	halfOpenBusy bool
}

// New creates a Breaker in the CLOSED state (or restored from a persisted
// snapshot, e.g. loaded from storage at boot).
func New(c clock.Clock, cfg Config, restored domain.CircuitBreakerState, audit AuditFunc) *Breaker {
	if audit == nil {
		audit = func(domain.AuditSeverity, string) {}
	}
	state := restored.State
	if state == "" {
		state = domain.CircuitClosed
	}
	return &Breaker{
		clock: c, cfg: cfg, audit: audit,
		state: state, failureCount: restored.FailureCount, openedAt: restored.OpenedAt,
	}
}

// Snapshot returns the durable state for persistence.
func (b *Breaker) Snapshot() domain.CircuitBreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return domain.CircuitBreakerState{
		State: b.state, FailureCount: b.failureCount, SuccessCount: b.successCount,
		OpenedAt: b.openedAt, UseFallback: b.state != domain.CircuitClosed,
	}
}

// State returns the current circuit state.
func (b *Breaker) State() domain.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// admit decides whether a call may proceed right now, transitioning
// OPEN->HALF_OPEN when reset_timeout has elapsed and claiming the single
// probe slot (spec: "the first call after reset_timeout is the only call
// admitted until the HALF_OPEN probe resolves").
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case domain.CircuitClosed:
		return nil
	case domain.CircuitHalfOpen:
		if b.halfOpenBusy {
			return ErrOpen
		}
		b.halfOpenBusy = true
		return nil
	case domain.CircuitOpen:
		if b.clock.Now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return ErrOpen
		}
		b.state = domain.CircuitHalfOpen
		b.successCount = 0
		b.halfOpenBusy = true
		b.audit(domain.SeverityWarning, "breaker: OPEN -> HALF_OPEN probe admitted")
		return nil
	default:
		return nil
	}
}

// Call runs fn under the breaker's admission control and timeout, recording
// the outcome against the state machine.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
	defer cancel()

	err := fn(callCtx)
	if err != nil {
		b.onFailure()
		return fmt.Errorf("breaker.Call: %w", err)
	}
	b.onSuccess()
	return nil
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.halfOpenBusy = false
	switch b.state {
	case domain.CircuitHalfOpen:
		b.state = domain.CircuitOpen
		b.openedAt = b.clock.Now()
		b.audit(domain.SeverityCritical, "breaker: HALF_OPEN probe failed -> OPEN")
	case domain.CircuitClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.state = domain.CircuitOpen
			b.openedAt = b.clock.Now()
			b.audit(domain.SeverityCritical, fmt.Sprintf("breaker: %d consecutive failures -> OPEN", b.failureCount))
		}
	}
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.halfOpenBusy = false
	switch b.state {
	case domain.CircuitClosed:
		b.failureCount = 0
	case domain.CircuitHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.state = domain.CircuitClosed
			b.failureCount = 0
			b.successCount = 0
			b.audit(domain.SeverityInfo, "breaker: HALF_OPEN -> CLOSED")
		}
	}
}
