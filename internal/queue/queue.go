// Package queue serializes order submission per user: one FIFO per user,
// dedup within a 1-minute window, a depth cap, and a minimum handler gap
// (spec §4.4).
package queue

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aktrade/tradecore/internal/clock"
	"github.com/aktrade/tradecore/internal/domain"
)

// ErrDepthExceeded describes the depth-cap drop. Enqueue does not return it:
// when the cap is hit it drops the lowest-priority item and returns nil.
var ErrDepthExceeded = errors.New("queue: depth exceeded, lowest-priority item dropped")

const (
	maxDepth   = 10
	dedupWindow = 60 * time.Second
	minGap     = 300 * time.Millisecond
)

// DedupSet is the ephemeral, TTL-backed membership set the queue uses for
// the 1-minute dedup window. RedisSet (internal/queue/redisset.go) and
// MemorySet both implement it; production wires Redis, tests/offline mode
// use the in-memory fallback (spec's ephemeral-cache pattern, §3 Ownership).
type DedupSet interface {
	// SeenOrAdd returns true if key was already present, else it adds key
	// with the given TTL and returns false.
	SeenOrAdd(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Clear wipes every key (called on clear_dedup_on_new_bar).
	Clear(ctx context.Context) error
}

// Handler processes one queued order. An error is counted and emitted as
// handler_error; the item is never re-enqueued (spec §4.4).
type Handler func(ctx context.Context, order domain.QueuedOrder) error

// item is one entry in a user's priority FIFO.
type item struct {
	order domain.QueuedOrder
	seq   uint64 // insertion order, for stability among equal priorities
}

// priorityQueue is a max-heap on (priority, then earliest seq).
type priorityQueue []item

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].order.Priority != pq[j].order.Priority {
		return pq[i].order.Priority > pq[j].order.Priority
	}
	return pq[i].seq < pq[j].seq
}
func (pq priorityQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x any)   { *pq = append(*pq, x.(item)) }
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	it := old[n-1]
	*pq = old[:n-1]
	return it
}

// Metrics is the running counter set exposed per user (spec §4.4).
type Metrics struct {
	Enqueued          int64
	Processed         int64
	DroppedDuplicates int64
	Errors            int64
	Depth             int
	AvgProcessingMS   float64
}

// userQueue is the single-worker FIFO for one user.
type userQueue struct {
	mu      sync.Mutex
	pq      priorityQueue
	seq     uint64
	notify  chan struct{}
	metrics Metrics
	emaMS   float64
	started bool
}

// Queue owns one userQueue per user, each drained by exactly one worker
// goroutine (spec §5: "each per-user queue has exactly one worker").
type Queue struct {
	clock   clock.Clock
	dedup   DedupSet
	handler Handler

	mu    sync.Mutex
	users map[string]*userQueue
}

// New creates a Queue. handler is invoked by every user's worker goroutine;
// it must be safe to call concurrently across different users.
func New(c clock.Clock, dedup DedupSet, handler Handler) *Queue {
	return &Queue{clock: c, dedup: dedup, handler: handler, users: make(map[string]*userQueue)}
}

func (q *Queue) userFor(userID string) *userQueue {
	q.mu.Lock()
	defer q.mu.Unlock()
	uq, ok := q.users[userID]
	if !ok {
		uq = &userQueue{notify: make(chan struct{}, 1)}
		q.users[userID] = uq
	}
	return uq
}

// Start launches the worker goroutine for a user. Calling it more than once
// per user is a no-op beyond the first call in this process.
func (q *Queue) Start(ctx context.Context, userID string) {
	uq := q.userFor(userID)
	uq.mu.Lock()
	if uq.started {
		uq.mu.Unlock()
		return
	}
	uq.started = true
	uq.mu.Unlock()
	go q.runWorker(ctx, userID, uq)
}

// Enqueue adds an order to the user's FIFO, applying dedup and the depth
// cap. Dedup key is user|symbol|side|strategy_id|floor(enqueued_at/60s).
func (q *Queue) Enqueue(ctx context.Context, order domain.QueuedOrder) error {
	dedupKey := fmt.Sprintf("%s|%s|%s|%s|%d", order.UserID, order.Symbol, order.Side, order.StrategyID, order.EnqueuedAt.Unix()/60)
	seen, err := q.dedup.SeenOrAdd(ctx, dedupKey, dedupWindow)
	if err != nil {
		return fmt.Errorf("queue.Enqueue: dedup check: %w", err)
	}

	uq := q.userFor(order.UserID)
	uq.mu.Lock()
	if seen {
		uq.metrics.DroppedDuplicates++
		uq.mu.Unlock()
		return nil
	}

	uq.seq++
	heap.Push(&uq.pq, item{order: order, seq: uq.seq})
	uq.metrics.Enqueued++

	if len(uq.pq) > maxDepth {
		dropLowestPriority(&uq.pq)
		slog.Warn("queue: depth exceeded, dropped lowest-priority item", "user", order.UserID, "depth", len(uq.pq))
	}
	uq.metrics.Depth = len(uq.pq)
	uq.mu.Unlock()

	select {
	case uq.notify <- struct{}{}:
	default:
	}
	return nil
}

// dropLowestPriority removes the single worst-priority item from the heap,
// keeping it a valid heap afterward.
func dropLowestPriority(pq *priorityQueue) {
	worst := 0
	for i := 1; i < pq.Len(); i++ {
		if (*pq)[i].order.Priority < (*pq)[worst].order.Priority {
			worst = i
		}
	}
	heap.Remove(pq, worst)
}

// Metrics returns a snapshot of one user's queue metrics.
func (q *Queue) Metrics(userID string) Metrics {
	uq := q.userFor(userID)
	uq.mu.Lock()
	defer uq.mu.Unlock()
	return uq.metrics
}

// ClearDedup wipes the dedup set (spec: clear_dedup_on_new_bar).
func (q *Queue) ClearDedup(ctx context.Context) error {
	return q.dedup.Clear(ctx)
}

// runWorker drains one user's FIFO, enforcing a minimum gap between
// successive handler invocations (spec: "minimum gap of 300 ms").
func (q *Queue) runWorker(ctx context.Context, userID string, uq *userQueue) {
	var lastRun time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-uq.notify:
		}

		for {
			uq.mu.Lock()
			if len(uq.pq) == 0 {
				uq.mu.Unlock()
				break
			}
			next := heap.Pop(&uq.pq).(item)
			uq.metrics.Depth = len(uq.pq)
			uq.mu.Unlock()

			if !lastRun.IsZero() {
				elapsed := q.clock.Now().Sub(lastRun)
				if elapsed < minGap {
					select {
					case <-q.clock.After(minGap - elapsed):
					case <-ctx.Done():
						return
					}
				}
			}

			start := q.clock.Now()
			err := q.handler(ctx, next.order)
			lastRun = q.clock.Now()
			elapsedMS := float64(lastRun.Sub(start).Milliseconds())

			uq.mu.Lock()
			if err != nil {
				uq.metrics.Errors++
				slog.Error("queue: handler_error", "user", userID, "symbol", next.order.Symbol, "err", err)
			} else {
				uq.metrics.Processed++
			}
			const emaAlpha = 0.2
			if uq.emaMS == 0 {
				uq.emaMS = elapsedMS
			} else {
				uq.emaMS = emaAlpha*elapsedMS + (1-emaAlpha)*uq.emaMS
			}
			uq.metrics.AvgProcessingMS = uq.emaMS
			uq.mu.Unlock()
		}
	}
}
