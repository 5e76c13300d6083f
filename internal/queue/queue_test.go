package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aktrade/tradecore/internal/clock"
	"github.com/aktrade/tradecore/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func order(userID, symbol string, side domain.Side, strategyID string, priority int, at time.Time) domain.QueuedOrder {
	return domain.QueuedOrder{
		UserID: userID, Symbol: symbol, Side: side, StrategyID: strategyID,
		Quantity: 1, Priority: priority, EnqueuedAt: at,
	}
}

func TestEnqueue_DedupWithinWindow(t *testing.T) {
	c := clock.Real{}
	dedup := NewMemorySet(c)
	var processed []domain.QueuedOrder
	var mu sync.Mutex
	q := New(c, dedup, func(ctx context.Context, o domain.QueuedOrder) error {
		mu.Lock()
		processed = append(processed, o)
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx, "user1")

	// Start on a minute boundary so both enqueues share one dedup bucket.
	now := c.Now().Truncate(time.Minute)
	require.NoError(t, q.Enqueue(ctx, order("user1", "NIFTY", domain.SideBuy, "strat-a", 1, now)))
	require.NoError(t, q.Enqueue(ctx, order("user1", "NIFTY", domain.SideBuy, "strat-a", 1, now.Add(10*time.Second))))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(processed) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, int64(1), q.Metrics("user1").DroppedDuplicates)
}

func TestEnqueue_DepthCapDropsLowestPriority(t *testing.T) {
	c := clock.Real{}
	dedup := NewMemorySet(c)
	block := make(chan struct{})
	q := New(c, dedup, func(ctx context.Context, o domain.QueuedOrder) error {
		<-block
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx, "user1")

	now := c.Now()
	// First enqueue is immediately picked up by the worker and blocks there,
	// so the remaining 11 enqueues (distinct symbols to dodge dedup) fill and
	// then overflow the depth-10 queue.
	require.NoError(t, q.Enqueue(ctx, order("user1", "SYM0", domain.SideBuy, "s", 5, now)))
	time.Sleep(20 * time.Millisecond)

	symbols := []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K"}
	for i, sym := range symbols {
		o := order("user1", sym, domain.SideBuy, "s", i, now.Add(time.Duration(i)*time.Millisecond))
		require.NoError(t, q.Enqueue(ctx, o))
	}

	assert.LessOrEqual(t, q.Metrics("user1").Depth, 10)
	close(block)
}

func TestEnqueue_PriorityOrderBeforeFIFO(t *testing.T) {
	c := clock.Real{}
	dedup := NewMemorySet(c)
	var processed []string
	var mu sync.Mutex
	block := make(chan struct{})
	first := true
	q := New(c, dedup, func(ctx context.Context, o domain.QueuedOrder) error {
		mu.Lock()
		if first {
			first = false
			mu.Unlock()
			<-block // hold the worker so the rest can queue up first
		} else {
			mu.Unlock()
		}
		mu.Lock()
		processed = append(processed, o.Symbol)
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx, "user1")

	now := c.Now()
	require.NoError(t, q.Enqueue(ctx, order("user1", "GATE", domain.SideBuy, "s", 0, now)))
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, q.Enqueue(ctx, order("user1", "LOW", domain.SideBuy, "s1", 1, now)))
	require.NoError(t, q.Enqueue(ctx, order("user1", "HIGH", domain.SideBuy, "s2", 9, now)))
	close(block)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(processed) == 3
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, processed, 3)
	assert.Equal(t, "GATE", processed[0])
	assert.Equal(t, "HIGH", processed[1])
	assert.Equal(t, "LOW", processed[2])
}

func TestWorker_HandlerErrorNotReenqueued(t *testing.T) {
	c := clock.Real{}
	dedup := NewMemorySet(c)
	calls := 0
	var mu sync.Mutex
	q := New(c, dedup, func(ctx context.Context, o domain.QueuedOrder) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("handler boom")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx, "user1")

	require.NoError(t, q.Enqueue(ctx, order("user1", "NIFTY", domain.SideBuy, "s", 1, c.Now())))

	assert.Eventually(t, func() bool {
		return q.Metrics("user1").Errors == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls, "handler must not be retried/re-enqueued on error")
}

func TestClearDedup_WipesSet(t *testing.T) {
	c := clock.Real{}
	dedup := NewMemorySet(c)
	q := New(c, dedup, func(ctx context.Context, o domain.QueuedOrder) error { return nil })

	ctx := context.Background()
	now := c.Now()
	require.NoError(t, q.Enqueue(ctx, order("user1", "NIFTY", domain.SideBuy, "s", 1, now)))
	require.NoError(t, q.ClearDedup(ctx))

	key := fmt.Sprintf("user1|NIFTY|BUY|s|%d", now.Unix()/60)
	seen, err := dedup.SeenOrAdd(ctx, key, dedupWindow)
	require.NoError(t, err)
	assert.False(t, seen, "dedup set should be empty after ClearDedup")
}
