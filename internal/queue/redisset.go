package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSet backs the dedup window with Redis SET NX + TTL, so dedup state
// survives process restarts and is shared across multiple engine instances
// serving the same user pool (spec §3: "in-memory caches are eventually
// consistent" — Redis gives that same semantics with a shared backing
// store instead of a per-process map).
type RedisSet struct {
	client *redis.Client
	prefix string
}

// NewRedisSet wires a RedisSet against an already-connected client. prefix
// namespaces keys (e.g. "tradecore:dedup:") so the dedup set can share a
// Redis instance with other ephemeral state.
func NewRedisSet(client *redis.Client, prefix string) *RedisSet {
	return &RedisSet{client: client, prefix: prefix}
}

// SeenOrAdd uses SET key NX EX ttl: if the key already exists, the order was
// seen this window; otherwise it is newly claimed.
func (r *RedisSet) SeenOrAdd(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("queue.RedisSet.SeenOrAdd: %w", err)
	}
	return !ok, nil
}

// Clear deletes every key under this set's prefix.
func (r *RedisSet) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("queue.RedisSet.Clear: scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("queue.RedisSet.Clear: del: %w", err)
	}
	return nil
}
